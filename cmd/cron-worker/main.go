package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/ticketpay-backend/internal/bootstrap"
	"github.com/angelmondragon/ticketpay-backend/internal/cron"
	"github.com/angelmondragon/ticketpay-backend/internal/notifications"
	"github.com/angelmondragon/ticketpay-backend/internal/payments"
	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db"
	"github.com/angelmondragon/ticketpay-backend/pkg/lock"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/metrics"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
)

func main() {
	app := bootstrap.Start("cron-worker")
	defer app.Close()

	bootCtx := context.Background()
	dbClient := app.Database(bootCtx)
	redisClient := app.Redis(bootCtx)
	stack := app.Payments(bootCtx, dbClient, redisClient)

	registry, err := buildRegistry(app.Config, app.Logger, dbClient, stack)
	app.Must(err, "register cron jobs")

	// One lock per environment keeps a single replica ticking.
	cronLock, err := lock.NewLease(redisClient, cycleLockKey(redisClient.LockPrefix(), app.Config.App.Env), app.Config.Cron.LockTTL)
	app.Must(err, "create cron lock")

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   app.Logger,
		Registry: registry,
		Lock:     cronLock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: app.Config.Cron.Interval,
	})
	app.Must(err, "create cron service")

	ctx, stop := app.SignalContext()
	defer stop()
	app.RunLoop(ctx, service.Run)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, stack *payments.Stack) (*cron.Registry, error) {
	intentJob, err := cron.NewIntentReconcileJob(cron.IntentReconcileJobParams{
		Logger:     logg,
		Intents:    stack.Intents,
		Reconciler: stack.Payments,
		BatchSize:  cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	settlementJob, err := cron.NewSettlementJob(cron.SettlementJobParams{
		Logger:       logg,
		Transactions: stack.Ledger,
		Payouts:      stack.Payouts,
		Hold:         cfg.Payout.SettlementHold,
		BatchSize:    cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	payoutJob, err := cron.NewPayoutRetryJob(cron.PayoutRetryJobParams{
		Logger:    logg,
		Due:       stack.Payouts,
		Payouts:   stack.Payouts,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(logg, dbClient, outbox.NewRepository(dbClient.DB()),
		cfg.Cron.OutboxRetention, cfg.Outbox.MaxAttempts)
	if err != nil {
		return nil, err
	}
	notificationJob, err := cron.NewNotificationCleanupJob(logg, dbClient, notifications.NewRepository(dbClient.DB()),
		cfg.Cron.NotificationRetention)
	if err != nil {
		return nil, err
	}

	// Settlement runs before the retry sweep so fresh payouts get a first attempt.
	registry := cron.NewRegistry(intentJob, settlementJob, payoutJob)
	registry.Register(outboxJob, cfg.Cron.MaintenanceEvery)
	registry.Register(notificationJob, cfg.Cron.MaintenanceEvery)
	return registry, nil
}

func cycleLockKey(prefix, env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("%s:cron-worker:%s", prefix, env)
}
