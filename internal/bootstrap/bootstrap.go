// Package bootstrap holds the start-up sequence shared by the ticketpay
// binaries: environment, config, logger, backing clients and orderly close.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/ticketpay-backend/internal/payments"
	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db"
	"github.com/angelmondragon/ticketpay-backend/pkg/gateway"
	"github.com/angelmondragon/ticketpay-backend/pkg/lock"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/metrics"
	"github.com/angelmondragon/ticketpay-backend/pkg/migrate"
	"github.com/angelmondragon/ticketpay-backend/pkg/payoutgateway"
	"github.com/angelmondragon/ticketpay-backend/pkg/pubsub"
	"github.com/angelmondragon/ticketpay-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// App is one running binary. Clients opened through it are closed in reverse
// order by Close, including on a fatal start-up error.
type App struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
	exit    func(code int)
}

// Start loads .env and config then builds the service logger. It exits the
// process when config is invalid.
func Start(kind string) *App {
	app := &App{Kind: kind, Logger: logger.New(logger.Options{ServiceName: kind}), exit: os.Exit}
	if err := godotenv.Load(); err != nil {
		app.Logger.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	app.Must(err, "load config")

	cfg.Service.Kind = kind
	app.Config = cfg
	app.Logger = logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})
	return app
}

// Must aborts start-up when err is set, closing whatever was already opened.
func (a *App) Must(err error, step string) {
	if err == nil {
		return
	}
	a.Logger.Error(context.Background(), "failed to "+step, err)
	a.Close()
	a.exit(1)
}

// OnClose registers fn to run during Close.
func (a *App) OnClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases registered resources newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Logger.Error(context.Background(), "error closing "+c.name, err)
		}
	}
	a.closers = nil
}

// Database opens Postgres and applies embedded migrations in dev.
func (a *App) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, a.Config.DB, a.Logger)
	a.Must(err, "bootstrap database")
	a.OnClose("database", client.Close)
	a.Must(migrate.MaybeRunDev(ctx, a.Config, a.Logger, client), "run dev migrations")
	return client
}

func (a *App) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, a.Config.Redis, a.Logger)
	a.Must(err, "bootstrap redis")
	a.OnClose("redis", client.Close)
	return client
}

func (a *App) PubSub(ctx context.Context) *pubsub.Client {
	client, err := pubsub.NewClient(ctx, a.Config.GCP, a.Config.PubSub, a.Logger)
	a.Must(err, "bootstrap pubsub")
	a.OnClose("pubsub client", client.Close)
	return client
}

// Payments wires the gateway, payout provider and order locker into the
// payment service stack.
func (a *App) Payments(ctx context.Context, dbClient *db.Client, redisClient *redis.Client) *payments.Stack {
	gatewayClient, err := gateway.New(ctx, a.Config.Gateway, a.Config.Square, a.Logger)
	a.Must(err, "create payment gateway client")

	provider, closeProvider, err := payoutgateway.New(ctx, a.Config.Payout, a.Config.NATS, a.Logger)
	a.Must(err, "create payout provider")
	a.OnClose("payout provider", func() error { closeProvider(); return nil })

	locker, err := lock.NewRedisLocker(redisClient, lock.RedisOptions{
		Prefix: redisClient.LockPrefix(),
		TTL:    a.Config.Redis.LockTTL,
	})
	a.Must(err, "create order locker")

	stack, err := payments.NewStack(payments.StackParams{
		Config:   a.Config,
		DB:       dbClient,
		Gateway:  gatewayClient,
		Provider: provider,
		Locker:   locker,
		Metrics:  metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		Logger:   a.Logger,
	})
	a.Must(err, "wire payment services")
	return stack
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the env and
// service kind log fields.
func (a *App) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = a.Logger.WithFields(ctx, map[string]any{
		"env":         a.Config.App.Env,
		"serviceKind": a.Kind,
	})
	return ctx, stop
}

// RunLoop serves metrics and blocks in run until ctx ends. A non-cancel
// error exits the process with status 1.
func (a *App) RunLoop(ctx context.Context, run func(context.Context) error) {
	metrics.Serve(ctx, a.Config.App.MetricsAddr, a.Logger)
	a.Logger.Info(ctx, "starting "+a.Kind)

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error(ctx, a.Kind+" stopped unexpectedly", err)
		a.Close()
		a.exit(1)
		return
	}
	a.Logger.Info(ctx, a.Kind+" shutting down gracefully")
}
