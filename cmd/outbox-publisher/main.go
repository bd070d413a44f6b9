package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/ticketpay-backend/internal/bootstrap"
	"github.com/angelmondragon/ticketpay-backend/pkg/metrics"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/registry"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/relay"
)

func main() {
	app := bootstrap.Start("outbox-publisher")
	defer app.Close()

	bootCtx := context.Background()
	dbClient := app.Database(bootCtx)
	pubsubClient := app.PubSub(bootCtx)

	eventRegistry, err := registry.NewEventRegistry(app.Config.PubSub)
	app.Must(err, "build event registry")

	conn := dbClient.DB()
	eventRelay, err := relay.New(relay.Params{
		DB:          dbClient,
		Repository:  outbox.NewRepository(conn),
		DLQ:         outbox.NewDLQRepository(conn),
		Resolver:    eventRegistry,
		Publishers:  relay.GCPPublishers(pubsubClient.Publisher),
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		Logger:      app.Logger,
		BatchSize:   app.Config.Outbox.BatchSize,
		MaxAttempts: app.Config.Outbox.MaxAttempts,
	})
	app.Must(err, "create outbox relay")

	service, err := NewService(ServiceParams{
		Config:   app.Config,
		Logger:   app.Logger,
		Database: dbClient,
		PubSub:   pubsubClient,
		Relay:    eventRelay,
	})
	app.Must(err, "create outbox publisher")

	ctx, stop := app.SignalContext()
	defer stop()
	app.RunLoop(ctx, service.Run)
}
