package main

import (
	"context"
	"time"

	"github.com/angelmondragon/ticketpay-backend/internal/bootstrap"
	"github.com/angelmondragon/ticketpay-backend/internal/notifications"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/registry"
)

// Redelivery after a week is treated as a new event.
const processedEventTTL = 7 * 24 * time.Hour

func main() {
	app := bootstrap.Start("worker")
	defer app.Close()

	bootCtx := context.Background()
	dbClient := app.Database(bootCtx)
	redisClient := app.Redis(bootCtx)
	pubsubClient := app.PubSub(bootCtx)

	eventRegistry, err := registry.NewEventRegistry(app.Config.PubSub)
	app.Must(err, "build event registry")
	guard, err := idempotency.NewGuard(redisClient, processedEventTTL)
	app.Must(err, "create idempotency guard")

	consumer, err := notifications.NewConsumer(notifications.ConsumerParams{
		Repo:         notifications.NewRepository(dbClient.DB()),
		Subscription: pubsubClient.DomainSubscription(),
		Idempotency:  guard,
		Decoder:      eventRegistry,
		Logger:       app.Logger,
	})
	app.Must(err, "create notification consumer")

	service, err := NewService(ServiceParams{
		Logger: app.Logger,
		Dependencies: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		},
		Consumers: map[string]runner{
			"notifications": consumer,
		},
	})
	app.Must(err, "create worker")

	ctx, stop := app.SignalContext()
	defer stop()
	app.RunLoop(ctx, service.Run)
}
