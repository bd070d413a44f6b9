package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/angelmondragon/ticketpay-backend/api/routes"
	"github.com/angelmondragon/ticketpay-backend/internal/bootstrap"
	"github.com/angelmondragon/ticketpay-backend/internal/notifications"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

func main() {
	app := bootstrap.Start("api")
	defer app.Close()

	bootCtx := context.Background()
	dbClient := app.Database(bootCtx)
	redisClient := app.Redis(bootCtx)
	stack := app.Payments(bootCtx, dbClient, redisClient)

	inbox, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	app.Must(err, "create notifications service")

	handler := routes.NewRouter(routes.Deps{
		Config:        app.Config,
		Logger:        app.Logger,
		DB:            dbClient,
		Store:         redisClient,
		Payments:      stack.Payments,
		Payouts:       stack.Payouts,
		Sellers:       stack.Sellers,
		Notifications: inbox,
		DLQ:           outbox.NewDLQRepository(dbClient.DB()),
	})

	ctx, stop := app.SignalContext()
	defer stop()
	app.RunLoop(ctx, func(ctx context.Context) error {
		return serve(ctx, app, listenAddr(app.Config.App.Port), handler)
	})
}

// listenAddr prefers the platform-assigned PORT.
func listenAddr(configured string) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + configured
}

// serve runs the HTTP server until ctx ends, then drains in-flight requests.
func serve(ctx context.Context, app *bootstrap.App, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx = app.Logger.WithField(ctx, "addr", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		app.Logger.Info(ctx, "draining http connections")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
