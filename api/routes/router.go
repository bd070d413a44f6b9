package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ticketpay-backend/api/controllers"
	paymentcontrollers "github.com/angelmondragon/ticketpay-backend/api/controllers/payments"
	"github.com/angelmondragon/ticketpay-backend/api/middleware"
	"github.com/angelmondragon/ticketpay-backend/internal/notifications"
	internalpayments "github.com/angelmondragon/ticketpay-backend/internal/payments"
	"github.com/angelmondragon/ticketpay-backend/internal/payouts"
	"github.com/angelmondragon/ticketpay-backend/internal/sellers"
	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/pagination"
)

// KeyValueStore is the Redis surface used by the idempotency and rate limit
// middleware.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// DLQReader lists dead-lettered outbox events.
type DLQReader interface {
	List(ctx context.Context, cursor *pagination.Cursor, limit int) (pagination.Page[models.OutboxDLQ], error)
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Store         KeyValueStore
	Payments      internalpayments.Service
	Payouts       payouts.Service
	Sellers       sellers.Service
	Notifications notifications.Service
	DLQ           DLQReader
	// MetricsHandler overrides the default Prometheus handler; tests use it.
	MetricsHandler http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins...),
	)

	paymentsPolicy := middleware.RateLimitPolicy{
		Name:    "payments",
		Window:  cfg.RateLimit.Window,
		PerIP:   cfg.RateLimit.IPLimit,
		PerUser: cfg.RateLimit.UserLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Store,
		}))
	})

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/payments", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RateLimit(paymentsPolicy, deps.Store, logg),
			middleware.Idempotency(deps.Store, logg),
		)
		r.Post("/prepare", paymentcontrollers.Prepare(deps.Payments, logg))
		r.Post("/confirm", paymentcontrollers.Confirm(deps.Payments, logg))
		r.Post("/cancel", paymentcontrollers.Cancel(deps.Payments, logg))
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.Idempotency(deps.Store, logg),
		)
		r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
		r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(string(enums.UserRoleAdmin), logg),
			middleware.Idempotency(deps.Store, logg),
		)
		r.Post("/settlements/{paymentTransactionId}/payout", controllers.AdminForcePayout(deps.Payouts, logg))
		r.Get("/payouts/{payoutId}", controllers.AdminPayoutDetail(deps.Payouts, logg))
		r.Post("/payouts/{payoutId}/retry", controllers.AdminRetryPayout(deps.Payouts, logg))
		r.Post("/payouts/{payoutId}/outcome", controllers.AdminPayoutOutcome(deps.Payouts, logg))
		r.Post("/payout/sellers", controllers.AdminUpsertSellerProfile(deps.Sellers, logg))
		r.Get("/payout/sellers/{userId}", controllers.AdminSellerProfile(deps.Sellers, logg))
		r.Post("/orders/{orderId}/cancel", controllers.AdminCancelOrder(deps.Payments, logg))
		r.Post("/orders/{orderId}/reconcile", controllers.AdminReconcileOrder(deps.Payments, logg))
		r.Get("/outbox/dlq", controllers.AdminOutboxDLQ(deps.DLQ, logg))
	})

	return r
}
