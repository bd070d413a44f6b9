package payments

import (
	"fmt"

	"github.com/angelmondragon/ticketpay-backend/internal/applications"
	"github.com/angelmondragon/ticketpay-backend/internal/intents"
	"github.com/angelmondragon/ticketpay-backend/internal/ledger"
	"github.com/angelmondragon/ticketpay-backend/internal/parties"
	"github.com/angelmondragon/ticketpay-backend/internal/payouts"
	"github.com/angelmondragon/ticketpay-backend/internal/sellers"
	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db"
	"github.com/angelmondragon/ticketpay-backend/pkg/gateway"
	"github.com/angelmondragon/ticketpay-backend/pkg/lock"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/metrics"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
	"github.com/angelmondragon/ticketpay-backend/pkg/payoutgateway"
)

// StackParams carries the infrastructure shared by every payment component.
type StackParams struct {
	Config   *config.Config
	DB       *db.Client
	Gateway  gateway.Client
	Provider payoutgateway.Provider
	Locker   lock.Locker
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

// Stack is the fully wired set of payment services used by the binaries.
type Stack struct {
	Intents      intents.Service
	Applications applications.Service
	Ledger       ledger.Service
	Payouts      payouts.Service
	Sellers      sellers.Service
	Payments     Service
}

// NewStack builds the payment services on top of one database client.
func NewStack(params StackParams) (*Stack, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	conn := params.DB.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), params.Logger)

	listings, err := parties.NewService(parties.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	intentSvc, err := intents.NewService(intents.ServiceParams{
		Config:   params.Config.Payment,
		Tx:       params.DB,
		Repo:     intents.NewRepository(conn),
		Listings: listings,
		Gateway:  params.Gateway,
		Locker:   params.Locker,
		Outbox:   emitter,
		Metrics:  params.Metrics,
		Logger:   params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("intents: %w", err)
	}
	appSvc, err := applications.NewService(applications.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("applications: %w", err)
	}
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Config:  params.Config.Payment,
		Tx:      params.DB,
		Repo:    ledger.NewRepository(conn),
		Locker:  params.Locker,
		Outbox:  emitter,
		Metrics: params.Metrics,
		Logger:  params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	sellerSvc, err := sellers.NewService(sellers.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("sellers: %w", err)
	}
	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Config:   params.Config.Payout,
		Tx:       params.DB,
		Repo:     payouts.NewRepository(conn),
		Ledger:   ledgerSvc,
		Sellers:  sellerSvc,
		Provider: params.Provider,
		Locker:   params.Locker,
		Outbox:   emitter,
		Metrics:  params.Metrics,
		Logger:   params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("payouts: %w", err)
	}
	paymentSvc, err := NewService(ServiceParams{
		Payout:       params.Config.Payout,
		Intents:      intentSvc,
		Applications: appSvc,
		Ledger:       ledgerSvc,
		Payouts:      payoutSvc,
		Gateway:      params.Gateway,
		Locker:       params.Locker,
		Metrics:      params.Metrics,
		Logger:       params.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Stack{
		Intents:      intentSvc,
		Applications: appSvc,
		Ledger:       ledgerSvc,
		Payouts:      payoutSvc,
		Sellers:      sellerSvc,
		Payments:     paymentSvc,
	}, nil
}
