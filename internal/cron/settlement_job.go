package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/ticketpay-backend/internal/payouts"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

type SettlementJobParams struct {
	Logger       *logger.Logger
	Transactions settlementLister
	Payouts      payoutRequester
	// Hold is how long a paid transaction waits before its seller is paid.
	Hold      time.Duration
	BatchSize int
}

// NewSettlementJob builds the job that starts payouts for paid transactions
// whose settlement hold has elapsed.
func NewSettlementJob(params SettlementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction lister required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	if params.Hold < 0 {
		return nil, fmt.Errorf("settlement hold must not be negative")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &settlementJob{
		logg:         params.Logger,
		transactions: params.Transactions,
		payouts:      params.Payouts,
		hold:         params.Hold,
		batch:        batch,
		now:          time.Now,
	}, nil
}

type settlementJob struct {
	logg         *logger.Logger
	transactions settlementLister
	payouts      payoutRequester
	hold         time.Duration
	batch        int
	now          func() time.Time
}

func (j *settlementJob) Name() string { return "settlement-request" }

func (j *settlementJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.hold)
	pending, err := j.transactions.ListAwaitingSettlement(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list transactions awaiting settlement: %w", err)
	}

	requested, waiting := 0, 0
	var errs error
	for _, txn := range pending {
		_, err := j.payouts.RequestPayout(ctx, txn.ID)
		switch {
		case err == nil:
			requested++
		case pkgerrors.ReasonOf(err) == payouts.ReasonSellerNotOnboarded:
			waiting++
		case pkgerrors.ReasonOf(err) == payouts.ReasonAlreadySettled,
			pkgerrors.ReasonOf(err) == payouts.ReasonSettlementSkipped:
		default:
			errs = multierr.Append(errs, fmt.Errorf("request payout for %s: %w", txn.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"scanned":         len(pending),
		"requested":       requested,
		"awaiting_seller": waiting,
		"errors":          len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "settlement sweep complete")
	return errs
}
