package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/ticketpay-backend/internal/payouts"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

type PayoutRetryJobParams struct {
	Logger    *logger.Logger
	Due       duePayoutLister
	Payouts   payoutRequester
	BatchSize int
}

// NewPayoutRetryJob builds the job that re-sends scheduled and stuck payouts.
func NewPayoutRetryJob(params PayoutRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Due == nil {
		return nil, fmt.Errorf("due payout lister required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &payoutRetryJob{
		logg:    params.Logger,
		due:     params.Due,
		payouts: params.Payouts,
		batch:   batch,
	}, nil
}

type payoutRetryJob struct {
	logg    *logger.Logger
	due     duePayoutLister
	payouts payoutRequester
	batch   int
}

func (j *payoutRetryJob) Name() string { return "payout-retry" }

func (j *payoutRetryJob) Run(ctx context.Context) error {
	due, err := j.due.ListDue(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list due payouts: %w", err)
	}

	completed, rescheduled, failed, skipped := 0, 0, 0, 0
	var errs error
	for _, payout := range due {
		result, err := j.payouts.RetryPayout(ctx, payout.ID)
		if err != nil {
			// Another worker or an admin moved the row since it was listed.
			if pkgerrors.ReasonOf(err) == payouts.ReasonNotRetryable {
				skipped++
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("retry payout %s: %w", payout.ID, err))
			continue
		}
		switch result.Status {
		case enums.PayoutStatusCompleted:
			completed++
		case enums.PayoutStatusRetryScheduled:
			rescheduled++
		case enums.PayoutStatusFailed:
			failed++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":     len(due),
		"completed":   completed,
		"rescheduled": rescheduled,
		"failed":      failed,
		"skipped":     skipped,
		"errors":      len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "payout retry sweep complete")
	return errs
}
