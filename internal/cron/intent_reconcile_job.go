package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

// IntentReconcileJobParams configure the stale intent sweep.
type IntentReconcileJobParams struct {
	Logger     *logger.Logger
	Intents    staleIntentLister
	Reconciler intentReconciler
	BatchSize  int
}

// NewIntentReconcileJob builds the job that drives abandoned, half-finished
// and compensating intents to a terminal state.
func NewIntentReconcileJob(params IntentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("intent lister required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("intent reconciler required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &intentReconcileJob{
		logg:       params.Logger,
		intents:    params.Intents,
		reconciler: params.Reconciler,
		batch:      batch,
	}, nil
}

type intentReconcileJob struct {
	logg       *logger.Logger
	intents    staleIntentLister
	reconciler intentReconciler
	batch      int
}

func (j *intentReconcileJob) Name() string { return "intent-reconcile" }

func (j *intentReconcileJob) Run(ctx context.Context) error {
	stale, err := j.intents.ListStale(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list stale intents: %w", err)
	}

	outcomes := map[enums.IntentStatus]int{}
	deferred := 0
	var errs error
	for _, intent := range stale {
		result, err := j.reconciler.ReconcileIntent(ctx, intent.OrderID)
		if err != nil {
			logCtx := j.logg.WithFields(j.logg.WithOrderID(ctx, intent.OrderID), map[string]any{
				"error":     err.Error(),
				"retryable": pkgerrors.Retryable(err),
			})
			// Transient failures stay stale and queue behind untried rows.
			if pkgerrors.Retryable(err) {
				deferred++
				if deferErr := j.intents.Defer(ctx, intent.OrderID); deferErr != nil {
					errs = multierr.Append(errs, fmt.Errorf("defer %s: %w", intent.OrderID, deferErr))
				}
			}
			j.logg.Warn(logCtx, "intent reconcile failed")
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", intent.OrderID, err))
			continue
		}
		outcomes[result.Status]++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":             len(stale),
		"expired":             outcomes[enums.IntentStatusExpired],
		"canceled":            outcomes[enums.IntentStatusCanceled],
		"cancel_failed":       outcomes[enums.IntentStatusCancelFailed],
		"application_created": outcomes[enums.IntentStatusApplicationCreated],
		"deferred":            deferred,
		"errors":              len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "intent reconcile sweep complete")
	return errs
}
