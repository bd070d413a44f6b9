package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/lock"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/metrics"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/ticketpay-backend/pkg/payoutgateway"
)

const (
	ReasonAlreadySettled     = "ALREADY_SETTLED"
	ReasonSellerNotOnboarded = "SELLER_NOT_ONBOARDED"
	ReasonPayoutNotFound     = "PAYOUT_NOT_FOUND"
	ReasonNotRetryable       = "PAYOUT_NOT_RETRYABLE"
	ReasonSettlementSkipped  = "SETTLEMENT_SKIPPED"

	// SkipReasonDisabled marks rows written while payouts are switched off.
	SkipReasonDisabled = "PAYMENT_PAYOUT_DISABLED"
	// SkipReasonNothingToPay marks rows for transactions with no net proceeds.
	SkipReasonNothingToPay = "NOTHING_TO_PAY"
)

// OutcomeKind classifies a provider response.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "COMPLETED"
	OutcomeAccepted  OutcomeKind = "ACCEPTED"
	OutcomeTransient OutcomeKind = "TRANSIENT"
	OutcomePermanent OutcomeKind = "PERMANENT"
)

// IsValid reports whether the kind is known.
func (k OutcomeKind) IsValid() bool {
	switch k {
	case OutcomeCompleted, OutcomeAccepted, OutcomeTransient, OutcomePermanent:
		return true
	}
	return false
}

// Outcome is what the provider said about one payout request.
type Outcome struct {
	Kind        OutcomeKind
	ProviderRef string
	Code        string
	Message     string
}

// OutcomeFrom maps a provider call result onto an Outcome.
func OutcomeFrom(res payoutgateway.Result, err error) Outcome {
	if err != nil {
		outcome := Outcome{Kind: OutcomePermanent, Code: payoutgateway.CodeOf(err), Message: err.Error()}
		var pErr *payoutgateway.Error
		if errors.As(err, &pErr) {
			outcome.Message = pErr.Message
		}
		if payoutgateway.IsTransient(err) {
			outcome.Kind = OutcomeTransient
		}
		return outcome
	}
	if res.Status == payoutgateway.StatusCompleted {
		return Outcome{Kind: OutcomeCompleted, ProviderRef: res.ProviderRef}
	}
	return Outcome{Kind: OutcomeAccepted, ProviderRef: res.ProviderRef}
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settlementLedger interface {
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	UpdateSettlement(ctx context.Context, tx *gorm.DB, id uuid.UUID, next enums.SettlementStatus) (*models.PaymentTransaction, error)
}

type sellerDirectory interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.SellerPayoutProfile, error)
}

// Service is the payout manager. Payout errors are owned by the retry loop
// and never reach buyers.
type Service interface {
	RequestPayout(ctx context.Context, paymentTransactionID uuid.UUID) (*models.PayoutTransaction, error)
	RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error)
	ApplyOutcome(ctx context.Context, payoutID uuid.UUID, outcome Outcome) (*models.PayoutTransaction, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error)
	ListDue(ctx context.Context, limit int) ([]models.PayoutTransaction, error)
}

// ServiceParams groups the payout manager's collaborators.
type ServiceParams struct {
	Config   config.PayoutConfig
	Tx       txRunner
	Repo     Repository
	Ledger   settlementLedger
	Sellers  sellerDirectory
	Provider payoutgateway.Provider
	Locker   lock.Locker
	Outbox   outbox.Emitter
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
	Now      func() time.Time
	Jitter   func(time.Duration) time.Duration
}

type service struct {
	cfg      config.PayoutConfig
	tx       txRunner
	repo     Repository
	ledger   settlementLedger
	sellers  sellerDirectory
	provider payoutgateway.Provider
	locker   lock.Locker
	outbox   outbox.Emitter
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
	backoff  Backoff
}

// NewService wires the payout manager.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("payouts repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Sellers == nil:
		return nil, fmt.Errorf("sellers service required")
	case params.Provider == nil:
		return nil, fmt.Errorf("payout provider required")
	case params.Locker == nil:
		return nil, fmt.Errorf("locker required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if params.Config.MaxRetries < 0 {
		return nil, fmt.Errorf("payout max retries must not be negative")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		cfg:      params.Config,
		tx:       params.Tx,
		repo:     params.Repo,
		ledger:   params.Ledger,
		sellers:  params.Sellers,
		provider: params.Provider,
		locker:   params.Locker,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      params.Now,
		backoff: Backoff{
			Base:   params.Config.BaseDelay,
			Max:    params.Config.MaxDelay,
			Jitter: params.Jitter,
		},
	}, nil
}

// RequestPayout pushes a transaction's net proceeds to the seller. An
// in-flight payout is returned as is; a retryable one is retried now.
func (s *service) RequestPayout(ctx context.Context, paymentTransactionID uuid.UUID) (*models.PayoutTransaction, error) {
	if paymentTransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment transaction id required")
	}
	var result *models.PayoutTransaction
	err := s.locker.WithLock(ctx, lock.TransactionKey(paymentTransactionID.String()), func(ctx context.Context) error {
		txn, err := s.ledger.Get(ctx, paymentTransactionID)
		if err != nil {
			return err
		}
		if txn.SettlementStatus.IsSettled() {
			return errAlreadySettled(txn.SettlementStatus)
		}
		if txn.SettlementStatus == enums.SettlementStatusSkipped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement was skipped").WithReason(ReasonSettlementSkipped)
		}

		latest, err := s.repo.LatestForTransaction(ctx, txn.ID)
		switch {
		case err == nil:
			switch latest.Status {
			case enums.PayoutStatusRequested:
				if !s.isStale(latest) {
					result = latest
					return nil
				}
				result, err = s.retry(ctx, latest.ID)
				return err
			case enums.PayoutStatusRetryScheduled, enums.PayoutStatusPending:
				result, err = s.retry(ctx, latest.ID)
				return err
			case enums.PayoutStatusCompleted:
				return errAlreadySettled(txn.SettlementStatus)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest payout")
		}

		if !s.cfg.Enabled {
			result, err = s.skip(ctx, txn, SkipReasonDisabled)
			return err
		}
		if txn.NetAmount <= 0 {
			result, err = s.skip(ctx, txn, SkipReasonNothingToPay)
			return err
		}
		profile, err := s.onboardedProfile(ctx, txn.SellerUserID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		payout := &models.PayoutTransaction{
			ID:                   uuid.New(),
			PaymentTransactionID: txn.ID,
			SellerID:             txn.SellerUserID,
			RequestedAmount:      txn.NetAmount,
			Currency:             txn.Currency,
			Status:               enums.PayoutStatusRequested,
			RequestedAt:          &now,
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.ledger.UpdateSettlement(ctx, tx, txn.ID, enums.SettlementStatusRequested); err != nil {
				return err
			}
			if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.logg.Info(s.logCtx(ctx, "payout.request", payout), "payout requested")

		result, err = s.send(ctx, payout, txn.OrderID, profile)
		return err
	})
	return result, err
}

// RetryPayout re-runs the request/outcome cycle for a due payout.
func (s *service) RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error) {
	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	var result *models.PayoutTransaction
	err = s.locker.WithLock(ctx, lock.TransactionKey(payout.PaymentTransactionID.String()), func(ctx context.Context) error {
		result, err = s.retry(ctx, payoutID)
		return err
	})
	return result, err
}

// retry expects the transaction lock to be held.
func (s *service) retry(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error) {
	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	switch payout.Status {
	case enums.PayoutStatusRetryScheduled, enums.PayoutStatusPending:
	case enums.PayoutStatusRequested:
		if !s.isStale(payout) {
			return payout, nil
		}
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "payout is %s", payout.Status).
			WithReason(ReasonNotRetryable)
	}

	txn, err := s.ledger.Get(ctx, payout.PaymentTransactionID)
	if err != nil {
		return nil, err
	}
	if txn.SettlementStatus.IsSettled() {
		return nil, errAlreadySettled(txn.SettlementStatus)
	}
	if !s.cfg.Enabled {
		return s.skipExisting(ctx, payout, SkipReasonDisabled)
	}
	if txn.NetAmount <= 0 {
		return s.skipExisting(ctx, payout, SkipReasonNothingToPay)
	}
	profile, err := s.onboardedProfile(ctx, payout.SellerID)
	if err != nil {
		return nil, err
	}

	previous := payout.RequestedAmount
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, payoutID)
		if err != nil {
			return mapFindError(err)
		}
		locked, err := s.ledger.UpdateSettlement(ctx, tx, current.PaymentTransactionID, enums.SettlementStatusRequested)
		if err != nil {
			return err
		}
		// Refunds booked since the last attempt lower what the seller is owed.
		if locked.NetAmount <= 0 {
			return errNothingToPay
		}
		now := s.now().UTC()
		current.RequestedAmount = locked.NetAmount
		current.Status = enums.PayoutStatusRequested
		current.RequestedAt = &now
		current.NextRetryAt = nil
		if err := repo.Save(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout requested")
		}
		payout = current
		return nil
	})
	if errors.Is(err, errNothingToPay) {
		return s.skipExisting(ctx, payout, SkipReasonNothingToPay)
	}
	if err != nil {
		return nil, err
	}
	logCtx := s.logCtx(ctx, "payout.retry", payout)
	if payout.RequestedAmount != previous {
		logCtx = s.logg.WithFields(logCtx, map[string]any{"previous_amount": previous, "amount": payout.RequestedAmount})
	}
	s.logg.Info(logCtx, "retrying payout")
	return s.send(ctx, payout, txn.OrderID, profile)
}

// errNothingToPay rolls back a retry whose transaction was fully refunded.
var errNothingToPay = errors.New("nothing left to pay out")

// providerKey changes with the amount so an amended retry is never collapsed
// into an earlier request for a different sum.
func providerKey(payout *models.PayoutTransaction) string {
	return fmt.Sprintf("%s:%d", payout.ID, payout.RequestedAmount)
}

func (s *service) send(ctx context.Context, payout *models.PayoutTransaction, orderID string, profile *models.SellerPayoutProfile) (*models.PayoutTransaction, error) {
	res, err := s.provider.RequestPayout(ctx, payoutgateway.Request{
		IdempotencyKey:       providerKey(payout),
		ProviderSellerID:     profile.ProviderSellerID,
		Amount:               payout.RequestedAmount,
		Currency:             payout.Currency,
		OrderID:              orderID,
		PaymentTransactionID: payout.PaymentTransactionID.String(),
	})
	return s.applyOutcome(ctx, payout.ID, OutcomeFrom(res, err))
}

// ApplyOutcome records a provider response. Outcomes for payouts that are
// already terminal are ignored.
func (s *service) ApplyOutcome(ctx context.Context, payoutID uuid.UUID, outcome Outcome) (*models.PayoutTransaction, error) {
	if !outcome.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout outcome")
	}
	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	var result *models.PayoutTransaction
	err = s.locker.WithLock(ctx, lock.TransactionKey(payout.PaymentTransactionID.String()), func(ctx context.Context) error {
		result, err = s.applyOutcome(ctx, payoutID, outcome)
		return err
	})
	return result, err
}

func (s *service) applyOutcome(ctx context.Context, payoutID uuid.UUID, outcome Outcome) (*models.PayoutTransaction, error) {
	var (
		result      *models.PayoutTransaction
		metricLabel string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindForUpdate(ctx, payoutID)
		if err != nil {
			return mapFindError(err)
		}
		result = payout
		if payout.Status.IsTerminal() {
			return nil
		}
		if payout.Status != enums.PayoutStatusRequested {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "payout is %s", payout.Status).
				WithReason(ReasonNotRetryable)
		}

		now := s.now().UTC()
		if outcome.ProviderRef != "" {
			ref := outcome.ProviderRef
			payout.ProviderRef = &ref
		}

		switch outcome.Kind {
		case OutcomeAccepted:
		case OutcomeCompleted:
			payout.Status = enums.PayoutStatusCompleted
			payout.CompletedAt = &now
			payout.NextRetryAt = nil
			payout.FailReason = nil
			payout.FailureCode = nil
			metricLabel = metrics.ResultSuccess
			if err := s.settle(ctx, tx, payout); err != nil {
				return err
			}
		case OutcomeTransient:
			payout.RetryCount++
			payout.LastRetryAt = &now
			setFailure(payout, outcome)
			if payout.RetryCount >= s.cfg.MaxRetries {
				metricLabel = metrics.ResultFail
				if err := s.fail(ctx, tx, payout, now); err != nil {
					return err
				}
				break
			}
			next := now.Add(s.backoff.Delay(payout.RetryCount))
			payout.Status = enums.PayoutStatusRetryScheduled
			payout.NextRetryAt = &next
			metricLabel = metrics.ResultRetry
		case OutcomePermanent:
			setFailure(payout, outcome)
			metricLabel = metrics.ResultFail
			if err := s.fail(ctx, tx, payout, now); err != nil {
				return err
			}
		}

		if err := repo.Save(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payout outcome")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if metricLabel != "" {
		s.metrics.Payout(metricLabel)
	}
	logCtx := s.logg.WithFields(s.logCtx(ctx, "payout.outcome", result), map[string]any{
		"outcome":      outcome.Kind,
		"failure_code": outcome.Code,
	})
	switch result.Status {
	case enums.PayoutStatusFailed:
		s.logg.Error(logCtx, "payout failed; manual intervention required", errors.New(outcome.Message))
	case enums.PayoutStatusRetryScheduled:
		s.logg.Warn(logCtx, "payout retry scheduled")
	default:
		s.logg.Info(logCtx, "payout outcome applied")
	}
	return result, nil
}

// settle marks the transaction paid out. A refund booked while the payout was
// in flight leaves the seller overpaid, which is flagged for clawback.
func (s *service) settle(ctx context.Context, tx *gorm.DB, payout *models.PayoutTransaction) error {
	txn, err := s.ledger.UpdateSettlement(ctx, tx, payout.PaymentTransactionID, enums.SettlementStatusCompleted)
	if err != nil {
		return err
	}
	if payout.RequestedAmount > txn.NetAmount {
		if _, err := s.ledger.UpdateSettlement(ctx, tx, txn.ID, enums.SettlementStatusRefundedAfterSettlement); err != nil {
			return err
		}
	}
	ref := ""
	if payout.ProviderRef != nil {
		ref = *payout.ProviderRef
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutCompleted,
		AggregateType: enums.AggregatePayoutTransaction,
		AggregateID:   payout.ID,
		Data: payloads.PayoutCompletedEvent{
			PayoutID:             payout.ID,
			PaymentTransactionID: payout.PaymentTransactionID,
			SellerID:             payout.SellerID,
			Amount:               payout.RequestedAmount,
			Currency:             payout.Currency,
			ProviderRef:          ref,
			CompletedAt:          *payout.CompletedAt,
		},
	})
}

func (s *service) fail(ctx context.Context, tx *gorm.DB, payout *models.PayoutTransaction, now time.Time) error {
	payout.Status = enums.PayoutStatusFailed
	payout.NextRetryAt = nil
	if _, err := s.ledger.UpdateSettlement(ctx, tx, payout.PaymentTransactionID, enums.SettlementStatusFailed); err != nil {
		return err
	}
	event := payloads.PayoutFailedEvent{
		PayoutID:             payout.ID,
		PaymentTransactionID: payout.PaymentTransactionID,
		SellerID:             payout.SellerID,
		Amount:               payout.RequestedAmount,
		RetryCount:           payout.RetryCount,
		FailedAt:             now,
	}
	if payout.FailureCode != nil {
		event.FailureCode = *payout.FailureCode
	}
	if payout.FailReason != nil {
		event.FailReason = *payout.FailReason
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutFailed,
		AggregateType: enums.AggregatePayoutTransaction,
		AggregateID:   payout.ID,
		Data:          event,
	})
}

func (s *service) skip(ctx context.Context, txn *models.PaymentTransaction, reason string) (*models.PayoutTransaction, error) {
	payout := &models.PayoutTransaction{
		ID:                   uuid.New(),
		PaymentTransactionID: txn.ID,
		SellerID:             txn.SellerUserID,
		RequestedAmount:      txn.NetAmount,
		Currency:             txn.Currency,
		Status:               enums.PayoutStatusSkipped,
		FailReason:           &reason,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.ledger.UpdateSettlement(ctx, tx, txn.ID, enums.SettlementStatusSkipped); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create skipped payout")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Payout(metrics.ResultSkip)
	s.logg.Info(s.logg.WithField(s.logCtx(ctx, "payout.skip", payout), "reason", reason), "payout skipped")
	return payout, nil
}

func (s *service) skipExisting(ctx context.Context, payout *models.PayoutTransaction, reason string) (*models.PayoutTransaction, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, payout.ID)
		if err != nil {
			return mapFindError(err)
		}
		current.Status = enums.PayoutStatusSkipped
		current.NextRetryAt = nil
		current.FailReason = &reason
		if _, err := s.ledger.UpdateSettlement(ctx, tx, current.PaymentTransactionID, enums.SettlementStatusSkipped); err != nil {
			return err
		}
		payout = current
		return repo.Save(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Payout(metrics.ResultSkip)
	return payout, nil
}

func (s *service) onboardedProfile(ctx context.Context, sellerID uuid.UUID) (*models.SellerPayoutProfile, error) {
	profile, err := s.sellers.GetByUserID(ctx, sellerID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, errSellerNotOnboarded("no payout profile")
		}
		return nil, err
	}
	if profile.KYCStatus != enums.KYCStatusVerified {
		return nil, errSellerNotOnboarded(fmt.Sprintf("kyc status %s", profile.KYCStatus))
	}
	return profile, nil
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, mapFindError(err)
	}
	return payout, nil
}

func (s *service) ListDue(ctx context.Context, limit int) ([]models.PayoutTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.now().UTC()
	rows, err := s.repo.ListDue(ctx, now, now.Add(-s.cfg.StaleRequest), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due payouts")
	}
	return rows, nil
}

func (s *service) isStale(payout *models.PayoutTransaction) bool {
	if payout.RequestedAt == nil {
		return true
	}
	return payout.RequestedAt.Before(s.now().UTC().Add(-s.cfg.StaleRequest))
}

func (s *service) logCtx(ctx context.Context, event string, payout *models.PayoutTransaction) context.Context {
	fields := map[string]any{"event": event}
	if payout != nil {
		fields["payout_id"] = payout.ID.String()
		fields["payment_transaction_id"] = payout.PaymentTransactionID.String()
		fields["status"] = payout.Status
		fields["retry_count"] = payout.RetryCount
	}
	return s.logg.WithFields(ctx, fields)
}

func setFailure(payout *models.PayoutTransaction, outcome Outcome) {
	code, message := outcome.Code, outcome.Message
	if code == "" {
		code = payoutgateway.CodeRequestFailed
	}
	payout.FailureCode = &code
	payout.FailReason = &message
}

func errAlreadySettled(status enums.SettlementStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already settled").
		WithDetails(map[string]any{"reason": ReasonAlreadySettled, "settlement_status": status})
}

func errSellerNotOnboarded(detail string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "seller is not onboarded for payouts: "+detail).
		WithReason(ReasonSellerNotOnboarded)
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found").WithReason(ReasonPayoutNotFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
}
