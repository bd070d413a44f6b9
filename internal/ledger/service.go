package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/lock"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/metrics"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/payloads"
)

const (
	ReasonTransactionNotFound = "TRANSACTION_NOT_FOUND"
	ReasonAlreadyCanceled     = "TRANSACTION_ALREADY_CANCELED"
	ReasonInvalidRefund       = "INVALID_REFUND_AMOUNT"
	ReasonIntentNotConfirmed  = "INTENT_NOT_CONFIRMED"
)

const maxMemoLen = 1000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput links a confirmed intent to the application it produced.
type CreateInput struct {
	Intent        *models.PaymentIntent
	ApplicationID uuid.UUID
	PaymentKey    string
}

// CancellationInput records money returned to the buyer after purchase.
// RefundAmount is the total refunded for the order, not a delta.
type CancellationInput struct {
	OrderID      string
	RefundAmount int64
	Reason       enums.CancelReasonType
	Memo         string
	Policy       enums.RefundPolicy
}

// Service is the transaction ledger. It records each confirmed charge once
// and owns the settlement status of every transaction.
type Service interface {
	CreateOnConfirm(ctx context.Context, input CreateInput) (*models.PaymentTransaction, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	QuoteCancellation(txn *models.PaymentTransaction, reason enums.CancelReasonType) RefundQuote
	RecordCancellation(ctx context.Context, input CancellationInput) (*models.PaymentTransaction, error)
	UpdateSettlement(ctx context.Context, tx *gorm.DB, id uuid.UUID, next enums.SettlementStatus) (*models.PaymentTransaction, error)
	ListAwaitingSettlement(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentTransaction, error)
}

// ServiceParams groups the ledger's collaborators.
type ServiceParams struct {
	Config  config.PaymentConfig
	Tx      txRunner
	Repo    Repository
	Locker  lock.Locker
	Outbox  outbox.Emitter
	Metrics *metrics.PaymentMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	tx          txRunner
	repo        Repository
	locker      lock.Locker
	outbox      outbox.Emitter
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
	now         func() time.Time
	cancelRate  decimal.Decimal
	platformFee decimal.Decimal
}

// NewService wires a ledger service with the provided collaborators.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cancelRate, err := ParseRate(params.Config.CancelFeeRate)
	if err != nil {
		return nil, fmt.Errorf("cancel fee rate: %w", err)
	}
	platformFee, err := ParseRate(params.Config.PlatformFee)
	if err != nil {
		return nil, fmt.Errorf("platform fee rate: %w", err)
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		tx:          params.Tx,
		repo:        params.Repo,
		locker:      params.Locker,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         params.Now,
		cancelRate:  cancelRate,
		platformFee: platformFee,
	}, nil
}

// CreateOnConfirm records the charge for a confirmed intent. Replays return
// the existing row; the bool reports whether this call inserted it.
func (s *service) CreateOnConfirm(ctx context.Context, input CreateInput) (*models.PaymentTransaction, bool, error) {
	intent := input.Intent
	paymentKey := strings.TrimSpace(input.PaymentKey)
	if intent == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}
	if input.ApplicationID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "application id required")
	}
	if paymentKey == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "payment key required")
	}
	if intent.Status != enums.IntentStatusConfirmed && intent.Status != enums.IntentStatusApplicationCreated {
		return nil, false, pkgerrors.Newf(pkgerrors.CodeStateConflict, "payment intent is %s", intent.Status).
			WithReason(ReasonIntentNotConfirmed)
	}

	var (
		result  *models.PaymentTransaction
		created bool
	)
	err := s.locker.WithLock(ctx, lock.OrderKey(intent.OrderID), func(ctx context.Context) error {
		existing, err := s.findExisting(ctx, intent.OrderID, paymentKey)
		if err != nil || existing != nil {
			result = existing
			return err
		}

		txn := &models.PaymentTransaction{
			ID:                uuid.New(),
			PartyID:           intent.PartyID,
			ApplicationID:     input.ApplicationID,
			BuyerUserID:       intent.ApplicantID,
			SellerUserID:      intent.SellerID,
			FlowType:          intent.FlowType,
			OrderID:           intent.OrderID,
			GatewayPaymentKey: paymentKey,
			Currency:          intent.Currency,
			GrossAmount:       intent.ExpectedAmount,
			FeeAmount:         applyRate(intent.ExpectedAmount, s.platformFee),
			PaymentStatus:     enums.PaymentStatusPaid,
			SettlementStatus:  enums.SettlementStatusPending,
		}
		txn.RecomputeNet()

		if err := s.repo.Create(ctx, txn); err != nil {
			if !db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
			}
			existing, findErr := s.findExisting(ctx, intent.OrderID, paymentKey)
			if findErr != nil {
				return findErr
			}
			if existing == nil {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment transaction conflict")
			}
			result = existing
			return nil
		}
		result = txn
		created = true

		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event":          "ledger.create",
			"order_id":       txn.OrderID,
			"transaction_id": txn.ID.String(),
			"gross_amount":   txn.GrossAmount,
			"net_amount":     txn.NetAmount,
		})
		s.logg.Info(logCtx, "payment transaction recorded")
		return nil
	})
	return result, created, err
}

func (s *service) findExisting(ctx context.Context, orderID, paymentKey string) (*models.PaymentTransaction, error) {
	txn, err := s.repo.FindByOrderID(ctx, orderID)
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	txn, err = s.repo.FindByPaymentKey(ctx, paymentKey)
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	return nil, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindError(err)
	}
	return txn, nil
}

func (s *service) FindByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	txn, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err)
	}
	return txn, nil
}

func (s *service) QuoteCancellation(txn *models.PaymentTransaction, reason enums.CancelReasonType) RefundQuote {
	if txn == nil {
		return RefundQuote{Policy: enums.RefundPolicyFull}
	}
	return QuoteRefund(txn.GrossAmount, reason, s.cancelRate)
}

// RecordCancellation books a refund against the transaction. A settlement
// that already paid the seller is flagged REFUNDED_AFTER_SETTLEMENT for
// clawback instead of being overwritten.
func (s *service) RecordCancellation(ctx context.Context, input CancellationInput) (*models.PaymentTransaction, error) {
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancel reason")
	}
	memo := strings.TrimSpace(input.Memo)
	if len(memo) > maxMemoLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "memo too long")
	}

	var (
		result *models.PaymentTransaction
		fresh  bool
	)
	err := s.locker.WithLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			txn, err := repo.FindByOrderIDForUpdate(ctx, orderID)
			if err != nil {
				return mapFindError(err)
			}
			result = txn

			if txn.CanceledAt != nil {
				if txn.RefundAmount == input.RefundAmount {
					return nil
				}
				return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already canceled").
					WithReason(ReasonAlreadyCanceled)
			}
			if input.RefundAmount < 0 || input.RefundAmount > txn.GrossAmount {
				return pkgerrors.New(pkgerrors.CodeValidation, "refund amount out of range").
					WithDetails(map[string]any{"reason": ReasonInvalidRefund, "gross": txn.GrossAmount, "refund": input.RefundAmount})
			}

			policy := input.Policy
			if !policy.IsValid() {
				policy = enums.RefundPolicyPartialWithFee
				if input.RefundAmount == txn.GrossAmount {
					policy = enums.RefundPolicyFull
				}
			}

			now := s.now().UTC()
			reason := input.Reason
			txn.RefundAmount = input.RefundAmount
			txn.FeeAmount = applyRate(txn.GrossAmount-txn.RefundAmount, s.platformFee)
			txn.RecomputeNet()
			txn.PaymentStatus = enums.PaymentStatusPartiallyCanceled
			if txn.RefundAmount == txn.GrossAmount {
				txn.PaymentStatus = enums.PaymentStatusCanceled
			}
			txn.CancelReasonType = &reason
			txn.RefundPolicyApplied = &policy
			txn.CanceledAt = &now
			if memo != "" {
				txn.CancelMemo = &memo
			}

			afterSettlement := txn.SettlementStatus == enums.SettlementStatusCompleted
			switch {
			case afterSettlement:
				txn.SettlementStatus = enums.SettlementStatusRefundedAfterSettlement
			case txn.NetAmount == 0 && txn.SettlementStatus == enums.SettlementStatusPending:
				txn.SettlementStatus = enums.SettlementStatusSkipped
			}

			if err := repo.Save(ctx, txn); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancellation")
			}
			fresh = true

			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentRefunded,
				AggregateType: enums.AggregatePaymentTransaction,
				AggregateID:   txn.ID,
				Data: payloads.PaymentRefundedEvent{
					PaymentTransactionID: txn.ID,
					OrderID:              txn.OrderID,
					BuyerID:              txn.BuyerUserID,
					SellerID:             txn.SellerUserID,
					GrossAmount:          txn.GrossAmount,
					RefundAmount:         txn.RefundAmount,
					CancelFee:            txn.GrossAmount - txn.RefundAmount,
					Policy:               policy,
					Reason:               reason,
					AfterSettlement:      afterSettlement,
					CanceledAt:           now,
				},
			})
		})
	})
	if err != nil {
		return nil, err
	}
	if fresh {
		s.metrics.Refund(refundLabel(*result.RefundPolicyApplied))
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event":             "ledger.cancel",
			"order_id":          result.OrderID,
			"transaction_id":    result.ID.String(),
			"refund_amount":     result.RefundAmount,
			"net_amount":        result.NetAmount,
			"settlement_status": result.SettlementStatus,
		})
		if result.SettlementStatus == enums.SettlementStatusRefundedAfterSettlement {
			s.logg.Warn(logCtx, "refund after settlement; seller clawback required")
		} else {
			s.logg.Info(logCtx, "cancellation recorded")
		}
	}
	return result, nil
}

// UpdateSettlement moves the settlement status inside the caller's
// transaction. Setting the current status again is a no-op.
func (s *service) UpdateSettlement(ctx context.Context, tx *gorm.DB, id uuid.UUID, next enums.SettlementStatus) (*models.PaymentTransaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	txn, err := repo.FindForUpdate(ctx, id)
	if err != nil {
		return nil, mapFindError(err)
	}
	if txn.SettlementStatus == next {
		return txn, nil
	}
	if !txn.SettlementStatus.CanTransitionTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("settlement cannot move from %s to %s", txn.SettlementStatus, next))
	}
	txn.SettlementStatus = next
	if err := repo.Save(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settlement status")
	}
	return txn, nil
}

func (s *service) ListAwaitingSettlement(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.repo.ListAwaitingSettlement(ctx, createdBefore, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions awaiting settlement")
	}
	return rows, nil
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found").WithReason(ReasonTransactionNotFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
}

func refundLabel(policy enums.RefundPolicy) string {
	if policy == enums.RefundPolicyFull {
		return "full"
	}
	return "partial"
}
