package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/internal/applications"
	"github.com/angelmondragon/ticketpay-backend/internal/intents"
	"github.com/angelmondragon/ticketpay-backend/internal/ledger"
	"github.com/angelmondragon/ticketpay-backend/internal/payouts"
	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/gateway"
	"github.com/angelmondragon/ticketpay-backend/pkg/lock"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/metrics"
)

// ConfirmInput is the checkout client's confirm request.
type ConfirmInput struct {
	OrderID    string
	IntentID   uuid.UUID
	PaymentKey string
	Amount     int64
	BuyerID    uuid.UUID
	Message    string
}

// ConfirmResult carries the purchase record. Created is false on replay.
type ConfirmResult struct {
	Intent      *models.PaymentIntent
	Application *models.PartyApplication
	Transaction *models.PaymentTransaction
	Created     bool
}

// CancelInput cancels an order. A nil BuyerID skips the ownership check and
// is reserved for operators.
type CancelInput struct {
	OrderID    string
	BuyerID    uuid.UUID
	ReasonType enums.CancelReasonType
	Reason     string
}

// CancelResult describes what the cancellation did.
type CancelResult struct {
	Intent       *models.PaymentIntent
	Transaction  *models.PaymentTransaction
	Application  *models.PartyApplication
	RefundAmount int64
	CancelFee    int64
	Policy       enums.RefundPolicy
}

// Service runs the payment settlement saga across the intent manager, the
// purchase application workflow, the ledger and the payout manager.
type Service interface {
	Prepare(ctx context.Context, input intents.PrepareInput) (*models.PaymentIntent, error)
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
	Cancel(ctx context.Context, input CancelInput) (*CancelResult, error)
	ReconcileIntent(ctx context.Context, orderID string) (*models.PaymentIntent, error)
}

// ServiceParams groups the saga's collaborators.
type ServiceParams struct {
	Payout       config.PayoutConfig
	Intents      intents.Service
	Applications applications.Service
	Ledger       ledger.Service
	Payouts      payouts.Service
	Gateway      gateway.Client
	Locker       lock.Locker
	Metrics      *metrics.PaymentMetrics
	Logger       *logger.Logger
}

type service struct {
	payoutCfg    config.PayoutConfig
	intents      intents.Service
	applications applications.Service
	ledger       ledger.Service
	payouts      payouts.Service
	gateway      gateway.Client
	locker       lock.Locker
	metrics      *metrics.PaymentMetrics
	logg         *logger.Logger
}

// NewService wires the saga orchestrator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Intents == nil:
		return nil, fmt.Errorf("intents service required")
	case params.Applications == nil:
		return nil, fmt.Errorf("applications service required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Payouts == nil:
		return nil, fmt.Errorf("payouts service required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("gateway client required")
	case params.Locker == nil:
		return nil, fmt.Errorf("locker required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		payoutCfg:    params.Payout,
		intents:      params.Intents,
		applications: params.Applications,
		ledger:       params.Ledger,
		payouts:      params.Payouts,
		gateway:      params.Gateway,
		locker:       params.Locker,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

func (s *service) Prepare(ctx context.Context, input intents.PrepareInput) (*models.PaymentIntent, error) {
	return s.intents.Prepare(ctx, input)
}

// Confirm charges the prepared amount and records the purchase. Replays of a
// finished order return the existing records without touching the gateway.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	input.OrderID = strings.TrimSpace(input.OrderID)
	if input.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := applications.ValidateMessage(input.Message); err != nil {
		return nil, err
	}

	var result *ConfirmResult
	err := s.locker.WithLock(ctx, lock.OrderKey(input.OrderID), func(ctx context.Context) error {
		if input.IntentID != uuid.Nil {
			current, err := s.intents.Get(ctx, input.OrderID)
			if err != nil {
				return err
			}
			if current.ID != input.IntentID {
				return pkgerrors.New(pkgerrors.CodeValidation, "intent id does not match order")
			}
		}

		intent, err := s.intents.ConfirmWithGateway(ctx, intents.ConfirmInput{
			OrderID:     input.OrderID,
			PaymentKey:  input.PaymentKey,
			Amount:      input.Amount,
			ApplicantID: input.BuyerID,
		})
		if err != nil {
			return err
		}
		if intent.Status == enums.IntentStatusApplicationCreated {
			result, err = s.existing(ctx, intent)
			if err == nil {
				s.metrics.Confirm(metrics.ResultRetry)
			}
			return err
		}

		result, err = s.complete(ctx, intent, input.Message)
		if err != nil {
			return err
		}
		s.metrics.Confirm(metrics.ResultSuccess)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created && s.payoutCfg.RequestOnConfirm {
		s.requestPayout(ctx, result.Transaction)
	}
	return result, nil
}

// complete runs the post-charge steps. Each step is idempotent so a crash
// between them is finished by reconciliation.
func (s *service) complete(ctx context.Context, intent *models.PaymentIntent, message string) (*ConfirmResult, error) {
	paymentKey := ""
	if intent.GatewayPaymentKey != nil {
		paymentKey = *intent.GatewayPaymentKey
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":    "payment.complete",
		"order_id": intent.OrderID,
	})

	application, created, err := s.applications.CreateOrGet(ctx, applications.CreateInput{
		ApplicantID: intent.ApplicantID,
		PartyID:     intent.PartyID,
		OrderID:     intent.OrderID,
		PaymentKey:  paymentKey,
		Amount:      intent.ExpectedAmount,
		Message:     message,
	})
	if err != nil {
		s.logg.Error(logCtx, "application create failed; compensating", err)
		s.compensate(ctx, intent.OrderID, "application create failed: "+err.Error())
		return nil, err
	}

	txn, _, err := s.ledger.CreateOnConfirm(ctx, ledger.CreateInput{
		Intent:        intent,
		ApplicationID: application.ID,
		PaymentKey:    paymentKey,
	})
	if err != nil {
		s.logg.Error(logCtx, "ledger record failed; compensating", err)
		if _, cancelErr := s.applications.Cancel(ctx, intent.OrderID); cancelErr != nil {
			s.logg.Error(logCtx, "withdraw application failed", cancelErr)
		}
		s.compensate(ctx, intent.OrderID, "ledger record failed: "+err.Error())
		return nil, err
	}

	done, err := s.intents.MarkApplicationCreated(ctx, intents.CompletedInput{
		OrderID:              intent.OrderID,
		ApplicationID:        application.ID,
		PaymentTransactionID: txn.ID,
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(logCtx, "application_id", application.ID.String()), "purchase completed")
	return &ConfirmResult{Intent: done, Application: application, Transaction: txn, Created: created}, nil
}

func (s *service) existing(ctx context.Context, intent *models.PaymentIntent) (*ConfirmResult, error) {
	application, err := s.applications.FindByOrderID(ctx, intent.OrderID)
	if err != nil {
		return nil, err
	}
	txn, err := s.ledger.FindByOrderID(ctx, intent.OrderID)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Intent: intent, Application: application, Transaction: txn}, nil
}

func (s *service) compensate(ctx context.Context, orderID, cause string) {
	if _, err := s.intents.CompensateAfterFailure(ctx, orderID, cause); err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, orderID), "compensation pending reconciliation", err)
	}
}

func (s *service) requestPayout(ctx context.Context, txn *models.PaymentTransaction) {
	if txn == nil {
		return
	}
	if _, err := s.payouts.RequestPayout(ctx, txn.ID); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event":                  "payout.request",
			"payment_transaction_id": txn.ID.String(),
		})
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "payout after confirm deferred to sweep")
	}
}

// Cancel cancels an order on behalf of its buyer or an operator. Unfinished
// payments are voided; purchased ones are refunded under the cancel policy.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*CancelResult, error) {
	input.OrderID = strings.TrimSpace(input.OrderID)
	if input.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ReasonType == "" {
		input.ReasonType = enums.CancelReasonBuyerChangedMind
	}
	if !input.ReasonType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancel reason type")
	}

	var result *CancelResult
	err := s.locker.WithLock(ctx, lock.OrderKey(input.OrderID), func(ctx context.Context) error {
		intent, err := s.intents.Get(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if input.BuyerID != uuid.Nil && intent.ApplicantID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "payment intent belongs to another user")
		}
		if intent.Status == enums.IntentStatusApplicationCreated {
			result, err = s.refund(ctx, intent, input)
			return err
		}

		canceled, err := s.intents.RequestCancel(ctx, input.OrderID, input.BuyerID, input.Reason)
		if err != nil {
			return err
		}
		application, txn, err := s.unwind(ctx, canceled, input.ReasonType, input.Reason)
		if err != nil {
			return err
		}
		result = &CancelResult{Intent: canceled, Application: application, Transaction: txn, Policy: enums.RefundPolicyFull}
		if txn != nil {
			result.RefundAmount = txn.RefundAmount
		}
		return nil
	})
	return result, err
}

// unwind withdraws the purchase records a saga left behind when it stopped
// between the charge and the completion marker. It only acts on a CANCELED
// intent, whose charge the gateway has already reversed in full.
func (s *service) unwind(ctx context.Context, intent *models.PaymentIntent, reason enums.CancelReasonType, memo string) (*models.PartyApplication, *models.PaymentTransaction, error) {
	if intent == nil || intent.Status != enums.IntentStatusCanceled {
		return nil, nil, nil
	}

	txn, err := s.ledger.FindByOrderID(ctx, intent.OrderID)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		txn = nil
	case err != nil:
		return nil, nil, err
	case txn.CanceledAt == nil:
		txn, err = s.ledger.RecordCancellation(ctx, ledger.CancellationInput{
			OrderID:      intent.OrderID,
			RefundAmount: txn.GrossAmount,
			Reason:       reason,
			Memo:         memo,
			Policy:       enums.RefundPolicyFull,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	application, err := s.applications.FindByOrderID(ctx, intent.OrderID)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return nil, txn, nil
	case err != nil:
		return nil, nil, err
	case application.Status == enums.ApplicationStatusApplied:
		s.logg.Warn(s.logg.WithOrderID(ctx, intent.OrderID), "withdrawing application of canceled intent")
		application, err = s.applications.Cancel(ctx, intent.OrderID)
		if err != nil {
			return nil, nil, err
		}
	}
	return application, txn, nil
}

func (s *service) refund(ctx context.Context, intent *models.PaymentIntent, input CancelInput) (*CancelResult, error) {
	txn, err := s.ledger.FindByOrderID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if txn.CanceledAt != nil {
		application, err := s.applications.FindByOrderID(ctx, input.OrderID)
		if err != nil {
			return nil, err
		}
		result := &CancelResult{Intent: intent, Transaction: txn, Application: application, RefundAmount: txn.RefundAmount}
		result.CancelFee = txn.GrossAmount - txn.RefundAmount
		if txn.RefundPolicyApplied != nil {
			result.Policy = *txn.RefundPolicyApplied
		}
		return result, nil
	}

	quote := s.ledger.QuoteCancellation(txn, input.ReasonType)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":         "payment.refund",
		"order_id":      txn.OrderID,
		"refund_amount": quote.RefundAmount,
		"policy":        quote.Policy,
	})
	if quote.RefundAmount > 0 {
		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			reason = string(input.ReasonType)
		}
		amount := quote.RefundAmount
		if quote.Policy == enums.RefundPolicyFull {
			amount = 0
		}
		_, err := s.gateway.Cancel(ctx, gateway.CancelRequest{
			PaymentKey:     txn.GatewayPaymentKey,
			Reason:         reason,
			Amount:         amount,
			Currency:       txn.Currency,
			IdempotencyKey: "refund-" + txn.OrderID,
		})
		if err != nil && !gateway.IsAlreadyCanceled(err) {
			s.metrics.Refund(metrics.ResultFail)
			s.logg.Error(logCtx, "gateway refund failed", err)
			return nil, gateway.ToDomain(err, "refund payment")
		}
	}

	updated, err := s.ledger.RecordCancellation(ctx, ledger.CancellationInput{
		OrderID:      txn.OrderID,
		RefundAmount: quote.RefundAmount,
		Reason:       input.ReasonType,
		Memo:         input.Reason,
		Policy:       quote.Policy,
	})
	if err != nil {
		return nil, err
	}
	application, err := s.applications.Cancel(ctx, txn.OrderID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(logCtx, "purchase refunded")
	return &CancelResult{
		Intent:       intent,
		Transaction:  updated,
		Application:  application,
		RefundAmount: quote.RefundAmount,
		CancelFee:    quote.CancelFee,
		Policy:       quote.Policy,
	}, nil
}

// ReconcileIntent drives one stale intent toward a terminal state. CONFIRMED
// intents whose purchase records exist are finished rather than refunded.
func (s *service) ReconcileIntent(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	intent, err := s.intents.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch intent.Status {
	case enums.IntentStatusPrepared, enums.IntentStatusCancelRequested:
		return s.intents.ReconcilePrepared(ctx, orderID)
	case enums.IntentStatusConfirmed:
	default:
		return intent, nil
	}

	var result *models.PaymentIntent
	err = s.locker.WithLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		application, err := s.applications.FindByOrderID(ctx, orderID)
		switch {
		case err == nil && application.Status == enums.ApplicationStatusApplied:
			completed, err := s.complete(ctx, intent, "")
			if err != nil {
				return err
			}
			result = completed.Intent
			return nil
		case err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			return err
		}

		result, err = s.intents.CompensateAfterFailure(ctx, orderID, "confirmed payment never produced a purchase")
		if err == nil {
			_, _, err = s.unwind(ctx, result, enums.CancelReasonCompensation, "")
			return err
		}
		// The sweep owns the final cancel attempt for this intent.
		result, err = s.intents.ReconcilePrepared(ctx, orderID)
		return err
	})
	return result, err
}
