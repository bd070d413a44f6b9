package intents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/internal/parties"
	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/gateway"
	"github.com/angelmondragon/ticketpay-backend/pkg/lock"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/metrics"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/payloads"
)

const defaultPaymentType = "CARD"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type listingReader interface {
	GetPayableListing(ctx context.Context, partyID uuid.UUID) (*parties.Listing, error)
}

// PrepareInput starts a payment for one party slot.
type PrepareInput struct {
	PartyID     uuid.UUID
	ApplicantID uuid.UUID
	FlowType    enums.FlowType
	PaymentType string
}

// ConfirmInput carries what the client reports after paying in the gateway UI.
// Amount is only compared against the intent; it is never sent to the gateway.
type ConfirmInput struct {
	OrderID     string
	PaymentKey  string
	Amount      int64
	ApplicantID uuid.UUID
}

// CompletedInput links the finished purchase records to the intent.
type CompletedInput struct {
	OrderID              string
	ApplicationID        uuid.UUID
	PaymentTransactionID uuid.UUID
}

// Service is the payment intent manager. Every mutation runs under the
// order lock and inside one transaction that re-reads the row for update.
type Service interface {
	Prepare(ctx context.Context, input PrepareInput) (*models.PaymentIntent, error)
	Get(ctx context.Context, orderID string) (*models.PaymentIntent, error)
	ConfirmWithGateway(ctx context.Context, input ConfirmInput) (*models.PaymentIntent, error)
	MarkApplicationCreated(ctx context.Context, input CompletedInput) (*models.PaymentIntent, error)
	RequestCancel(ctx context.Context, orderID string, requesterID uuid.UUID, reason string) (*models.PaymentIntent, error)
	CompensateAfterFailure(ctx context.Context, orderID, cause string) (*models.PaymentIntent, error)
	ReconcilePrepared(ctx context.Context, orderID string) (*models.PaymentIntent, error)
	ListStale(ctx context.Context, limit int) ([]models.PaymentIntent, error)
	Defer(ctx context.Context, orderID string) error
}

// ServiceParams groups the manager's collaborators.
type ServiceParams struct {
	Config   config.PaymentConfig
	Tx       txRunner
	Repo     Repository
	Listings listingReader
	Gateway  gateway.Client
	Locker   lock.Locker
	Outbox   outbox.Emitter
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
	Now      func() time.Time
	NewOrder func() string
}

type service struct {
	cfg      config.PaymentConfig
	tx       txRunner
	repo     Repository
	listings listingReader
	gateway  gateway.Client
	locker   lock.Locker
	outbox   outbox.Emitter
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
	newOrder func() string
}

// NewService wires the intent manager.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("intents repository required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listing reader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
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
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.NewOrder == nil {
		params.NewOrder = NewOrderID
	}
	return &service{
		cfg:      params.Config,
		tx:       params.Tx,
		repo:     params.Repo,
		listings: params.Listings,
		gateway:  params.Gateway,
		locker:   params.Locker,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      params.Now,
		newOrder: params.NewOrder,
	}, nil
}

// NewOrderID returns a fresh, time-sortable order id.
func NewOrderID() string {
	return "ORD-" + ulid.Make().String()
}

func (s *service) Prepare(ctx context.Context, input PrepareInput) (*models.PaymentIntent, error) {
	if input.ApplicantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "applicant required")
	}
	if input.FlowType == "" {
		input.FlowType = enums.FlowTypeDeposit
	}
	if !input.FlowType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid flow type")
	}
	paymentType := strings.ToUpper(strings.TrimSpace(input.PaymentType))
	if paymentType == "" {
		paymentType = defaultPaymentType
	}

	listing, err := s.listings.GetPayableListing(ctx, input.PartyID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID == input.ApplicantID {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "hosts cannot pay for their own party").
			WithReason(ReasonSelfPurchase)
	}
	quote, err := QuoteListing(*listing, input.FlowType, s.cfg)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	intent := &models.PaymentIntent{
		ID:             uuid.New(),
		OrderID:        s.newOrder(),
		PartyID:        listing.PartyID,
		ApplicantID:    input.ApplicantID,
		SellerID:       listing.SellerID,
		ExpectedAmount: quote.Amount,
		Currency:       quote.Currency,
		OrderName:      quote.OrderName,
		FlowType:       input.FlowType,
		PaymentType:    paymentType,
		Mode:           enums.IntentModePrepared,
		Status:         enums.IntentStatusPrepared,
		ExpiresAt:      now.Add(s.cfg.IntentTTL),
	}
	if err := s.repo.Create(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	logCtx := s.logCtx(ctx, "payment.prepare", intent)
	s.logg.Info(logCtx, "payment intent prepared")
	return intent, nil
}

func (s *service) Get(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	intent, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err, orderID)
	}
	return intent, nil
}

// ConfirmWithGateway confirms the charge using the intent's expected amount.
// Replays on CONFIRMED or APPLICATION_CREATED return without calling the gateway.
func (s *service) ConfirmWithGateway(ctx context.Context, input ConfirmInput) (*models.PaymentIntent, error) {
	orderID := strings.TrimSpace(input.OrderID)
	paymentKey := strings.TrimSpace(input.PaymentKey)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if paymentKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment key required")
	}

	var result *models.PaymentIntent
	err := s.locker.WithLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		intent, proceed, err := s.beginConfirm(ctx, orderID, paymentKey, input)
		if err != nil || !proceed {
			result = intent
			return err
		}
		result, err = s.confirmAtGateway(ctx, intent, paymentKey)
		return err
	})
	return result, err
}

// beginConfirm validates the intent and records the key about to be used.
// proceed is false when the intent already holds the outcome.
func (s *service) beginConfirm(ctx context.Context, orderID, paymentKey string, input ConfirmInput) (*models.PaymentIntent, bool, error) {
	var (
		intent   *models.PaymentIntent
		proceed  bool
		expired  bool
		mismatch bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return mapFindError(err, orderID)
		}
		intent = current
		if input.ApplicantID != uuid.Nil && current.ApplicantID != input.ApplicantID {
			return errNotOwner()
		}

		switch current.Status {
		case enums.IntentStatusConfirmed, enums.IntentStatusApplicationCreated:
			if current.GatewayPaymentKey != nil && *current.GatewayPaymentKey != paymentKey {
				return errKeyMismatch()
			}
			return nil
		case enums.IntentStatusPrepared:
		default:
			return errAlreadyTerminal(current.Status)
		}

		now := s.now().UTC()
		if now.After(current.ExpiresAt) {
			if current.AttemptedKey != nil {
				// A charge may exist; reconciliation looks the payment up before expiring.
				return errIntentExpired()
			}
			if err := s.expireTx(ctx, tx, current, now); err != nil {
				return err
			}
			expired = true
			return nil
		}
		if input.Amount != 0 && input.Amount != current.ExpectedAmount {
			mismatch = true
			return nil
		}
		if current.AttemptedKey != nil && *current.AttemptedKey != paymentKey {
			return errKeyMismatch()
		}
		if err := s.ensurePriceUnchanged(ctx, current); err != nil {
			return err
		}

		current.AttemptedKey = &paymentKey
		if err := repo.Save(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record attempted payment key")
		}
		proceed = true
		return nil
	})
	if err != nil {
		return intent, false, err
	}
	if expired {
		s.metrics.IntentExpired()
		return intent, false, errIntentExpired()
	}
	if mismatch {
		s.metrics.AmountMismatch()
		s.logg.Warn(s.logg.WithFields(s.logCtx(ctx, "payment.confirm", intent), map[string]any{
			"reported_amount": input.Amount,
			"expected_amount": intent.ExpectedAmount,
		}), "client reported amount differs; compensating")
		if _, err := s.compensate(ctx, orderID, compensation{
			code:    ReasonAmountMismatch,
			message: fmt.Sprintf("client reported %d for expected %d", input.Amount, intent.ExpectedAmount),
			key:     paymentKey,
		}); err != nil {
			s.logg.Error(s.logCtx(ctx, "payment.compensate", intent), "compensation after amount mismatch failed", err)
		}
		return nil, false, errAmountMismatch(intent.ExpectedAmount, input.Amount)
	}
	return intent, proceed, nil
}

func (s *service) ensurePriceUnchanged(ctx context.Context, intent *models.PaymentIntent) error {
	listing, err := s.listings.GetPayableListing(ctx, intent.PartyID)
	if err != nil {
		return err
	}
	quote, err := QuoteListing(*listing, intent.FlowType, s.cfg)
	if err != nil {
		return err
	}
	if quote.Amount != intent.ExpectedAmount {
		return errPriceChanged()
	}
	return nil
}

func (s *service) confirmAtGateway(ctx context.Context, intent *models.PaymentIntent, paymentKey string) (*models.PaymentIntent, error) {
	logCtx := s.logCtx(ctx, "payment.confirm", intent)
	res, err := s.gateway.Confirm(ctx, gateway.ConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    intent.OrderID,
		Amount:     intent.ExpectedAmount,
		Currency:   intent.Currency,
	})
	if err != nil {
		s.metrics.Confirm(metrics.ResultFail)
		if gateway.IsRejected(err) {
			s.recordFailure(ctx, intent.OrderID, err)
		}
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "gateway confirm failed")
		return nil, gateway.ToDomain(err, "confirm payment")
	}

	if res.Status != gateway.StatusDone || res.Amount != intent.ExpectedAmount {
		var domainErr error
		cause := ReasonPaymentNotDone
		if res.Amount != intent.ExpectedAmount {
			s.metrics.AmountMismatch()
			cause = ReasonAmountMismatch
			domainErr = errAmountMismatch(intent.ExpectedAmount, res.Amount)
		} else {
			domainErr = errPaymentNotDone(res.Status)
		}
		s.metrics.Confirm(metrics.ResultFail)
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"provider_status": res.Status,
			"provider_amount": res.Amount,
		}), "gateway result rejected; compensating")
		if _, compErr := s.compensate(ctx, intent.OrderID, compensation{
			code:    cause,
			message: fmt.Sprintf("provider reported %s/%d for expected %d", res.Status, res.Amount, intent.ExpectedAmount),
			key:     paymentKey,
		}); compErr != nil {
			s.logg.Error(logCtx, "compensation after rejected confirm failed", compErr)
		}
		return nil, domainErr
	}

	var confirmed *models.PaymentIntent
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, intent.OrderID)
		if err != nil {
			return mapFindError(err, intent.OrderID)
		}
		confirmed = current
		if current.Status != enums.IntentStatusPrepared {
			return nil
		}
		now := s.now().UTC()
		current.Status = enums.IntentStatusConfirmed
		current.GatewayPaymentKey = &paymentKey
		current.ConfirmedAt = &now
		current.FailureCode = nil
		current.FailureMessage = nil
		if res.Method != "" {
			method := res.Method
			current.PaymentMethod = &method
		}
		if err := repo.Save(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark intent confirmed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(logCtx, "payment confirmed at gateway")
	return confirmed, nil
}

func (s *service) recordFailure(ctx context.Context, orderID string, cause error) {
	code := string(gateway.KindRejected)
	message := cause.Error()
	var gwErr *gateway.Error
	if errors.As(cause, &gwErr) {
		if gwErr.Code != "" {
			code = gwErr.Code
		}
		message = gwErr.Message
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status != enums.IntentStatusPrepared {
			return nil
		}
		current.FailureCode = &code
		current.FailureMessage = &message
		// The rejected key holds no charge; a new attempt may use another key.
		current.AttemptedKey = nil
		return repo.Save(ctx, current)
	})
	if err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, orderID), "failed to record gateway rejection", err)
	}
}

// MarkApplicationCreated stamps the saga's done marker and queues the
// confirmation event once.
func (s *service) MarkApplicationCreated(ctx context.Context, input CompletedInput) (*models.PaymentIntent, error) {
	var result *models.PaymentIntent
	err := s.locker.WithLock(ctx, lock.OrderKey(input.OrderID), func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.FindForUpdate(ctx, input.OrderID)
			if err != nil {
				return mapFindError(err, input.OrderID)
			}
			result = current
			if current.Status == enums.IntentStatusApplicationCreated {
				return nil
			}
			if !current.Status.CanTransitionTo(enums.IntentStatusApplicationCreated) {
				return errAlreadyTerminal(current.Status)
			}
			current.Status = enums.IntentStatusApplicationCreated
			if err := repo.Save(ctx, current); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark application created")
			}
			confirmedAt := s.now().UTC()
			if current.ConfirmedAt != nil {
				confirmedAt = *current.ConfirmedAt
			}
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentConfirmed,
				AggregateType: enums.AggregatePaymentIntent,
				AggregateID:   current.ID,
				Data: payloads.PaymentConfirmedEvent{
					IntentID:             current.ID,
					OrderID:              current.OrderID,
					PartyID:              current.PartyID,
					ApplicationID:        input.ApplicationID,
					PaymentTransactionID: input.PaymentTransactionID,
					BuyerID:              current.ApplicantID,
					SellerID:             current.SellerID,
					Amount:               current.ExpectedAmount,
					Currency:             current.Currency,
					ConfirmedAt:          confirmedAt,
				},
			})
		})
	})
	return result, err
}

// RequestCancel cancels an unfinished payment on the buyer's behalf. Canceling
// an already canceled intent is a no-op.
func (s *service) RequestCancel(ctx context.Context, orderID string, requesterID uuid.UUID, reason string) (*models.PaymentIntent, error) {
	current, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if requesterID != uuid.Nil && current.ApplicantID != requesterID {
		return nil, errNotOwner()
	}
	switch current.Status {
	case enums.IntentStatusCanceled:
		return current, nil
	case enums.IntentStatusCancelRequested, enums.IntentStatusCancelFailed:
		return nil, errCancelInProgress(current.Status)
	case enums.IntentStatusPrepared, enums.IntentStatusConfirmed:
	default:
		return nil, errAlreadyTerminal(current.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "canceled by buyer"
	}
	return s.compensate(ctx, orderID, compensation{
		code:          string(enums.CancelReasonBuyerChangedMind),
		message:       reason,
		userInitiated: true,
	})
}

// CompensateAfterFailure reverses a charge after a downstream step failed.
// APPLICATION_CREATED intents are never compensated.
func (s *service) CompensateAfterFailure(ctx context.Context, orderID, cause string) (*models.PaymentIntent, error) {
	return s.compensate(ctx, orderID, compensation{
		code:    string(enums.CancelReasonCompensation),
		message: cause,
	})
}

type compensation struct {
	code          string
	message       string
	key           string
	userInitiated bool
	finalAttempt  bool
}

// compensate drives an intent through CANCEL_REQUESTED to CANCELED or
// CANCEL_FAILED. Transient gateway errors leave CANCEL_REQUESTED for the
// reconciliation sweep unless finalAttempt is set.
func (s *service) compensate(ctx context.Context, orderID string, req compensation) (*models.PaymentIntent, error) {
	var result *models.PaymentIntent
	err := s.locker.WithLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		var (
			paymentKey string
			done       bool
		)
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.FindForUpdate(ctx, orderID)
			if err != nil {
				return mapFindError(err, orderID)
			}
			result = current
			switch current.Status {
			case enums.IntentStatusPrepared, enums.IntentStatusConfirmed:
				current.Status = enums.IntentStatusCancelRequested
				code, message := req.code, req.message
				current.FailureCode = &code
				current.FailureMessage = &message
			case enums.IntentStatusCancelRequested:
			case enums.IntentStatusCanceled:
				done = true
				return nil
			default:
				done = true
				if req.userInitiated {
					// A purchase completed after the caller last read the intent.
					return errAlreadyTerminal(current.Status)
				}
				return nil
			}

			paymentKey = firstNonEmpty(req.key, deref(current.GatewayPaymentKey), deref(current.AttemptedKey))
			if paymentKey == "" {
				// No key ever reached the gateway, so no charge can exist.
				done = true
				return s.finishCancelTx(ctx, tx, current, req, enums.IntentStatusCanceled, "")
			}
			if err := repo.Save(ctx, current); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request cancel")
			}
			return nil
		})
		if err != nil || done {
			return err
		}

		s.metrics.Compensation("requested")
		logCtx := s.logCtx(ctx, "payment.compensate", result)
		_, cancelErr := s.gateway.Cancel(ctx, gateway.CancelRequest{
			PaymentKey:     paymentKey,
			Reason:         cancelReasonText(req),
			IdempotencyKey: "cancel-" + orderID,
		})
		next := enums.IntentStatusCanceled
		failure := ""
		switch {
		case cancelErr == nil, gateway.IsAlreadyCanceled(cancelErr), gateway.IsNotFound(cancelErr):
			s.metrics.Compensation("canceled")
		case gateway.IsTransient(cancelErr) && !req.finalAttempt:
			s.logg.Warn(s.logg.WithField(logCtx, "error", cancelErr.Error()), "gateway cancel pending retry")
			return gateway.ToDomain(cancelErr, "cancel payment")
		default:
			s.metrics.Compensation(metrics.ResultFail)
			s.logg.Error(logCtx, "gateway cancel failed", cancelErr)
			next = enums.IntentStatusCancelFailed
			failure = gatewayFailureCode(cancelErr)
		}

		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			current, err := s.repo.WithTx(tx).FindForUpdate(ctx, orderID)
			if err != nil {
				return mapFindError(err, orderID)
			}
			result = current
			if current.Status != enums.IntentStatusCancelRequested {
				return nil
			}
			return s.finishCancelTx(ctx, tx, current, req, next, failure)
		})
	})
	return result, err
}

func (s *service) finishCancelTx(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent, req compensation, next enums.IntentStatus, failure string) error {
	now := s.now().UTC()
	intent.Status = next
	if next == enums.IntentStatusCanceled {
		intent.CanceledAt = &now
	} else if failure != "" {
		intent.FailureCode = &failure
	}
	if err := s.repo.WithTx(tx).Save(ctx, intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finish cancel")
	}

	s.logg.Info(s.logCtx(ctx, "payment.compensate", intent), "payment intent cancel finished")
	if req.userInitiated {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCanceled,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Actor:         &outbox.ActorRef{UserID: intent.ApplicantID, Role: enums.UserRoleUser},
			Data: payloads.PaymentCanceledEvent{
				IntentID:   intent.ID,
				OrderID:    intent.OrderID,
				BuyerID:    intent.ApplicantID,
				SellerID:   intent.SellerID,
				Status:     next,
				Reason:     req.message,
				CanceledAt: now,
			},
		})
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentCompensated,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		Data: payloads.PaymentCompensatedEvent{
			IntentID:   intent.ID,
			OrderID:    intent.OrderID,
			BuyerID:    intent.ApplicantID,
			SellerID:   intent.SellerID,
			Amount:     intent.ExpectedAmount,
			Status:     next,
			Reason:     req.code,
			OccurredAt: now,
		},
	})
}

// ReconcilePrepared settles a PREPARED intent past its grace window. The
// gateway is asked about the last attempted key: a completed charge is
// compensated, anything else expires the intent. CANCEL_REQUESTED intents
// get their final cancel attempt.
func (s *service) ReconcilePrepared(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	var result *models.PaymentIntent
	err := s.locker.WithLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		current, err := s.Get(ctx, orderID)
		if err != nil {
			return err
		}
		result = current
		switch current.Status {
		case enums.IntentStatusCancelRequested:
			result, err = s.compensate(ctx, orderID, compensation{
				code:         deref(current.FailureCode),
				message:      deref(current.FailureMessage),
				finalAttempt: true,
			})
			return err
		case enums.IntentStatusPrepared:
		default:
			return nil
		}

		if current.AttemptedKey != nil {
			res, lookupErr := s.gateway.Get(ctx, *current.AttemptedKey)
			switch {
			case lookupErr == nil && (res.Status == gateway.StatusDone || res.Status == gateway.StatusPartialCanceled):
				result, err = s.compensate(ctx, orderID, compensation{
					code:         string(enums.CancelReasonExpired),
					message:      "charge found for an abandoned payment",
					key:          *current.AttemptedKey,
					finalAttempt: true,
				})
				return err
			case lookupErr != nil && !gateway.IsNotFound(lookupErr):
				return gateway.ToDomain(lookupErr, "look up payment")
			}
		}

		expired := false
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			intent, err := s.repo.WithTx(tx).FindForUpdate(ctx, orderID)
			if err != nil {
				return mapFindError(err, orderID)
			}
			result = intent
			if intent.Status != enums.IntentStatusPrepared {
				return nil
			}
			expired = true
			return s.expireTx(ctx, tx, intent, s.now().UTC())
		})
		if err == nil && expired {
			s.metrics.IntentExpired()
		}
		return err
	})
	return result, err
}

func (s *service) expireTx(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent, now time.Time) error {
	intent.Status = enums.IntentStatusExpired
	if err := s.repo.WithTx(tx).Save(ctx, intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire intent")
	}
	s.logg.Info(s.logCtx(ctx, "payment.expire", intent), "payment intent expired")
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventIntentExpired,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		Data: payloads.IntentExpiredEvent{
			IntentID:  intent.ID,
			OrderID:   intent.OrderID,
			BuyerID:   intent.ApplicantID,
			PartyID:   intent.PartyID,
			ExpiredAt: now,
		},
	})
}

// ListStale returns intents the reconciliation sweep should look at.
func (s *service) ListStale(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := s.now().UTC().Add(-s.cfg.GraceWindow)
	rows, err := s.repo.ListStale(ctx, cutoff, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale intents")
	}
	return rows, nil
}

// Defer moves an intent behind the rest of the stale backlog after a
// reconcile attempt failed transiently.
func (s *service) Defer(ctx context.Context, orderID string) error {
	if err := s.repo.Touch(ctx, orderID, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "defer stale intent")
	}
	return nil
}

func (s *service) logCtx(ctx context.Context, event string, intent *models.PaymentIntent) context.Context {
	fields := map[string]any{"event": event}
	if intent != nil {
		fields["order_id"] = intent.OrderID
		fields["intent_id"] = intent.ID.String()
		fields["status"] = intent.Status
	}
	return s.logg.WithFields(ctx, fields)
}

func mapFindError(err error, orderID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errIntentNotFound(orderID)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
}

func gatewayFailureCode(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		if gwErr.Code != "" {
			return gwErr.Code
		}
		return string(gwErr.Kind)
	}
	return "CANCEL_ERROR"
}

func cancelReasonText(req compensation) string {
	if req.message != "" {
		return req.message
	}
	return req.code
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
