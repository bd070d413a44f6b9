package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalpayments "github.com/angelmondragon/ticketpay-backend/internal/payments"
	"github.com/angelmondragon/ticketpay-backend/internal/payouts"
	"github.com/angelmondragon/ticketpay-backend/internal/sellers"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/pagination"

	"github.com/angelmondragon/ticketpay-backend/api/validators"
)

const (
	defaultDLQLimit = 50
	maxDLQLimit     = pagination.MaxLimit
)

type payoutOperator interface {
	RequestPayout(ctx context.Context, paymentTransactionID uuid.UUID) (*models.PayoutTransaction, error)
	RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error)
	ApplyOutcome(ctx context.Context, payoutID uuid.UUID, outcome payouts.Outcome) (*models.PayoutTransaction, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error)
}

type orderOperator interface {
	Cancel(ctx context.Context, input internalpayments.CancelInput) (*internalpayments.CancelResult, error)
	ReconcileIntent(ctx context.Context, orderID string) (*models.PaymentIntent, error)
}

type dlqReader interface {
	List(ctx context.Context, cursor *pagination.Cursor, limit int) (pagination.Page[models.OutboxDLQ], error)
}

// PayoutResponse is the operator view of a payout row.
type PayoutResponse struct {
	ID                   uuid.UUID          `json:"id"`
	PaymentTransactionID uuid.UUID          `json:"paymentTransactionId"`
	SellerID             uuid.UUID          `json:"sellerId"`
	RequestedAmount      int64              `json:"requestedAmount"`
	Currency             string             `json:"currency"`
	Status               enums.PayoutStatus `json:"status"`
	ProviderRef          *string            `json:"providerRef,omitempty"`
	RetryCount           int                `json:"retryCount"`
	NextRetryAt          *time.Time         `json:"nextRetryAt,omitempty"`
	CompletedAt          *time.Time         `json:"completedAt,omitempty"`
	FailureCode          *string            `json:"failureCode,omitempty"`
	FailReason           *string            `json:"failReason,omitempty"`
}

// SellerProfileResponse is the operator view of a seller payout profile.
type SellerProfileResponse struct {
	UserID           uuid.UUID       `json:"userId"`
	Provider         string          `json:"provider"`
	ProviderSellerID string          `json:"providerSellerId"`
	KYCStatus        enums.KYCStatus `json:"kycStatus"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// DLQEntryResponse is one dead-lettered outbox event.
type DLQEntryResponse struct {
	EventID      uuid.UUID                  `json:"eventId"`
	EventType    enums.OutboxEventType      `json:"eventType"`
	AggregateID  uuid.UUID                  `json:"aggregateId"`
	ErrorReason  enums.OutboxDLQErrorReason `json:"errorReason"`
	ErrorMessage *string                    `json:"errorMessage,omitempty"`
	AttemptCount int                        `json:"attemptCount"`
	FailedAt     time.Time                  `json:"failedAt"`
}

// DLQPageResponse is one page of dead letters plus the cursor for the next.
type DLQPageResponse struct {
	Items  []DLQEntryResponse `json:"items"`
	Cursor string             `json:"cursor"`
}

// OrderActionResponse reports the intent after an operator action. Refund
// fields are only set for cancels.
type OrderActionResponse struct {
	OrderID      string             `json:"orderId"`
	IntentStatus enums.IntentStatus `json:"intentStatus"`
	RefundAmount *int64             `json:"refundAmount,omitempty"`
	CancelFee    *int64             `json:"cancelFee,omitempty"`
	Policy       enums.RefundPolicy `json:"policy,omitempty"`
}

type payoutOutcomeRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=COMPLETED ACCEPTED TRANSIENT PERMANENT"`
	ProviderRef string `json:"providerRef" validate:"max=128"`
	Code        string `json:"code" validate:"max=64"`
	Message     string `json:"message" validate:"max=500"`
}

type sellerProfileRequest struct {
	UserID           string          `json:"userId" validate:"required,uuid"`
	Provider         string          `json:"provider" validate:"required,max=32"`
	ProviderSellerID string          `json:"providerSellerId" validate:"required,max=128"`
	KYCStatus        string          `json:"kycStatus" validate:"omitempty,oneof=PENDING VERIFIED REJECTED"`
	Metadata         json.RawMessage `json:"metadata"`
}

type operatorCancelRequest struct {
	ReasonType string `json:"reasonType" validate:"required,max=64"`
	Reason     string `json:"reason" validate:"max=500"`
}

// AdminForcePayout requests the payout for a settled payment right away,
// skipping the settlement hold.
func AdminForcePayout(svc payoutOperator, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "payout service", func(r *http.Request) (any, error) {
		txnID, err := validators.PathUUID(r, "paymentTransactionId")
		if err != nil {
			return nil, err
		}
		return payoutView(svc.RequestPayout(r.Context(), txnID))
	})
}

// AdminRetryPayout re-sends a scheduled or stuck payout without waiting for
// its backoff.
func AdminRetryPayout(svc payoutOperator, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "payout service", func(r *http.Request) (any, error) {
		payoutID, err := validators.PathUUID(r, "payoutId")
		if err != nil {
			return nil, err
		}
		return payoutView(svc.RetryPayout(r.Context(), payoutID))
	})
}

// AdminPayoutOutcome records an asynchronous provider verdict for a payout.
func AdminPayoutOutcome(svc payoutOperator, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "payout service", func(r *http.Request) (any, error) {
		payoutID, err := validators.PathUUID(r, "payoutId")
		if err != nil {
			return nil, err
		}
		var body payoutOutcomeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return payoutView(svc.ApplyOutcome(r.Context(), payoutID, payouts.Outcome{
			Kind:        payouts.OutcomeKind(body.Kind),
			ProviderRef: strings.TrimSpace(body.ProviderRef),
			Code:        strings.TrimSpace(body.Code),
			Message:     validators.CleanText(body.Message, 500),
		}))
	})
}

func AdminPayoutDetail(svc payoutOperator, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "payout service", func(r *http.Request) (any, error) {
		payoutID, err := validators.PathUUID(r, "payoutId")
		if err != nil {
			return nil, err
		}
		return payoutView(svc.Get(r.Context(), payoutID))
	})
}

// AdminUpsertSellerProfile registers or updates where a seller is paid.
func AdminUpsertSellerProfile(svc sellers.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "sellers service", func(r *http.Request) (any, error) {
		var body sellerProfileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return sellerView(svc.Upsert(r.Context(), sellers.UpsertInput{
			UserID:           uuid.MustParse(body.UserID),
			Provider:         strings.TrimSpace(body.Provider),
			ProviderSellerID: strings.TrimSpace(body.ProviderSellerID),
			KYCStatus:        enums.KYCStatus(body.KYCStatus),
			Metadata:         body.Metadata,
		}))
	})
}

func AdminSellerProfile(svc sellers.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "sellers service", func(r *http.Request) (any, error) {
		userID, err := validators.PathUUID(r, "userId")
		if err != nil {
			return nil, err
		}
		return sellerView(svc.GetByUserID(r.Context(), userID))
	})
}

// AdminCancelOrder cancels an order on the operator's behalf. No ownership
// check applies and the refund follows the given reason.
func AdminCancelOrder(svc orderOperator, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "payments service", func(r *http.Request) (any, error) {
		orderID, err := orderIDParam(r)
		if err != nil {
			return nil, err
		}
		var body operatorCancelRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		result, err := svc.Cancel(r.Context(), internalpayments.CancelInput{
			OrderID:    orderID,
			ReasonType: enums.CancelReasonType(strings.TrimSpace(body.ReasonType)),
			Reason:     validators.CleanText(body.Reason, 500),
		})
		if err != nil {
			return nil, err
		}
		return OrderActionResponse{
			OrderID:      orderID,
			IntentStatus: result.Intent.Status,
			RefundAmount: &result.RefundAmount,
			CancelFee:    &result.CancelFee,
			Policy:       result.Policy,
		}, nil
	})
}

// AdminReconcileOrder runs the reconciliation step for one order now.
func AdminReconcileOrder(svc orderOperator, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "payments service", func(r *http.Request) (any, error) {
		orderID, err := orderIDParam(r)
		if err != nil {
			return nil, err
		}
		intent, err := svc.ReconcileIntent(r.Context(), orderID)
		if err != nil {
			return nil, err
		}
		return OrderActionResponse{OrderID: intent.OrderID, IntentStatus: intent.Status}, nil
	})
}

// AdminOutboxDLQ pages through dead-lettered domain events, newest first.
func AdminOutboxDLQ(repo dlqReader, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, repo != nil, "outbox dlq", func(r *http.Request) (any, error) {
		limit, err := validators.QueryInt(r, "limit", defaultDLQLimit, 1, maxDLQLimit)
		if err != nil {
			return nil, err
		}
		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		page, err := repo.List(r.Context(), cursor, limit)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list outbox dlq")
		}
		items := make([]DLQEntryResponse, len(page.Items))
		for i, row := range page.Items {
			items[i] = DLQEntryResponse{
				EventID:      row.EventID,
				EventType:    row.EventType,
				AggregateID:  row.AggregateID,
				ErrorReason:  row.ErrorReason,
				ErrorMessage: row.ErrorMessage,
				AttemptCount: row.AttemptCount,
				FailedAt:     row.FailedAt,
			}
		}
		return DLQPageResponse{Items: items, Cursor: page.NextCursor}, nil
	})
}

func orderIDParam(r *http.Request) (string, error) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return orderID, nil
}

// payoutView passes a service result straight through to the response shape.
func payoutView(p *models.PayoutTransaction, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return PayoutResponse{
		ID:                   p.ID,
		PaymentTransactionID: p.PaymentTransactionID,
		SellerID:             p.SellerID,
		RequestedAmount:      p.RequestedAmount,
		Currency:             p.Currency,
		Status:               p.Status,
		ProviderRef:          p.ProviderRef,
		RetryCount:           p.RetryCount,
		NextRetryAt:          p.NextRetryAt,
		CompletedAt:          p.CompletedAt,
		FailureCode:          p.FailureCode,
		FailReason:           p.FailReason,
	}, nil
}

func sellerView(p *models.SellerPayoutProfile, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return SellerProfileResponse{
		UserID:           p.UserID,
		Provider:         p.Provider,
		ProviderSellerID: p.ProviderSellerID,
		KYCStatus:        p.KYCStatus,
		Metadata:         p.MetadataJSON,
		UpdatedAt:        p.UpdatedAt,
	}, nil
}
