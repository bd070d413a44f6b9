package payments

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/api/middleware"
	"github.com/angelmondragon/ticketpay-backend/api/responses"
	"github.com/angelmondragon/ticketpay-backend/api/validators"
	internalpayments "github.com/angelmondragon/ticketpay-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

var errServiceUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable")

// buyerCall is what every payment route starts from: the authenticated
// buyer and the validated request body.
type buyerCall[T any] struct {
	ctx     context.Context
	buyerID uuid.UUID
	body    T
}

// bind resolves the caller and decodes the body, writing the error response
// itself when either step fails.
func bind[T any](w http.ResponseWriter, r *http.Request, svc internalpayments.Service, logg *logger.Logger) (buyerCall[T], bool) {
	call := buyerCall[T]{ctx: r.Context()}
	err := func() error {
		if svc == nil {
			return errServiceUnavailable
		}
		buyerID, err := middleware.CallerID(r.Context())
		if err != nil {
			return err
		}
		call.buyerID = buyerID
		return validators.DecodeJSONBody(r, &call.body)
	}()
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return call, false
	}
	return call, true
}

// withOrder tags the call's log context with the order id.
func (c buyerCall[T]) withOrder(logg *logger.Logger, orderID string) context.Context {
	if logg == nil {
		return c.ctx
	}
	return logg.WithOrderID(c.ctx, orderID)
}

// Prepare opens a payment intent for one party slot.
func Prepare(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call, ok := bind[prepareRequest](w, r, svc, logg)
		if !ok {
			return
		}
		intent, err := svc.Prepare(call.ctx, toPrepareInput(call.body, call.buyerID))
		if err != nil {
			responses.WriteError(call.ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPrepareResponse(intent))
	}
}

// Confirm settles a prepared intent after the buyer paid in the gateway UI.
// A replay of a finished order answers 200 with the existing purchase.
func Confirm(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call, ok := bind[confirmRequest](w, r, svc, logg)
		if !ok {
			return
		}
		ctx := call.withOrder(logg, call.body.OrderID)
		result, err := svc.Confirm(ctx, toConfirmInput(call.body, call.buyerID))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newConfirmResponse(result))
	}
}

// Cancel cancels the caller's order. Purchased orders are refunded under the
// cancellation policy.
func Cancel(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call, ok := bind[cancelRequest](w, r, svc, logg)
		if !ok {
			return
		}
		ctx := call.withOrder(logg, call.body.OrderID)
		result, err := svc.Cancel(ctx, toCancelInput(call.body, call.buyerID))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCancelResponse(result))
	}
}
