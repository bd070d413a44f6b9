package controllers

import (
	"net/http"

	"github.com/angelmondragon/ticketpay-backend/api/responses"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

// endpoint is a handler body: it returns the payload for the success envelope
// or an error for the error envelope.
type endpoint func(r *http.Request) (any, error)

// serve adapts fn. When wired is false the route answers 500 without calling
// fn, so a router built with a missing service still starts.
func serve(logg *logger.Logger, wired bool, dependency string, fn endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !wired {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, dependency+" unavailable"))
			return
		}
		payload, err := fn(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}
