package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/auth"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/httpx"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/services"
)

const maxRequestBody = 16 * 1024

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// customerID returns the authenticated customer or writes a 401.
func customerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.CustomerID(), true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, serviceError(err))
}

// serviceError maps the storefront error taxonomy onto the JSON envelope.
func serviceError(err error) httpx.Error {
	var validation *services.ValidationError
	var payment *services.PaymentError

	switch {
	case errors.As(err, &validation):
		return httpx.NewError("validation_failed", "some fields need attention", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"step": validation.Step.String(), "fields": validation.Fields})
	case errors.As(err, &payment):
		details := map[string]any{}
		if payment.Code != "" {
			details["declineCode"] = payment.Code
		}
		return httpx.NewError("payment_failed", payment.Error(), http.StatusPaymentRequired).WithDetails(details)
	case errors.Is(err, services.ErrPersistence):
		return httpx.NewError("persistence_failed", "your changes could not be saved, please try again", http.StatusServiceUnavailable).
			WithDetails(map[string]any{"retryable": services.IsRetryable(err)})
	case errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrCheckoutNotStarted):
		return httpx.NewError("checkout_not_found", "no checkout in progress", http.StatusNotFound)
	case errors.Is(err, services.ErrCheckoutEmptyCart), errors.Is(err, services.ErrOrderEmptyCart):
		return httpx.NewError("cart_empty", "your cart is empty", http.StatusConflict)
	case errors.Is(err, services.ErrCheckoutStepLocked):
		return httpx.NewError("step_locked", "complete the earlier steps first", http.StatusConflict)
	case errors.Is(err, services.ErrCheckoutWrongStep):
		return httpx.NewError("wrong_step", "this action is not available on the current step", http.StatusConflict)
	case errors.Is(err, services.ErrCheckoutPaymentPending):
		return httpx.NewError("payment_in_progress", "payment is already being processed", http.StatusConflict)
	case errors.Is(err, services.ErrCheckoutNotReady):
		return httpx.NewError("checkout_not_ready", "checkout is not ready to confirm", http.StatusConflict)
	case errors.Is(err, services.ErrCheckoutTransitionFailed):
		return httpx.NewError("checkout_conflict", "checkout changed, refresh and retry", http.StatusConflict)
	case errors.Is(err, services.ErrOrderTotalsMismatch):
		return httpx.NewError("totals_changed", "order totals changed, review your order", http.StatusConflict)
	case errors.Is(err, services.ErrOrderNotFound):
		return httpx.NewError("order_not_found", "order not found", http.StatusNotFound)
	case errors.Is(err, services.ErrOrderNumberExhausted):
		return httpx.NewError("order_number_unavailable", "could not place the order, please try again", http.StatusServiceUnavailable).
			WithDetails(map[string]any{"retryable": true})
	case errors.Is(err, context.DeadlineExceeded):
		return httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout)
	default:
		return httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError)
	}
}
