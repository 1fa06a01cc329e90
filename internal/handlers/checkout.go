package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/auth"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/httpx"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/services"
)

var errTooManyPaymentAttempts = errors.New("checkout: too many payment attempts")

// paymentLimitedError carries how long the customer must wait before the
// next payment attempt.
type paymentLimitedError struct {
	wait time.Duration
}

func (e *paymentLimitedError) Error() string { return errTooManyPaymentAttempts.Error() }

func (e *paymentLimitedError) Unwrap() error { return errTooManyPaymentAttempts }

// CheckoutHandlers drive the checkout wizard for the signed-in customer.
type CheckoutHandlers struct {
	authn        *auth.Authenticator
	checkout     services.CheckoutService
	confirmGuard func(http.Handler) http.Handler
	payments     attemptLimiter
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithConfirmMiddleware wraps the confirm endpoint, typically with the
// idempotency middleware so a retried confirm replays the first order.
func WithConfirmMiddleware(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.confirmGuard = mw
	}
}

// WithPaymentRateLimit caps payment submissions per customer within window.
func WithPaymentRateLimit(limit int, window time.Duration) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.payments = newPaymentAttempts(limit, window, nil)
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{authn: authn, checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.start)
	r.Get("/", h.get)
	r.Delete("/", h.abandon)
	r.Put("/shipping", h.submitShipping)
	r.Put("/payment", h.submitPayment)
	r.Put("/notes", h.updateNotes)
	r.Post("/step", h.goToStep)
	r.Post("/back", h.back)

	confirm := http.Handler(http.HandlerFunc(h.confirm))
	if h.confirmGuard != nil {
		confirm = h.confirmGuard(confirm)
	}
	r.Method(http.MethodPost, "/confirm", confirm)
}

type shippingRequest struct {
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Address   addressRequest `json:"address"`
}

type cardRequest struct {
	Token      string `json:"token"`
	Number     string `json:"number"`
	ExpMonth   int    `json:"expMonth"`
	ExpYear    int    `json:"expYear"`
	CVC        string `json:"cvc"`
	HolderName string `json:"holderName"`
}

type billingRequest struct {
	SameAsShipping bool           `json:"sameAsShipping"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	Address        addressRequest `json:"address"`
}

type paymentRequest struct {
	Card    cardRequest     `json:"card"`
	Billing *billingRequest `json:"billing"`
}

type stepRequest struct {
	Step int `json:"step"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

func (h *CheckoutHandlers) start(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(customer string) (services.CheckoutView, error) {
		return h.checkout.Start(r.Context(), customer)
	})
}

func (h *CheckoutHandlers) get(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(customer string) (services.CheckoutView, error) {
		return h.checkout.Get(r.Context(), customer)
	})
}

func (h *CheckoutHandlers) back(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(customer string) (services.CheckoutView, error) {
		return h.checkout.Back(r.Context(), customer)
	})
}

func (h *CheckoutHandlers) submitShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := httpx.DecodeJSON(r, maxRequestBody, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}
	h.run(w, r, func(customer string) (services.CheckoutView, error) {
		return h.checkout.SubmitShipping(r.Context(), services.SubmitShippingCommand{
			CustomerID: customer,
			Shipping: domain.ShippingInfo{
				FirstName: req.FirstName,
				LastName:  req.LastName,
				Email:     req.Email,
				Phone:     req.Phone,
				Address:   req.Address.toDomain(),
			},
		})
	})
}

func (h *CheckoutHandlers) submitPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, maxRequestBody, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}
	billing := domain.BillingInfo{SameAsShipping: true}
	if req.Billing != nil {
		billing = domain.BillingInfo{
			SameAsShipping: req.Billing.SameAsShipping,
			Name:           req.Billing.Name,
			Email:          req.Billing.Email,
			Address:        req.Billing.Address.toDomain(),
		}
	}
	h.run(w, r, func(customer string) (services.CheckoutView, error) {
		if h.payments != nil {
			if wait, ok := h.payments.Attempt(customer); !ok {
				return services.CheckoutView{}, &paymentLimitedError{wait: wait}
			}
		}
		return h.checkout.SubmitPayment(r.Context(), services.SubmitPaymentCommand{
			CustomerID: customer,
			Card: domain.CardInput{
				Token:      req.Card.Token,
				Number:     req.Card.Number,
				ExpMonth:   req.Card.ExpMonth,
				ExpYear:    req.Card.ExpYear,
				CVC:        req.Card.CVC,
				HolderName: req.Card.HolderName,
			},
			Billing: billing,
		})
	})
}

func (h *CheckoutHandlers) goToStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := httpx.DecodeJSON(r, maxRequestBody, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}
	h.run(w, r, func(customer string) (services.CheckoutView, error) {
		return h.checkout.GoToStep(r.Context(), customer, domain.CheckoutStep(req.Step))
	})
}

func (h *CheckoutHandlers) updateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := httpx.DecodeJSON(r, maxRequestBody, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}
	h.run(w, r, func(customer string) (services.CheckoutView, error) {
		return h.checkout.UpdateNotes(r.Context(), customer, req.Notes)
	})
}

func (h *CheckoutHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	if h.checkout == nil {
		serviceUnavailable(r.Context(), w, "checkout_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	order, err := h.checkout.Confirm(r.Context(), customer)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.Number)
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) abandon(w http.ResponseWriter, r *http.Request) {
	if h.checkout == nil {
		serviceUnavailable(r.Context(), w, "checkout_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	if err := h.checkout.Abandon(r.Context(), customer); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// run resolves the customer, invokes fn and renders the resulting view.
func (h *CheckoutHandlers) run(w http.ResponseWriter, r *http.Request, fn func(customer string) (services.CheckoutView, error)) {
	if h.checkout == nil {
		serviceUnavailable(r.Context(), w, "checkout_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	view, err := fn(customer)
	if err != nil {
		var limited *paymentLimitedError
		if errors.As(err, &limited) {
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many payment attempts, try again shortly", http.StatusTooManyRequests).
				WithRetryAfter(limited.wait))
			return
		}
		if view.Session.ID != "" {
			// failed steps still report the session so the wizard can render step errors
			httpx.WriteError(r.Context(), w, serviceError(err).WithDetails(map[string]any{"checkout": buildCheckoutPayload(view)}))
			return
		}
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCheckoutPayload(view))
}
