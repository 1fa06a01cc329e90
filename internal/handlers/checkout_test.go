package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/services"
)

type stubCheckoutService struct {
	startFunc    func(ctx context.Context, customerID string) (services.CheckoutView, error)
	getFunc      func(ctx context.Context, customerID string) (services.CheckoutView, error)
	shippingFunc func(ctx context.Context, cmd services.SubmitShippingCommand) (services.CheckoutView, error)
	paymentFunc  func(ctx context.Context, cmd services.SubmitPaymentCommand) (services.CheckoutView, error)
	stepFunc     func(ctx context.Context, customerID string, step services.CheckoutStep) (services.CheckoutView, error)
	backFunc     func(ctx context.Context, customerID string) (services.CheckoutView, error)
	notesFunc    func(ctx context.Context, customerID, notes string) (services.CheckoutView, error)
	confirmFunc  func(ctx context.Context, customerID string) (services.Order, error)
	abandonFunc  func(ctx context.Context, customerID string) error
}

func (s *stubCheckoutService) Start(ctx context.Context, customerID string) (services.CheckoutView, error) {
	return s.startFunc(ctx, customerID)
}

func (s *stubCheckoutService) Get(ctx context.Context, customerID string) (services.CheckoutView, error) {
	return s.getFunc(ctx, customerID)
}

func (s *stubCheckoutService) SubmitShipping(ctx context.Context, cmd services.SubmitShippingCommand) (services.CheckoutView, error) {
	return s.shippingFunc(ctx, cmd)
}

func (s *stubCheckoutService) SubmitPayment(ctx context.Context, cmd services.SubmitPaymentCommand) (services.CheckoutView, error) {
	return s.paymentFunc(ctx, cmd)
}

func (s *stubCheckoutService) GoToStep(ctx context.Context, customerID string, step services.CheckoutStep) (services.CheckoutView, error) {
	return s.stepFunc(ctx, customerID, step)
}

func (s *stubCheckoutService) Back(ctx context.Context, customerID string) (services.CheckoutView, error) {
	return s.backFunc(ctx, customerID)
}

func (s *stubCheckoutService) UpdateNotes(ctx context.Context, customerID string, notes string) (services.CheckoutView, error) {
	return s.notesFunc(ctx, customerID, notes)
}

func (s *stubCheckoutService) Confirm(ctx context.Context, customerID string) (services.Order, error) {
	return s.confirmFunc(ctx, customerID)
}

func (s *stubCheckoutService) Abandon(ctx context.Context, customerID string) error {
	return s.abandonFunc(ctx, customerID)
}

func checkoutRouter(svc services.CheckoutService, opts ...CheckoutOption) chi.Router {
	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, svc, opts...).Routes)
	return router
}

func sampleView(step domain.CheckoutStep) services.CheckoutView {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	view := services.CheckoutView{
		Session: domain.CheckoutSnapshot{
			ID:          "chk_01",
			CustomerID:  "fan-1",
			CurrentStep: step,
			StartedAt:   now,
			UpdatedAt:   now,
		},
		Cart: sampleCart(now),
	}
	if step > domain.CheckoutStepShipping {
		view.Session.CompletedSteps = []domain.CheckoutStep{domain.CheckoutStepShipping}
		view.Session.Shipping = domain.ShippingInfo{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
			Address:   domain.Address{Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "73301", Country: "US"},
		}
		view.Quote = &services.Quote{
			Country:        "US",
			ShippingRegion: domain.ShippingRegionDomestic,
			FreeShipping:   true,
			Totals: domain.Totals{
				Subtotal: decimal.RequireFromString("69.99"),
				Shipping: decimal.Zero,
				Tax:      decimal.Zero,
				Total:    decimal.RequireFromString("69.99"),
			},
		}
	}
	return view
}

func TestCheckoutHandlersStart(t *testing.T) {
	svc := &stubCheckoutService{
		startFunc: func(_ context.Context, customerID string) (services.CheckoutView, error) {
			if customerID != "fan-1" {
				t.Fatalf("unexpected customer %q", customerID)
			}
			return sampleView(domain.CheckoutStepShipping), nil
		},
	}
	rr := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(rr, withCustomer(httptest.NewRequest(http.MethodPost, "/checkout", nil), "fan-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body checkoutPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Session.CurrentStep != "shipping" || body.Session.StepNumber != 1 {
		t.Fatalf("unexpected session %+v", body.Session)
	}
	if body.Quote != nil {
		t.Fatalf("quote should be absent before a destination is known")
	}
}

func TestCheckoutHandlersStartEmptyCart(t *testing.T) {
	svc := &stubCheckoutService{
		startFunc: func(context.Context, string) (services.CheckoutView, error) {
			return services.CheckoutView{}, services.ErrCheckoutEmptyCart
		},
	}
	rr := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(rr, withCustomer(httptest.NewRequest(http.MethodPost, "/checkout", nil), "fan-1"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "cart_empty" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestCheckoutHandlersShippingValidation(t *testing.T) {
	svc := &stubCheckoutService{
		shippingFunc: func(_ context.Context, cmd services.SubmitShippingCommand) (services.CheckoutView, error) {
			if cmd.Shipping.Address.Country != "US" || cmd.Shipping.FirstName != "Ada" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			view := sampleView(domain.CheckoutStepShipping)
			view.Session.StepErrors = map[domain.CheckoutStep]string{domain.CheckoutStepShipping: "email is invalid"}
			return view, &services.ValidationError{
				Step:   domain.CheckoutStepShipping,
				Fields: []services.FieldError{{Field: "email", Message: "is invalid"}},
			}
		},
	}
	body := `{"firstName":"Ada","lastName":"Lovelace","email":"nope","address":{"line1":"1 Main","city":"Austin","state":"TX","postalCode":"73301","country":"US"}}`
	req := withCustomer(httptest.NewRequest(http.MethodPut, "/checkout/shipping", strings.NewReader(body)), "fan-1")
	rr := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["error"] != "validation_failed" || payload["step"] != "shipping" {
		t.Fatalf("unexpected payload %v", payload)
	}
	fields, ok := payload["fields"].([]any)
	if !ok || len(fields) != 1 {
		t.Fatalf("expected one field error, got %v", payload["fields"])
	}
	if field := fields[0].(map[string]any); field["field"] != "email" {
		t.Fatalf("unexpected field error %v", field)
	}
	session := payload["checkout"].(map[string]any)["session"].(map[string]any)
	if session["stepErrors"].(map[string]any)["shipping"] != "email is invalid" {
		t.Fatalf("expected step error in session, got %v", session)
	}
}

func TestCheckoutHandlersPaymentDeclineIsShownVerbatim(t *testing.T) {
	var captured services.SubmitPaymentCommand
	svc := &stubCheckoutService{
		paymentFunc: func(_ context.Context, cmd services.SubmitPaymentCommand) (services.CheckoutView, error) {
			captured = cmd
			return sampleView(domain.CheckoutStepPayment), &services.PaymentError{Message: "Your card was declined.", Code: "card_declined"}
		},
	}
	body := `{"card":{"token":"tok_visa"}}`
	req := withCustomer(httptest.NewRequest(http.MethodPut, "/checkout/payment", strings.NewReader(body)), "fan-1")
	rr := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["message"] != "Your card was declined." || payload["declineCode"] != "card_declined" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if captured.Card.Token != "tok_visa" || !captured.Billing.SameAsShipping {
		t.Fatalf("expected billing to default to shipping, got %+v", captured)
	}
}

func TestCheckoutHandlersPaymentRateLimit(t *testing.T) {
	calls := 0
	svc := &stubCheckoutService{
		paymentFunc: func(context.Context, services.SubmitPaymentCommand) (services.CheckoutView, error) {
			calls++
			return sampleView(domain.CheckoutStepConfirm), nil
		},
	}
	router := checkoutRouter(svc, WithPaymentRateLimit(2, time.Minute))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := withCustomer(httptest.NewRequest(http.MethodPut, "/checkout/payment", strings.NewReader(`{"card":{"token":"tok"}}`)), "fan-1")
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	if got := last.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if calls != 2 {
		t.Fatalf("expected limited call to skip the service, got %d calls", calls)
	}
}

func TestCheckoutHandlersNavigationErrors(t *testing.T) {
	svc := &stubCheckoutService{
		stepFunc: func(_ context.Context, _ string, step services.CheckoutStep) (services.CheckoutView, error) {
			if step != domain.CheckoutStepConfirm {
				t.Fatalf("unexpected step %d", step)
			}
			return services.CheckoutView{}, services.ErrCheckoutStepLocked
		},
		backFunc: func(context.Context, string) (services.CheckoutView, error) {
			return services.CheckoutView{}, services.ErrCheckoutNotStarted
		},
	}
	router := checkoutRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withCustomer(httptest.NewRequest(http.MethodPost, "/checkout/step", strings.NewReader(`{"step":3}`)), "fan-1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for locked step, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withCustomer(httptest.NewRequest(http.MethodPost, "/checkout/back", nil), "fan-1"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a checkout, got %d", rr.Code)
	}
}

func TestCheckoutHandlersUpdateNotes(t *testing.T) {
	svc := &stubCheckoutService{
		notesFunc: func(_ context.Context, _ string, notes string) (services.CheckoutView, error) {
			view := sampleView(domain.CheckoutStepConfirm)
			view.Session.Notes = notes
			return view, nil
		},
	}
	req := withCustomer(httptest.NewRequest(http.MethodPut, "/checkout/notes", strings.NewReader(`{"notes":"gift wrap"}`)), "fan-1")
	rr := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body checkoutPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Session.Notes != "gift wrap" {
		t.Fatalf("unexpected notes %q", body.Session.Notes)
	}
}

func TestCheckoutHandlersConfirm(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 5, 0, 0, time.UTC)
	guarded := false
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guarded = true
			next.ServeHTTP(w, r)
		})
	}
	view := sampleView(domain.CheckoutStepConfirm)
	svc := &stubCheckoutService{
		confirmFunc: func(context.Context, string) (services.Order, error) {
			return services.Order{
				Number:        "ORD-20240601-0001",
				CustomerID:    "fan-1",
				Items:         view.Cart.Lines,
				Shipping:      view.Session.Shipping,
				Billing:       domain.BillingInfo{SameAsShipping: true},
				PaymentMethod: domain.PaymentMethodRef{ID: "pm_1", Provider: "stripe", Brand: "visa", Last4: "4242"},
				Totals:        view.Quote.Totals,
				Currency:      "USD",
				OrderDate:     now,
				Status:        domain.OrderStatusConfirmed,
			}, nil
		},
	}
	rr := httptest.NewRecorder()
	checkoutRouter(svc, WithConfirmMiddleware(guard)).ServeHTTP(rr, withCustomer(httptest.NewRequest(http.MethodPost, "/checkout/confirm", nil), "fan-1"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if !guarded {
		t.Fatalf("expected confirm middleware to run")
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/orders/ORD-20240601-0001" {
		t.Fatalf("unexpected location %q", loc)
	}
	var body orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Order.ItemCount != 3 || body.Order.Totals.Total != "69.99" || body.Order.Status != "confirmed" {
		t.Fatalf("unexpected order %+v", body.Order)
	}
}

func TestCheckoutHandlersConfirmFailures(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"not ready":        {services.ErrCheckoutNotReady, http.StatusConflict, "checkout_not_ready"},
		"totals changed":   {services.ErrOrderTotalsMismatch, http.StatusConflict, "totals_changed"},
		"numbers":          {services.ErrOrderNumberExhausted, http.StatusServiceUnavailable, "order_number_unavailable"},
		"payment pending":  {services.ErrCheckoutPaymentPending, http.StatusConflict, "payment_in_progress"},
		"emptied cart":     {services.ErrOrderEmptyCart, http.StatusConflict, "cart_empty"},
		"unexpected error": {context.Canceled, http.StatusInternalServerError, "internal_error"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubCheckoutService{
				confirmFunc: func(context.Context, string) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			rr := httptest.NewRecorder()
			checkoutRouter(svc).ServeHTTP(rr, withCustomer(httptest.NewRequest(http.MethodPost, "/checkout/confirm", nil), "fan-1"))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if body := decodeBody(t, rr); body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestCheckoutHandlersAbandon(t *testing.T) {
	abandoned := ""
	svc := &stubCheckoutService{
		abandonFunc: func(_ context.Context, customerID string) error {
			abandoned = customerID
			return nil
		},
	}
	rr := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(rr, withCustomer(httptest.NewRequest(http.MethodDelete, "/checkout", nil), "fan-1"))

	if rr.Code != http.StatusNoContent || abandoned != "fan-1" {
		t.Fatalf("expected 204 for fan-1, got %d for %q", rr.Code, abandoned)
	}
}
