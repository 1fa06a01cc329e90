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
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/auth"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/services"
)

type stubCartService struct {
	getFunc      func(ctx context.Context, customerID string) (services.Cart, error)
	addFunc      func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateFunc   func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error)
	removeFunc   func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	clearFunc    func(ctx context.Context, customerID string) (services.Cart, error)
	estimateFunc func(ctx context.Context, cmd services.CartEstimateCommand) (services.CartEstimate, error)
}

func (s *stubCartService) GetCart(ctx context.Context, customerID string) (services.Cart, error) {
	if s.getFunc == nil {
		return services.Cart{}, nil
	}
	return s.getFunc(ctx, customerID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFunc == nil {
		return services.Cart{}, nil
	}
	return s.addFunc(ctx, cmd)
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateFunc == nil {
		return services.Cart{}, nil
	}
	return s.updateFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeFunc == nil {
		return services.Cart{}, nil
	}
	return s.removeFunc(ctx, cmd)
}

func (s *stubCartService) ClearCart(ctx context.Context, customerID string) (services.Cart, error) {
	if s.clearFunc == nil {
		return services.Cart{}, nil
	}
	return s.clearFunc(ctx, customerID)
}

func (s *stubCartService) Estimate(ctx context.Context, cmd services.CartEstimateCommand) (services.CartEstimate, error) {
	if s.estimateFunc == nil {
		return services.CartEstimate{}, nil
	}
	return s.estimateFunc(ctx, cmd)
}

func (s *stubCartService) WithLedger(context.Context, string, func(*services.CartLedger) error) error {
	return nil
}

func withCustomer(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q: %v", rr.Body.String(), err)
	}
	return body
}

func sampleCart(now time.Time) services.Cart {
	return services.Cart{
		ID: "cart-fan-1",
		Lines: []domain.CartLine{
			{
				ProductID: "tee-black",
				Name:      "Tour Tee",
				UnitPrice: decimal.RequireFromString("25.00"),
				Quantity:  2,
				Category:  "apparel",
				AddedAt:   now,
			},
			{
				ProductID:      "vinyl-lp",
				Name:           "Debut LP",
				UnitPrice:      decimal.RequireFromString("19.99"),
				Quantity:       1,
				Category:       "music",
				LimitedEdition: true,
				AddedAt:        now,
			},
		},
		Subtotal:  decimal.RequireFromString("69.99"),
		ItemCount: 3,
		UpdatedAt: now,
	}
}

func cartRouter(svc services.CartService) chi.Router {
	router := chi.NewRouter()
	router.Route("/cart", NewCartHandlers(nil, svc).Routes)
	return router
}

func TestCartHandlersGetCart(t *testing.T) {
	now := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	svc := &stubCartService{
		getFunc: func(_ context.Context, customerID string) (services.Cart, error) {
			if customerID != "fan-1" {
				t.Fatalf("unexpected customer %q", customerID)
			}
			return sampleCart(now), nil
		},
	}

	req := withCustomer(httptest.NewRequest(http.MethodGet, "/cart", nil), "fan-1")
	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "no-store") {
		t.Fatalf("expected no-store cache control, got %q", rr.Header().Get("Cache-Control"))
	}
	if rr.Header().Get("ETag") == "" {
		t.Fatalf("expected ETag header")
	}

	var body cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cart.Subtotal != "69.99" || body.Cart.ItemCount != 3 {
		t.Fatalf("unexpected cart summary: %+v", body.Cart)
	}
	if len(body.Cart.Items) != 2 || body.Cart.Items[0].LineTotal != "50.00" {
		t.Fatalf("unexpected cart items: %+v", body.Cart.Items)
	}
	if !body.Cart.Items[1].LimitedEdition {
		t.Fatalf("expected limited edition flag on vinyl")
	}
}

func TestCartHandlersRequiresIdentity(t *testing.T) {
	rr := httptest.NewRecorder()
	cartRouter(&stubCartService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCartHandlersAddItem(t *testing.T) {
	now := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	var captured services.AddCartItemCommand
	svc := &stubCartService{
		addFunc: func(_ context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			captured = cmd
			return sampleCart(now), nil
		},
	}

	body := `{"productId":"tee-black","name":"Tour Tee","unitPrice":"25.00","category":"apparel"}`
	req := withCustomer(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(body)), "fan-1")
	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CustomerID != "fan-1" || captured.Product.ID != "tee-black" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.Quantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", captured.Quantity)
	}
	if !captured.Product.UnitPrice.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("unexpected unit price %s", captured.Product.UnitPrice)
	}
}

func TestCartHandlersAddItemRejectsUnknownFields(t *testing.T) {
	svc := &stubCartService{
		addFunc: func(context.Context, services.AddCartItemCommand) (services.Cart, error) {
			t.Fatalf("service should not be called")
			return services.Cart{}, nil
		},
	}
	body := `{"productId":"tee","unitPrice":"1","sku":"x"}`
	req := withCustomer(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(body)), "fan-1")
	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCartHandlersInvalidInputMapsTo400(t *testing.T) {
	svc := &stubCartService{
		updateFunc: func(_ context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
			if cmd.ProductID != "tee-black" || cmd.Quantity != -2 {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			return services.Cart{}, services.ErrCartInvalidInput
		},
	}
	req := withCustomer(httptest.NewRequest(http.MethodPatch, "/cart/items/tee-black", strings.NewReader(`{"quantity":-2}`)), "fan-1")
	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "invalid_request" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestCartHandlersPersistenceFailure(t *testing.T) {
	svc := &stubCartService{
		removeFunc: func(context.Context, services.RemoveCartItemCommand) (services.Cart, error) {
			return services.Cart{}, &services.PersistenceError{Op: "cart.save", Key: "cart:fan-1", Retryable: true}
		},
	}
	req := withCustomer(httptest.NewRequest(http.MethodDelete, "/cart/items/tee-black", nil), "fan-1")
	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "persistence_failed" || body["retryable"] != true {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCartHandlersEstimate(t *testing.T) {
	now := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	svc := &stubCartService{
		estimateFunc: func(_ context.Context, cmd services.CartEstimateCommand) (services.CartEstimate, error) {
			if cmd.Country != "CA" {
				t.Fatalf("unexpected country %q", cmd.Country)
			}
			return services.CartEstimate{
				Cart: sampleCart(now),
				Quote: services.Quote{
					Country:        "CA",
					ShippingRegion: domain.ShippingRegionCanada,
					TaxRegion:      domain.TaxRegionCA,
					FreeShipping:   true,
					Totals: domain.Totals{
						Subtotal: decimal.RequireFromString("69.99"),
						Shipping: decimal.Zero,
						Tax:      decimal.RequireFromString("9.10"),
						Total:    decimal.RequireFromString("79.09"),
					},
				},
			}, nil
		},
	}

	req := withCustomer(httptest.NewRequest(http.MethodGet, "/cart/estimate?country=CA", nil), "fan-1")
	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body cartEstimateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Quote.Totals.Shipping != "0.00" || body.Quote.Totals.Total != "79.09" || !body.Quote.FreeShipping {
		t.Fatalf("unexpected quote %+v", body.Quote)
	}

	rr = httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, withCustomer(httptest.NewRequest(http.MethodGet, "/cart/estimate", nil), "fan-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without country, got %d", rr.Code)
	}
}
