package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/auth"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/httpx"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/services"
)

// CartHandlers exposes the signed-in customer's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Get("/estimate", h.estimate)
	r.Post("/items", h.addItem)
	r.Patch("/items/{productId}", h.updateItem)
	r.Delete("/items/{productId}", h.removeItem)
}

// addCartItemRequest carries the product as the storefront listed it. The
// price is taken on trust; there is no catalog to check it against, so a
// deployment facing untrusted clients must resolve prices server side first.
type addCartItemRequest struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Category       string          `json:"category"`
	LimitedEdition bool            `json:"limitedEdition"`
	Quantity       *int            `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartEstimateResponse struct {
	Cart  cartPayload  `json:"cart"`
	Quote quotePayload `json:"quote"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		serviceUnavailable(r.Context(), w, "cart_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(r.Context(), customer)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.respond(w, cart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		serviceUnavailable(r.Context(), w, "cart_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if err := httpx.DecodeJSON(r, maxRequestBody, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.carts.AddItem(r.Context(), services.AddCartItemCommand{
		CustomerID: customer,
		Product: services.Product{
			ID:             req.ProductID,
			Name:           req.Name,
			UnitPrice:      req.UnitPrice,
			Category:       req.Category,
			LimitedEdition: req.LimitedEdition,
		},
		Quantity: quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.respond(w, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		serviceUnavailable(r.Context(), w, "cart_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if err := httpx.DecodeJSON(r, maxRequestBody, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateItemQuantity(r.Context(), services.UpdateCartItemCommand{
		CustomerID: customer,
		ProductID:  chi.URLParam(r, "productId"),
		Quantity:   *req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.respond(w, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		serviceUnavailable(r.Context(), w, "cart_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), services.RemoveCartItemCommand{
		CustomerID: customer,
		ProductID:  chi.URLParam(r, "productId"),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.respond(w, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		serviceUnavailable(r.Context(), w, "cart_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.ClearCart(r.Context(), customer)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.respond(w, cart)
}

func (h *CartHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		serviceUnavailable(r.Context(), w, "cart_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "country query parameter is required", http.StatusBadRequest))
		return
	}

	estimate, err := h.carts.Estimate(r.Context(), services.CartEstimateCommand{
		CustomerID: customer,
		Country:    country,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	setCartResponseHeaders(w, estimate.Cart)
	writeJSONResponse(w, http.StatusOK, cartEstimateResponse{
		Cart:  buildCartPayload(estimate.Cart),
		Quote: buildQuotePayload(estimate.Quote),
	})
}

func (h *CartHandlers) respond(w http.ResponseWriter, cart services.Cart) {
	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func setCartResponseHeaders(w http.ResponseWriter, cart services.Cart) {
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

func buildCartETag(cart services.Cart) string {
	if strings.TrimSpace(cart.ID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d:%d", strings.TrimSpace(cart.ID), cart.UpdatedAt.UTC().UnixNano(), cart.ItemCount)
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}
