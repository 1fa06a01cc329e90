package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/auth"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/httpx"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/services"
)

// OrderHandlers serve read-only views of the customer's confirmed orders.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/last", h.lastOrder)
	r.Get("/{orderNumber}", h.getOrder)
}

func (h *OrderHandlers) lastOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		serviceUnavailable(r.Context(), w, "order_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	order, err := h.orders.LastOrder(r.Context(), customer)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		serviceUnavailable(r.Context(), w, "order_service")
		return
	}
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if number == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order number is required", http.StatusBadRequest))
		return
	}
	order, err := h.orders.GetOrder(r.Context(), customer, number)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
