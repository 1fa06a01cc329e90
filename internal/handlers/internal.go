package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/httpx"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/services"
)

const (
	defaultCleanupLimit = 200
	maxCleanupLimit     = 1000
)

// RateConfigRefresher reloads the cached rate configuration.
type RateConfigRefresher interface {
	Refresh(ctx context.Context) domain.RateConfig
}

// RateSettingsWriter persists the admin rate settings blob.
type RateSettingsWriter func(ctx context.Context, settings services.RateSettings) error

// ExpiredKeyCleaner removes expired idempotency records.
type ExpiredKeyCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// InternalHandlers serve maintenance endpoints called by schedulers and ops tooling.
// Authentication is applied by the router's internal middleware group.
type InternalHandlers struct {
	rates    RateConfigRefresher
	settings RateSettingsWriter
	cleaner  ExpiredKeyCleaner
	now      func() time.Time
}

// InternalOption customises InternalHandlers.
type InternalOption func(*InternalHandlers)

// WithRateSettingsWriter enables PUT /internal/rate-config.
func WithRateSettingsWriter(writer RateSettingsWriter) InternalOption {
	return func(h *InternalHandlers) {
		h.settings = writer
	}
}

// WithIdempotencyCleaner enables the idempotency cleanup endpoint.
func WithIdempotencyCleaner(cleaner ExpiredKeyCleaner) InternalOption {
	return func(h *InternalHandlers) {
		h.cleaner = cleaner
	}
}

// WithInternalClock overrides the clock passed to cleanup.
func WithInternalClock(clock func() time.Time) InternalOption {
	return func(h *InternalHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(rates RateConfigRefresher, opts ...InternalOption) *InternalHandlers {
	h := &InternalHandlers{rates: rates, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/rate-config/refresh", h.refreshRates)
	r.Put("/rate-config", h.putRateSettings)
	r.Post("/maintenance/idempotency-cleanup", h.cleanupIdempotency)
}

type rateConfigResponse struct {
	FreeShippingThreshold string            `json:"freeShippingThreshold"`
	TaxEnabled            bool              `json:"taxEnabled"`
	ShippingRates         map[string]string `json:"shippingRates"`
	TaxRates              map[string]string `json:"taxRates"`
}

func buildRateConfigResponse(cfg domain.RateConfig) rateConfigResponse {
	shipping := make(map[string]string, 7)
	for _, region := range []domain.ShippingRegion{
		domain.ShippingRegionDomestic,
		domain.ShippingRegionCanada,
		domain.ShippingRegionUK,
		domain.ShippingRegionAustralia,
		domain.ShippingRegionEurope,
		domain.ShippingRegionAsia,
		domain.ShippingRegionWorldwide,
	} {
		shipping[string(region)] = money(cfg.Shipping.For(region))
	}
	tax := make(map[string]string, 6)
	for _, region := range []domain.TaxRegion{
		domain.TaxRegionUS,
		domain.TaxRegionCA,
		domain.TaxRegionUK,
		domain.TaxRegionAU,
		domain.TaxRegionJP,
		domain.TaxRegionEU,
	} {
		// fractions are shown as percentages, matching the settings blob
		tax[string(region)] = cfg.Tax.For(region).Shift(2).String()
	}
	return rateConfigResponse{
		FreeShippingThreshold: money(cfg.FreeShippingThreshold),
		TaxEnabled:            cfg.TaxEnabled,
		ShippingRates:         shipping,
		TaxRates:              tax,
	}
}

func (h *InternalHandlers) refreshRates(w http.ResponseWriter, r *http.Request) {
	if h.rates == nil {
		serviceUnavailable(r.Context(), w, "rate_config")
		return
	}
	cfg := h.rates.Refresh(r.Context())
	writeJSONResponse(w, http.StatusOK, buildRateConfigResponse(cfg))
}

func (h *InternalHandlers) putRateSettings(w http.ResponseWriter, r *http.Request) {
	if h.rates == nil || h.settings == nil {
		serviceUnavailable(r.Context(), w, "rate_config")
		return
	}
	var settings services.RateSettings
	if err := httpx.DecodeJSON(r, maxRequestBody, &settings); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}
	if err := h.settings(r.Context(), settings); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("rate_settings_unavailable", "failed to save rate settings", http.StatusServiceUnavailable))
		return
	}
	cfg := h.rates.Refresh(r.Context())
	writeJSONResponse(w, http.StatusOK, buildRateConfigResponse(cfg))
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	if h.cleaner == nil {
		serviceUnavailable(r.Context(), w, "idempotency")
		return
	}
	limit := defaultCleanupLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = min(parsed, maxCleanupLimit)
	}
	removed, err := h.cleaner.CleanupExpired(r.Context(), h.now().UTC(), limit)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cleanup_failed", "failed to remove expired keys", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"removed": removed, "limit": limit})
}
