package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

var (
	hundred = decimal.NewFromInt(100)

	defaultFreeShippingThreshold = decimal.NewFromInt(50)
	defaultShippingRates         = domain.ShippingRates{
		Domestic:  decimal.RequireFromString("8.99"),
		Canada:    decimal.RequireFromString("12.99"),
		UK:        decimal.RequireFromString("12.99"),
		Australia: decimal.RequireFromString("18.99"),
		Europe:    decimal.RequireFromString("15.99"),
		Asia:      decimal.RequireFromString("22.99"),
		Worldwide: decimal.RequireFromString("25.99"),
	}
	defaultTaxRates = domain.TaxRates{
		US: decimal.RequireFromString("0.085"),
		CA: decimal.RequireFromString("0.13"),
		UK: decimal.RequireFromString("0.20"),
		AU: decimal.RequireFromString("0.10"),
		JP: decimal.RequireFromString("0.10"),
		EU: decimal.RequireFromString("0.20"),
	}
)

// DefaultRateConfig returns the built-in rates used when nothing is configured.
func DefaultRateConfig() domain.RateConfig {
	return domain.RateConfig{
		FreeShippingThreshold: defaultFreeShippingThreshold,
		Shipping:              defaultShippingRates,
		TaxEnabled:            false,
		Tax:                   defaultTaxRates,
	}
}

// RateSettings is the admin-maintained rate blob. Nil or missing fields keep
// the value from the layer below. Tax rates are percentages (8.5 means 8.5%).
type RateSettings struct {
	FreeShippingThreshold *decimal.Decimal           `json:"freeShippingThreshold,omitempty"`
	ShippingRates         map[string]decimal.Decimal `json:"shippingRates,omitempty"`
	TaxEnabled            *bool                      `json:"taxEnabled,omitempty"`
	TaxRates              map[string]decimal.Decimal `json:"taxRates,omitempty"`
}

// MergeRateSettings layers settings over the defaults, later layers winning.
// Percentages are converted to fractions here and nowhere else. Negative values
// are ignored.
func MergeRateSettings(layers ...*RateSettings) domain.RateConfig {
	cfg := DefaultRateConfig()
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if layer.FreeShippingThreshold != nil && !layer.FreeShippingThreshold.IsNegative() {
			cfg.FreeShippingThreshold = *layer.FreeShippingThreshold
		}
		if layer.TaxEnabled != nil {
			cfg.TaxEnabled = *layer.TaxEnabled
		}
		for key, rate := range layer.ShippingRates {
			if rate.IsNegative() {
				continue
			}
			applyShippingRate(&cfg.Shipping, key, rate)
		}
		for key, pct := range layer.TaxRates {
			if pct.IsNegative() {
				continue
			}
			applyTaxRate(&cfg.Tax, key, pct.Div(hundred))
		}
	}
	return cfg
}

func applyShippingRate(rates *domain.ShippingRates, key string, value decimal.Decimal) {
	switch domain.ShippingRegion(strings.ToLower(strings.TrimSpace(key))) {
	case domain.ShippingRegionDomestic:
		rates.Domestic = value
	case domain.ShippingRegionCanada:
		rates.Canada = value
	case domain.ShippingRegionUK:
		rates.UK = value
	case domain.ShippingRegionAustralia:
		rates.Australia = value
	case domain.ShippingRegionEurope:
		rates.Europe = value
	case domain.ShippingRegionAsia:
		rates.Asia = value
	case domain.ShippingRegionWorldwide:
		rates.Worldwide = value
	}
}

func applyTaxRate(rates *domain.TaxRates, key string, fraction decimal.Decimal) {
	switch domain.TaxRegion(strings.ToUpper(strings.TrimSpace(key))) {
	case domain.TaxRegionUS:
		rates.US = fraction
	case domain.TaxRegionCA:
		rates.CA = fraction
	case domain.TaxRegionUK, "GB":
		rates.UK = fraction
	case domain.TaxRegionAU:
		rates.AU = fraction
	case domain.TaxRegionJP:
		rates.JP = fraction
	case domain.TaxRegionEU:
		rates.EU = fraction
	}
}

// RateSettingsSource supplies one settings layer. A nil result means the
// source has nothing to contribute.
type RateSettingsSource interface {
	LoadRateSettings(ctx context.Context) (*RateSettings, error)
}

// RateSettingsSourceFunc adapts a function to RateSettingsSource.
type RateSettingsSourceFunc func(ctx context.Context) (*RateSettings, error)

func (f RateSettingsSourceFunc) LoadRateSettings(ctx context.Context) (*RateSettings, error) {
	return f(ctx)
}

// StaticRateSettings returns a source that always yields settings.
func StaticRateSettings(settings *RateSettings) RateSettingsSource {
	return RateSettingsSourceFunc(func(context.Context) (*RateSettings, error) {
		return settings, nil
	})
}

// SlotRateSettings reads the admin settings blob from the settings slot.
type SlotRateSettings struct {
	Store repositories.SlotStore
}

func (s SlotRateSettings) LoadRateSettings(ctx context.Context) (*RateSettings, error) {
	if s.Store == nil {
		return nil, nil
	}
	raw, err := s.Store.Get(ctx, repositories.RateSettingsSlot())
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var settings RateSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode rate settings: %w", err)
	}
	return &settings, nil
}

// SaveRateSettings writes the admin settings blob to the settings slot.
func SaveRateSettings(ctx context.Context, store repositories.SlotStore, settings RateSettings) error {
	if store == nil {
		return errors.New("rate settings: store is required")
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode rate settings: %w", err)
	}
	return store.Set(ctx, repositories.RateSettingsSlot(), raw)
}

// RateConfigProvider exposes the live rate configuration.
type RateConfigProvider interface {
	Current(ctx context.Context) domain.RateConfig
}

// RateConfigStoreDeps configures a RateConfigStore. Sources are merged in
// order so later sources override earlier ones.
type RateConfigStoreDeps struct {
	Sources  []RateSettingsSource
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// RateConfigStore caches the merged rate configuration. Readers never see an
// error. When a source fails the last complete configuration is served; before
// any complete load the failing source is skipped and the defaults fill the
// gaps.
type RateConfigStore struct {
	sources []RateSettingsSource
	ttl     time.Duration
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)

	mu       sync.RWMutex
	cached   domain.RateConfig
	loadedAt time.Time
	valid    bool
	good     bool
}

// NewRateConfigStore constructs a store. A zero CacheTTL caches until Invalidate.
func NewRateConfigStore(deps RateConfigStoreDeps) *RateConfigStore {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	sources := make([]RateSettingsSource, 0, len(deps.Sources))
	for _, src := range deps.Sources {
		if src != nil {
			sources = append(sources, src)
		}
	}
	return &RateConfigStore{
		sources: sources,
		ttl:     deps.CacheTTL,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
	}
}

// Current returns the cached configuration, reloading it when stale.
func (s *RateConfigStore) Current(ctx context.Context) domain.RateConfig {
	now := s.now()
	s.mu.RLock()
	if s.fresh(now) {
		cfg := s.cached
		s.mu.RUnlock()
		return cfg
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fresh(now) {
		return s.cached
	}

	cfg, complete := s.load(ctx)
	s.loadedAt = now
	// a partial load is retried on the next call
	s.valid = complete
	if !complete && s.good {
		s.logger(ctx, "rates.kept_last_good", map[string]any{
			"freeShippingThreshold": s.cached.FreeShippingThreshold.String(),
			"taxEnabled":            s.cached.TaxEnabled,
		})
		return s.cached
	}
	s.cached = cfg
	s.good = s.good || complete
	return cfg
}

// Invalidate drops the cached configuration so the next read reloads it.
func (s *RateConfigStore) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

// Refresh reloads the configuration immediately.
func (s *RateConfigStore) Refresh(ctx context.Context) domain.RateConfig {
	s.Invalidate()
	return s.Current(ctx)
}

func (s *RateConfigStore) fresh(now time.Time) bool {
	if !s.valid {
		return false
	}
	if s.ttl <= 0 {
		return true
	}
	return now.Sub(s.loadedAt) < s.ttl
}

func (s *RateConfigStore) load(ctx context.Context) (domain.RateConfig, bool) {
	layers := make([]*RateSettings, 0, len(s.sources))
	complete := true
	for idx, src := range s.sources {
		settings, err := src.LoadRateSettings(ctx)
		if err != nil {
			complete = false
			s.logger(ctx, "rates.load_failed", map[string]any{
				"source": idx,
				"error":  err.Error(),
			})
			continue
		}
		layers = append(layers, settings)
	}
	cfg := MergeRateSettings(layers...)
	s.logger(ctx, "rates.loaded", map[string]any{
		"freeShippingThreshold": cfg.FreeShippingThreshold.String(),
		"taxEnabled":            cfg.TaxEnabled,
		"layers":                len(layers),
	})
	return cfg, complete
}
