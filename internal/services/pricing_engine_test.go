package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("invalid decimal %q: %v", value, err)
	}
	return d
}

func TestComputeShipping_Regions(t *testing.T) {
	cfg := DefaultRateConfig()
	cases := []struct {
		country  string
		subtotal string
		want     string
	}{
		{"US", "20", "8.99"},
		{"us", "49.99", "8.99"},
		{"US", "50", "0"},
		{"US", "120", "0"},
		{"CA", "10", "12.99"},
		{"GB", "10", "12.99"},
		{"AU", "10", "18.99"},
		{"DE", "49.99", "15.99"},
		{"NO", "5", "15.99"},
		{"JP", "5", "22.99"},
		{"ID", "5", "22.99"},
		{"BR", "5", "25.99"},
		{"ZZ", "5", "25.99"},
		{"", "5", "25.99"},
	}
	for _, tc := range cases {
		got := ComputeShipping(dec(t, tc.subtotal), domain.Address{Country: tc.country}, cfg)
		if !got.Equal(dec(t, tc.want)) {
			t.Errorf("shipping %s/%s: expected %s, got %s", tc.country, tc.subtotal, tc.want, got)
		}
	}
}

func TestComputeTax(t *testing.T) {
	cfg := DefaultRateConfig()
	us := domain.Address{Country: "US"}

	if got := ComputeTax(dec(t, "100"), us, cfg); !got.IsZero() {
		t.Fatalf("expected zero tax when disabled, got %s", got)
	}

	cfg.TaxEnabled = true
	cases := []struct {
		country string
		want    string
	}{
		{"US", "8.50"},
		{"CA", "13"},
		{"GB", "20"},
		{"FR", "20"},
		{"AU", "10"},
		{"JP", "10"},
		{"CN", "0"},
		{"ZZ", "0"},
	}
	for _, tc := range cases {
		got := ComputeTax(dec(t, "100"), domain.Address{Country: tc.country}, cfg)
		if !got.Equal(dec(t, tc.want)) {
			t.Errorf("tax %s: expected %s, got %s", tc.country, tc.want, got)
		}
	}
}

func TestComputeQuote_RoundsOnlyTotals(t *testing.T) {
	cfg := DefaultRateConfig()
	cfg.TaxEnabled = true

	// 3 x 9.99 = 29.97, tax 2.54745
	quote := ComputeQuote(dec(t, "29.97"), domain.Address{Country: "us"}, cfg)
	if quote.Country != "US" || quote.ShippingRegion != domain.ShippingRegionDomestic || quote.TaxRegion != domain.TaxRegionUS {
		t.Fatalf("unexpected regions: %+v", quote)
	}
	if quote.FreeShipping {
		t.Fatalf("expected paid shipping")
	}
	if got := quote.Totals.Tax.StringFixed(2); got != "2.55" {
		t.Fatalf("expected tax 2.55, got %s", got)
	}
	if got := quote.Totals.Total.StringFixed(2); got != "41.51" {
		t.Fatalf("expected total 41.51, got %s", got)
	}
}

func TestPricingEngine_UsesCurrentRates(t *testing.T) {
	enabled := true
	threshold := decimal.NewFromInt(100)
	store := NewRateConfigStore(RateConfigStoreDeps{
		Sources: []RateSettingsSource{StaticRateSettings(&RateSettings{
			FreeShippingThreshold: &threshold,
			TaxEnabled:            &enabled,
		})},
	})
	engine, err := NewPricingEngine(store)
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}

	quote := engine.Quote(context.Background(), dec(t, "60"), domain.Address{Country: "US"})
	if !quote.Totals.Shipping.Equal(dec(t, "8.99")) {
		t.Fatalf("expected shipping below raised threshold, got %s", quote.Totals.Shipping)
	}
	if !quote.Totals.Tax.Equal(dec(t, "5.10")) {
		t.Fatalf("expected tax 5.10, got %s", quote.Totals.Tax)
	}
}

func TestNewPricingEngine_RequiresRates(t *testing.T) {
	if _, err := NewPricingEngine(nil); err == nil {
		t.Fatalf("expected error without rate provider")
	}
}
