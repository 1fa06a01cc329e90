package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

var (
	europeCountries = countrySet("DE", "FR", "IT", "ES", "NL", "BE", "AT", "PT", "IE", "FI", "SE", "DK", "NO")
	asiaCountries   = countrySet("JP", "CN", "KR", "SG", "TH", "MY", "PH", "VN", "ID")
)

func countrySet(codes ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

// NormalizeCountry upper-cases and trims an ISO country code.
func NormalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

// ShippingRegionFor maps a country code to its shipping region. Unknown codes
// ship worldwide.
func ShippingRegionFor(country string) domain.ShippingRegion {
	code := NormalizeCountry(country)
	switch code {
	case "US":
		return domain.ShippingRegionDomestic
	case "CA":
		return domain.ShippingRegionCanada
	case "GB":
		return domain.ShippingRegionUK
	case "AU":
		return domain.ShippingRegionAustralia
	}
	if _, ok := europeCountries[code]; ok {
		return domain.ShippingRegionEurope
	}
	if _, ok := asiaCountries[code]; ok {
		return domain.ShippingRegionAsia
	}
	return domain.ShippingRegionWorldwide
}

// TaxRegionFor maps a country code to its tax region. Asia has no shared tax
// bucket: only JP is taxed there.
func TaxRegionFor(country string) domain.TaxRegion {
	code := NormalizeCountry(country)
	switch code {
	case "US":
		return domain.TaxRegionUS
	case "CA":
		return domain.TaxRegionCA
	case "GB":
		return domain.TaxRegionUK
	case "AU":
		return domain.TaxRegionAU
	case "JP":
		return domain.TaxRegionJP
	}
	if _, ok := europeCountries[code]; ok {
		return domain.TaxRegionEU
	}
	return domain.TaxRegionNone
}

// ComputeShipping returns the flat shipping charge for subtotal shipped to
// address. Orders at or above the threshold ship free.
func ComputeShipping(subtotal decimal.Decimal, address domain.Address, cfg domain.RateConfig) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return cfg.Shipping.For(ShippingRegionFor(address.Country))
}

// ComputeTax returns the unrounded tax on subtotal, zero when tax is disabled
// or the destination is unmapped.
func ComputeTax(subtotal decimal.Decimal, address domain.Address, cfg domain.RateConfig) decimal.Decimal {
	if !cfg.TaxEnabled {
		return decimal.Zero
	}
	rate := cfg.Tax.For(TaxRegionFor(address.Country))
	if rate.IsZero() {
		return decimal.Zero
	}
	return subtotal.Mul(rate)
}

// ComputeQuote prices subtotal for address. Amounts are rounded half away
// from zero to cents only here.
func ComputeQuote(subtotal decimal.Decimal, address domain.Address, cfg domain.RateConfig) domain.Quote {
	shipping := ComputeShipping(subtotal, address, cfg).Round(2)
	tax := ComputeTax(subtotal, address, cfg).Round(2)
	roundedSubtotal := subtotal.Round(2)
	return domain.Quote{
		Country:        NormalizeCountry(address.Country),
		ShippingRegion: ShippingRegionFor(address.Country),
		TaxRegion:      TaxRegionFor(address.Country),
		FreeShipping:   subtotal.GreaterThanOrEqual(cfg.FreeShippingThreshold),
		Totals: domain.Totals{
			Subtotal: roundedSubtotal,
			Shipping: shipping,
			Tax:      tax,
			Total:    roundedSubtotal.Add(shipping).Add(tax),
		},
	}
}

var errPricingRatesRequired = errors.New("pricing engine: rate config provider is required")

// PricingEngine quotes against the live rate configuration.
type PricingEngine struct {
	rates RateConfigProvider
}

// NewPricingEngine constructs an engine reading rates from provider.
func NewPricingEngine(rates RateConfigProvider) (*PricingEngine, error) {
	if rates == nil {
		return nil, errPricingRatesRequired
	}
	return &PricingEngine{rates: rates}, nil
}

// Quote prices subtotal for address with the current configuration.
func (p *PricingEngine) Quote(ctx context.Context, subtotal decimal.Decimal, address domain.Address) domain.Quote {
	return ComputeQuote(subtotal, address, p.rates.Current(ctx))
}

// Rates returns the configuration quotes are currently computed with.
func (p *PricingEngine) Rates(ctx context.Context) domain.RateConfig {
	return p.rates.Current(ctx)
}
