package domain

import "github.com/shopspring/decimal"

// ShippingRegion buckets destination countries into a flat shipping rate.
type ShippingRegion string

const (
	ShippingRegionDomestic  ShippingRegion = "domestic"
	ShippingRegionCanada    ShippingRegion = "canada"
	ShippingRegionUK        ShippingRegion = "uk"
	ShippingRegionAustralia ShippingRegion = "australia"
	ShippingRegionEurope    ShippingRegion = "europe"
	ShippingRegionAsia      ShippingRegion = "asia"
	ShippingRegionWorldwide ShippingRegion = "worldwide"
)

// TaxRegion buckets destination countries into a flat tax rate.
type TaxRegion string

const (
	TaxRegionNone TaxRegion = ""
	TaxRegionUS   TaxRegion = "US"
	TaxRegionCA   TaxRegion = "CA"
	TaxRegionUK   TaxRegion = "UK"
	TaxRegionAU   TaxRegion = "AU"
	TaxRegionJP   TaxRegion = "JP"
	TaxRegionEU   TaxRegion = "EU"
)

// ShippingRates holds the flat rate charged per shipping region.
type ShippingRates struct {
	Domestic  decimal.Decimal
	Canada    decimal.Decimal
	UK        decimal.Decimal
	Australia decimal.Decimal
	Europe    decimal.Decimal
	Asia      decimal.Decimal
	Worldwide decimal.Decimal
}

// For returns the rate configured for region, falling back to the worldwide rate.
func (r ShippingRates) For(region ShippingRegion) decimal.Decimal {
	switch region {
	case ShippingRegionDomestic:
		return r.Domestic
	case ShippingRegionCanada:
		return r.Canada
	case ShippingRegionUK:
		return r.UK
	case ShippingRegionAustralia:
		return r.Australia
	case ShippingRegionEurope:
		return r.Europe
	case ShippingRegionAsia:
		return r.Asia
	default:
		return r.Worldwide
	}
}

// TaxRates holds tax rates as fractions (0.085 means 8.5%).
type TaxRates struct {
	US decimal.Decimal
	CA decimal.Decimal
	UK decimal.Decimal
	AU decimal.Decimal
	JP decimal.Decimal
	EU decimal.Decimal
}

// For returns the fraction configured for region. Unmapped regions are untaxed.
func (r TaxRates) For(region TaxRegion) decimal.Decimal {
	switch region {
	case TaxRegionUS:
		return r.US
	case TaxRegionCA:
		return r.CA
	case TaxRegionUK:
		return r.UK
	case TaxRegionAU:
		return r.AU
	case TaxRegionJP:
		return r.JP
	case TaxRegionEU:
		return r.EU
	default:
		return decimal.Zero
	}
}

// RateConfig is a fully populated pricing configuration snapshot.
type RateConfig struct {
	FreeShippingThreshold decimal.Decimal
	Shipping              ShippingRates
	TaxEnabled            bool
	Tax                   TaxRates
}
