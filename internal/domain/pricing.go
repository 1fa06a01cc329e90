package domain

import "github.com/shopspring/decimal"

// Totals captures the monetary outcome of pricing a cart for a destination.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Quote bundles totals with the regions that produced them.
type Quote struct {
	Country        string
	ShippingRegion ShippingRegion
	TaxRegion      TaxRegion
	FreeShipping   bool
	Totals         Totals
}
