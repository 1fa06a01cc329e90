package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product describes a merch item as presented to the cart.
type Product struct {
	ID             string
	Name           string
	UnitPrice      decimal.Decimal
	Category       string
	LimitedEdition bool
}

// CartLine is one product entry in a cart. Quantity is always at least one.
type CartLine struct {
	ProductID      string
	Name           string
	UnitPrice      decimal.Decimal
	Quantity       int
	Category       string
	LimitedEdition bool
	AddedAt        time.Time
}

// LineTotal returns unit price multiplied by quantity without rounding.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is a point-in-time view of a customer's cart.
type Cart struct {
	ID        string
	Lines     []CartLine
	Subtotal  decimal.Decimal
	ItemCount int
	UpdatedAt time.Time
}
