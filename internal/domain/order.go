package domain

import "time"

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

// OrderStatusConfirmed is the initial and only modelled status.
const OrderStatusConfirmed OrderStatus = "confirmed"

// Order is the immutable record of a completed checkout.
type Order struct {
	Number        string
	CustomerID    string
	Items         []CartLine
	Shipping      ShippingInfo
	Billing       BillingInfo
	PaymentMethod PaymentMethodRef
	Totals        Totals
	Currency      string
	Notes         string
	OrderDate     time.Time
	Status        OrderStatus
}

// ItemCount sums quantities across order lines.
func (o Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}
