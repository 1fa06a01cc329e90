package services

import (
	"context"

	"github.com/shopspring/decimal"

	domain "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product          = domain.Product
	Cart             = domain.Cart
	CartLine         = domain.CartLine
	Address          = domain.Address
	Quote            = domain.Quote
	Totals           = domain.Totals
	CheckoutStep     = domain.CheckoutStep
	CheckoutSnapshot = domain.CheckoutSnapshot
	ShippingInfo     = domain.ShippingInfo
	BillingInfo      = domain.BillingInfo
	CardInput        = domain.CardInput
	PaymentMethodRef = domain.PaymentMethodRef
	Order            = domain.Order
)

// CartService exposes cart operations keyed by customer. Each call works on
// the latest persisted snapshot so concurrent devices resolve to the last write.
type CartService interface {
	GetCart(ctx context.Context, customerID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, customerID string) (Cart, error)
	Estimate(ctx context.Context, cmd CartEstimateCommand) (CartEstimate, error)
	WithLedger(ctx context.Context, customerID string, fn func(*CartLedger) error) error
}

// CheckoutService drives the checkout wizard for a customer.
type CheckoutService interface {
	Start(ctx context.Context, customerID string) (CheckoutView, error)
	Get(ctx context.Context, customerID string) (CheckoutView, error)
	SubmitShipping(ctx context.Context, cmd SubmitShippingCommand) (CheckoutView, error)
	SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (CheckoutView, error)
	GoToStep(ctx context.Context, customerID string, step CheckoutStep) (CheckoutView, error)
	Back(ctx context.Context, customerID string) (CheckoutView, error)
	UpdateNotes(ctx context.Context, customerID string, notes string) (CheckoutView, error)
	Confirm(ctx context.Context, customerID string) (Order, error)
	Abandon(ctx context.Context, customerID string) error
}

// OrderService reads recorded orders.
type OrderService interface {
	LastOrder(ctx context.Context, customerID string) (Order, error)
	GetOrder(ctx context.Context, customerID string, orderNumber string) (Order, error)
}

// PaymentMethodCreator turns card input into an opaque payment method
// reference. Errors carry a customer-facing message.
type PaymentMethodCreator interface {
	CreatePaymentMethod(ctx context.Context, card CardInput, billing BillingInfo) (PaymentMethodRef, error)
}

// ConfirmationSink receives each finalized order exactly once.
type ConfirmationSink interface {
	OrderConfirmed(ctx context.Context, order Order) error
}

// CheckoutMetrics receives checkout outcome signals.
type CheckoutMetrics interface {
	CartMetrics
	OrderFinalized(total float64)
	OrderFailed(reason string)
	PaymentFailed()
	ValidationFailed(step string)
}

// AddCartItemCommand adds quantity units of a product to a customer's cart.
type AddCartItemCommand struct {
	CustomerID string
	Product    Product
	Quantity   int
}

// UpdateCartItemCommand replaces a line quantity. Zero removes the line.
type UpdateCartItemCommand struct {
	CustomerID string
	ProductID  string
	Quantity   int
}

// RemoveCartItemCommand drops a line.
type RemoveCartItemCommand struct {
	CustomerID string
	ProductID  string
}

// CartEstimateCommand previews totals for a destination country.
type CartEstimateCommand struct {
	CustomerID string
	Country    string
}

// CartEstimate pairs the cart with its priced quote.
type CartEstimate struct {
	Cart  Cart
	Quote Quote
}

// SubmitShippingCommand carries the shipping step form.
type SubmitShippingCommand struct {
	CustomerID string
	Shipping   ShippingInfo
}

// SubmitPaymentCommand carries the payment step form.
type SubmitPaymentCommand struct {
	CustomerID string
	Card       CardInput
	Billing    BillingInfo
}

// CheckoutView is what the checkout UI renders: the session, the cart and,
// once a destination is known, the priced quote.
type CheckoutView struct {
	Session CheckoutSnapshot
	Cart    Cart
	Quote   *Quote
}

type noopConfirmationSink struct{}

func (noopConfirmationSink) OrderConfirmed(context.Context, Order) error { return nil }

type noopCheckoutMetrics struct{}

func (noopCheckoutMetrics) CartPersistFailed()      {}
func (noopCheckoutMetrics) CartSnapshotCorrupt()    {}
func (noopCheckoutMetrics) OrderFinalized(float64)  {}
func (noopCheckoutMetrics) OrderFailed(string)      {}
func (noopCheckoutMetrics) PaymentFailed()          {}
func (noopCheckoutMetrics) ValidationFailed(string) {}

func decimalFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
