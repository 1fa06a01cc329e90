package domain

import "time"

// CheckoutStep is a position in the checkout wizard.
type CheckoutStep int

const (
	CheckoutStepShipping CheckoutStep = 1
	CheckoutStepPayment  CheckoutStep = 2
	CheckoutStepConfirm  CheckoutStep = 3
)

// Valid reports whether s is one of the known steps.
func (s CheckoutStep) Valid() bool {
	return s >= CheckoutStepShipping && s <= CheckoutStepConfirm
}

func (s CheckoutStep) String() string {
	switch s {
	case CheckoutStepShipping:
		return "shipping"
	case CheckoutStepPayment:
		return "payment"
	case CheckoutStepConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// Address is a postal address. Only Country participates in pricing.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// ShippingInfo is the contact and destination collected on the shipping step.
type ShippingInfo struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   Address
}

// FullName joins first and last name.
func (s ShippingInfo) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	default:
		return s.FirstName + " " + s.LastName
	}
}

// BillingInfo is the billing contact collected on the payment step.
type BillingInfo struct {
	SameAsShipping bool
	Name           string
	Email          string
	Address        Address
}

// PaymentMethodRef is the opaque reference returned by the payment provider.
type PaymentMethodRef struct {
	ID       string
	Provider string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// CheckoutSnapshot is a read-only view of a checkout session.
type CheckoutSnapshot struct {
	ID             string
	CustomerID     string
	CurrentStep    CheckoutStep
	CompletedSteps []CheckoutStep
	Shipping       ShippingInfo
	Billing        BillingInfo
	PaymentMethod  *PaymentMethodRef
	StepErrors     map[CheckoutStep]string
	Notes          string
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// CardInput carries card data for payment method creation. Token is preferred;
// raw card fields are only accepted by providers configured for them.
type CardInput struct {
	Token      string
	Number     string
	ExpMonth   int
	ExpYear    int
	CVC        string
	HolderName string
}
