package handlers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/services"
)

// Money is rendered as a fixed two-decimal string so clients never see float drift.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type cartLinePayload struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Category       string `json:"category,omitempty"`
	LimitedEdition bool   `json:"limitedEdition"`
	UnitPrice      string `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	LineTotal      string `json:"lineTotal"`
	AddedAt        string `json:"addedAt,omitempty"`
}

type cartPayload struct {
	ID        string            `json:"id"`
	Items     []cartLinePayload `json:"items"`
	ItemCount int               `json:"itemCount"`
	Subtotal  string            `json:"subtotal"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type totalsPayload struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type quotePayload struct {
	Country        string        `json:"country"`
	ShippingRegion string        `json:"shippingRegion"`
	TaxRegion      string        `json:"taxRegion,omitempty"`
	FreeShipping   bool          `json:"freeShipping"`
	Totals         totalsPayload `json:"totals"`
}

type addressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type shippingPayload struct {
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone,omitempty"`
	Address   addressPayload `json:"address"`
}

type billingPayload struct {
	SameAsShipping bool            `json:"sameAsShipping"`
	Name           string          `json:"name,omitempty"`
	Email          string          `json:"email,omitempty"`
	Address        *addressPayload `json:"address,omitempty"`
}

type paymentMethodPayload struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"expMonth,omitempty"`
	ExpYear  int    `json:"expYear,omitempty"`
}

type checkoutSessionPayload struct {
	ID             string                `json:"id"`
	CurrentStep    string                `json:"currentStep"`
	StepNumber     int                   `json:"stepNumber"`
	CompletedSteps []string              `json:"completedSteps"`
	Shipping       *shippingPayload      `json:"shipping,omitempty"`
	Billing        *billingPayload       `json:"billing,omitempty"`
	PaymentMethod  *paymentMethodPayload `json:"paymentMethod,omitempty"`
	StepErrors     map[string]string     `json:"stepErrors,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	StartedAt      string                `json:"startedAt"`
	UpdatedAt      string                `json:"updatedAt"`
}

type checkoutPayload struct {
	Session checkoutSessionPayload `json:"session"`
	Cart    cartPayload            `json:"cart"`
	Quote   *quotePayload          `json:"quote,omitempty"`
}

type orderPayload struct {
	Number        string               `json:"orderNumber"`
	Status        string               `json:"status"`
	Items         []cartLinePayload    `json:"items"`
	ItemCount     int                  `json:"itemCount"`
	Shipping      shippingPayload      `json:"shipping"`
	Billing       billingPayload       `json:"billing"`
	PaymentMethod paymentMethodPayload `json:"paymentMethod"`
	Totals        totalsPayload        `json:"totals"`
	Currency      string               `json:"currency"`
	Notes         string               `json:"notes,omitempty"`
	OrderDate     string               `json:"orderDate"`
}

func buildCartLines(lines []domain.CartLine) []cartLinePayload {
	items := make([]cartLinePayload, 0, len(lines))
	for _, line := range lines {
		items = append(items, cartLinePayload{
			ProductID:      line.ProductID,
			Name:           line.Name,
			Category:       line.Category,
			LimitedEdition: line.LimitedEdition,
			UnitPrice:      money(line.UnitPrice),
			Quantity:       line.Quantity,
			LineTotal:      money(line.LineTotal()),
			AddedAt:        formatTime(line.AddedAt),
		})
	}
	return items
}

func buildCartPayload(cart services.Cart) cartPayload {
	return cartPayload{
		ID:        strings.TrimSpace(cart.ID),
		Items:     buildCartLines(cart.Lines),
		ItemCount: cart.ItemCount,
		Subtotal:  money(cart.Subtotal),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
}

func buildTotalsPayload(totals domain.Totals) totalsPayload {
	return totalsPayload{
		Subtotal: money(totals.Subtotal),
		Shipping: money(totals.Shipping),
		Tax:      money(totals.Tax),
		Total:    money(totals.Total),
	}
}

func buildQuotePayload(quote services.Quote) quotePayload {
	return quotePayload{
		Country:        quote.Country,
		ShippingRegion: string(quote.ShippingRegion),
		TaxRegion:      string(quote.TaxRegion),
		FreeShipping:   quote.FreeShipping,
		Totals:         buildTotalsPayload(quote.Totals),
	}
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func buildShippingPayload(info domain.ShippingInfo) shippingPayload {
	return shippingPayload{
		FirstName: info.FirstName,
		LastName:  info.LastName,
		Email:     info.Email,
		Phone:     info.Phone,
		Address:   buildAddressPayload(info.Address),
	}
}

func buildBillingPayload(info domain.BillingInfo) billingPayload {
	payload := billingPayload{
		SameAsShipping: info.SameAsShipping,
		Name:           info.Name,
		Email:          info.Email,
	}
	if info.Address != (domain.Address{}) {
		addr := buildAddressPayload(info.Address)
		payload.Address = &addr
	}
	return payload
}

func buildPaymentMethodPayload(ref domain.PaymentMethodRef) paymentMethodPayload {
	return paymentMethodPayload{
		ID:       ref.ID,
		Provider: ref.Provider,
		Brand:    ref.Brand,
		Last4:    ref.Last4,
		ExpMonth: ref.ExpMonth,
		ExpYear:  ref.ExpYear,
	}
}

func buildCheckoutPayload(view services.CheckoutView) checkoutPayload {
	snap := view.Session
	session := checkoutSessionPayload{
		ID:             snap.ID,
		CurrentStep:    snap.CurrentStep.String(),
		StepNumber:     int(snap.CurrentStep),
		CompletedSteps: make([]string, 0, len(snap.CompletedSteps)),
		Notes:          snap.Notes,
		StartedAt:      formatTime(snap.StartedAt),
		UpdatedAt:      formatTime(snap.UpdatedAt),
	}
	for _, step := range snap.CompletedSteps {
		session.CompletedSteps = append(session.CompletedSteps, step.String())
	}
	if snap.Shipping != (domain.ShippingInfo{}) {
		shipping := buildShippingPayload(snap.Shipping)
		session.Shipping = &shipping
	}
	if snap.Billing != (domain.BillingInfo{}) {
		billing := buildBillingPayload(snap.Billing)
		session.Billing = &billing
	}
	if snap.PaymentMethod != nil {
		method := buildPaymentMethodPayload(*snap.PaymentMethod)
		session.PaymentMethod = &method
	}
	if len(snap.StepErrors) > 0 {
		session.StepErrors = make(map[string]string, len(snap.StepErrors))
		for step, msg := range snap.StepErrors {
			session.StepErrors[step.String()] = msg
		}
	}

	payload := checkoutPayload{
		Session: session,
		Cart:    buildCartPayload(view.Cart),
	}
	if view.Quote != nil {
		quote := buildQuotePayload(*view.Quote)
		payload.Quote = &quote
	}
	return payload
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		Number:        order.Number,
		Status:        string(order.Status),
		Items:         buildCartLines(order.Items),
		ItemCount:     order.ItemCount(),
		Shipping:      buildShippingPayload(order.Shipping),
		Billing:       buildBillingPayload(order.Billing),
		PaymentMethod: buildPaymentMethodPayload(order.PaymentMethod),
		Totals:        buildTotalsPayload(order.Totals),
		Currency:      order.Currency,
		Notes:         order.Notes,
		OrderDate:     formatTime(order.OrderDate),
	}
}

type addressRequest struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a addressRequest) toDomain() domain.Address {
	return domain.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
