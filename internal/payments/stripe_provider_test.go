package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v78"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

type stubStripeMethods struct {
	created []*stripe.PaymentMethodParams
	fetched []string
	pm      *stripe.PaymentMethod
	err     error
}

func (s *stubStripeMethods) New(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	s.created = append(s.created, params)
	return s.pm, s.err
}

func (s *stubStripeMethods) Get(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	s.fetched = append(s.fetched, id)
	return s.pm, s.err
}

func visaMethod() *stripe.PaymentMethod {
	return &stripe.PaymentMethod{
		ID:   "pm_123",
		Type: stripe.PaymentMethodTypeCard,
		Card: &stripe.PaymentMethodCard{Brand: stripe.PaymentMethodCardBrandVisa, Last4: "4242", ExpMonth: 8, ExpYear: 2030},
	}
}

func testBilling() domain.BillingInfo {
	return domain.BillingInfo{
		Name:  "Joan Jett",
		Email: "joan@example.com",
		Address: domain.Address{
			Line1:      "1 Rock Ave",
			City:       "Philadelphia",
			State:      "PA",
			PostalCode: "19104",
			Country:    "US",
		},
	}
}

func TestNewStripeProviderRequiresKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := NewStripeProvider(StripeProviderConfig{APIKey: "sk_test_123"}); err != nil {
		t.Fatalf("expected provider with api key: %v", err)
	}
}

func TestStripeProviderCreatesFromToken(t *testing.T) {
	api := &stubStripeMethods{pm: visaMethod()}
	var events []string
	provider, err := NewStripeProvider(StripeProviderConfig{
		AccountID:      "acct_1",
		paymentMethods: api,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	ref, err := provider.CreatePaymentMethod(context.Background(), domain.CardInput{Token: "tok_visa"}, testBilling())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := domain.PaymentMethodRef{ID: "pm_123", Provider: "stripe", Brand: "visa", Last4: "4242", ExpMonth: 8, ExpYear: 2030}
	if ref != want {
		t.Fatalf("expected %+v, got %+v", want, ref)
	}
	if len(api.created) != 1 {
		t.Fatalf("expected one create call")
	}
	params := api.created[0]
	if params.Card == nil || stripe.StringValue(params.Card.Token) != "tok_visa" {
		t.Fatalf("expected token forwarded, got %+v", params.Card)
	}
	if stripe.StringValue(params.BillingDetails.Name) != "Joan Jett" || stripe.StringValue(params.BillingDetails.Address.Country) != "US" {
		t.Fatalf("expected billing details forwarded")
	}
	if stripe.StringValue(params.StripeAccount) != "acct_1" {
		t.Fatalf("expected connected account header")
	}
	if len(events) != 1 || events[0] != "payments.stripe.payment_method.created" {
		t.Fatalf("unexpected log events %v", events)
	}
}

func TestStripeProviderLooksUpExistingMethod(t *testing.T) {
	api := &stubStripeMethods{pm: visaMethod()}
	provider, _ := NewStripeProvider(StripeProviderConfig{paymentMethods: api})
	if _, err := provider.CreatePaymentMethod(context.Background(), domain.CardInput{Token: "pm_123"}, testBilling()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(api.fetched) != 1 || api.fetched[0] != "pm_123" || len(api.created) != 0 {
		t.Fatalf("expected lookup instead of create, fetched=%v created=%d", api.fetched, len(api.created))
	}
}

func TestStripeProviderRawCards(t *testing.T) {
	api := &stubStripeMethods{pm: visaMethod()}
	provider, _ := NewStripeProvider(StripeProviderConfig{paymentMethods: api})
	card := domain.CardInput{Number: "4242 4242 4242 4242", ExpMonth: 8, ExpYear: 2030, CVC: "123"}

	_, err := provider.CreatePaymentMethod(context.Background(), card, testBilling())
	var decline *DeclineError
	if !errors.As(err, &decline) || decline.Code != "raw_card_data_unsupported" {
		t.Fatalf("expected raw cards refused, got %v", err)
	}

	provider, _ = NewStripeProvider(StripeProviderConfig{paymentMethods: api, AllowRawCards: true})
	if _, err := provider.CreatePaymentMethod(context.Background(), card, testBilling()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := stripe.StringValue(api.created[0].Card.Number); got != "4242424242424242" {
		t.Fatalf("expected spaces stripped, got %q", got)
	}

	if _, err := provider.CreatePaymentMethod(context.Background(), domain.CardInput{}, testBilling()); !errors.As(err, &decline) || decline.Code != "incomplete_number" {
		t.Fatalf("expected incomplete number, got %v", err)
	}
}

func TestStripeProviderDeclinePassesMessage(t *testing.T) {
	api := &stubStripeMethods{err: &stripe.Error{
		Type:           stripe.ErrorTypeCard,
		Code:           stripe.ErrorCodeCardDeclined,
		DeclineCode:    stripe.DeclineCodeInsufficientFunds,
		Msg:            "Your card has insufficient funds.",
		HTTPStatusCode: http.StatusPaymentRequired,
	}}
	provider, _ := NewStripeProvider(StripeProviderConfig{paymentMethods: api})

	_, err := provider.CreatePaymentMethod(context.Background(), domain.CardInput{Token: "tok_chargeDeclined"}, testBilling())
	if err == nil || err.Error() != "Your card has insufficient funds." {
		t.Fatalf("expected verbatim decline message, got %v", err)
	}
	var decline *DeclineError
	if !errors.As(err, &decline) || decline.DeclineCode() != "insufficient_funds" {
		t.Fatalf("expected decline code, got %v", err)
	}
}

func TestStripeProviderTransportFailure(t *testing.T) {
	api := &stubStripeMethods{err: errors.New("dial tcp: connection refused")}
	provider, _ := NewStripeProvider(StripeProviderConfig{paymentMethods: api})

	_, err := provider.CreatePaymentMethod(context.Background(), domain.CardInput{Token: "tok_visa"}, testBilling())
	var decline *DeclineError
	if !errors.As(err, &decline) || decline.Code != "provider_unavailable" || err.Error() != stripeUnavailableMessage {
		t.Fatalf("expected unavailable decline, got %v", err)
	}
}
