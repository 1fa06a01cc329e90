package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

func TestFakeProvider(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	provider := NewFakeProvider(func() time.Time { return now })
	ctx := context.Background()

	valid := domain.CardInput{Number: "4242 4242 4242 4242", ExpMonth: 12, ExpYear: 2027, CVC: "123"}
	ref, err := provider.CreatePaymentMethod(ctx, valid, domain.BillingInfo{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(ref.ID, "pm_fake_") || ref.Brand != "visa" || ref.Last4 != "4242" || ref.Provider != "fake" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	again, _ := provider.CreatePaymentMethod(ctx, valid, domain.BillingInfo{})
	if again.ID == ref.ID {
		t.Fatalf("expected unique payment method ids")
	}

	cases := []struct {
		name string
		card domain.CardInput
		code string
		msg  string
	}{
		{"declined", domain.CardInput{Number: "4000000000000002", ExpMonth: 12, ExpYear: 2027, CVC: "123"}, "card_declined", "Your card was declined."},
		{"declined token", domain.CardInput{Token: "tok_chargeDeclined"}, "card_declined", "Your card was declined."},
		{"luhn", domain.CardInput{Number: "4242424242424241", ExpMonth: 12, ExpYear: 2027, CVC: "123"}, "invalid_number", "Your card number is invalid."},
		{"expired", domain.CardInput{Number: "4242424242424242", ExpMonth: 5, ExpYear: 2025, CVC: "123"}, "invalid_expiry_year", "Your card's expiration year is in the past."},
		{"month", domain.CardInput{Number: "4242424242424242", ExpMonth: 13, ExpYear: 2027, CVC: "123"}, "invalid_expiry_month", "Your card's expiration month is invalid."},
		{"cvc", domain.CardInput{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2027, CVC: "1"}, "incomplete_cvc", "Your card's security code is incomplete."},
	}
	for _, tc := range cases {
		_, err := provider.CreatePaymentMethod(ctx, tc.card, domain.BillingInfo{})
		var decline *DeclineError
		if !errors.As(err, &decline) {
			t.Fatalf("%s: expected decline, got %v", tc.name, err)
		}
		if decline.Code != tc.code || err.Error() != tc.msg {
			t.Fatalf("%s: expected %s %q, got %s %q", tc.name, tc.code, tc.msg, decline.Code, err.Error())
		}
	}

	ref, err = provider.CreatePaymentMethod(ctx, domain.CardInput{Token: "tok_mastercard"}, domain.BillingInfo{})
	if err != nil || ref.Brand != "mastercard" || ref.Last4 != "4444" {
		t.Fatalf("expected mastercard token, got %+v err=%v", ref, err)
	}
}

func TestLuhnValid(t *testing.T) {
	for number, want := range map[string]bool{
		"4242424242424242": true,
		"378282246310005":  true,
		"4242424242424241": false,
		"4242-4242":        false,
	} {
		if got := luhnValid(number); got != want {
			t.Errorf("luhnValid(%q) = %v, want %v", number, got, want)
		}
	}
}
