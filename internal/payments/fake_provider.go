package payments

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

// Test card numbers recognised by FakeProvider, mirroring the well-known
// Stripe test suffixes.
var fakeDeclines = map[string]*DeclineError{
	"0002": {Message: "Your card was declined.", Code: "card_declined"},
	"9995": {Message: "Your card has insufficient funds.", Code: "insufficient_funds"},
	"0069": {Message: "Your card has expired.", Code: "expired_card"},
	"0127": {Message: "Your card's security code is incorrect.", Code: "incorrect_cvc"},
}

// FakeProvider approves well-formed cards without calling out. It backs local
// development and demos.
type FakeProvider struct {
	clock func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ Provider = (*FakeProvider)(nil)

// NewFakeProvider constructs a FakeProvider. A nil clock uses time.Now.
func NewFakeProvider(clock func() time.Time) *FakeProvider {
	if clock == nil {
		clock = time.Now
	}
	return &FakeProvider{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// CreatePaymentMethod validates the card and returns a "pm_fake_" reference.
func (f *FakeProvider) CreatePaymentMethod(ctx context.Context, card domain.CardInput, _ domain.BillingInfo) (domain.PaymentMethodRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.PaymentMethodRef{}, err
	}

	number := strings.ReplaceAll(strings.TrimSpace(card.Number), " ", "")
	if token := strings.TrimSpace(card.Token); token != "" && number == "" {
		number = fakeNumberForToken(token)
	}
	if len(number) < 12 || !luhnValid(number) {
		return domain.PaymentMethodRef{}, &DeclineError{Message: "Your card number is invalid.", Code: "invalid_number"}
	}
	if decline, ok := fakeDeclines[number[len(number)-4:]]; ok {
		return domain.PaymentMethodRef{}, &DeclineError{Message: decline.Message, Code: decline.Code}
	}

	now := f.clock().UTC()
	expMonth, expYear := card.ExpMonth, card.ExpYear
	if card.Token == "" {
		if expMonth < 1 || expMonth > 12 {
			return domain.PaymentMethodRef{}, &DeclineError{Message: "Your card's expiration month is invalid.", Code: "invalid_expiry_month"}
		}
		if expYear < now.Year() || (expYear == now.Year() && expMonth < int(now.Month())) {
			return domain.PaymentMethodRef{}, &DeclineError{Message: "Your card's expiration year is in the past.", Code: "invalid_expiry_year"}
		}
		if cvc := strings.TrimSpace(card.CVC); len(cvc) < 3 || len(cvc) > 4 {
			return domain.PaymentMethodRef{}, &DeclineError{Message: "Your card's security code is incomplete.", Code: "incomplete_cvc"}
		}
	} else {
		expMonth, expYear = 12, now.Year()+3
	}

	f.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), f.entropy)
	f.mu.Unlock()
	if err != nil {
		return domain.PaymentMethodRef{}, err
	}

	return domain.PaymentMethodRef{
		ID:       "pm_fake_" + strings.ToLower(id.String()),
		Provider: "fake",
		Brand:    cardBrand(number),
		Last4:    number[len(number)-4:],
		ExpMonth: expMonth,
		ExpYear:  expYear,
	}, nil
}

// fakeNumberForToken maps Stripe style test tokens to test card numbers.
func fakeNumberForToken(token string) string {
	switch token {
	case "tok_chargeDeclined":
		return "4000000000000002"
	case "tok_chargeDeclinedInsufficientFunds":
		return "4000000000009995"
	case "tok_chargeDeclinedExpiredCard":
		return "4000000000000069"
	case "tok_mastercard":
		return "5555555555554444"
	case "tok_amex":
		return "378282246310005"
	default:
		return "4242424242424242"
	}
}

func cardBrand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return "amex"
	case len(number) >= 2 && number[0] == '5' && number[1] >= '1' && number[1] <= '5':
		return "mastercard"
	case strings.HasPrefix(number, "2"):
		return "mastercard"
	case strings.HasPrefix(number, "6011"), strings.HasPrefix(number, "65"):
		return "discover"
	default:
		return "unknown"
	}
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
