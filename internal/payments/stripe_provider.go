package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

const stripeUnavailableMessage = "We could not reach the payment provider. Please try again."

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentMethodAPI interface {
	New(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
	Get(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	// AllowRawCards permits card numbers instead of client-side tokens.
	// Only enable against Stripe test mode.
	AllowRawCards bool

	paymentMethods stripePaymentMethodAPI
}

// StripeProvider creates card payment methods through the Stripe API.
type StripeProvider struct {
	api           stripePaymentMethodAPI
	account       string
	allowRawCards bool
	logger        StripeLogger
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.paymentMethods == nil {
		return nil, errors.New("stripe: api key is required")
	}

	api := cfg.paymentMethods
	if api == nil {
		sc := client.New(apiKey, cfg.Backends)
		api = sc.PaymentMethods
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           api,
		account:       strings.TrimSpace(cfg.AccountID),
		allowRawCards: cfg.AllowRawCards,
		logger:        logger,
	}, nil
}

// CreatePaymentMethod exchanges card input for a Stripe payment method. An
// existing "pm_" token is looked up instead of created.
func (p *StripeProvider) CreatePaymentMethod(ctx context.Context, card domain.CardInput, billing domain.BillingInfo) (domain.PaymentMethodRef, error) {
	if p == nil {
		return domain.PaymentMethodRef{}, errors.New("stripe: provider is nil")
	}

	token := strings.TrimSpace(card.Token)
	var (
		pm  *stripe.PaymentMethod
		err error
	)
	switch {
	case strings.HasPrefix(token, "pm_"):
		params := &stripe.PaymentMethodParams{}
		params.Context = ctx
		if p.account != "" {
			params.SetStripeAccount(p.account)
		}
		pm, err = p.api.Get(token, params)
	case token != "":
		params := p.newParams(ctx, billing)
		params.Card = &stripe.PaymentMethodCardParams{Token: stripe.String(token)}
		pm, err = p.api.New(params)
	case strings.TrimSpace(card.Number) != "":
		if !p.allowRawCards {
			return domain.PaymentMethodRef{}, &DeclineError{Message: "Card details must be tokenized before submission.", Code: "raw_card_data_unsupported"}
		}
		params := p.newParams(ctx, billing)
		params.Card = &stripe.PaymentMethodCardParams{
			Number:   stripe.String(strings.ReplaceAll(card.Number, " ", "")),
			ExpMonth: stripe.Int64(int64(card.ExpMonth)),
			ExpYear:  stripe.Int64(int64(card.ExpYear)),
			CVC:      stripe.String(strings.TrimSpace(card.CVC)),
		}
		pm, err = p.api.New(params)
	default:
		return domain.PaymentMethodRef{}, &DeclineError{Message: "Your card number is incomplete.", Code: "incomplete_number"}
	}
	if err != nil {
		return domain.PaymentMethodRef{}, p.declineFromStripe(ctx, err)
	}
	if pm == nil {
		return domain.PaymentMethodRef{}, &DeclineError{Message: stripeUnavailableMessage, Code: "empty_response"}
	}

	ref := domain.PaymentMethodRef{ID: pm.ID, Provider: "stripe"}
	if pm.Type == stripe.PaymentMethodTypeCard && pm.Card != nil {
		ref.Brand = strings.ToLower(string(pm.Card.Brand))
		ref.Last4 = strings.TrimSpace(pm.Card.Last4)
		ref.ExpMonth = int(pm.Card.ExpMonth)
		ref.ExpYear = int(pm.Card.ExpYear)
	}
	p.logger(ctx, "payments.stripe.payment_method.created", map[string]any{
		"paymentMethod": ref.ID,
		"brand":         ref.Brand,
	})
	return ref, nil
}

func (p *StripeProvider) newParams(ctx context.Context, billing domain.BillingInfo) *stripe.PaymentMethodParams {
	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		BillingDetails: &stripe.PaymentMethodBillingDetailsParams{
			Address: &stripe.AddressParams{
				Line1:      stripe.String(billing.Address.Line1),
				City:       stripe.String(billing.Address.City),
				PostalCode: stripe.String(billing.Address.PostalCode),
				Country:    stripe.String(billing.Address.Country),
			},
		},
	}
	if billing.Address.Line2 != "" {
		params.BillingDetails.Address.Line2 = stripe.String(billing.Address.Line2)
	}
	if billing.Address.State != "" {
		params.BillingDetails.Address.State = stripe.String(billing.Address.State)
	}
	if billing.Name != "" {
		params.BillingDetails.Name = stripe.String(billing.Name)
	}
	if billing.Email != "" {
		params.BillingDetails.Email = stripe.String(billing.Email)
	}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	return params
}

func (p *StripeProvider) declineFromStripe(ctx context.Context, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		p.logger(ctx, "payments.stripe.unavailable", map[string]any{"error": err.Error()})
		return &DeclineError{Message: stripeUnavailableMessage, Code: "provider_unavailable", Err: err}
	}
	code := string(stripeErr.DeclineCode)
	if code == "" {
		code = string(stripeErr.Code)
	}
	p.logger(ctx, "payments.stripe.declined", map[string]any{
		"code":   code,
		"type":   string(stripeErr.Type),
		"status": stripeErr.HTTPStatusCode,
	})
	message := strings.TrimSpace(stripeErr.Msg)
	if stripeErr.Type == stripe.ErrorTypeAPI || stripeErr.Type == stripe.ErrorTypeIdempotency || message == "" {
		message = stripeUnavailableMessage
	}
	return &DeclineError{Message: message, Code: code, Err: err}
}
