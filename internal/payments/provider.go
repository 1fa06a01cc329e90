package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// DeclineError reports a payment method the provider refused. Message is the
// provider's customer-facing text.
type DeclineError struct {
	Message string
	Code    string
	Err     error
}

func (e *DeclineError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) == "" {
		return "Your card could not be used."
	}
	return e.Message
}

func (e *DeclineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DeclineCode exposes the provider's machine readable reason.
func (e *DeclineError) DeclineCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// Provider turns card input into an opaque payment method reference.
type Provider interface {
	CreatePaymentMethod(ctx context.Context, card domain.CardInput, billing domain.BillingInfo) (domain.PaymentMethodRef, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	tokenRoutes     map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when no route matches.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithTokenRoutes maps card token prefixes (for example "pm_" or "fake_")
// to provider keys.
func WithTokenRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.tokenRoutes == nil {
			m.tokenRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.tokenRoutes[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolveProvider(card domain.CardInput) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if token := strings.TrimSpace(card.Token); token != "" {
		for prefix, providerKey := range m.tokenRoutes {
			if prefix == "" || !strings.HasPrefix(token, prefix) {
				continue
			}
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreatePaymentMethod delegates to the resolved provider and stamps the
// reference with the provider key.
func (m *Manager) CreatePaymentMethod(ctx context.Context, card domain.CardInput, billing domain.BillingInfo) (domain.PaymentMethodRef, error) {
	key, provider, err := m.resolveProvider(card)
	if err != nil {
		return domain.PaymentMethodRef{}, err
	}
	ref, err := provider.CreatePaymentMethod(ctx, card, billing)
	if err != nil {
		return domain.PaymentMethodRef{}, err
	}
	if ref.Provider == "" {
		ref.Provider = key
	}
	return ref, nil
}
