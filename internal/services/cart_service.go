package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

// CartServiceDeps bundles the collaborators required to construct a cart service.
type CartServiceDeps struct {
	Store   repositories.SlotStore
	Pricing *PricingEngine
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
	Metrics CartMetrics
}

type cartService struct {
	ledgerDeps CartLedgerDeps
	pricing    *PricingEngine
	locks      *keyedMutex
}

var (
	errCartStoreRequired   = errors.New("cart service: slot store is required")
	errCartPricingRequired = errors.New("cart service: pricing engine is required")
)

// NewCartService constructs a cart service backed by the slot store.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Store == nil {
		return nil, errCartStoreRequired
	}
	if deps.Pricing == nil {
		return nil, errCartPricingRequired
	}
	return &cartService{
		ledgerDeps: CartLedgerDeps{
			Store:   deps.Store,
			Clock:   deps.Clock,
			Logger:  deps.Logger,
			Metrics: deps.Metrics,
		},
		pricing: deps.Pricing,
		locks:   newKeyedMutex(),
	}, nil
}

func (s *cartService) WithLedger(ctx context.Context, customerID string, fn func(*CartLedger) error) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return ErrCartInvalidInput
	}
	if fn == nil {
		return ErrCartInvalidInput
	}
	unlock := s.locks.Lock(customerID)
	defer unlock()

	ledger, err := OpenCartLedger(ctx, s.ledgerDeps, customerID)
	if err != nil {
		return err
	}
	return fn(ledger)
}

func (s *cartService) GetCart(ctx context.Context, customerID string) (Cart, error) {
	var cart Cart
	err := s.WithLedger(ctx, customerID, func(ledger *CartLedger) error {
		cart = ledger.Snapshot()
		return nil
	})
	return cart, err
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	product := cmd.Product
	product.ID = strings.TrimSpace(product.ID)
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" || product.Name == "" || cmd.Quantity < 1 || product.UnitPrice.IsNegative() {
		return Cart{}, ErrCartInvalidInput
	}
	return s.mutate(ctx, cmd.CustomerID, func(ledger *CartLedger) error {
		return ledger.AddItem(ctx, product, cmd.Quantity)
	})
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	if strings.TrimSpace(cmd.ProductID) == "" || cmd.Quantity < 0 {
		return Cart{}, ErrCartInvalidInput
	}
	return s.mutate(ctx, cmd.CustomerID, func(ledger *CartLedger) error {
		return ledger.SetQuantity(ctx, cmd.ProductID, cmd.Quantity)
	})
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if strings.TrimSpace(cmd.ProductID) == "" {
		return Cart{}, ErrCartInvalidInput
	}
	return s.mutate(ctx, cmd.CustomerID, func(ledger *CartLedger) error {
		return ledger.RemoveItem(ctx, cmd.ProductID)
	})
}

func (s *cartService) ClearCart(ctx context.Context, customerID string) (Cart, error) {
	return s.mutate(ctx, customerID, func(ledger *CartLedger) error {
		return ledger.Clear(ctx)
	})
}

func (s *cartService) Estimate(ctx context.Context, cmd CartEstimateCommand) (CartEstimate, error) {
	country := NormalizeCountry(cmd.Country)
	if country == "" {
		return CartEstimate{}, ErrCartInvalidInput
	}
	cart, err := s.GetCart(ctx, cmd.CustomerID)
	if err != nil {
		return CartEstimate{}, err
	}
	quote := s.pricing.Quote(ctx, cart.Subtotal, Address{Country: country})
	return CartEstimate{Cart: cart, Quote: quote}, nil
}

// mutate returns the cart as it stands after fn, alongside any persistence
// error, so callers can still render the change.
func (s *cartService) mutate(ctx context.Context, customerID string, fn func(*CartLedger) error) (Cart, error) {
	var cart Cart
	err := s.WithLedger(ctx, customerID, func(ledger *CartLedger) error {
		mutErr := fn(ledger)
		cart = ledger.Snapshot()
		return mutErr
	})
	return cart, err
}

// keyedMutex serialises work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
