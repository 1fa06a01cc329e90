package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

// CartMetrics receives cart persistence signals.
type CartMetrics interface {
	CartPersistFailed()
	CartSnapshotCorrupt()
}

// CartLedgerDeps configures a ledger.
type CartLedgerDeps struct {
	Store   repositories.SlotStore
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
	Metrics CartMetrics
}

var errCartLedgerStoreRequired = errors.New("cart ledger: slot store is required")

// CartLedger holds one customer's cart lines. Lines are kept in insertion
// order with at most one line per product, and every mutation is written
// through to the cart slot.
type CartLedger struct {
	id      string
	key     string
	store   repositories.SlotStore
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
	metrics CartMetrics

	mu        sync.Mutex
	lines     []domain.CartLine
	updatedAt time.Time
}

// OpenCartLedger restores the ledger for customerID from its slot. A missing
// slot yields an empty cart. An unreadable or corrupt snapshot is logged and
// also yields an empty cart.
func OpenCartLedger(ctx context.Context, deps CartLedgerDeps, customerID string) (*CartLedger, error) {
	if deps.Store == nil {
		return nil, errCartLedgerStoreRequired
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ErrCartInvalidInput
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	ledger := &CartLedger{
		id:      customerID,
		key:     repositories.CartSlot(customerID),
		store:   deps.Store,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
		metrics: deps.Metrics,
	}
	ledger.restore(ctx)
	return ledger, nil
}

func (l *CartLedger) restore(ctx context.Context) {
	raw, err := l.store.Get(ctx, l.key)
	if err != nil {
		if !repositories.IsNotFound(err) {
			l.logger(ctx, "cart.load_failed", map[string]any{
				"cartId": l.id,
				"error":  err.Error(),
			})
		}
		return
	}
	snap, lines, err := decodeCartSnapshot(raw)
	if err != nil {
		if l.metrics != nil {
			l.metrics.CartSnapshotCorrupt()
		}
		l.logger(ctx, "cart.snapshot_corrupt", map[string]any{
			"cartId": l.id,
			"error":  err.Error(),
		})
		return
	}
	if len(lines) > 0 && l.consumedByLastOrder(ctx, snap.UpdatedAt, lines) {
		l.logger(ctx, "cart.cleared_after_order", map[string]any{
			"cartId": l.id,
			"lines":  len(lines),
		})
		l.lines = nil
		_ = l.persistLocked(ctx, l.now())
		return
	}
	l.lines = lines
	l.updatedAt = snap.UpdatedAt.UTC()
}

// consumedByLastOrder reports whether the stored lines are the ones the
// customer's last order was placed with and the cart has not been touched
// since. That state only exists when the clear after an order did not reach
// the store.
func (l *CartLedger) consumedByLastOrder(ctx context.Context, updatedAt time.Time, lines []domain.CartLine) bool {
	raw, err := l.store.Get(ctx, repositories.LastOrderSlot(l.id))
	if err != nil {
		return false
	}
	order, err := decodeOrder(raw)
	if err != nil || updatedAt.After(order.OrderDate) {
		return false
	}
	return sameQuantities(lines, order.Items)
}

func sameQuantities(a, b []domain.CartLine) bool {
	if len(a) != len(b) {
		return false
	}
	want := make(map[string]int, len(b))
	for _, line := range b {
		want[line.ProductID] = line.Quantity
	}
	for _, line := range a {
		if qty, ok := want[line.ProductID]; !ok || qty != line.Quantity {
			return false
		}
	}
	return true
}

// ID returns the customer the ledger belongs to.
func (l *CartLedger) ID() string {
	return l.id
}

// AddItem adds quantity units of product, merging into an existing line for
// the same product. The first line's captured name and price are kept.
func (l *CartLedger) AddItem(ctx context.Context, product domain.Product, quantity int) error {
	productID := strings.TrimSpace(product.ID)
	if productID == "" || quantity < 1 || product.UnitPrice.IsNegative() {
		return ErrCartInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if idx := l.indexOf(productID); idx >= 0 {
		if l.lines[idx].Quantity > math.MaxInt-quantity {
			return ErrCartInvalidInput
		}
		l.lines[idx].Quantity += quantity
	} else {
		l.lines = append(l.lines, domain.CartLine{
			ProductID:      productID,
			Name:           strings.TrimSpace(product.Name),
			UnitPrice:      product.UnitPrice,
			Quantity:       quantity,
			Category:       strings.TrimSpace(product.Category),
			LimitedEdition: product.LimitedEdition,
			AddedAt:        now,
		})
	}
	return l.persistLocked(ctx, now)
}

// RemoveItem drops the line for productID. Unknown products are a no-op.
func (l *CartLedger) RemoveItem(ctx context.Context, productID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(strings.TrimSpace(productID))
	if idx < 0 {
		return nil
	}
	l.lines = append(l.lines[:idx], l.lines[idx+1:]...)
	return l.persistLocked(ctx, l.now())
}

// SetQuantity replaces the quantity of an existing line. A quantity of zero or
// less removes the line; unknown products are a no-op.
func (l *CartLedger) SetQuantity(ctx context.Context, productID string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(strings.TrimSpace(productID))
	if idx < 0 {
		return nil
	}
	if quantity <= 0 {
		l.lines = append(l.lines[:idx], l.lines[idx+1:]...)
	} else {
		l.lines[idx].Quantity = quantity
	}
	return l.persistLocked(ctx, l.now())
}

// Clear empties the cart.
func (l *CartLedger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = nil
	return l.persistLocked(ctx, l.now())
}

// Subtotal sums line totals without intermediate rounding.
func (l *CartLedger) Subtotal() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return subtotalOf(l.lines)
}

// ItemCount sums quantities across lines.
func (l *CartLedger) ItemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return itemCountOf(l.lines)
}

// IsEmpty reports whether the cart has no lines.
func (l *CartLedger) IsEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines) == 0
}

// Lines returns a copy of the cart lines in insertion order.
func (l *CartLedger) Lines() []domain.CartLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.CartLine(nil), l.lines...)
}

// Snapshot returns a point-in-time view of the cart.
func (l *CartLedger) Snapshot() domain.Cart {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Cart{
		ID:        l.id,
		Lines:     append([]domain.CartLine(nil), l.lines...),
		Subtotal:  subtotalOf(l.lines),
		ItemCount: itemCountOf(l.lines),
		UpdatedAt: l.updatedAt,
	}
}

func (l *CartLedger) indexOf(productID string) int {
	if productID == "" {
		return -1
	}
	for idx := range l.lines {
		if l.lines[idx].ProductID == productID {
			return idx
		}
	}
	return -1
}

// persistLocked writes the snapshot, retrying once when the backend reports
// a transient failure. The in-memory mutation stands either way.
func (l *CartLedger) persistLocked(ctx context.Context, now time.Time) error {
	l.updatedAt = now
	raw, err := encodeCartSnapshot(l.id, l.lines, now)
	if err != nil {
		return &PersistenceError{Op: "cart.encode", Key: l.key, Err: err}
	}

	err = l.store.Set(ctx, l.key, raw)
	if err != nil && repositories.IsUnavailable(err) && ctx.Err() == nil {
		err = l.store.Set(ctx, l.key, raw)
	}
	if err == nil {
		return nil
	}

	if l.metrics != nil {
		l.metrics.CartPersistFailed()
	}
	l.logger(ctx, "cart.persist_failed", map[string]any{
		"cartId": l.id,
		"lines":  len(l.lines),
		"error":  err.Error(),
	})
	return &PersistenceError{Op: "cart.persist", Key: l.key, Retryable: true, Err: err}
}

func subtotalOf(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

func itemCountOf(lines []domain.CartLine) int {
	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return count
}
