package services

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

const (
	defaultOrderCurrency  = "USD"
	orderNumberAttempts   = 2
	orderFailurePersist   = "persist"
	orderFailureNumbering = "numbering"
	orderFailureCartClear = "cart_clear"
)

// OrderRecorderDeps bundles the collaborators required to record orders.
type OrderRecorderDeps struct {
	Store         repositories.SlotStore
	Numbers       OrderNumberGenerator
	Confirmations ConfirmationSink
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
	Metrics       CheckoutMetrics
	Currency      string
}

// OrderRecorder turns a confirmed checkout into a persisted order.
type OrderRecorder struct {
	store         repositories.SlotStore
	numbers       OrderNumberGenerator
	confirmations ConfirmationSink
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
	metrics       CheckoutMetrics
	currency      string
	notesPolicy   *bluemonday.Policy
}

var (
	errOrderStoreRequired   = errors.New("order recorder: slot store is required")
	errOrderNumbersRequired = errors.New("order recorder: order number generator is required")
)

// NewOrderRecorder constructs a recorder.
func NewOrderRecorder(deps OrderRecorderDeps) (*OrderRecorder, error) {
	if deps.Store == nil {
		return nil, errOrderStoreRequired
	}
	if deps.Numbers == nil {
		return nil, errOrderNumbersRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	confirmations := deps.Confirmations
	if confirmations == nil {
		confirmations = noopConfirmationSink{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopCheckoutMetrics{}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}
	return &OrderRecorder{
		store:         deps.Store,
		numbers:       deps.Numbers,
		confirmations: confirmations,
		now:           func() time.Time { return clock().UTC() },
		logger:        logger,
		metrics:       metrics,
		currency:      currency,
		notesPolicy:   bluemonday.StrictPolicy(),
	}, nil
}

// Finalize records the order for a session on the confirm step. The archive
// write is the commit point: if it fails the cart and session are left as
// they were and the returned PersistenceError is retryable. After it
// succeeds the last-order slot is updated, the cart is cleared and the order
// is emitted once. Failures there are logged and do not undo the order. A
// cart whose clear did not persist is emptied the next time it is opened,
// as long as the last-order slot was written.
func (r *OrderRecorder) Finalize(ctx context.Context, ledger *CartLedger, session *CheckoutSession, totals domain.Totals) (domain.Order, error) {
	if ledger == nil || session == nil {
		return domain.Order{}, ErrOrderInvalidInput
	}
	if !session.ReadyToConfirm() {
		return domain.Order{}, ErrCheckoutNotReady
	}
	lines := ledger.Lines()
	if len(lines) == 0 {
		return domain.Order{}, ErrOrderEmptyCart
	}
	if !subtotalOf(lines).Round(2).Equal(totals.Subtotal.Round(2)) {
		return domain.Order{}, ErrOrderTotalsMismatch
	}

	snapshot := session.Snapshot()
	customerID := ledger.ID()

	number, err := r.allocateNumber(ctx)
	if err != nil {
		r.metrics.OrderFailed(orderFailureNumbering)
		return domain.Order{}, err
	}

	order := domain.Order{
		Number:        number,
		CustomerID:    customerID,
		Items:         lines,
		Shipping:      snapshot.Shipping,
		Billing:       snapshot.Billing,
		PaymentMethod: *snapshot.PaymentMethod,
		Totals:        totals,
		Currency:      r.currency,
		Notes:         r.sanitizeNotes(snapshot.Notes),
		OrderDate:     r.now(),
		Status:        domain.OrderStatusConfirmed,
	}

	raw, err := encodeOrder(order)
	if err != nil {
		return domain.Order{}, &PersistenceError{Op: "order.encode", Key: repositories.OrderSlot(number), Err: err}
	}
	if err := r.store.Set(ctx, repositories.OrderSlot(number), raw); err != nil {
		r.metrics.OrderFailed(orderFailurePersist)
		r.logger(ctx, "order.persist_failed", map[string]any{
			"orderNumber": number,
			"customerId":  customerID,
			"error":       err.Error(),
		})
		return domain.Order{}, &PersistenceError{Op: "order.persist", Key: repositories.OrderSlot(number), Retryable: true, Err: err}
	}

	lastRecorded := true
	if err := r.store.Set(ctx, repositories.LastOrderSlot(customerID), raw); err != nil {
		lastRecorded = false
		r.logger(ctx, "order.last_order_failed", map[string]any{
			"orderNumber": number,
			"customerId":  customerID,
			"error":       err.Error(),
		})
	}

	if err := ledger.Clear(ctx); err != nil {
		r.metrics.OrderFailed(orderFailureCartClear)
		r.logger(ctx, "order.cart_clear_failed", map[string]any{
			"orderNumber":  number,
			"customerId":   customerID,
			"reconcilable": lastRecorded,
			"error":        err.Error(),
		})
	}

	if err := r.confirmations.OrderConfirmed(ctx, order); err != nil {
		r.logger(ctx, "order.confirmation_failed", map[string]any{
			"orderNumber": number,
			"error":       err.Error(),
		})
	}

	r.metrics.OrderFinalized(decimalFloat(order.Totals.Total))
	r.logger(ctx, "order.finalized", map[string]any{
		"orderNumber": number,
		"customerId":  customerID,
		"items":       order.ItemCount(),
		"total":       order.Totals.Total.StringFixed(2),
		"currency":    order.Currency,
	})
	return order, nil
}

// Lookup reads an archived order by number.
func (r *OrderRecorder) Lookup(ctx context.Context, orderNumber string) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, ErrOrderInvalidInput
	}
	return r.read(ctx, repositories.OrderSlot(orderNumber))
}

// LastOrder reads the most recent order recorded for customerID.
func (r *OrderRecorder) LastOrder(ctx context.Context, customerID string) (domain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Order{}, ErrOrderInvalidInput
	}
	return r.read(ctx, repositories.LastOrderSlot(customerID))
}

// GetOrder returns an archived order owned by customerID. Orders belonging
// to other customers are reported as not found.
func (r *OrderRecorder) GetOrder(ctx context.Context, customerID string, orderNumber string) (domain.Order, error) {
	order, err := r.Lookup(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	if order.CustomerID != strings.TrimSpace(customerID) {
		return domain.Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (r *OrderRecorder) read(ctx context.Context, key string) (domain.Order, error) {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, &PersistenceError{Op: "order.read", Key: key, Retryable: repositories.IsUnavailable(err), Err: err}
	}
	order, err := decodeOrder(raw)
	if err != nil {
		r.logger(ctx, "order.snapshot_corrupt", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return domain.Order{}, &PersistenceError{Op: "order.decode", Key: key, Err: err}
	}
	return order, nil
}

// allocateNumber draws a number that is not yet archived, drawing again once
// on collision.
func (r *OrderRecorder) allocateNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := r.numbers.NextOrderNumber(ctx)
		if err != nil {
			return "", &PersistenceError{Op: "order.number", Retryable: true, Err: err}
		}
		_, err = r.store.Get(ctx, repositories.OrderSlot(number))
		switch {
		case repositories.IsNotFound(err):
			return number, nil
		case err != nil:
			return "", &PersistenceError{Op: "order.number", Key: repositories.OrderSlot(number), Retryable: true, Err: err}
		}
		r.logger(ctx, "order.number_collision", map[string]any{
			"orderNumber": number,
			"attempt":     attempt + 1,
		})
	}
	return "", ErrOrderNumberExhausted
}

func (r *OrderRecorder) sanitizeNotes(notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(r.notesPolicy.Sanitize(notes)))
}
