package repositories

import (
	"context"

	domain "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

// SlotStore persists opaque snapshots under string keys. Get returns an error
// satisfying RepositoryError.IsNotFound when the key has never been written.
type SlotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// SequenceStore hands out monotonically increasing values per scope.
type SequenceStore interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// Slot key helpers shared by every backend so data stays portable between them.
const (
	cartSlotPrefix      = "cart:"
	lastOrderSlotPrefix = "last-order:"
	orderSlotPrefix     = "order:"
	rateSettingsSlot    = "settings:rates"
)

// CartSlot returns the key holding the cart snapshot for a customer.
func CartSlot(customerID string) string { return cartSlotPrefix + customerID }

// LastOrderSlot returns the key holding the most recent order for a customer.
func LastOrderSlot(customerID string) string { return lastOrderSlotPrefix + customerID }

// OrderSlot returns the archive key for an order number.
func OrderSlot(orderNumber string) string { return orderSlotPrefix + orderNumber }

// RateSettingsSlot returns the key holding the admin rate settings blob.
func RateSettingsSlot() string { return rateSettingsSlot }
