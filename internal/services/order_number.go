package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

const defaultOrderNumberPrefix = "BM"

// OrderNumberGenerator allocates human-readable order numbers.
type OrderNumberGenerator interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// TimeOrderNumbers formats numbers as PREFIX-YYYYMMDD-XXXXXXXXXX where the
// suffix is the low half of a monotonic ULID, so numbers issued by one
// process never repeat.
type TimeOrderNumbers struct {
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewTimeOrderNumbers constructs a generator. An empty prefix uses "BM".
func NewTimeOrderNumbers(prefix string, clock func() time.Time) *TimeOrderNumbers {
	if clock == nil {
		clock = time.Now
	}
	return &TimeOrderNumbers{
		prefix:  normalizeOrderPrefix(prefix),
		now:     func() time.Time { return clock().UTC() },
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *TimeOrderNumbers) NextOrderNumber(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	now := g.now()
	id, err := ulid.New(ulid.Timestamp(now), g.entropy)
	g.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("order number: %w", err)
	}
	encoded := id.String()
	return fmt.Sprintf("%s-%s-%s", g.prefix, now.Format("20060102"), encoded[len(encoded)-10:]), nil
}

var errOrderSequenceRequired = errors.New("order number: sequence store is required")

// SequenceOrderNumbers formats numbers as PREFIX-YYYY-NNNNNN from a per-year
// sequence.
type SequenceOrderNumbers struct {
	prefix string
	store  repositories.SequenceStore
	now    func() time.Time
}

// NewSequenceOrderNumbers constructs a sequence backed generator.
func NewSequenceOrderNumbers(prefix string, store repositories.SequenceStore, clock func() time.Time) (*SequenceOrderNumbers, error) {
	if store == nil {
		return nil, errOrderSequenceRequired
	}
	if clock == nil {
		clock = time.Now
	}
	return &SequenceOrderNumbers{
		prefix: normalizeOrderPrefix(prefix),
		store:  store,
		now:    func() time.Time { return clock().UTC() },
	}, nil
}

func (g *SequenceOrderNumbers) NextOrderNumber(ctx context.Context) (string, error) {
	year := g.now().Year()
	value, err := g.store.Next(ctx, fmt.Sprintf("orders:%d", year))
	if err != nil {
		return "", fmt.Errorf("order number: %w", err)
	}
	return fmt.Sprintf("%s-%04d-%06d", g.prefix, year, value), nil
}

func normalizeOrderPrefix(prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	prefix = strings.Trim(prefix, "-")
	if prefix == "" {
		return defaultOrderNumberPrefix
	}
	return prefix
}
