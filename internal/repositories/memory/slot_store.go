package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

// SlotStore keeps snapshots in process memory. It backs local development and tests.
type SlotStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

var _ repositories.SlotStore = (*SlotStore)(nil)

// NewSlotStore constructs an empty in-memory slot store.
func NewSlotStore() *SlotStore {
	return &SlotStore{slots: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (s *SlotStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("memory slots: key is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.slots[key]
	if !ok {
		return nil, repositories.NewNotFoundError("memory.slots.get", key)
	}
	return append([]byte(nil), value...), nil
}

// Set overwrites the value stored under key.
func (s *SlotStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("memory slots: key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = append([]byte(nil), value...)
	return nil
}

// Ping always succeeds.
func (s *SlotStore) Ping(context.Context) error { return nil }

// SequenceStore hands out per-scope counters from memory.
type SequenceStore struct {
	mu     sync.Mutex
	values map[string]int64
}

var _ repositories.SequenceStore = (*SequenceStore)(nil)

// NewSequenceStore constructs an empty in-memory sequence store.
func NewSequenceStore() *SequenceStore {
	return &SequenceStore{values: make(map[string]int64)}
}

// Next increments and returns the counter for scope.
func (s *SequenceStore) Next(ctx context.Context, scope string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return 0, repositories.NewSequenceError(repositories.SequenceErrorInvalidInput, "sequence scope is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[scope]++
	return s.values[scope], nil
}
