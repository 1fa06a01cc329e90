package redis

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

// SlotStore implements repositories.SlotStore with plain string keys.
type SlotStore struct {
	client redis.UniversalClient
	prefix string
}

var _ repositories.SlotStore = (*SlotStore)(nil)

// NewSlotStore constructs a redis-backed slot store. Every key is stored
// under prefix.
func NewSlotStore(client redis.UniversalClient, prefix string) (*SlotStore, error) {
	if client == nil {
		return nil, errors.New("slot store requires redis client")
	}
	return &SlotStore{client: client, prefix: prefix}, nil
}

// Get returns the stored bytes for key.
func (s *SlotStore) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey, err := s.key(key)
	if err != nil {
		return nil, err
	}
	value, err := s.client.Get(ctx, fullKey).Bytes()
	if err != nil {
		return nil, wrapError("redis.slots.get", key, err)
	}
	return value, nil
}

// Set overwrites the value for key without expiry.
func (s *SlotStore) Set(ctx context.Context, key string, value []byte) error {
	fullKey, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, fullKey, value, 0).Err(); err != nil {
		return wrapError("redis.slots.set", key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *SlotStore) Ping(ctx context.Context) error {
	return wrapError("redis.ping", "", s.client.Ping(ctx).Err())
}

func (s *SlotStore) key(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("redis slots: key is required")
	}
	return s.prefix + key, nil
}

// SequenceStore implements repositories.SequenceStore with INCR.
type SequenceStore struct {
	client redis.UniversalClient
	prefix string
}

var _ repositories.SequenceStore = (*SequenceStore)(nil)

// NewSequenceStore constructs a redis-backed sequence store.
func NewSequenceStore(client redis.UniversalClient, prefix string) (*SequenceStore, error) {
	if client == nil {
		return nil, errors.New("sequence store requires redis client")
	}
	return &SequenceStore{client: client, prefix: prefix}, nil
}

// Next increments the counter for scope.
func (s *SequenceStore) Next(ctx context.Context, scope string) (int64, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return 0, repositories.NewSequenceError(repositories.SequenceErrorInvalidInput, "sequence scope is required", nil)
	}
	value, err := s.client.Incr(ctx, s.prefix+"seq:"+scope).Result()
	if err != nil {
		return 0, wrapError("redis.sequences.next", scope, err)
	}
	return value, nil
}

func wrapError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, redis.Nil) {
		return repositories.NewNotFoundError(op, key)
	}
	var netErr net.Error
	if errors.Is(err, redis.ErrClosed) || errors.As(err, &netErr) {
		return repositories.NewUnavailableError(op, key, err)
	}
	return &repositories.StoreError{Op: op, Key: key, Err: err}
}
