package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/firestore"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

const defaultCountersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	MaxValue     *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// SequenceStore implements repositories.SequenceStore backed by Firestore transactions.
type SequenceStore struct {
	provider   *pfirestore.Provider
	collection string
	now        func() time.Time
}

var _ repositories.SequenceStore = (*SequenceStore)(nil)

// NewSequenceStore constructs a Firestore-backed sequence store.
func NewSequenceStore(provider *pfirestore.Provider) (*SequenceStore, error) {
	if provider == nil {
		return nil, errors.New("sequence store requires firestore provider")
	}
	collection := strings.TrimSpace(provider.Config().CountersCollection)
	if collection == "" {
		collection = defaultCountersCollection
	}
	return &SequenceStore{
		provider:   provider,
		collection: collection,
		now:        time.Now,
	}, nil
}

// Next atomically increments the counter for scope and returns the new value.
func (s *SequenceStore) Next(ctx context.Context, scope string) (int64, error) {
	if s == nil || s.provider == nil {
		return 0, errors.New("sequence store not initialised")
	}
	id := strings.TrimSpace(scope)
	if id == "" {
		return 0, repositories.NewSequenceError(repositories.SequenceErrorInvalidInput, "sequence scope is required", nil)
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	ref := client.Collection(s.collection).Doc(slotDocumentID(id))
	now := s.now().UTC()

	var nextValue int64
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			doc := counterDocument{CurrentValue: 1, UpdatedAt: now}
			if err := tx.Create(ref, doc); err != nil {
				return err
			}
			nextValue = doc.CurrentValue
			return nil
		case codes.OK:
		default:
			return err
		}

		var doc counterDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore counters decode %s: %w", id, err)
		}
		newValue := doc.CurrentValue + 1
		if doc.MaxValue != nil && newValue > *doc.MaxValue {
			return repositories.NewSequenceError(repositories.SequenceErrorExhausted, fmt.Sprintf("sequence %s exceeded max value %d", id, *doc.MaxValue), nil)
		}
		doc.CurrentValue = newValue
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc, firestore.MergeAll); err != nil {
			return err
		}
		nextValue = newValue
		return nil
	})
	if err != nil {
		var seqErr *repositories.SequenceError
		if errors.As(err, &seqErr) {
			seqErr.Op = "firestore.sequences.next"
			return 0, seqErr
		}
		return 0, pfirestore.WrapError("firestore.sequences.next", id, err)
	}
	return nextValue, nil
}

// Cap sets an upper bound for scope. Next fails with SequenceErrorExhausted
// once the bound is reached.
func (s *SequenceStore) Cap(ctx context.Context, scope string, max int64) error {
	if s == nil || s.provider == nil {
		return errors.New("sequence store not initialised")
	}
	id := strings.TrimSpace(scope)
	if id == "" || max <= 0 {
		return repositories.NewSequenceError(repositories.SequenceErrorInvalidInput, "sequence scope and positive max are required", nil)
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"maxValue":  max,
		"updatedAt": s.now().UTC(),
	}
	if _, err := client.Collection(s.collection).Doc(slotDocumentID(id)).Set(ctx, payload, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("firestore.sequences.cap", id, err)
	}
	return nil
}
