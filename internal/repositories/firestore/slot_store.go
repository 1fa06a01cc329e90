package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/firestore"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

const defaultSlotsCollection = "slots"

type slotDocument struct {
	Key       string    `firestore:"key"`
	Value     []byte    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// SlotStore implements repositories.SlotStore with one document per key.
type SlotStore struct {
	provider   *pfirestore.Provider
	collection string
	now        func() time.Time
}

var _ repositories.SlotStore = (*SlotStore)(nil)

// NewSlotStore constructs a Firestore-backed slot store using the provider's
// configured slots collection.
func NewSlotStore(provider *pfirestore.Provider) (*SlotStore, error) {
	if provider == nil {
		return nil, errors.New("slot store requires firestore provider")
	}
	collection := strings.TrimSpace(provider.Config().SlotsCollection)
	if collection == "" {
		collection = defaultSlotsCollection
	}
	return &SlotStore{
		provider:   provider,
		collection: collection,
		now:        time.Now,
	}, nil
}

// Get returns the stored bytes for key.
func (s *SlotStore) Get(ctx context.Context, key string) ([]byte, error) {
	ref, err := s.documentRef(ctx, key)
	if err != nil {
		return nil, err
	}
	snapshot, err := ref.Get(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("firestore.slots.get", key, err)
	}
	var doc slotDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore slots decode %s: %w", key, err)
	}
	return doc.Value, nil
}

// Set overwrites the document for key.
func (s *SlotStore) Set(ctx context.Context, key string, value []byte) error {
	ref, err := s.documentRef(ctx, key)
	if err != nil {
		return err
	}
	doc := slotDocument{
		Key:       key,
		Value:     append([]byte(nil), value...),
		UpdatedAt: s.now().UTC(),
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("firestore.slots.set", key, err)
	}
	return nil
}

// Ping checks that the backing project answers.
func (s *SlotStore) Ping(ctx context.Context) error {
	return s.provider.Ping(ctx)
}

func (s *SlotStore) documentRef(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	if s == nil || s.provider == nil {
		return nil, errors.New("slot store not initialised")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("firestore slots: key is required")
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(slotDocumentID(key)), nil
}

// slotDocumentID escapes characters Firestore reserves in document ids.
func slotDocumentID(key string) string {
	replacer := strings.NewReplacer("%", "%25", "/", "%2F")
	id := replacer.Replace(key)
	if id == "." || id == ".." {
		return "%2E" + id[1:]
	}
	return id
}
