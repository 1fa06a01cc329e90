//go:build integration

package firestore

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	pconfig "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/config"
	pfirestore "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/firestore"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/firestore/firestoretest"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	return firestoretest.NewProvider(t, pconfig.FirestoreConfig{
		SlotsCollection:    "slots",
		CountersCollection: "counters",
	})
}

func TestStoresIntegration(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	t.Run("slots", func(t *testing.T) {
		store, err := NewSlotStore(provider)
		if err != nil {
			t.Fatalf("new slot store: %v", err)
		}
		if err := store.Ping(ctx); err != nil {
			t.Fatalf("ping: %v", err)
		}
		if _, err := store.Get(ctx, repositories.CartSlot("fan/1")); !repositories.IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
		payload := []byte(`{"version":1,"lines":[]}`)
		if err := store.Set(ctx, repositories.CartSlot("fan/1"), payload); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, err := store.Get(ctx, repositories.CartSlot("fan/1"))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("expected %s, got %s", payload, got)
		}
	})

	t.Run("sequences", func(t *testing.T) {
		seq, err := NewSequenceStore(provider)
		if err != nil {
			t.Fatalf("new sequence store: %v", err)
		}

		const workers = 16
		results := make([]int64, workers)
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func(idx int) {
				defer wg.Done()
				value, err := seq.Next(ctx, "orders:2025")
				if err != nil {
					t.Errorf("next(%d): %v", idx, err)
					return
				}
				results[idx] = value
			}(i)
		}
		wg.Wait()

		sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
		for i, val := range results {
			if val != int64(i+1) {
				t.Fatalf("expected sequence %d at position %d, got %d", i+1, i, val)
			}
		}

		if err := seq.Cap(ctx, "orders:bounded", 2); err != nil {
			t.Fatalf("cap: %v", err)
		}
		for i := int64(1); i <= 2; i++ {
			value, err := seq.Next(ctx, "orders:bounded")
			if err != nil || value != i {
				t.Fatalf("bounded next %d: value=%d err=%v", i, value, err)
			}
		}
		_, err = seq.Next(ctx, "orders:bounded")
		var seqErr *repositories.SequenceError
		if !errors.As(err, &seqErr) || seqErr.Code != repositories.SequenceErrorExhausted {
			t.Fatalf("expected exhausted sequence error, got %T %v", err, err)
		}
	})
}
