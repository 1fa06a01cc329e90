package memory

import (
	"context"
	"testing"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

func TestSlotStoreGetMissing(t *testing.T) {
	store := NewSlotStore()
	_, err := store.Get(context.Background(), "cart:u1")
	if !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSlotStoreSetCopiesValue(t *testing.T) {
	store := NewSlotStore()
	ctx := context.Background()

	value := []byte(`{"lines":[]}`)
	if err := store.Set(ctx, "cart:u1", value); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value[0] = 'X'

	got, err := store.Get(ctx, "cart:u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"lines":[]}` {
		t.Fatalf("expected stored value to be isolated from caller, got %s", got)
	}
}

func TestSlotStoreRejectsBlankKey(t *testing.T) {
	store := NewSlotStore()
	if err := store.Set(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected error for blank key")
	}
}

func TestSequenceStoreNextPerScope(t *testing.T) {
	seq := NewSequenceStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx, "orders:2026")
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	got, err := seq.Next(ctx, "orders:2027")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected new scope to start at 1, got %d", got)
	}
}
