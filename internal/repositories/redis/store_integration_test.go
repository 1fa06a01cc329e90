//go:build integration

package redis

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	addr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		t.Fatalf("failed to parse redis URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	return client
}

func TestStoresIntegration(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	slots, err := NewSlotStore(client, "storefront:")
	if err != nil {
		t.Fatalf("NewSlotStore: %v", err)
	}
	if err := slots.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := slots.Get(ctx, repositories.CartSlot("fan-1")); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	payload := []byte(`{"version":1}`)
	if err := slots.Set(ctx, repositories.CartSlot("fan-1"), payload); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := slots.Get(ctx, repositories.CartSlot("fan-1"))
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("get: %s err=%v", got, err)
	}
	raw, err := client.Get(ctx, "storefront:cart:fan-1").Bytes()
	if err != nil || !bytes.Equal(raw, payload) {
		t.Fatalf("expected prefixed key, got %s err=%v", raw, err)
	}

	seq, err := NewSequenceStore(client, "storefront:")
	if err != nil {
		t.Fatalf("NewSequenceStore: %v", err)
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
			t.Fatalf("expected %d at position %d, got %d", i+1, i, val)
		}
	}
}
