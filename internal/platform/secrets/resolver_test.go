package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAccessClient struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
	closed bool
}

func newFakeAccessClient() *fakeAccessClient {
	return &fakeAccessClient{
		values: map[string]string{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeAccessClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.GetName()]++
	if err, ok := f.errs[req.GetName()]; ok {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeAccessClient) Close() error {
	f.closed = true
	return nil
}

func (f *fakeAccessClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func newTestResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	base := []Option{WithLogger(zap.NewNop()), WithMeter(noop.NewMeterProvider().Meter("test")), WithFallbackFile("")}
	resolver, err := NewResolver(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	t.Cleanup(func() { _ = resolver.Close() })
	return resolver
}

func TestResolveSecret_CachesRemoteValue(t *testing.T) {
	client := newFakeAccessClient()
	resource := "projects/merch/secrets/stripe_api_key/versions/latest"
	client.values[resource] = "sk_test_remote"

	resolver := newTestResolver(t, withClient(client), WithProject("merch"))

	for i := 0; i < 2; i++ {
		got, err := resolver.ResolveSecret(context.Background(), "secret://stripe_api_key")
		if err != nil {
			t.Fatalf("ResolveSecret: %v", err)
		}
		if got != "sk_test_remote" {
			t.Fatalf("expected remote value, got %q", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected a single remote access, got %d", calls)
	}
	if client.closed {
		t.Fatalf("injected client must not be closed by the resolver")
	}
}

func TestResolveSecret_AcceptsSMAliasAndVersion(t *testing.T) {
	client := newFakeAccessClient()
	client.values["projects/other/secrets/stripe_api_key/versions/3"] = "pinned"

	resolver := newTestResolver(t, withClient(client), WithProject("merch"))

	got, err := resolver.ResolveSecret(context.Background(), "sm://stripe_api_key?version=3&project=other")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "pinned" {
		t.Fatalf("expected pinned value, got %q", got)
	}
}

func TestResolveSecret_FallsBackWhenUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".secrets.local")
	content := "# local development\nsm://stripe_api_key=sk_test_local\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	client := newFakeAccessClient()
	client.errs["projects/merch/secrets/stripe_api_key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	resolver := newTestResolver(t, withClient(client), WithProject("merch"), WithFallbackFile(path))

	got, err := resolver.ResolveSecret(context.Background(), "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "sk_test_local" {
		t.Fatalf("expected fallback value, got %q", got)
	}
}

func TestResolveSecret_NotFoundDoesNotFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("secret://stripe_api_key=sk_test_local\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	resolver := newTestResolver(t, withClient(newFakeAccessClient()), WithProject("merch"), WithFallbackFile(path))

	_, err := resolver.ResolveSecret(context.Background(), "secret://stripe_api_key")
	if err == nil {
		t.Fatalf("expected error for missing remote secret")
	}
	if status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Fatalf("expected wrapped NotFound, got %v", err)
	}
}

func TestResolveSecret_WithoutProjectUsesFallbackOnly(t *testing.T) {
	resolver := newTestResolver(t)

	_, err := resolver.ResolveSecret(context.Background(), "secret://stripe_api_key")
	if !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestResolveSecret_TTLAndInvalidate(t *testing.T) {
	client := newFakeAccessClient()
	resource := "projects/merch/secrets/stripe_api_key/versions/latest"
	client.values[resource] = "first"

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	resolver := newTestResolver(t,
		withClient(client),
		WithProject("merch"),
		WithCacheTTL(time.Minute),
		withClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	if _, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key"); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	client.values[resource] = "second"

	if got, _ := resolver.ResolveSecret(ctx, "secret://stripe_api_key"); got != "first" {
		t.Fatalf("expected cached value within ttl, got %q", got)
	}
	now = now.Add(2 * time.Minute)
	if got, _ := resolver.ResolveSecret(ctx, "secret://stripe_api_key"); got != "second" {
		t.Fatalf("expected refreshed value after ttl, got %q", got)
	}

	client.values[resource] = "third"
	resolver.Invalidate("sm://stripe_api_key")
	if got, _ := resolver.ResolveSecret(ctx, "secret://stripe_api_key"); got != "third" {
		t.Fatalf("expected value after invalidate, got %q", got)
	}
}

func TestParseReference(t *testing.T) {
	cases := []struct {
		ref     string
		wantErr bool
		name    string
		version string
	}{
		{ref: "secret://stripe_api_key", name: "stripe_api_key"},
		{ref: "sm://stripe_api_key?version=4", name: "stripe_api_key", version: "4"},
		{ref: "https://example.com", wantErr: true},
		{ref: "secret://", wantErr: true},
		{ref: "  ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseReference(tc.ref)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.ref)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.ref, err)
			continue
		}
		if got.name != tc.name || got.version != tc.version {
			t.Errorf("%q: got %+v", tc.ref, got)
		}
	}
}
