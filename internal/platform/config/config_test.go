package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"STORE_FIREBASE_PROJECT_ID":     "merch-dev",
		"STORE_PAYMENTS_STRIPE_API_KEY": "sk_test_123",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Persistence.Backend != BackendMemory {
		t.Errorf("expected memory backend by default, got %s", cfg.Persistence.Backend)
	}
	if cfg.Persistence.Firestore.ProjectID != "merch-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Persistence.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "merch-dev" {
		t.Errorf("expected events project to default to firebase project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Orders.NumberPrefix != "BM" || cfg.Orders.Numbering != NumberingTime || cfg.Orders.Currency != "USD" {
		t.Errorf("unexpected order defaults: %+v", cfg.Orders)
	}
	if !cfg.Rates.UseSettingsSlot || cfg.Rates.CacheTTL != time.Minute {
		t.Errorf("unexpected rate defaults: %+v", cfg.Rates)
	}
	if cfg.Rates.Overrides.FreeShippingThreshold != nil || cfg.Rates.Overrides.TaxEnabled != nil {
		t.Errorf("expected no rate overrides, got %+v", cfg.Rates.Overrides)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url %s, got %s", defaultOIDCJWKSURL, cfg.Security.OIDC.JWKSURL)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Checkout.SessionTTL != defaultSessionTTL {
		t.Errorf("unexpected session ttl: %s", cfg.Checkout.SessionTTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"STORE_SERVER_PORT":                   "9090",
		"STORE_FIREBASE_PROJECT_ID":           "merch-prod",
		"STORE_PERSISTENCE_BACKEND":           "Redis",
		"STORE_REDIS_URL":                     "sm://redis/url",
		"STORE_REDIS_POOL_SIZE":               "25",
		"STORE_PAYMENTS_STRIPE_API_KEY":       "secret://stripe/api",
		"STORE_EVENTS_ORDER_TOPIC":            "orders-confirmed",
		"STORE_RATES_FREE_SHIPPING_THRESHOLD": "75",
		"STORE_RATES_SHIPPING":                "domestic=7.50, Europe=14",
		"STORE_RATES_TAX_ENABLED":             "yes",
		"STORE_RATES_TAX_PERCENT":             "us=8.5,eu=21",
		"STORE_ORDERS_NUMBERING":              "sequence",
		"STORE_ORDERS_NUMBER_PREFIX":          "TOUR",
		"STORE_SECURITY_OIDC_AUDIENCE":        "https://merch.example.com",
		"STORE_SECURITY_OIDC_ISSUERS":         "https://accounts.google.com, https://cloud.google.com/iap",
		"STORE_IDEMPOTENCY_TTL":               "48h",
	}
	secrets := map[string]string{
		"secret://stripe/api": "sk_live_abc",
		"secret://redis/url":  "redis://:pw@cache:6379/0",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Persistence.Backend != BackendRedis {
		t.Errorf("expected redis backend, got %s", cfg.Persistence.Backend)
	}
	if cfg.Persistence.Redis.URL != "redis://:pw@cache:6379/0" {
		t.Errorf("expected resolved redis url, got %s", cfg.Persistence.Redis.URL)
	}
	if cfg.Persistence.Redis.PoolSize != 25 {
		t.Errorf("expected pool size 25, got %d", cfg.Persistence.Redis.PoolSize)
	}
	if cfg.Payments.StripeAPIKey != "sk_live_abc" {
		t.Errorf("expected resolved stripe key, got %s", cfg.Payments.StripeAPIKey)
	}
	overrides := cfg.Rates.Overrides
	if overrides.FreeShippingThreshold == nil || !overrides.FreeShippingThreshold.Equal(decimal.NewFromInt(75)) {
		t.Errorf("unexpected threshold override: %v", overrides.FreeShippingThreshold)
	}
	if got := overrides.ShippingRates["domestic"]; !got.Equal(decimal.RequireFromString("7.50")) {
		t.Errorf("unexpected domestic override: %s", got)
	}
	if got := overrides.ShippingRates["europe"]; !got.Equal(decimal.NewFromInt(14)) {
		t.Errorf("expected lower-cased europe override, got %s", got)
	}
	if overrides.TaxEnabled == nil || !*overrides.TaxEnabled {
		t.Errorf("expected tax enabled override")
	}
	if got := overrides.TaxPercentages["eu"]; !got.Equal(decimal.NewFromInt(21)) {
		t.Errorf("expected eu tax percentage 21, got %s", got)
	}
	if cfg.Orders.Numbering != NumberingSequence || cfg.Orders.NumberPrefix != "TOUR" {
		t.Errorf("unexpected orders config: %+v", cfg.Orders)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected two issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("expected idempotency ttl 48h, got %s", cfg.Idempotency.TTL)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"STORE_PERSISTENCE_BACKEND":           "firestore",
		"STORE_PAYMENTS_PROVIDER":             "stripe",
		"STORE_RATES_FREE_SHIPPING_THRESHOLD": "-1",
		"STORE_RATES_SHIPPING":                "asia=abc",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := map[string]bool{
		"Persistence.Firestore.ProjectID":     false,
		"Payments.StripeAPIKey":               false,
		"STORE_RATES_FREE_SHIPPING_THRESHOLD": false,
		"STORE_RATES_SHIPPING[asia]":          false,
	}
	for _, field := range vErr.Fields() {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields %v", field, vErr.Fields())
		}
	}
}

func TestLoadCheckoutAndSecurityOptions(t *testing.T) {
	env := map[string]string{
		"STORE_PERSISTENCE_BACKEND":            "gcs",
		"STORE_GCS_BUCKET":                     "merch-orders",
		"STORE_PAYMENTS_PROVIDER":              "fake",
		"STORE_ORDERS_NUMBERING":               "sequence",
		"STORE_CHECKOUT_ALLOW_ANONYMOUS":       "false",
		"STORE_CHECKOUT_PAYMENT_ATTEMPTS":      "3",
		"STORE_CHECKOUT_PAYMENT_WINDOW":        "90s",
		"STORE_SECURITY_OIDC_SERVICE_ACCOUNTS": "scheduler@merch.iam.gserviceaccount.com, ops@merch.iam.gserviceaccount.com",
		"STORE_IDEMPOTENCY_CLEANUP_INTERVAL":   "0s",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Orders.Numbering != NumberingSequence || cfg.Persistence.Backend != BackendGCS {
		t.Fatalf("object storage should accept sequence numbering, got %+v", cfg.Orders)
	}
	if cfg.Checkout.AllowAnonymous {
		t.Errorf("expected anonymous checkout disabled")
	}
	if cfg.Checkout.PaymentAttemptLimit != 3 || cfg.Checkout.PaymentAttemptWindow != 90*time.Second {
		t.Errorf("unexpected payment limits: %+v", cfg.Checkout)
	}
	if got := cfg.Security.OIDC.AllowedServiceAccounts; len(got) != 2 || got[1] != "ops@merch.iam.gserviceaccount.com" {
		t.Errorf("unexpected service accounts: %v", got)
	}
	if cfg.Idempotency.CleanupInterval != 0 {
		t.Errorf("expected cleanup loop disabled, got %s", cfg.Idempotency.CleanupInterval)
	}
}

func TestLoadSecretResolverFailure(t *testing.T) {
	env := map[string]string{
		"STORE_PAYMENTS_STRIPE_API_KEY": "sm://stripe/api",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if sErr.Ref != "secret://stripe/api" {
		t.Fatalf("expected normalised ref, got %s", sErr.Ref)
	}
}

func TestLoadRequiredSecretsMissing(t *testing.T) {
	env := map[string]string{
		"STORE_PAYMENTS_PROVIDER": "fake",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Payments.StripeAPIKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Payments.StripeAPIKey" {
		t.Fatalf("unexpected missing names: %v", names)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport STORE_SERVER_PORT=7070\nSTORE_PAYMENTS_PROVIDER=\"fake\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from env file, got %s", cfg.Server.Port)
	}
	if cfg.Payments.Provider != PaymentProviderFake {
		t.Errorf("expected fake provider from env file, got %s", cfg.Payments.Provider)
	}
}
