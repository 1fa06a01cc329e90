package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultBackend             = BackendMemory
	defaultSlotsCollection     = "slots"
	defaultCountersCollection  = "counters"
	defaultRedisPoolSize       = 10
	defaultRedisDialTimeout    = 5 * time.Second
	defaultRedisIOTimeout      = 3 * time.Second
	defaultPaymentProvider     = PaymentProviderStripe
	defaultRatesCacheTTL       = time.Minute
	defaultOrderPrefix         = "BM"
	defaultOrderNumbering      = NumberingTime
	defaultCurrency            = "USD"
	defaultSessionTTL          = 2 * time.Hour
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyBatch    = 200
	defaultIdempotencyCleanup  = 15 * time.Minute
	defaultPaymentAttempts     = 5
	defaultPaymentWindow       = 10 * time.Minute
)

// Persistence backends accepted by STORE_PERSISTENCE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
	BackendGCS       = "gcs"
)

// Payment providers accepted by STORE_PAYMENTS_PROVIDER.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderFake   = "fake"
)

// Order numbering modes accepted by STORE_ORDERS_NUMBERING.
const (
	NumberingTime     = "time"
	NumberingSequence = "sequence"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Persistence PersistenceConfig
	Payments    PaymentsConfig
	Events      EventsConfig
	Rates       RatesConfig
	Orders      OrdersConfig
	Checkout    CheckoutConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Version      string
}

// FirebaseConfig stores Firebase project settings used for customer authentication.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// PersistenceConfig selects and configures the slot store backend.
type PersistenceConfig struct {
	Backend   string
	Firestore FirestoreConfig
	Redis     RedisConfig
	GCS       GCSConfig
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID          string
	EmulatorHost       string
	SlotsCollection    string
	CountersCollection string
}

// RedisConfig stores connection parameters for the redis backend.
type RedisConfig struct {
	URL          string
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// GCSConfig stores bucket settings for the object storage backend.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// PaymentsConfig selects the payment method provider.
type PaymentsConfig struct {
	Provider            string
	StripeAPIKey        string
	StripeAccountID     string
	StripeAllowRawCards bool
}

// EventsConfig configures order confirmation publishing.
type EventsConfig struct {
	ProjectID  string
	OrderTopic string
}

// RatesConfig controls how rate settings are sourced. Overrides are admin
// values: tax rates are percentages.
type RatesConfig struct {
	UseSettingsSlot bool
	CacheTTL        time.Duration
	Overrides       RateOverrides
}

// RateOverrides holds env supplied rate settings. Nil means unset.
type RateOverrides struct {
	FreeShippingThreshold *decimal.Decimal
	ShippingRates         map[string]decimal.Decimal
	TaxEnabled            *bool
	TaxPercentages        map[string]decimal.Decimal
}

// OrdersConfig controls order numbering and currency.
type OrdersConfig struct {
	NumberPrefix string
	Numbering    string
	Currency     string
}

// CheckoutConfig controls checkout session retention.
type CheckoutConfig struct {
	SessionTTL           time.Duration
	AllowAnonymous       bool
	PaymentAttemptLimit  int
	PaymentAttemptWindow time.Duration
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal routes.
type OIDCConfig struct {
	JWKSURL                string
	Audience               string
	Issuers                []string
	AllowedServiceAccounts []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved empty.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory
// (e.g. "Payments.StripeAPIKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the storefront configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string
	overrides := RateOverrides{
		FreeShippingThreshold: decimalOrNil(lookup, "STORE_RATES_FREE_SHIPPING_THRESHOLD", &invalid),
		ShippingRates:         decimalMap(lookup, "STORE_RATES_SHIPPING", &invalid),
		TaxEnabled:            boolOrNil(lookup, "STORE_RATES_TAX_ENABLED"),
		TaxPercentages:        decimalMap(lookup, "STORE_RATES_TAX_PERCENT", &invalid),
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STORE_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "STORE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STORE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STORE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			Version:      stringWithDefault(lookup, "STORE_SERVER_VERSION", "dev"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "STORE_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "STORE_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Persistence: PersistenceConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "STORE_PERSISTENCE_BACKEND", defaultBackend)),
			Firestore: FirestoreConfig{
				ProjectID:          stringWithDefault(lookup, "STORE_FIRESTORE_PROJECT_ID", ""),
				EmulatorHost:       stringWithDefault(lookup, "STORE_FIRESTORE_EMULATOR_HOST", ""),
				SlotsCollection:    stringWithDefault(lookup, "STORE_FIRESTORE_SLOTS_COLLECTION", defaultSlotsCollection),
				CountersCollection: stringWithDefault(lookup, "STORE_FIRESTORE_COUNTERS_COLLECTION", defaultCountersCollection),
			},
			Redis: RedisConfig{
				URL:          stringWithDefault(lookup, "STORE_REDIS_URL", ""),
				KeyPrefix:    stringWithDefault(lookup, "STORE_REDIS_KEY_PREFIX", "storefront:"),
				PoolSize:     intWithDefault(lookup, "STORE_REDIS_POOL_SIZE", defaultRedisPoolSize),
				MinIdleConns: intWithDefault(lookup, "STORE_REDIS_MIN_IDLE_CONNS", 0),
				DialTimeout:  durationWithDefault(lookup, "STORE_REDIS_DIAL_TIMEOUT", defaultRedisDialTimeout),
				ReadTimeout:  durationWithDefault(lookup, "STORE_REDIS_READ_TIMEOUT", defaultRedisIOTimeout),
				WriteTimeout: durationWithDefault(lookup, "STORE_REDIS_WRITE_TIMEOUT", defaultRedisIOTimeout),
			},
			GCS: GCSConfig{
				Bucket: stringWithDefault(lookup, "STORE_GCS_BUCKET", ""),
				Prefix: stringWithDefault(lookup, "STORE_GCS_PREFIX", "storefront/"),
			},
		},
		Payments: PaymentsConfig{
			Provider:            strings.ToLower(stringWithDefault(lookup, "STORE_PAYMENTS_PROVIDER", defaultPaymentProvider)),
			StripeAPIKey:        stringWithDefault(lookup, "STORE_PAYMENTS_STRIPE_API_KEY", ""),
			StripeAccountID:     stringWithDefault(lookup, "STORE_PAYMENTS_STRIPE_ACCOUNT_ID", ""),
			StripeAllowRawCards: boolWithDefault(lookup, "STORE_PAYMENTS_STRIPE_ALLOW_RAW_CARDS", false),
		},
		Events: EventsConfig{
			ProjectID:  stringWithDefault(lookup, "STORE_EVENTS_PROJECT_ID", ""),
			OrderTopic: stringWithDefault(lookup, "STORE_EVENTS_ORDER_TOPIC", ""),
		},
		Rates: RatesConfig{
			UseSettingsSlot: boolWithDefault(lookup, "STORE_RATES_USE_SETTINGS_SLOT", true),
			CacheTTL:        durationWithDefault(lookup, "STORE_RATES_CACHE_TTL", defaultRatesCacheTTL),
			Overrides:       overrides,
		},
		Orders: OrdersConfig{
			NumberPrefix: stringWithDefault(lookup, "STORE_ORDERS_NUMBER_PREFIX", defaultOrderPrefix),
			Numbering:    strings.ToLower(stringWithDefault(lookup, "STORE_ORDERS_NUMBERING", defaultOrderNumbering)),
			Currency:     strings.ToUpper(stringWithDefault(lookup, "STORE_ORDERS_CURRENCY", defaultCurrency)),
		},
		Checkout: CheckoutConfig{
			SessionTTL:           durationWithDefault(lookup, "STORE_CHECKOUT_SESSION_TTL", defaultSessionTTL),
			AllowAnonymous:       boolWithDefault(lookup, "STORE_CHECKOUT_ALLOW_ANONYMOUS", true),
			PaymentAttemptLimit:  intWithDefault(lookup, "STORE_CHECKOUT_PAYMENT_ATTEMPTS", defaultPaymentAttempts),
			PaymentAttemptWindow: durationWithDefault(lookup, "STORE_CHECKOUT_PAYMENT_WINDOW", defaultPaymentWindow),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "STORE_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:                stringWithDefault(lookup, "STORE_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:               stringWithDefault(lookup, "STORE_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:                csvWithDefault(lookup, "STORE_SECURITY_OIDC_ISSUERS"),
				AllowedServiceAccounts: csvWithDefault(lookup, "STORE_SECURITY_OIDC_SERVICE_ACCOUNTS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "STORE_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "STORE_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "STORE_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyCleanup),
			CleanupBatchSize: intWithDefault(lookup, "STORE_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Persistence.Firestore.ProjectID == "" {
		cfg.Persistence.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Persistence.Redis.URL", &cfg.Persistence.Redis.URL},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}

	switch cfg.Persistence.Backend {
	case BackendMemory:
	case BackendFirestore:
		if cfg.Persistence.Firestore.ProjectID == "" {
			missing = append(missing, "Persistence.Firestore.ProjectID")
		}
	case BackendRedis:
		if cfg.Persistence.Redis.URL == "" {
			missing = append(missing, "Persistence.Redis.URL")
		}
	case BackendGCS:
		if cfg.Persistence.GCS.Bucket == "" {
			missing = append(missing, "Persistence.GCS.Bucket")
		}
	default:
		missing = append(missing, "Persistence.Backend")
	}

	switch cfg.Payments.Provider {
	case PaymentProviderFake:
	case PaymentProviderStripe:
		if cfg.Payments.StripeAPIKey == "" {
			missing = append(missing, "Payments.StripeAPIKey")
		}
	default:
		missing = append(missing, "Payments.Provider")
	}

	switch cfg.Orders.Numbering {
	case NumberingTime:
	case NumberingSequence:
	default:
		missing = append(missing, "Orders.Numbering")
	}
	if strings.TrimSpace(cfg.Orders.NumberPrefix) == "" {
		missing = append(missing, "Orders.NumberPrefix")
	}
	if len(cfg.Orders.Currency) != 3 {
		missing = append(missing, "Orders.Currency")
	}
	if cfg.Checkout.SessionTTL <= 0 {
		missing = append(missing, "Checkout.SessionTTL")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

// EnvironmentValues merges the .env file with the process environment, the
// latter winning. It lets callers read bootstrap settings before Load.
func EnvironmentValues() (map[string]string, error) {
	values, err := loadDotEnv(defaultEnvFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			values[key] = value
		}
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok {
		if parsed, ok := parseBool(value); ok {
			return parsed
		}
	}
	return fallback
}

func boolOrNil(lookup func(string) (string, bool), key string) *bool {
	value, ok := lookup(key)
	if !ok {
		return nil
	}
	parsed, ok := parseBool(value)
	if !ok {
		return nil
	}
	return &parsed
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func decimalOrNil(lookup func(string) (string, bool), key string, invalid *[]string) *decimal.Decimal {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || value.IsNegative() {
		*invalid = append(*invalid, key)
		return nil
	}
	return &value
}

// decimalMap parses "key=value,key=value" lists such as "domestic=7.50,europe=14".
func decimalMap(lookup func(string) (string, bool), key string, invalid *[]string) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rawValue, ok := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			*invalid = append(*invalid, key)
			continue
		}
		value, err := decimal.NewFromString(strings.TrimSpace(rawValue))
		if err != nil || value.IsNegative() {
			*invalid = append(*invalid, fmt.Sprintf("%s[%s]", key, name))
			continue
		}
		values[name] = value
	}
	return values
}
