package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	meterName           = "storefront/secrets"
	latestVersion       = "latest"
)

// ErrSecretNotFound is returned when neither Secret Manager nor the local file knows the reference.
var ErrSecretNotFound = errors.New("secrets: secret not found")

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver turns secret://name and sm://name references into values. Values
// are cached for the configured TTL; a local key=value file answers when
// Secret Manager is unreachable or the caller lacks credentials.
type Resolver struct {
	client     accessClient
	ownsClient bool
	logger     *zap.Logger
	project    string
	ttl        time.Duration
	now        func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cached

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cached struct {
	value     string
	fetchedAt time.Time
}

type resolverOptions struct {
	logger       *zap.Logger
	project      string
	ttl          time.Duration
	fallbackPath string
	meter        metric.Meter
	client       accessClient
	clientOpts   []option.ClientOption
	now          func() time.Time
}

// Option customises Resolver construction.
type Option func(*resolverOptions)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *resolverOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProject sets the project that owns unqualified secrets.
func WithProject(projectID string) Option {
	return func(o *resolverOptions) {
		o.project = strings.TrimSpace(projectID)
	}
}

// WithCacheTTL bounds how long a resolved value is reused. Zero caches forever.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *resolverOptions) {
		if ttl >= 0 {
			o.ttl = ttl
		}
	}
}

// WithFallbackFile overrides the local fallback file. An empty path disables it.
func WithFallbackFile(path string) Option {
	return func(o *resolverOptions) {
		o.fallbackPath = strings.TrimSpace(path)
	}
}

// WithMeter injects an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(o *resolverOptions) {
		o.meter = m
	}
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *resolverOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

func withClient(client accessClient) Option {
	return func(o *resolverOptions) {
		o.client = client
	}
}

func withClock(now func() time.Time) Option {
	return func(o *resolverOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewResolver builds a Resolver. A Secret Manager client that cannot be
// created leaves the resolver in fallback-only mode.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	o := resolverOptions{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	meter := o.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	r := &Resolver{
		logger:       o.logger,
		project:      o.project,
		ttl:          o.ttl,
		now:          o.now,
		fallbackPath: o.fallbackPath,
		cache:        make(map[string]cached),
	}

	var err error
	if r.latency, err = meter.Float64Histogram("secrets.resolve.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution"),
	); err != nil {
		r.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
		r.latency = nil
	}
	if r.cacheHits, err = meter.Int64Counter("secrets.resolve.cache_hits",
		metric.WithDescription("Secret resolutions answered from cache"),
	); err != nil {
		r.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
		r.cacheHits = nil
	}

	switch {
	case o.client != nil:
		r.client = o.client
	case r.project != "":
		client, err := newSecretManagerClient(ctx, o.clientOpts...)
		if err != nil {
			r.logger.Warn("secrets: secret manager unavailable, using local fallback only", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r == nil || !r.ownsClient || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// ResolveSecret implements config.SecretResolver.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	start := r.now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	if value, ok := r.cached(parsed.key()); ok {
		if r.cacheHits != nil {
			r.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", mask(parsed.canonical))))
		}
		r.observe(ctx, start, "cache")
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = r.project
	}
	if project != "" && r.client != nil {
		value, err := r.access(ctx, project, parsed)
		if err == nil {
			r.store(parsed.key(), value)
			r.observe(ctx, start, "remote")
			return value, nil
		}
		if !fallbackEligible(err) {
			r.observe(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", parsed.canonical, err)
		}
		r.logger.Debug("secrets: falling back to local file", zap.String("secret", mask(parsed.canonical)), zap.Error(err))
	}

	value, err := r.lookupFallback(parsed)
	if err != nil {
		r.observe(ctx, start, "error")
		return "", err
	}
	r.store(parsed.key(), value)
	r.observe(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops every cached version of the reference, forcing the next
// resolution to fetch again.
func (r *Resolver) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	prefix := parsed.canonical + "#"
	r.mu.Lock()
	for key := range r.cache {
		if strings.HasPrefix(key, prefix) {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()
}

func (r *Resolver) access(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.versionOrLatest())
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) cached(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	if !ok {
		return "", false
	}
	if r.ttl > 0 && r.now().Sub(entry.fetchedAt) > r.ttl {
		return "", false
	}
	return entry.value, true
}

func (r *Resolver) store(key, value string) {
	r.mu.Lock()
	r.cache[key] = cached{value: value, fetchedAt: r.now()}
	r.mu.Unlock()
}

func (r *Resolver) observe(ctx context.Context, start time.Time, source string) {
	if r.latency == nil {
		return
	}
	elapsed := r.now().Sub(start)
	r.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attribute.String("source", source)))
}

func (r *Resolver) lookupFallback(ref reference) (string, error) {
	r.fallbackOnce.Do(r.loadFallback)
	if r.fallbackErr != nil {
		return "", r.fallbackErr
	}
	if value, ok := r.fallback[ref.key()]; ok {
		return value, nil
	}
	if ref.version == "" {
		if value, ok := r.fallback[ref.canonical]; ok {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, ref.canonical)
}

func (r *Resolver) loadFallback() {
	r.fallback = map[string]string{}
	if r.fallbackPath == "" {
		return
	}
	file, err := os.Open(r.fallbackPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.fallbackErr = fmt.Errorf("secrets: open fallback file: %w", err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rawKey, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		parsed, err := parseReference(strings.TrimSpace(rawKey))
		if err != nil {
			r.logger.Debug("secrets: skipping fallback entry", zap.Error(err))
			continue
		}
		value = strings.TrimSpace(value)
		r.fallback[parsed.key()] = value
		if parsed.version == "" {
			r.fallback[parsed.canonical] = value
		}
	}
	if err := scanner.Err(); err != nil {
		r.fallbackErr = fmt.Errorf("secrets: read fallback file: %w", err)
	}
}

type reference struct {
	canonical string
	name      string
	version   string
	project   string
}

func (r reference) versionOrLatest() string {
	if r.version == "" {
		return latestVersion
	}
	return r.version
}

func (r reference) key() string {
	return r.canonical + "#" + r.versionOrLatest()
}

// parseReference accepts secret://name?version=3&project=p and the sm:// alias.
func parseReference(ref string) (reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, errors.New("secrets: missing secret name")
	}
	query := u.Query()
	return reference{
		canonical: "secret://" + name,
		name:      name,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func mask(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:6])
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
