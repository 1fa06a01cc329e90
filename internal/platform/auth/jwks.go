package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed marks failures that are the key server's fault, not the caller's.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const (
	defaultJWKSValidity = 15 * time.Minute
	jwksFetchTimeout    = 5 * time.Second
)

// keySet is one fetched JWKS document. It is replaced whole, never mutated.
type keySet struct {
	keys         map[string]any
	expires      time.Time
	refreshAfter time.Time
}

func (s *keySet) stale(now time.Time) bool {
	return s == nil || !now.Before(s.expires)
}

// JWKSCache serves public keys for Google-signed service tokens. Keys are
// fetched on first use, refetched when a kid is unknown, and refreshed in the
// background once half of the advertised max-age has elapsed.
type JWKSCache struct {
	url    string
	client *http.Client
	logger Logger
	now    func() time.Time

	mu         sync.RWMutex
	set        *keySet
	fetchMu    sync.Mutex
	refreshing atomic.Bool
}

type JWKSOption func(*JWKSCache)

func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	cache := &JWKSCache{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: noopLogger,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

func WithJWKSLogger(logger Logger) JWKSOption {
	return func(c *JWKSCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// Keyfunc adapts the cache for jwt parsing. Only RS256 tokens carrying a kid are accepted.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Method)
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

// Key returns the public key for kid.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	now := c.now()
	set := c.current()
	if set.stale(now) {
		var err error
		if set, err = c.fetch(ctx); err != nil {
			return nil, err
		}
	}

	key, ok := set.keys[kid]
	if !ok {
		// Google rotates keys; an unknown kid forces one refetch.
		fresh, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if key, ok = fresh.keys[kid]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
		}
		return key, nil
	}

	if !now.Before(set.refreshAfter) {
		c.refreshInBackground()
	}
	return key, nil
}

func (c *JWKSCache) current() *keySet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

func (c *JWKSCache) refreshInBackground() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.refreshing.Store(false)
		ctx := context.Background()
		if _, err := c.fetch(ctx); err != nil {
			c.logger(ctx, "auth.jwks_refresh_failed", map[string]any{"error": err})
		}
	}()
}

func (c *JWKSCache) fetch(ctx context.Context) (*keySet, error) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var doc jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]any, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk.Key
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	now := c.now()
	validity := jwksValidity(resp.Header, now)
	set := &keySet{
		keys:         keys,
		expires:      now.Add(validity),
		refreshAfter: now.Add(validity / 2),
	}
	c.mu.Lock()
	c.set = set
	c.mu.Unlock()

	c.logger(ctx, "auth.jwks_refreshed", map[string]any{"keys": len(keys), "validFor": validity.String()})
	return set, nil
}

// jwksValidity reads Cache-Control max-age, then Expires, then falls back to
// defaultJWKSValidity.
func jwksValidity(header http.Header, now time.Time) time.Duration {
	for _, directive := range strings.Split(header.Get("Cache-Control"), ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if expires, err := http.ParseTime(header.Get("Expires")); err == nil {
		if delta := expires.Sub(now); delta > 0 {
			return delta
		}
	}
	return defaultJWKSValidity
}
