package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/auth"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "Idempotent-Replayed"
	maxKeyLength      = 255
	anonymousCaller   = "anonymous"
)

// Logger receives store failures; the request itself still gets an answer.
type Logger func(ctx context.Context, event string, fields map[string]any)

type clockFunc func() time.Time

// guard is one configured instance of the middleware.
type guard struct {
	store      Store
	headerName string
	ttl        time.Duration
	requireKey bool
	clock      clockFunc
	logger     Logger
}

type MiddlewareOption func(*guard)

func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.headerName = name
		}
	}
}

// WithTTL sets how long a confirmed order response can be replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithRequiredKey rejects requests without the header instead of running them unguarded.
func WithRequiredKey() MiddlewareOption {
	return func(g *guard) {
		g.requireKey = true
	}
}

func WithLogger(logger Logger) MiddlewareOption {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithClock(clock clockFunc) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// Middleware makes a retried request with the same key and body replay the
// first 2xx response instead of running the handler again. Keys are scoped to
// the caller, so two customers never collide. Non-2xx outcomes release the key.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{
		store:      store,
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		clock:      time.Now,
		logger:     func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(g.headerName))
	switch {
	case key == "" && g.requireKey:
		respondError(w, r, http.StatusBadRequest, "idempotency_key_required", "missing idempotency key header")
		return
	case key == "":
		next.ServeHTTP(w, r)
		return
	case len(key) > maxKeyLength:
		respondError(w, r, http.StatusBadRequest, "idempotency_key_invalid", "idempotency key is too long")
		return
	}

	body, err := readAndReplayBody(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "unable to read request body")
		return
	}
	requester := extractRequester(ctx)
	fingerprint := requestFingerprint(r, body, requester)
	scoped := scopedKey(key, requester)

	reservation, err := g.store.Reserve(ctx, scoped, fingerprint, g.clock().UTC(), g.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		respondError(w, r, http.StatusUnprocessableEntity, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	case err != nil:
		g.logger(ctx, "idempotency.store_failed", map[string]any{"error": err})
		respondError(w, r, http.StatusServiceUnavailable, "idempotency_store_error", "unable to process idempotency key")
		return
	case reservation.State == ReservationStateCompleted:
		replay(w, reservation.Record)
		return
	case reservation.State == ReservationStatePending:
		respondError(w, r, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	}

	capture := newResponseCapture(w)
	next.ServeHTTP(capture, r)

	if capture.Status() < http.StatusMultipleChoices {
		resp := Response{Status: capture.Status(), Headers: capture.header.Clone(), Body: capture.Body()}
		if err := g.store.SaveResponse(ctx, scoped, fingerprint, resp, g.clock().UTC(), g.ttl); err != nil {
			g.logger(ctx, "idempotency.save_failed", map[string]any{"requester": requester, "error": err})
			g.release(ctx, scoped, fingerprint)
		}
	} else {
		g.release(ctx, scoped, fingerprint)
	}
	// The order exists whether or not the store kept the response, so the
	// caller always gets what the handler wrote.
	if err := capture.flush(); err != nil {
		g.logger(ctx, "idempotency.flush_failed", map[string]any{"error": err})
	}
}

func (g *guard) release(ctx context.Context, key, fingerprint string) {
	if err := g.store.Release(ctx, key, fingerprint); err != nil {
		g.logger(ctx, "idempotency.release_failed", map[string]any{"error": err})
	}
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if closeErr := r.Body.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// requestFingerprint binds a key to method, path, query, caller and body.
func requestFingerprint(r *http.Request, body []byte, requester string) string {
	h := sha256.New()
	for _, part := range []string{strings.ToUpper(r.Method), r.URL.Path, r.URL.RawQuery, requester} {
		_, _ = io.WriteString(h, part)
		_, _ = h.Write([]byte{0})
	}
	if len(body) > 0 {
		_, _ = h.Write(body)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// extractRequester prefers the customer, then an internal service caller.
func extractRequester(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return identity.CustomerID()
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc.Subject != "" {
		return svc.Subject
	}
	return anonymousCaller
}

func scopedKey(key, requester string) string {
	requester = strings.TrimSpace(requester)
	if requester == "" {
		requester = anonymousCaller
	}
	return strings.TrimSpace(key) + "|" + requester
}

// replay writes a stored response and marks it with Idempotent-Replayed.
func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name := range header {
		header.Del(name)
	}
	for name, values := range headersFromRecord(record.ResponseHeaders) {
		header[name] = values
	}
	header.Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}
