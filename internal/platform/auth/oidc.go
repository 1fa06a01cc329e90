package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// OIDCValidator guards internal routes with Google-signed OIDC or IAP tokens.
// Cloud Scheduler and other service callers present these tokens.
type OIDCValidator struct {
	cache         *JWKSCache
	logger        Logger
	metrics       MetricsRecorder
	now           func() time.Time
	allowedEmails map[string]struct{}
}

type OIDCOption func(*OIDCValidator)

func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	validator := &OIDCValidator{cache: cache, logger: noopLogger, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	return validator
}

func WithOIDCLogger(logger Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) {
		v.metrics = recorder
	}
}

// WithAllowedServiceAccounts restricts callers to the listed service account
// emails. The token must also carry email_verified.
func WithAllowedServiceAccounts(emails ...string) OIDCOption {
	return func(v *OIDCValidator) {
		for _, email := range emails {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				continue
			}
			if v.allowedEmails == nil {
				v.allowedEmails = make(map[string]struct{})
			}
			v.allowedEmails[email] = struct{}{}
		}
	}
}

func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// ServiceIdentity is the verified caller of an internal route.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
	Claims   map[string]any
}

type serviceIdentityContextKey struct{}

func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// oidcRejection is why a request was turned away and how to answer it.
type oidcRejection struct {
	status  int
	code    string
	message string
	reason  string
	fields  map[string]any
}

// RequireOIDC admits requests whose token is signed by a cached key, was
// issued by one of issuers (any issuer when empty) and names audience.
// A missing audience fails closed with 503.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowedIssuers := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowedIssuers[issuer] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()

			identity, rejection := v.verify(r, audience, allowedIssuers)
			if rejection != nil {
				if rejection.fields != nil {
					rejection.fields["reason"] = rejection.reason
					v.logger(ctx, "auth.oidc_rejected", rejection.fields)
				}
				v.record(ctx, false, rejection.reason, start)
				respondAuthError(w, r, rejection.status, rejection.code, rejection.message)
				return
			}

			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

// verify returns a rejection with nil fields for failures not worth logging.
func (v *OIDCValidator) verify(r *http.Request, audience string, issuers map[string]struct{}) (*ServiceIdentity, *oidcRejection) {
	if audience == "" {
		return nil, &oidcRejection{status: http.StatusServiceUnavailable, code: "verification_unavailable", message: "oidc audience not configured", reason: "audience_not_configured"}
	}
	raw, source := extractOIDCToken(r)
	if raw == "" {
		return nil, &oidcRejection{status: http.StatusUnauthorized, code: "unauthenticated", message: "oidc token missing", reason: "token_missing"}
	}
	if v.cache == nil {
		return nil, &oidcRejection{status: http.StatusServiceUnavailable, code: "verification_unavailable", message: "oidc verification unavailable", reason: "cache_unavailable"}
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, claims, v.cache.Keyfunc(r.Context())); err != nil {
		rejection := &oidcRejection{status: http.StatusUnauthorized, code: "invalid_token", message: "oidc token verification failed", reason: "token_invalid", fields: map[string]any{"error": err}}
		if errors.Is(err, ErrJWKSFetchFailed) {
			rejection.status, rejection.reason = http.StatusServiceUnavailable, "jwks_unavailable"
		}
		return nil, rejection
	}

	issuer, _ := claims["iss"].(string)
	if _, ok := issuers[issuer]; len(issuers) > 0 && !ok {
		return nil, &oidcRejection{status: http.StatusUnauthorized, code: "invalid_token", message: "oidc issuer mismatch", reason: "issuer_mismatch", fields: map[string]any{"issuer": issuer}}
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, &oidcRejection{status: http.StatusUnauthorized, code: "invalid_token", message: "oidc audience mismatch", reason: "audience_mismatch", fields: map[string]any{"expected": audience, "source": source}}
	}

	email, _ := claims["email"].(string)
	if len(v.allowedEmails) > 0 {
		verified, _ := claims["email_verified"].(bool)
		if _, ok := v.allowedEmails[strings.ToLower(email)]; !ok || !verified {
			return nil, &oidcRejection{status: http.StatusForbidden, code: "forbidden", message: "caller is not allowed", reason: "caller_not_allowed", fields: map[string]any{"email": email}}
		}
	}

	subject, _ := claims["sub"].(string)
	copied := make(map[string]any, len(claims))
	for k, val := range claims {
		copied[k] = val
	}
	return &ServiceIdentity{Subject: subject, Email: email, Issuer: issuer, Audience: audience, Claims: copied}, nil
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(start))
	}
}

// extractOIDCToken prefers the Authorization bearer over the IAP assertion header.
func extractOIDCToken(r *http.Request) (token string, source string) {
	if bearer, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return bearer, "authorization"
	}
	if assertion := strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion")); assertion != "" {
		return assertion, "iap"
	}
	return "", ""
}
