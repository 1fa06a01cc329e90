package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const providerAnonymous = "anonymous"

// Identity captures the authenticated customer extracted from a Firebase ID token.
type Identity struct {
	UID            string
	Email          string
	Locale         string
	SignInProvider string

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// Anonymous reports whether the customer signed in without credentials.
func (i *Identity) Anonymous() bool {
	if i == nil {
		return false
	}
	return strings.EqualFold(i.SignInProvider, providerAnonymous)
}

// CustomerID is the handle under which carts, sessions and orders are stored.
func (i *Identity) CustomerID() string {
	if i == nil {
		return ""
	}
	return strings.TrimSpace(i.UID)
}

type identityContextKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil || identity.CustomerID() == "" {
		return nil, false
	}
	return identity, true
}

// IsAuthorized reports whether the request carries a customer allowed to check out.
func IsAuthorized(ctx context.Context) bool {
	_, ok := IdentityFromContext(ctx)
	return ok
}
