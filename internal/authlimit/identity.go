// Package authlimit resolves caller identity from inbound requests and
// enforces per-identity rate limits and group-based authorization.
package authlimit

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the authenticated caller a request or WebSocket session acts
// on behalf of.
type Identity struct {
	Email  string
	Groups []string
}

// InGroup reports whether the identity belongs to group.
func (id Identity) InGroup(group string) bool {
	for _, g := range id.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// identityContextKey is an unexported empty struct so no other package's
// context key can collide with it.
type identityContextKey struct{}

// WithIdentity stores id in ctx for downstream handlers to retrieve via
// [IdentityFromContext].
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext retrieves the Identity stored by [WithIdentity].
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

const (
	emailHeader  = "X-User-Email"
	groupsHeader = "X-User-Groups"
)

// Resolver extracts an Identity from an inbound HTTP request. When DebugMode
// is set and DebugIdentity has an email, DebugIdentity is used whenever the
// identity header is absent, for local development against a gateway
// instance with no reverse proxy doing real authentication in front of it.
type Resolver struct {
	DebugMode     bool
	DebugIdentity Identity
}

// Resolve extracts an Identity from r's headers. ok is false when no
// identity header was present and no debug fallback applies.
func (res Resolver) Resolve(r *http.Request) (Identity, bool) {
	email := r.Header.Get(emailHeader)
	if email == "" {
		if res.DebugMode && res.DebugIdentity.Email != "" {
			return res.DebugIdentity, true
		}
		return Identity{}, false
	}

	var groups []string
	if raw := r.Header.Get(groupsHeader); raw != "" {
		for _, g := range strings.Split(raw, ",") {
			if g = strings.TrimSpace(g); g != "" {
				groups = append(groups, g)
			}
		}
	}
	return Identity{Email: email, Groups: groups}, true
}
