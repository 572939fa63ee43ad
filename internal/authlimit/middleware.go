package authlimit

import (
	"net/http"
	"strings"

	"github.com/MrWong99/chatgw/internal/observe"
)

// Gate wires identity resolution, rate limiting, and the admin group check
// into a chi-compatible middleware chain.
type Gate struct {
	Resolver   Resolver
	Limiter    *Limiter
	AdminGroup string

	// OriginPatterns lists allowed WebSocket origins, passed through to
	// gwsession.Accept by callers that need it. Gate itself doesn't dial
	// websockets; it only resolves identity and enforces rate limits on
	// the upgrade request like any other HTTP route.
	OriginPatterns []string
}

// Identify resolves the caller's identity and stores it on the request
// context, rejecting the request with 401 if none could be resolved.
func (g Gate) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.Resolver.Resolve(r)
		if !ok {
			http.Error(w, "missing caller identity", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RateLimit rejects requests from an identity that has exceeded its bucket
// with 429. Identify must run earlier in the chain.
func (g Gate) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "missing caller identity", http.StatusUnauthorized)
			return
		}
		if g.Limiter != nil && !g.Limiter.Allow(id.Email) {
			observe.DefaultMetrics().RecordRateLimitRejection(r.Context(), r.URL.Path)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose identity is not a member of
// AdminGroup with 403. Identify must run earlier in the chain.
func (g Gate) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || g.AdminGroup == "" || !id.InGroup(g.AdminGroup) {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AllowOrigin reports whether origin matches one of the configured
// patterns. A pattern of "*" matches any origin; otherwise patterns are
// matched by exact host or by a leading "*." wildcard subdomain match.
func (g Gate) AllowOrigin(origin string) bool {
	if len(g.OriginPatterns) == 0 {
		return true
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	for _, p := range g.OriginPatterns {
		if p == "*" || p == host {
			return true
		}
		if suffix, ok := strings.CutPrefix(p, "*."); ok && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
