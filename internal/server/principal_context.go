package server

import (
	"context"
	"net/http"
	"strings"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

// Principal is the caller as asserted by the fronting gateway.
type Principal struct {
	ActorID  string
	RoleSlug string
}

type principalContextKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func currentPrincipal(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalContextKey{})
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func withPrincipalFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := strings.TrimSpace(r.Header.Get(headerActorRole))
		if role == "" {
			next.ServeHTTP(w, r)
			return
		}
		p := Principal{
			ActorID:  strings.TrimSpace(r.Header.Get(headerActorID)),
			RoleSlug: role,
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}
