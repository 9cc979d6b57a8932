package api

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	principalKey contextKey = "principal"
)

// Principal identifies the caller after the auth gate. The session proxy in
// front of this service validates tokens; here we only distinguish the
// trusted service credential from an end-user principal it forwarded.
type Principal struct {
	Trusted bool
	UserID  string
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// AuthMiddleware returns middleware that resolves the caller principal.
// A bearer token equal to serviceToken marks the request trusted; any other
// request must carry a bearer token plus the proxy-resolved X-User-Id.
func AuthMiddleware(serviceToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				Unauthorized(w)
				return
			}
			if serviceToken != "" && token == serviceToken {
				ctx := context.WithValue(r.Context(), principalKey, Principal{Trusted: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
			if userID == "" {
				Deny(w, "errors.auth.invalid")
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, Principal{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireService returns middleware that admits only the trusted service
// credential. Used for publish, replace, and delete surfaces.
func RequireService(serviceToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				Unauthorized(w)
				return
			}
			if serviceToken == "" || token != serviceToken {
				Deny(w, "errors.auth.invalid")
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, Principal{Trusted: true})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal retrieves the principal stored by the auth middleware.
func GetPrincipal(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}
