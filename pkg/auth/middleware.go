package auth

import (
	"net/http"
	"strings"
)

// TokenQueryParam carries the token for clients that cannot set headers
// during a websocket handshake.
const TokenQueryParam = "token"

// TokenFromRequest returns the bearer token from the Authorization header,
// falling back to the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if t := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); t != "" {
			return t
		}
	}
	return r.URL.Query().Get(TokenQueryParam)
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware verifies the request token and stores the Identity and raw
// token in the request context. Failures are rendered by onError, or as a
// plain 401 when onError is nil.
func Middleware(v *Verifier, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			id, err := v.Verify(token)
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx := WithToken(r.Context(), token)
			ctx = WithIdentity(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
