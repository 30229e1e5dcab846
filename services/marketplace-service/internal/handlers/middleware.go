package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/tutorhive/tutorhive/libs/auth"
	"github.com/tutorhive/tutorhive/libs/httpx"
)

type claimsKey struct{}

// RequireAuth verifies the Bearer token on every request and stores the
// claims in the request context. Requests without a valid token never reach
// the wrapped handler.
func RequireAuth(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			claims, err := auth.ParseAndVerifyHS256(token, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok
}

// mustClaims pulls verified claims from the context, writing 401 when the
// request skipped RequireAuth.
func mustClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}
