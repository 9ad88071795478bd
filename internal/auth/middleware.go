package auth

import (
	"context"
	"log/slog"
	"net/http"
)

type ctxKey int

const claimsKey ctxKey = iota

// ContextWithClaims returns a context carrying the validated session claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext retrieves the session claims stored by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// Middleware rejects requests without a valid session token and stores the
// claims in the request context for handlers.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractTokenFromRequest(r)
		if token == "" {
			http.Error(w, "Unauthorized: token required", http.StatusUnauthorized)
			return
		}

		claims, err := s.ValidateToken(token)
		if err != nil {
			slog.Warn("[AUTH] token validation failed", "path", r.URL.Path, "error", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}
