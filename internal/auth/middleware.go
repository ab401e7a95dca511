//
//
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Claims represents the parsed token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}

type contextKey struct{}

// Scope constants.
const (
	ScopeRead      = "read"
	ScopeTelemetry = "telemetry"
)

// QueryTokenParam carries the token when no Authorization header can be sent.
const QueryTokenParam = "access_token"

// TokenVerifier verifies raw tokens. *Verifier satisfies it.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

// Middleware handles authentication and authorization.
type Middleware struct {
	verifier TokenVerifier
}

// NewMiddleware creates auth middleware backed by verifier.
func NewMiddleware(verifier TokenVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// Require returns router middleware that rejects requests without a valid
// token granting every listed scope. Claims are stored on the request context.
func (m *Middleware) Require(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			claims, err := m.verifier.VerifyToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
				return
			}

			for _, s := range scopes {
				if !claims.HasScope(s) {
					writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// extractToken reads the bearer token from the Authorization header, falling
// back to the access_token query parameter.
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if q := r.URL.Query().Get(QueryTokenParam); q != "" {
			return q, nil
		}
		return "", fmt.Errorf("missing Authorization header")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

// WithClaims returns ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext returns the claims stored by Require, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}

// SubjectFromContext returns the authenticated subject, or "".
func SubjectFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}

// writeError writes an error response in the API envelope format.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"result":        "error",
		"code":          code,
		"message":       message,
		"correlationId": uuid.NewString(),
	})
}
