package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const operatorKey contextKey = "operator"

// OperatorClaims is the payload of tokens issued to the operator panel. The
// org claim scopes which tenant the token acts on.
type OperatorClaims struct {
	OrgID string `json:"org"`
	jwt.RegisteredClaims
}

// OperatorJWT guards the operator endpoints (reservation status, quote and
// human-handoff flags) with an HS256 token. An empty secret keeps the group
// closed rather than open.
func OperatorJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "operator access not configured", http.StatusUnauthorized)
				return
			}
			raw, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims := &OperatorClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid operator token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), operatorKey, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimPrefix(auth, prefix), true
}

// OperatorFromContext returns the claims set by OperatorJWT.
func OperatorFromContext(ctx context.Context) (OperatorClaims, bool) {
	c, ok := ctx.Value(operatorKey).(OperatorClaims)
	return c, ok
}
