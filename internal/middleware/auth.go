package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hybrid-bistoon/anbar/internal/models"
	"github.com/hybrid-bistoon/anbar/internal/utils"
)

type contextKey string

const UserContextKey contextKey = "user"

// Auth verifies the Bearer JWT and stores its claims in the request context
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			// Bearer token
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			claims, err := utils.ValidateToken(parts[1], secret)
			if err != nil {
				unauthorized(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the claims stored by Auth, or nil
func ClaimsFrom(ctx context.Context) *utils.Claims {
	claims, _ := ctx.Value(UserContextKey).(*utils.Claims)
	return claims
}

// RequireAdmin lets only admin accounts through. It must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFrom(r.Context())
		if claims == nil {
			unauthorized(w, http.StatusUnauthorized, "Authorization required")
			return
		}
		if claims.Role != models.RoleAdmin {
			unauthorized(w, http.StatusForbidden, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
