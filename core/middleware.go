package core

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// BlacklistMiddleware rejects requests from blacklisted IPs with 403. Lookup failures are
// logged and the request is let through.
func (a *AuthService) BlacklistMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := a.ClientIP(r)

		blocked, err := a.blacklist.IsBlocked(r.Context(), ip)
		if err != nil {
			slog.Error("Blacklist lookup failed", "ip_address", ip, "error", err)
		}
		if blocked {
			slog.Debug("Request from blacklisted IP rejected", "ip_address", ip, "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware requires a valid Bearer access token and stores its claims in the request context
func (a *AuthService) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			slog.Debug("No access token provided in request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := a.signer.ParseAccessToken(token)
		if err != nil {
			slog.Debug("Invalid access token", "token_prefix", token[:min(8, len(token))], "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only tokens whose role is one of roles. It must run after AuthMiddleware.
func (a *AuthService) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r)
			if claims == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			slog.Debug("Role check failed", "account_id", claims.Subject, "role", claims.Role)
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

// GetClaimsFromContext retrieves the access token claims stored by AuthMiddleware
func GetClaimsFromContext(r *http.Request) *TokenClaims {
	if claims, ok := r.Context().Value(claimsContextKey).(*TokenClaims); ok {
		return claims
	}
	return nil
}
