package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// AccessValidator decides whether a presented API key grants access.
type AccessValidator interface {
	IsValid(ctx context.Context, key string) bool
}

// APIKeyAuth gates requests on a valid API key. The key is taken from the
// Authorization header ("Bearer <key>" or "ApiKey <key>") or, for
// EventSource clients that cannot set headers, from the access_token
// query parameter.
func APIKeyAuth(gate AccessValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r)
			if key == "" {
				logger.WarnContext(r.Context(), "request missing API key", "path", r.URL.Path)
				denied(w, "API key required")
				return
			}
			if !gate.IsValid(r.Context(), key) {
				logger.WarnContext(r.Context(), "request with invalid API key", "path", r.URL.Path)
				denied(w, "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractKey(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && (parts[0] == "Bearer" || parts[0] == "ApiKey") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func denied(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
