package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey returns a bcrypt hash of key for use with APIKeyAuth
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// APIKeyAuth creates middleware that checks the API key header against a
// bcrypt hash. An empty hash disables authentication. Health and version
// endpoints and non-API paths are always open.
func APIKeyAuth(apiKeyHash, headerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKeyHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/health" || path == "/api/health" || path == "/api/version" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(path, "/api") {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" {
				// browsers cannot set headers on websocket upgrades
				providedKey = r.URL.Query().Get("apiKey")
			}
			if providedKey == "" {
				unauthorized(w, "API key is required.")
				return
			}

			if bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(providedKey)) != nil {
				unauthorized(w, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
