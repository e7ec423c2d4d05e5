package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// WithAdminSecret only lets through requests carrying
// "Authorization: Bearer <secret>". An empty secret rejects everything.
func WithAdminSecret(secret string, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			logger.Info("admin secret not set, admin routes are disabled")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authorized(r.Header.Get("Authorization"), secret) {
				logger.Warn("admin access denied",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				http.Error(w, "Access denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authorized(header, secret string) bool {
	if secret == "" || !strings.HasPrefix(header, bearerPrefix) {
		return false
	}
	given := strings.TrimPrefix(header, bearerPrefix)
	return subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1
}
