package main

import (
	"crypto/subtle"
	"net/http"
	"os"

	"mailprobe/internal/errors"
)

// apiKeyMiddleware guards the /api surface with the X-API-Key header. When
// no key is configured the check is skipped; production deployments are
// forced to set one by the config security validation.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := os.Getenv("MAILPROBE_API_KEY")
		if expected == "" {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			s.logger.WithField("path", r.URL.Path).Warn("Rejected request with invalid API key")
			s.writeError(w, r, errors.NewAuthError("invalid or missing API key"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
