package middleware

import (
	"net/http"

	"github.com/psantana5/wfrunner/pkg/auth"
	"github.com/psantana5/wfrunner/pkg/logging"
)

// RequireToken rejects requests without a valid bearer token. Paths in
// public are served without a token.
func RequireToken(verifier auth.TokenVerifier, logger *logging.Logger, public ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if err := verifier.Verify(auth.BearerToken(r)); err != nil {
				logger.Warn("Rejected unauthenticated request", logging.Fields{
					"path":           r.URL.Path,
					"remote":         r.RemoteAddr,
					logging.ErrorKey: err,
				})
				w.Header().Set("WWW-Authenticate", `Bearer realm="wfrunner"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
