package csrf

import (
	"log/slog"
	"net/http"

	"gatekeeper/internal/models"
)

// TokenHeader carries the synchronizer token on requests to handlers wrapped
// by RequireToken.
const TokenHeader = "X-CSRF-Token"

const msgInvalidToken = "CSRF validation failed: Invalid token"

// SessionFunc returns the session identifier a request belongs to.
type SessionFunc func(r *http.Request) string

// RequireToken wraps a handler so that state-changing requests must present
// a live token for their session in the X-CSRF-Token header. The token is
// consumed on success.
func RequireToken(store *TokenStore, session SessionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !models.IsStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if !store.Validate(session(r), r.Header.Get(TokenHeader)) {
				slog.Warn("CSRF token rejected", "method", r.Method, "path", r.URL.Path)
				resp := models.NewTerminalResponse(http.StatusForbidden, msgInvalidToken, models.ErrCSRFValidationFailed)
				if err := resp.Write(w); err != nil {
					slog.Error("Failed to write CSRF rejection", "error", err)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
