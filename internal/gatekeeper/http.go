package gatekeeper

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"gatekeeper/internal/csrf"
	"gatekeeper/internal/models"

	"github.com/gorilla/mux"
)

// SessionCookies are checked in order for the session identifier.
var SessionCookies = []string{
	"__Secure-next-auth.session-token",
	"next-auth.session-token",
	"session",
}

// CookieSession returns a SessionFunc reading the first non-empty cookie
// among names, or "anonymous".
func CookieSession(names ...string) csrf.SessionFunc {
	if len(names) == 0 {
		names = SessionCookies
	}
	return func(r *http.Request) string {
		for _, name := range names {
			if c, err := r.Cookie(name); err == nil && c.Value != "" {
				return c.Value
			}
		}
		return models.AnonymousIdentity
	}
}

// Describe builds the request descriptor for r.
func Describe(r *http.Request, trustProxy bool, session csrf.SessionFunc) models.RequestDescriptor {
	d := models.RequestDescriptor{
		Method:       r.Method,
		Path:         r.URL.Path,
		Origin:       r.Header.Get("Origin"),
		Referer:      r.Header.Get("Referer"),
		Host:         r.Host,
		ContentType:  r.Header.Get("Content-Type"),
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		CallerIP:     ClientIP(r, trustProxy),
	}
	if session != nil {
		d.SessionID = session(r)
	}
	return d
}

// ClientIP resolves the caller address. With trustProxy the first
// X-Forwarded-For entry wins, then X-Real-IP, then the connection address.
// An address that does not parse as an IP is skipped. The result is empty
// when nothing resolves.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := normalizeIP(first); ip != "" {
				return ip
			}
		}
		if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return normalizeIP(host)
}

func normalizeIP(s string) string {
	ip := net.ParseIP(strings.Trim(strings.TrimSpace(s), "[]"))
	if ip == nil {
		return ""
	}
	return ip.String()
}

// Middleware runs the pipeline in front of next. Requests that pass reach
// next with the security headers stamped on its response; rejected ones get
// the terminal response.
func (g *Gatekeeper) Middleware(session csrf.SessionFunc) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return g.headers.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			desc := Describe(r, g.trustProxy, session)

			if resp := g.Evaluate(r.Context(), desc); resp != nil {
				if err := resp.Write(w); err != nil {
					slog.Error("Failed to write gatekeeper response", "error", err, "path", desc.Path)
				}
				return
			}

			next.ServeHTTP(w, r)
		}))
	}
}
