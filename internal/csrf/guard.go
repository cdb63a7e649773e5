// Package csrf implements cross-site request forgery protection for the
// gatekeeper: an Origin/Referer guard applied to every state-changing
// request, and a store of one-time synchronizer tokens that individual
// handlers may additionally require.
package csrf

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"gatekeeper/internal/models"
)

const (
	msgInvalidOrigin  = "CSRF validation failed: Invalid origin"
	msgInvalidReferer = "CSRF validation failed: Invalid referer"
)

// DefaultDevOrigins are always accepted as request origins.
var DefaultDevOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

// Guard validates Origin and Referer headers against the request's own Host.
type Guard struct {
	devOrigins map[string]struct{}
}

// NewGuard creates a guard. Each dev port adds http://localhost:<port> and
// http://127.0.0.1:<port> to devOrigins. A nil devOrigins uses DefaultDevOrigins.
func NewGuard(devOrigins []string, devPorts []int) *Guard {
	if devOrigins == nil {
		devOrigins = DefaultDevOrigins
	}
	g := &Guard{devOrigins: make(map[string]struct{}, len(devOrigins)+2*len(devPorts))}
	for _, o := range devOrigins {
		g.devOrigins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	for _, p := range devPorts {
		g.devOrigins[fmt.Sprintf("http://localhost:%d", p)] = struct{}{}
		g.devOrigins[fmt.Sprintf("http://127.0.0.1:%d", p)] = struct{}{}
	}
	return g
}

// Check runs CheckOrigin on a request descriptor.
func (g *Guard) Check(req models.RequestDescriptor) *models.TerminalResponse {
	return g.CheckOrigin(req.Method, req.Origin, req.Referer, req.Host)
}

// CheckOrigin returns a 403 terminal response when a state-changing request
// carries an Origin outside the allow-list or a Referer from another host.
// Safe methods and requests without either header pass. A Referer that
// cannot be parsed is treated as hostile.
func (g *Guard) CheckOrigin(method, origin, referer, host string) *models.TerminalResponse {
	if !models.IsStateChangingMethod(method) {
		return nil
	}

	if origin != "" && !g.originAllowed(origin, host) {
		slog.Warn("CSRF origin rejected", "origin", origin, "host", host, "method", method)
		return models.NewTerminalResponse(http.StatusForbidden, msgInvalidOrigin, models.ErrCSRFValidationFailed)
	}

	if referer != "" {
		refererHost, ok := hostOfURL(referer)
		requestHost := stripPort(host)
		if !ok || (!strings.EqualFold(refererHost, requestHost) && !isLocalHost(refererHost) && !isLocalHost(requestHost)) {
			slog.Warn("CSRF referer rejected", "referer", referer, "host", host, "method", method)
			return models.NewTerminalResponse(http.StatusForbidden, msgInvalidReferer, models.ErrCSRFValidationFailed)
		}
	}

	return nil
}

// AllowedOrigins returns the allow-list for a request Host.
func (g *Guard) AllowedOrigins(host string) []string {
	out := make([]string, 0, len(g.devOrigins)+2)
	if host != "" {
		h := strings.ToLower(host)
		out = append(out, "https://"+h, "http://"+h)
	}
	for o := range g.devOrigins {
		out = append(out, o)
	}
	return out
}

func (g *Guard) originAllowed(origin, host string) bool {
	o := strings.ToLower(strings.TrimRight(origin, "/"))
	if host != "" {
		h := strings.ToLower(host)
		if o == "https://"+h || o == "http://"+h {
			return true
		}
	}
	_, ok := g.devOrigins[o]
	return ok
}

// hostOfURL extracts the port-less host of an absolute URL.
func hostOfURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Hostname(), true
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}

// isLocalHost matches localhost, 127.0.0.1 and any *.localhost name.
// The *.localhost suffix is permissive and only meant for development hosts.
func isLocalHost(host string) bool {
	h := strings.ToLower(host)
	return h == "localhost" || h == "127.0.0.1" || strings.HasSuffix(h, ".localhost")
}
