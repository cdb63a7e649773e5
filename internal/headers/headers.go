// Package headers stamps the hardening header set onto every response the
// service produces, terminal rejections included. A header already present
// on the response is never overwritten.
package headers

import (
	"net/http"
)

const (
	hstsValue = "max-age=31536000; includeSubDomains"

	// ContentSecurityPolicy is the fixed policy for every response.
	ContentSecurityPolicy = "default-src 'self'; " +
		"script-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data: https:; " +
		"font-src 'self' data:; " +
		"connect-src 'self'; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'; " +
		"object-src 'none'"

	// PermissionsPolicy denies sensor, camera, microphone and payment APIs.
	PermissionsPolicy = "accelerometer=(), camera=(), geolocation=(), gyroscope=(), " +
		"magnetometer=(), microphone=(), payment=(), usb=()"
)

// Header is one entry of the security header set.
type Header struct {
	Name  string
	Value string
}

// Set is the ordered security header set.
type Set struct {
	headers []Header
}

// NewSet builds the header set. With preload the HSTS value asks for
// inclusion in browser preload lists.
func NewSet(preload bool) *Set {
	hsts := hstsValue
	if preload {
		hsts += "; preload"
	}

	return &Set{headers: []Header{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"X-XSS-Protection", "1; mode=block"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Strict-Transport-Security", hsts},
		{"Content-Security-Policy", ContentSecurityPolicy},
		{"Permissions-Policy", PermissionsPolicy},
		{"X-DNS-Prefetch-Control", "off"},
		{"X-Download-Options", "noopen"},
		{"X-Permitted-Cross-Domain-Policies", "none"},
	}}
}

// Headers returns a copy of the set in application order.
func (s *Set) Headers() []Header {
	out := make([]Header, len(s.headers))
	copy(out, s.headers)
	return out
}

// Apply adds every header of the set that h does not already define.
func (s *Set) Apply(h http.Header) {
	for _, hdr := range s.headers {
		if _, ok := h[http.CanonicalHeaderKey(hdr.Name)]; ok {
			continue
		}
		h.Set(hdr.Name, hdr.Value)
	}
}

// Middleware stamps the set onto the response of next just before its
// status line is written, so headers a handler sets take precedence.
func (s *Set) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &stampingWriter{ResponseWriter: w, set: s}
		next.ServeHTTP(sw, r)
		sw.stamp()
	})
}

type stampingWriter struct {
	http.ResponseWriter
	set     *Set
	stamped bool
}

func (w *stampingWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	w.set.Apply(w.ResponseWriter.Header())
}

func (w *stampingWriter) WriteHeader(status int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(status)
}

func (w *stampingWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

func (w *stampingWriter) Flush() {
	w.stamp()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *stampingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
