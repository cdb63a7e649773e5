package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"gatekeeper/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" && r.URL.Path != "/api/health"
			}),
		))
	}
}

// WithGatekeeper puts the gatekeeping pipeline in front of every route.
func WithGatekeeper(middleware mux.MiddlewareFunc) RouteOption {
	return func(r *mux.Router) {
		r.Use(middleware)
	}
}

// SetupRoutes builds the router. The gatekeeper's own endpoints are served
// directly and everything else goes to business, the host application's
// handler; a nil business handler answers JSON 404. Options run after the
// recovery, request ID and logging middleware, so WithGatekeeper should be
// passed last.
//
// The returned handler stamps the security header set outside the router,
// so recovered panics and the router's own path-cleaning redirects carry
// the headers too.
func SetupRoutes(handlers *Handlers, config *models.Config, business http.Handler, opts ...RouteOption) http.Handler {
	router := mux.NewRouter()

	router.Use(recoveryMiddleware)
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)

	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/csrf", handlers.IssueCSRFToken).Methods("GET")
	router.HandleFunc("/csrf", methodNotAllowedHandler)

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/health", handlers.HealthCheck).Methods("GET")

	if business == nil {
		business = http.HandlerFunc(notFoundHandler)
	}
	if paths := config.Gatekeeper.TokenProtectedPaths; len(paths) > 0 {
		business = tokenProtected(paths, handlers.RequireToken(business), business)
	}
	router.PathPrefix("/").Handler(business)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return handlers.gate.Headers().Middleware(router)
}

// tokenProtected routes requests under any of prefixes to protected and the
// rest to open.
func tokenProtected(prefixes []string, protected, open http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				protected.ServeHTTP(w, r)
				return
			}
		}
		open.ServeHTTP(w, r)
	})
}

func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.NewErrorResponse(message))
}
