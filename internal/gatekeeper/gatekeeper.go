// Package gatekeeper runs every inbound request through rate limiting, the
// CSRF origin guard and the JSON content-type gate, in that order, and
// stamps the security header set on whatever response results.
//
// A Gatekeeper owns the counter store, the CSRF token store and their sweep
// goroutines. Create one per process with New and stop it with Close.
package gatekeeper

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"gatekeeper/internal/csrf"
	"gatekeeper/internal/headers"
	"gatekeeper/internal/models"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/stats"
)

const msgContentType = "Content-Type must be application/json"

// Gatekeeper is the request gatekeeping pipeline.
type Gatekeeper struct {
	limiter     *ratelimit.Limiter
	guard       *csrf.Guard
	tokens      *csrf.TokenStore
	headers     *headers.Set
	dispatcher  *stats.Dispatcher
	now         func() time.Time
	enforceJSON bool
	trustProxy  bool

	closeOnce sync.Once
}

// Option customizes a Gatekeeper.
type Option func(*options)

type options struct {
	store       ratelimit.Store
	limiterOpts []ratelimit.LimiterOption
	recorders   []stats.Recorder
	statsBuffer int
	now         func() time.Time
	random      io.Reader
}

// WithStore replaces the in-memory counter store, typically with an
// instrumented wrapper. The Gatekeeper takes ownership and closes it.
func WithStore(store ratelimit.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLimiterOptions passes options to the rate limiter.
func WithLimiterOptions(opts ...ratelimit.LimiterOption) Option {
	return func(o *options) {
		o.limiterOpts = append(o.limiterOpts, opts...)
	}
}

// WithRecorders sends every decision to the given recorders.
func WithRecorders(recorders ...stats.Recorder) Option {
	return func(o *options) {
		o.recorders = append(o.recorders, recorders...)
	}
}

// WithStatsBuffer sets the decision queue length.
func WithStatsBuffer(n int) Option {
	return func(o *options) {
		o.statsBuffer = n
	}
}

// WithClock sets the time source of the default counter store and the
// token store.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithTokenRandom sets the entropy source for CSRF tokens.
func WithTokenRandom(r io.Reader) Option {
	return func(o *options) {
		o.random = r
	}
}

// New builds a Gatekeeper and starts its sweep goroutines.
func New(cfg models.GatekeeperConfig, opts ...Option) *Gatekeeper {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	store := o.store
	if store == nil {
		store = ratelimit.NewMemoryStore(cfg.CounterSweepInterval, ratelimit.WithClock(o.now))
	}

	tokenOpts := []csrf.TokenOption{csrf.WithTokenClock(o.now)}
	if o.random != nil {
		tokenOpts = append(tokenOpts, csrf.WithRandom(o.random))
	}

	g := &Gatekeeper{
		limiter:     ratelimit.NewLimiter(store, o.limiterOpts...),
		guard:       csrf.NewGuard(cfg.DevOrigins, cfg.DevPorts),
		tokens:      csrf.NewTokenStore(cfg.TokenTTL, cfg.TokenSweepInterval, tokenOpts...),
		headers:     headers.NewSet(cfg.HSTSPreload),
		now:         o.now,
		enforceJSON: cfg.EnforceJSONContentType,
		trustProxy:  cfg.TrustProxyHeaders,
	}
	if len(o.recorders) > 0 {
		g.dispatcher = stats.NewDispatcher(o.statsBuffer, o.recorders...)
	}
	return g
}

// Evaluate decides on one request. It returns nil to let the request through
// or the terminal response to send instead of the handler. Terminal
// responses already carry the security headers.
func (g *Gatekeeper) Evaluate(ctx context.Context, req models.RequestDescriptor) *models.TerminalResponse {
	resp, c := g.limiter.Evaluate(ctx, req)
	outcome := stats.OutcomeRateLimited

	if resp == nil {
		resp = g.guard.Check(req)
		outcome = stats.OutcomeCSRFRejected
	}

	if resp == nil && g.enforceJSON && requiresJSON(c.Class, req.Method) && !isJSON(req.ContentType) {
		slog.Debug("Rejected non-JSON body",
			"path", req.Path,
			"method", req.Method,
			"content_type", req.ContentType,
		)
		resp = models.NewTerminalResponse(http.StatusBadRequest, msgContentType, models.ErrContentTypeInvalid)
		outcome = stats.OutcomeContentTypeRejected
	}

	if resp == nil {
		outcome = stats.OutcomeAllowed
	} else {
		g.headers.Apply(resp.Headers)
	}

	g.dispatcher.Record(stats.Event{
		RuleClass: string(c.Class),
		Outcome:   outcome,
		Method:    req.Method,
		At:        g.now(),
	})
	return resp
}

// IssueToken mints a synchronizer token for sessionID.
func (g *Gatekeeper) IssueToken(sessionID string) (*models.CSRFTokenResponse, error) {
	token, expiresAt, err := g.tokens.Issue(sessionID)
	if err != nil {
		return nil, err
	}
	return models.NewCSRFTokenResponse(token, expiresAt), nil
}

// ValidateToken consumes a synchronizer token.
func (g *Gatekeeper) ValidateToken(sessionID, token string) bool {
	return g.tokens.Validate(sessionID, token)
}

// Tokens exposes the token store for handlers that require a token.
func (g *Gatekeeper) Tokens() *csrf.TokenStore {
	return g.tokens
}

// Headers returns the security header set.
func (g *Gatekeeper) Headers() *headers.Set {
	return g.headers
}

// ActiveCounters returns the number of live rate-limit counters.
func (g *Gatekeeper) ActiveCounters() int {
	return g.limiter.Len()
}

// ActiveTokens returns the number of stored CSRF tokens.
func (g *Gatekeeper) ActiveTokens() int {
	return g.tokens.Len()
}

// DroppedEvents returns the number of decision events lost to a full queue.
func (g *Gatekeeper) DroppedEvents() int64 {
	return g.dispatcher.Dropped()
}

// Close stops the sweeps and flushes pending decision events. It is safe to
// call more than once.
func (g *Gatekeeper) Close() {
	g.closeOnce.Do(func() {
		g.limiter.Close()
		g.tokens.Close()
		g.dispatcher.Close()
	})
}

// requiresJSON reports whether a request of this class and method must
// declare a JSON body. Auth and session routes accept form posts, and DELETE
// is exempt because it carries no body.
func requiresJSON(class ratelimit.RuleClass, method string) bool {
	switch class {
	case ratelimit.ClassAPI, ratelimit.ClassResume, ratelimit.ClassAI, ratelimit.ClassTemplate:
	default:
		return false
	}
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
