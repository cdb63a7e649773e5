// Package ratelimit provides per-route-class request throttling for the
// gatekeeper. Requests are classified into rule classes by path prefix and
// counted in fixed windows per key. A fixed window admits up to twice the
// nominal limit for a caller straddling a window boundary; that trade is
// accepted for O(1) memory and O(1) checks per key.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gatekeeper/internal/models"

	"golang.org/x/time/rate"
)

var (
	// ErrInvalidRule is returned when a rule has a non-positive limit or window.
	ErrInvalidRule = errors.New("invalid rate limit rule")

	// ErrEmptyKey is returned when a counter is requested without a key.
	ErrEmptyKey = errors.New("empty rate limit key")
)

// Store defines the counter contract. Implementations must be safe for
// concurrent use, and CheckAndIncrement must be linearizable per key.
type Store interface {
	// CheckAndIncrement counts a request against key under rule and
	// reports whether it is within the current window's limit.
	CheckAndIncrement(ctx context.Context, key string, rule Rule) (Decision, error)

	// Len returns the number of live counters.
	Len() int

	// Close stops background goroutines and releases resources.
	Close()
}

// Decision is the outcome of a single CheckAndIncrement call.
type Decision struct {
	Allowed    bool
	Count      int           // requests counted in the current window
	ResetAt    time.Time     // when the current window ends
	RetryAfter time.Duration // time left in the window, only set when denied
}

// Limiter applies the rule table to requests.
type Limiter struct {
	store      Store
	rules      map[RuleClass]Rule
	prefixes   []PrefixRule
	classifier *Classifier
	denyLog    rate.Sometimes
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithRules replaces the rule table.
func WithRules(rules map[RuleClass]Rule) LimiterOption {
	return func(l *Limiter) {
		l.rules = rules
	}
}

// WithPrefixes replaces the path prefix table.
func WithPrefixes(prefixes []PrefixRule) LimiterOption {
	return func(l *Limiter) {
		l.prefixes = prefixes
	}
}

// NewLimiter creates a limiter over store using DefaultRules and DefaultPrefixes.
func NewLimiter(store Store, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		store:   store,
		rules:   DefaultRules,
		denyLog: rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.classifier = NewClassifier(l.prefixes, l.rules)
	return l
}

// Classify exposes the limiter's classifier.
func (l *Limiter) Classify(req models.RequestDescriptor) Classification {
	return l.classifier.Classify(req)
}

// Evaluate classifies req and counts it. It returns a 429 terminal response
// when the key is over its limit and nil otherwise. Store failures and
// missing rules fail open.
func (l *Limiter) Evaluate(ctx context.Context, req models.RequestDescriptor) (*models.TerminalResponse, Classification) {
	c := l.classifier.Classify(req)
	if !c.Limited() {
		return nil, c
	}

	rule, ok := l.rules[c.Class]
	if !ok {
		slog.Warn("No rate limit rule for class", "rule_class", c.Class)
		return nil, c
	}

	decision, err := l.store.CheckAndIncrement(ctx, c.Key, rule)
	if err != nil {
		slog.Warn("Rate limit store failed, allowing request",
			"rule_class", c.Class,
			"error", err,
		)
		return nil, c
	}

	if decision.Allowed {
		return nil, c
	}

	retryAfter := rule.RetryAfterSeconds()
	l.denyLog.Do(func() {
		slog.Warn("Rate limit exceeded",
			"key", c.Key,
			"rule_class", c.Class,
			"limit", rule.MaxRequests,
			"retry_after", retryAfter,
		)
	})

	resp := models.NewTerminalResponse(http.StatusTooManyRequests, rule.ErrorMessage, models.ErrRateLimitExceeded)
	resp.Headers.Set("Retry-After", strconv.Itoa(retryAfter))
	resp.Headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.MaxRequests))
	resp.Headers.Set("X-RateLimit-Remaining", "0")
	resp.Headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	return resp, c
}

// Len returns the number of live counters in the underlying store.
func (l *Limiter) Len() int {
	return l.store.Len()
}

// Close stops the underlying store.
func (l *Limiter) Close() {
	l.store.Close()
}
