package ratelimit

import "time"

// RuleClass names a category of routes sharing one Rule.
type RuleClass string

const (
	ClassNone     RuleClass = "none"
	ClassAuth     RuleClass = "auth"
	ClassSession  RuleClass = "session"
	ClassAPI      RuleClass = "api"
	ClassResume   RuleClass = "resume"
	ClassAI       RuleClass = "ai"
	ClassTemplate RuleClass = "template"
)

// Rule is the immutable limit applied to every key of a rule class.
type Rule struct {
	MaxRequests  int           // requests accepted per window, > 0
	Window       time.Duration // fixed window length, > 0
	ErrorMessage string        // user-visible reason in the 429 body

	// PathSensitive appends the request path to the key so each route
	// gets its own bucket per caller.
	PathSensitive bool
}

// Valid reports whether the rule can be enforced.
func (r Rule) Valid() bool {
	return r.MaxRequests > 0 && r.Window > 0
}

// RetryAfterSeconds is the advisory Retry-After value: the full window
// rounded up to whole seconds.
func (r Rule) RetryAfterSeconds() int {
	secs := int(r.Window / time.Second)
	if r.Window%time.Second != 0 {
		secs++
	}
	return secs
}

// DefaultRules is the compiled-in rule table.
var DefaultRules = map[RuleClass]Rule{
	ClassAuth: {
		MaxRequests:   5,
		Window:        15 * time.Minute,
		ErrorMessage:  "Too many authentication attempts",
		PathSensitive: true,
	},
	ClassSession: {
		MaxRequests:  100,
		Window:       15 * time.Minute,
		ErrorMessage: "Too many session requests",
	},
	ClassAPI: {
		MaxRequests:   100,
		Window:        15 * time.Minute,
		ErrorMessage:  "Too many API requests",
		PathSensitive: true,
	},
	ClassResume: {
		MaxRequests:   50,
		Window:        15 * time.Minute,
		ErrorMessage:  "Too many resume operations",
		PathSensitive: true,
	},
	ClassAI: {
		MaxRequests:  20,
		Window:       time.Minute,
		ErrorMessage: "Too many AI requests",
	},
	ClassTemplate: {
		MaxRequests:  100,
		Window:       15 * time.Minute,
		ErrorMessage: "Too many template requests",
	},
}
