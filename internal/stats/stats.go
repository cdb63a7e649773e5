// Package stats counts gatekeeper decisions. Recording is best-effort: a
// failing or slow recorder never delays or changes a decision.
package stats

import (
	"context"
	"time"
)

// Outcome is the result of one gatekeeper decision.
type Outcome string

const (
	OutcomeAllowed             Outcome = "allowed"
	OutcomeRateLimited         Outcome = "rate_limited"
	OutcomeCSRFRejected        Outcome = "csrf_rejected"
	OutcomeContentTypeRejected Outcome = "content_type_rejected"
)

// Event describes a single decision.
type Event struct {
	RuleClass string
	Outcome   Outcome
	Method    string
	At        time.Time
}

// Recorder persists decision events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}
