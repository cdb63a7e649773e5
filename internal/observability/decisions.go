package observability

import (
	"context"

	"gatekeeper/internal/stats"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DecisionRecorder counts gatekeeper decisions by rule class and outcome.
type DecisionRecorder struct {
	decisions metric.Int64Counter
}

var _ stats.Recorder = (*DecisionRecorder)(nil)

func NewDecisionRecorder(opts ...InstrumentOption) (*DecisionRecorder, error) {
	cfg := newInstrumentConfig(opts)
	meter := cfg.meterProvider.Meter(instrumentationName)

	decisions, err := meter.Int64Counter(
		"gatekeeper.decisions",
		metric.WithDescription("Gatekeeper decisions by rule class and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}
	return &DecisionRecorder{decisions: decisions}, nil
}

func (r *DecisionRecorder) Record(ctx context.Context, ev stats.Event) error {
	r.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule_class", ev.RuleClass),
		attribute.String("outcome", string(ev.Outcome)),
		attribute.String("method", ev.Method),
	))
	return nil
}
