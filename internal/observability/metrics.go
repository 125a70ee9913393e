package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/PabloGalante/deal-assistant"

// Outcome labels shared by the counters.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics holds the assistant's counters. The zero value and a nil *Metrics
// are both safe to use and record nothing.
type Metrics struct {
	turns       metric.Int64Counter
	lookups     metric.Int64Counter
	submissions metric.Int64Counter
	exchanges   metric.Int64Counter
}

// NewMetrics registers counters on the global meter provider. Without an SDK
// provider installed the counters are no-ops.
func NewMetrics() *Metrics {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(m metric.Meter) *Metrics {
	fallback := noop.Meter{}

	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn("metric registration failed", "metric", name, "error", err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return &Metrics{
		turns:       counter("intake.turns", "User turns accepted by a conversation controller"),
		lookups:     counter("intake.company_lookups", "Company name resolutions by outcome"),
		submissions: counter("intake.submissions", "Deal creation attempts by outcome"),
		exchanges:   counter("relay.exchanges", "Delegated chat exchanges by outcome"),
	}
}

func (m *Metrics) Turn(ctx context.Context, variant string) {
	if m == nil || m.turns == nil {
		return
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("variant", variant)))
}

func (m *Metrics) Lookup(ctx context.Context, outcome string) {
	if m == nil || m.lookups == nil {
		return
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) Submission(ctx context.Context, outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) Exchange(ctx context.Context, outcome string) {
	if m == nil || m.exchanges == nil {
		return
	}
	m.exchanges.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
