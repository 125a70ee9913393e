package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PabloGalante/deal-assistant/internal/observability"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, observability.RequestIDFromContext(ctx))

	id := observability.NewRequestID()
	ctx = observability.WithRequestID(ctx, id)
	assert.Equal(t, id, observability.RequestIDFromContext(ctx))
	assert.NotNil(t, observability.LoggerFromContext(ctx))
}

func TestMetricsAreNilSafe(t *testing.T) {
	var m *observability.Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.Turn(ctx, "local")
		m.Lookup(ctx, observability.OutcomeOK)
		m.Submission(ctx, observability.OutcomeError)
		m.Exchange(ctx, observability.OutcomeOK)
	})

	m = observability.NewMetrics()
	assert.NotPanics(t, func() { m.Turn(ctx, "delegated") })
}
