package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordersAreNilSafe(t *testing.T) {
	ctx := context.Background()
	var m *Metrics
	m.RecordDecision(ctx, VerdictDenied)
	m.RecordLockRejection(ctx)
	m.RecordConsumed(ctx)
}

func TestCountersRecord(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	m.RecordDecision(ctx, VerdictImmediate)
	m.RecordDecision(ctx, VerdictImmediate)
	m.RecordDecision(ctx, VerdictDenied)
	m.RecordLockRejection(ctx)
	m.RecordConsumed(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	seen := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, inst := range sm.Metrics {
			seen[inst.Name] = true
		}
	}
	require.True(t, seen["vaultgate.decisions"])
	require.True(t, seen["vaultgate.lock_rejections"])
	require.True(t, seen["vaultgate.scheduled_consumed"])
}
