// Package observability exposes OpenTelemetry metrics for the control
// plane: authorization verdicts, lock rejections, and scheduled-operation
// consumption.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Verdict labels for the decision counter.
const (
	VerdictImmediate = "immediate"
	VerdictDelayed   = "delayed"
	VerdictDenied    = "denied"
)

// Metrics holds the control-plane instruments.
type Metrics struct {
	decisions      metric.Int64Counter
	lockRejections metric.Int64Counter
	consumed       metric.Int64Counter
}

// NewMetrics creates the instruments on the given meter. Pass nil to use
// the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter("github.com/custodia-labs/vaultgate")
	}
	decisions, err := meter.Int64Counter("vaultgate.decisions",
		metric.WithDescription("Authorization verdicts by outcome"))
	if err != nil {
		return nil, err
	}
	lockRejections, err := meter.Int64Counter("vaultgate.lock_rejections",
		metric.WithDescription("Withdraw-like calls rejected by the redemption lock"))
	if err != nil {
		return nil, err
	}
	consumed, err := meter.Int64Counter("vaultgate.scheduled_consumed",
		metric.WithDescription("Scheduled operations consumed"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		decisions:      decisions,
		lockRejections: lockRejections,
		consumed:       consumed,
	}, nil
}

// RecordDecision counts one authorization verdict.
func (m *Metrics) RecordDecision(ctx context.Context, verdict string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

// RecordLockRejection counts one redemption-lock rejection.
func (m *Metrics) RecordLockRejection(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockRejections.Add(ctx, 1)
}

// RecordConsumed counts one consumed scheduled operation.
func (m *Metrics) RecordConsumed(ctx context.Context) {
	if m == nil {
		return
	}
	m.consumed.Add(ctx, 1)
}
