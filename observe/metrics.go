package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records outcomes of tool invocations.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordInvocation records one invocation with its outcome and duration.
	RecordInvocation(ctx context.Context, tool, outcome string, duration time.Duration)
}

// metricsImpl is the concrete OTel-backed implementation of Metrics.
type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates a Metrics instance on the given meter. A nil meter
// uses the global meter provider.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("forgegate")
	}

	totalCount, err := meter.Int64Counter(
		"invoke.total",
		metric.WithDescription("Total number of tool invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"invoke.errors",
		metric.WithDescription("Total number of failed tool invocations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"invoke.duration_ms",
		metric.WithDescription("Tool invocation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

// RecordInvocation records metrics for one invocation.
func (m *metricsImpl) RecordInvocation(ctx context.Context, tool, outcome string, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)

	m.totalCount.Add(ctx, 1, opt)
	if outcome != "succeeded" {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// noopMetrics is a Metrics implementation that does nothing.
type noopMetrics struct{}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) RecordInvocation(context.Context, string, string, time.Duration) {}
