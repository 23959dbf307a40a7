package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the dispatcher instruments.
type Metrics struct {
	runsTotal     metric.Int64Counter
	outcomesTotal metric.Int64Counter
	pollTicks     metric.Int64Counter
	callDuration  metric.Float64Histogram
}

// NewMetrics registers instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/acme/ai-call-dispatch/dispatch")

	var (
		m   Metrics
		err error
	)

	m.runsTotal, err = meter.Int64Counter(
		"dispatch_runs_total",
		metric.WithDescription("Dispatch runs by how they ended"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.outcomesTotal, err = meter.Int64Counter(
		"dispatch_lead_outcomes_total",
		metric.WithDescription("Lead outcomes recorded by the dispatcher"),
		metric.WithUnit("{lead}"),
	)
	if err != nil {
		return nil, err
	}

	m.pollTicks, err = meter.Int64Counter(
		"dispatch_poll_ticks_total",
		metric.WithDescription("Provider status polls"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, err
	}

	m.callDuration, err = meter.Float64Histogram(
		"dispatch_call_duration_seconds",
		metric.WithDescription("Time from provisioning to classification"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Metrics) recordRun(ctx context.Context, reason HaltReason) {
	if m == nil {
		return
	}
	end := string(reason)
	if end == "" {
		end = "exhausted"
	}
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("end", end)))
}

func (m *Metrics) recordOutcome(ctx context.Context, o Outcome, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("status", string(o.Status)),
		attribute.String("error_kind", o.ErrorKind),
	)
	m.outcomesTotal.Add(ctx, 1, attrs)
	if took > 0 {
		m.callDuration.Record(ctx, took.Seconds(), attrs)
	}
}

func (m *Metrics) recordPoll(ctx context.Context) {
	if m == nil {
		return
	}
	m.pollTicks.Add(ctx, 1)
}
