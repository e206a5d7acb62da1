package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "triage"

// Metrics holds all triage metric instruments.
type Metrics struct {
	TurnsProcessed   metric.Int64Counter
	TurnsEscalated   metric.Int64Counter
	TurnsDrafted     metric.Int64Counter
	TurnsSent        metric.Int64Counter
	ToolCalls        metric.Int64Counter
	ConfirmResolved  metric.Int64Counter
	InferenceLatency metric.Float64Histogram
	InferenceCost    metric.Float64Histogram
	TurnDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TurnsProcessed, err = meter.Int64Counter("triage.turns.processed",
		metric.WithDescription("Number of turns processed"))
	if err != nil {
		return nil, err
	}

	m.TurnsEscalated, err = meter.Int64Counter("triage.turns.escalated",
		metric.WithDescription("Number of turns escalated to a human"))
	if err != nil {
		return nil, err
	}

	m.TurnsDrafted, err = meter.Int64Counter("triage.turns.drafted",
		metric.WithDescription("Number of turns held as drafts"))
	if err != nil {
		return nil, err
	}

	m.TurnsSent, err = meter.Int64Counter("triage.turns.sent",
		metric.WithDescription("Number of turns auto-sent"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("triage.toolcalls",
		metric.WithDescription("Number of tool calls governed"))
	if err != nil {
		return nil, err
	}

	m.ConfirmResolved, err = meter.Int64Counter("triage.confirmations.resolved",
		metric.WithDescription("Number of confirmation decisions received"))
	if err != nil {
		return nil, err
	}

	m.InferenceLatency, err = meter.Float64Histogram("triage.inference.latency_seconds",
		metric.WithDescription("Inference call latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.InferenceCost, err = meter.Float64Histogram("triage.inference.cost_usd",
		metric.WithDescription("Inference call cost in USD"))
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("triage.turn.duration_seconds",
		metric.WithDescription("End-to-end turn duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
