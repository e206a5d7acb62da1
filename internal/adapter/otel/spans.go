package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "triage"

// StartTurnSpan starts a span for one processed conversation turn.
func StartTurnSpan(ctx context.Context, turnID, sessionID, channel string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("turn.id", turnID),
			attribute.String("session.id", sessionID),
			attribute.String("turn.channel", channel),
		),
	)
}

// StartInferenceSpan starts a span for one inference call.
func StartInferenceSpan(ctx context.Context, role, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "inference",
		trace.WithAttributes(
			attribute.String("inference.role", role),
			attribute.String("inference.model", model),
		),
	)
}

// StartToolCallSpan starts a span for a governed tool call.
func StartToolCallSpan(ctx context.Context, callID, tool, mode string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.id", callID),
			attribute.String("toolcall.tool", tool),
			attribute.String("toolcall.mode", mode),
		),
	)
}
