package otelx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	tp, ts := TraceContextStrings(ctx)
	require.NotEmpty(t, tp)
	assert.Empty(t, ts)

	restored := trace.SpanContextFromContext(ContextWithTraceContext(context.Background(), tp, ts))
	assert.Equal(t, traceID, restored.TraceID())
	assert.Equal(t, spanID, restored.SpanID())
	assert.True(t, restored.IsRemote())
}

func TestContextWithEmptyTraceparent(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ContextWithTraceContext(ctx, "", "ignored"))
}
