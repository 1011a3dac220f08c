package telemetry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/agentic-turing/atm/pkg/config"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestWithSpan(t *testing.T) {
	recorder := recordSpans(t)

	err := WithSpan(context.Background(), "pipeline.stage", func(ctx context.Context) error {
		SetAttributes(ctx, attribute.Int("output_chars", 42))
		return nil
	}, attribute.Int("stage", 1))
	require.NoError(t, err)

	failure := fmt.Errorf("rate limited")
	err = WithSpan(context.Background(), "pipeline.chain", func(ctx context.Context) error {
		return failure
	})
	assert.Equal(t, failure, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "pipeline.stage", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("stage", 1))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("output_chars", 42))
	assert.Empty(t, spans[0].Events())

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "rate limited", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(config.TracingConfig{}).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(config.TracingConfig{SamplerType: "never"}).Description())
	assert.Contains(t, sampler(config.TracingConfig{SamplerType: "ratio", SamplerRatio: 0.5}).Description(), "ParentBased")
}
