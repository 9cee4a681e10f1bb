package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanReporterRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "share")
	SpanReporter{}.Report(ctx, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestSpanReporterWithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		SpanReporter{}.Report(context.Background(), errors.New("boom"))
	})
}

func TestMultiSkipsNil(t *testing.T) {
	var got []error
	r := Multi(nil, ReporterFunc(func(_ context.Context, err error) { got = append(got, err) }))
	err := errors.New("boom")
	r.Report(context.Background(), err)
	assert.Equal(t, []error{err}, got)
}
