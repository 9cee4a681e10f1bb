package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), TracingConfig{})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "share facebook")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderRecordsSpans(t *testing.T) {
	p, err := NewProvider(context.Background(), TracingConfig{
		Enabled:    true,
		Exporter:   "http",
		Endpoint:   "127.0.0.1:4318",
		Insecure:   true,
		SampleRate: 1,
	})
	require.NoError(t, err)

	// The span is left open so Shutdown has nothing to export.
	_, span := p.Tracer().Start(context.Background(), "share facebook")
	assert.True(t, span.IsRecording())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"})
	assert.ErrorContains(t, err, `unsupported trace exporter "zipkin"`)
}
