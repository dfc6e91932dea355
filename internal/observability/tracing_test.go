package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/sells-group/rayven/internal/config"
)

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitTracing_Stdout(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "stdout", SampleRatio: 1})
	require.NoError(t, err)
	t.Cleanup(func() { ShutdownWithTimeout(context.Background(), shutdown) })

	_, span := otel.Tracer("test").Start(context.Background(), "sampled")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported tracing exporter")
}

func TestShutdownWithTimeout(t *testing.T) {
	ShutdownWithTimeout(context.Background(), nil)

	called := false
	ShutdownWithTimeout(context.Background(), func(ctx context.Context) error {
		called = true
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return errors.New("flush failed")
	})
	assert.True(t, called)
}
