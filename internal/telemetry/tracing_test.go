package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderValidates(t *testing.T) {
	t.Parallel()

	_, err := InitTracerProvider(context.Background(), Config{SampleRatio: 1})
	require.ErrorContains(t, err, "service name")

	_, err = InitTracerProvider(context.Background(), Config{ServiceName: "bulkgen", SampleRatio: 2})
	require.ErrorContains(t, err, "sample ratio")
}

func TestInitTracerProviderExportsSpans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	exp := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(ctx, Config{ServiceName: "bulkgen", Version: "test", SampleRatio: 1, Exporter: exp})
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(ctx, "job.run")
	span.End()
	require.NoError(t, tp.ForceFlush(ctx))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "job.run", spans[0].Name)
	require.NoError(t, tp.Shutdown(ctx))
}
