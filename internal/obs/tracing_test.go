package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabledExporter(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{ServiceName: "toko-checkout", Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported tracing exporter")
	require.NotNil(t, shutdown)
}

func TestSamplingRatio(t *testing.T) {
	require.Equal(t, 1.0, samplingRatio(0))
	require.Equal(t, 1.0, samplingRatio(3))
	require.Equal(t, 0.25, samplingRatio(0.25))
}
