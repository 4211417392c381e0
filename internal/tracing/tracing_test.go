package tracing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func restoreProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSetup_DisabledKeepsProvider(t *testing.T) {
	restoreProvider(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Options{Exporter: "bogus"})
	require.NoError(t, err)
	require.Equal(t, before, otel.GetTracerProvider())
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_StdoutExportsSpans(t *testing.T) {
	restoreProvider(t)
	var buf bytes.Buffer

	shutdown, err := Setup(context.Background(), Options{
		Enabled:     true,
		Exporter:    ExporterStdout,
		ServiceName: "vibe-test",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "store.update")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "store.update")
	require.Contains(t, buf.String(), "vibe-test")
}

func TestSetup_OTLPExporterIsLazy(t *testing.T) {
	restoreProvider(t)

	shutdown, err := Setup(context.Background(), Options{
		Enabled:  true,
		Exporter: ExporterOTLP,
		Endpoint: "127.0.0.1:1",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetup_UnknownExporter(t *testing.T) {
	restoreProvider(t)

	_, err := Setup(context.Background(), Options{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "zipkin")
}
