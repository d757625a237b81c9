package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderInstallsPropagator(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, Config{Version: "test", SampleRatio: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	recorder := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(recorder)

	spanCtx, span := otel.Tracer("test").Start(ctx, "process")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(spanCtx, carrier)
	span.End()

	require.NotEmpty(t, carrier.Get("traceparent"))
	require.Len(t, recorder.Ended(), 1)
	require.Equal(t, "process", recorder.Ended()[0].Name())
}
