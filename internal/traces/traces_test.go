package traces

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpan_AndEnd(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "orders.Act", OrderID("EP1"), Action("fulfill"))
	End(span, errors.New("boom"))

	_, ok := StartSpan(context.Background(), "orders.Detail")
	End(ok, nil)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "orders.Act", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), OrderID("EP1"))
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}

func TestInjectAndTraceID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, err := Init(context.Background(), "", "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Empty(t, TraceID(context.Background()))

	ctx, span := StartSpan(context.Background(), "orderapi.Get")
	defer span.End()

	h := http.Header{}
	Inject(ctx, h)
	traceID := TraceID(ctx)
	require.Len(t, traceID, 32)
	assert.Contains(t, h.Get("traceparent"), traceID)
}
