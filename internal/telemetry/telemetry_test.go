package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf, "debug", "json")
	require.NoError(t, err)
	l.Debug("hello", slog.Int("stream", 2))
	assert.Contains(t, buf.String(), `"stream":2`)

	buf.Reset()
	l, err = NewLogger(&buf, "warn", "text")
	require.NoError(t, err)
	l.Info("dropped")
	assert.Empty(t, buf.String())

	_, err = NewLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = NewLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := slog.Default()
	assert.Same(t, l, OrDiscard(l))
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveTicks(7, 3)
	m.ObserveStream(0.5, nil)
	m.ObserveStream(0.1, errors.New("boom"))
	m.ObserveBatch(false)
	m.ObserveBatch(true)
	m.ObserveVerification(true, nil)
	m.ObserveVerification(false, nil)
	m.ObserveRegistryOp("sqlite", "register", nil)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("accepted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerificationsTotal.WithLabelValues("mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryOpsTotal.WithLabelValues("sqlite", "register", "success")))

	// A second registry accepts a fresh set without duplicate registration.
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTicks(1, 1)
		m.ObserveStream(1, nil)
		m.ObserveBatch(true)
		m.ObserveVerification(true, nil)
		m.ObserveRegistryOp("badger", "get", nil)
	})
}

func TestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tr := Tracer(tp)
	_, ok := StartSpan(context.Background(), tr, "ok")
	EndSpan(ok, nil)
	_, bad := StartSpan(context.Background(), tr, "bad")
	EndSpan(bad, errors.New("boom"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ok", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, TracerName, spans[1].InstrumentationScope().Name)
}
