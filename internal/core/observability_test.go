package core

import (
	"context"
	"expvar"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFormatLogLine(t *testing.T) {
	assert.Equal(t, "plain", formatLogLine("plain", nil))
	assert.Equal(t, "push action=1 command=add", formatLogLine("push", []any{"action", 1, "command", "add"}))
	assert.Equal(t, "push dangling=<missing>", formatLogLine("push", []any{"dangling"}))
}

func TestGlogLoggerDoesNotPanic(t *testing.T) {
	logger := NewGlogLogger(10)
	logger.Debug("hidden", "k", "v")
	logger.Info("info", "k", "v")
	logger.Warn("warn")
	logger.Error("error", "err", "boom")
}

func TestExpvarMetricsRecorder(t *testing.T) {
	a := NewExpvarMetricsRecorder("")
	b := NewExpvarMetricsRecorder("")
	assert.NotEqual(t, a.Name(), b.Name())
	assert.NotEqual(t, nil, expvar.Get(a.Name()))

	ctx := context.Background()
	a.Observe(ctx, "add", true, 2*time.Millisecond)
	a.Observe(ctx, "add", false, time.Millisecond)
	a.Observe(ctx, "", true, time.Second)
	a.ObserveHistorySize(4)

	snap := a.Snapshot()
	assert.Equal(t, map[string]map[string]int64{"add": {"resolved": 1, "rejected": 1}}, snap.Results)
	assert.Equal(t, 3.0, snap.DurationsMS["add"])
	assert.Equal(t, 4, snap.HistorySize)
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	assert.Equal(t, nil, err)

	ctx := context.Background()
	rec.Observe(ctx, "add", true, time.Millisecond)
	rec.Observe(ctx, "add", true, time.Millisecond)
	rec.Observe(ctx, "add", false, time.Millisecond)
	rec.ObserveHistorySize(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.settled.WithLabelValues("add", "resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.settled.WithLabelValues("add", "rejected")))
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.size))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.duration))

	_, err = NewPrometheusMetricsRecorder(reg)
	assert.NotEqual(t, nil, err)
}

func TestJSONTracerWithoutWriter(t *testing.T) {
	tracer := NewJSONTracer(nil)
	_, span := tracer.Start(context.Background(), "add")
	span.End(nil)
	assert.Equal(t, 1, len(tracer.Entries()))
	assert.Equal(t, "add", tracer.Entries()[0].Operation)
}
