package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Logger is the structured logger used throughout the core. Arguments after
// the message are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder observes settled actions.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// HistorySizeRecorder is implemented by recorders that also track the
// length of the active branch.
type HistorySizeRecorder interface {
	ObserveHistorySize(size int)
}

// Tracer opens one span per pushed action.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended when the action settles.
type TraceSpan interface {
	End(err error)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// GlogLogger writes through glog. Debug lines are emitted only when glog's
// verbosity is at least the configured level.
type GlogLogger struct {
	verbosity glog.Level
}

// NewGlogLogger returns a logger that emits Debug at verbosity v.
func NewGlogLogger(v int) *GlogLogger {
	return &GlogLogger{verbosity: glog.Level(v)}
}

func (l *GlogLogger) Debug(msg string, args ...any) {
	if glog.V(l.verbosity) {
		glog.InfoDepth(1, formatLogLine(msg, args))
	}
}

func (l *GlogLogger) Info(msg string, args ...any) {
	glog.InfoDepth(1, formatLogLine(msg, args))
}

func (l *GlogLogger) Warn(msg string, args ...any) {
	glog.WarningDepth(1, formatLogLine(msg, args))
}

func (l *GlogLogger) Error(msg string, args ...any) {
	glog.ErrorDepth(1, formatLogLine(msg, args))
}

func formatLogLine(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, "%v=<missing>", args[i])
		}
	}
	return b.String()
}
