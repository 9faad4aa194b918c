package telemetry

import (
	"context"
	"log/slog"

	"github.com/casualjim/llmux/pkg/slogx"
)

// Sink receives telemetry events. Implementations must be safe for concurrent use
// and must not block for long.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

type multi []Sink

// Multi fans events out to every non nil sink in order.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return Discard
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multi) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}

type logSink struct {
	logger *slog.Logger
}

// Log returns a sink writing events to logger: started events at debug,
// completed at info and failed at warn.
func Log(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &logSink{logger: logger.With(slogx.LoggerName("telemetry"))}
}

func (l *logSink) Emit(ctx context.Context, e Event) {
	attrs := []slog.Attr{
		slog.String("request_id", e.RequestID),
		slogx.Provider(e.Provider),
		slogx.Model(e.Model),
		slog.String("operation", string(e.Operation)),
	}
	if e.SessionID != "" {
		attrs = append(attrs, slogx.Session(e.SessionID))
	}
	switch e.Status {
	case Started:
		l.logger.LogAttrs(ctx, slog.LevelDebug, "request started", attrs...)
	case Completed:
		attrs = append(attrs,
			slog.String("stop_reason", e.StopReason),
			slog.Int64("input_tokens", e.Usage.InputTokens),
			slog.Int64("output_tokens", e.Usage.OutputTokens),
			slog.Duration("duration", e.Duration),
		)
		l.logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
	default:
		attrs = append(attrs,
			slog.String("stage", e.Stage),
			slog.String("error", e.Error),
			slog.Duration("duration", e.Duration),
		)
		l.logger.LogAttrs(ctx, slog.LevelWarn, "request failed", attrs...)
	}
}
