package engine

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

const tracerName = "github.com/miradorstack/mirador-autopilot/internal/engine"

// Option customises engine components.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
	clock    utils.Clock
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRecorder sets the cycle event sink.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithClock sets the time source used for event timestamps.
func WithClock(c utils.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.recorder == nil {
		o.recorder = NopRecorder{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.clock == nil {
		o.clock = utils.SystemClock{}
	}
	return o
}

func (o options) event(service string, kind EventKind, msg string, fields map[string]string) Event {
	return Event{Time: o.clock.Now(), Service: service, Kind: kind, Message: msg, Fields: fields}
}
