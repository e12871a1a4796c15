package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// EventKind classifies a cycle log entry.
type EventKind string

const (
	EventForecast  EventKind = "forecast"
	EventIssues    EventKind = "issues"
	EventDiagnosis EventKind = "diagnosis"
	EventPlan      EventKind = "plan"
	EventStep      EventKind = "step"
	EventRollback  EventKind = "rollback"
	EventIncident  EventKind = "incident"
	EventState     EventKind = "state"
	EventError     EventKind = "error"
)

// Event is one structured entry in a service's cycle log.
type Event struct {
	Time    time.Time
	Service string
	Kind    EventKind
	Message string
	Fields  map[string]string
}

// Recorder consumes cycle events. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}

// LogRecorder writes events through slog.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder wraps logger; nil uses slog.Default().
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, ev Event) {
	attrs := make([]slog.Attr, 0, len(ev.Fields)+2)
	attrs = append(attrs, slog.String("service", ev.Service), slog.String("kind", string(ev.Kind)))
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, ev.Fields[k]))
	}
	level := slog.LevelInfo
	if ev.Kind == EventError || ev.Kind == EventRollback {
		level = slog.LevelWarn
	}
	r.logger.LogAttrs(ctx, level, ev.Message, attrs...)
}

// RingRecorder keeps the most recent events per service in memory.
type RingRecorder struct {
	mu     sync.RWMutex
	size   int
	events map[string][]Event
}

// NewRingRecorder keeps up to size events per service.
func NewRingRecorder(size int) *RingRecorder {
	if size <= 0 {
		size = 256
	}
	return &RingRecorder{size: size, events: make(map[string][]Event)}
}

func (r *RingRecorder) Record(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := append(r.events[ev.Service], ev)
	if len(buf) > r.size {
		buf = buf[len(buf)-r.size:]
	}
	r.events[ev.Service] = buf
}

// Events returns up to limit most recent events for service, oldest first. limit <= 0 returns all retained.
func (r *RingRecorder) Events(service string, limit int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buf := r.events[service]
	if limit > 0 && len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return append([]Event(nil), buf...)
}

// MultiRecorder fans events out to several recorders in order.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, ev)
		}
	}
}
