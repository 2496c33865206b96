package events

import (
	"context"
	"log/slog"
	"sync"
)

// Observer receives events.
type Observer func(Event)

// Bus fans events out to observers in subscription order.
type Bus struct {
	mu        sync.Mutex
	observers []subscription
	nextID    int
	logger    *slog.Logger
}

type subscription struct {
	id int
	fn Observer
}

// NewBus returns a Bus. Log events are mirrored to logger when it is not nil.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers fn and returns a function that unregisters it.
func (b *Bus) Subscribe(fn Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.observers = append(b.observers, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.observers {
			if s.id == id {
				b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers e to every observer before returning. A panicking observer
// is logged and skipped.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	b.mirror(e)

	b.mu.Lock()
	subs := append([]subscription(nil), b.observers...)
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s.fn, copyEvent(e))
	}
}

func (b *Bus) deliver(fn Observer, e Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("event observer panicked", "event", e.Name(), "panic", r)
		}
	}()
	fn(e)
}

// Logf emits a Log event.
func (b *Bus) Logf(level Level, stepID, msg string) {
	b.Emit(Log{Level: level, Message: msg, StepID: stepID})
}

func (b *Bus) mirror(e Event) {
	if b.logger == nil {
		return
	}
	switch ev := e.(type) {
	case Log:
		attrs := []any{}
		if ev.StepID != "" {
			attrs = append(attrs, "step", ev.StepID)
		}
		b.logger.Log(context.Background(), slogLevel(ev.Level), ev.Message, attrs...)
	case Failed:
		b.logger.Error("installation failed", "step", ev.StepID, "kind", ev.Kind, "error", ev.Message)
	case Installed:
		b.logger.Info("installation committed", "id", ev.Entry.ID, "path", ev.Entry.InstallPath)
	case Progress:
		b.logger.Debug("progress", "completed", ev.CompletedStepCount, "total", ev.TotalStepCount,
			"phase", ev.Phase, "step", ev.CurrentStepDescription)
	}
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func copyEvent(e Event) Event {
	if ev, ok := e.(Installed); ok {
		ev.Entry = ev.Entry.Clone()
		return ev
	}
	return e
}

// Recorder collects events for inspection, typically in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Observe appends e.
func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Progress returns the recorded progress events.
func (r *Recorder) Progress() []Progress {
	var out []Progress
	for _, e := range r.Events() {
		if p, ok := e.(Progress); ok {
			out = append(out, p)
		}
	}
	return out
}

// Logs returns the recorded log events.
func (r *Recorder) Logs() []Log {
	var out []Log
	for _, e := range r.Events() {
		if l, ok := e.(Log); ok {
			out = append(out, l)
		}
	}
	return out
}

// Last returns the most recent event, or nil.
func (r *Recorder) Last() Event {
	events := r.Events()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}
