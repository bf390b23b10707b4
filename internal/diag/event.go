package diag

import (
	"log/slog"
	"sync"
)

// Event names emitted by the pipeline.
const (
	EventEmptyColumn   = "empty_column"
	EventSpans         = "spans_estimated"
	EventDomainError   = "domain_error"
	EventStateRescored = "state_rescored"
)

// Event is a named diagnostic with structured attributes.
type Event struct {
	Name  string
	Attrs []slog.Attr
}

func NewEvent(name string, attrs ...slog.Attr) Event {
	return Event{Name: name, Attrs: attrs}
}

// Int returns the integer attribute key, if present.
func (e Event) Int(key string) (int, bool) {
	for _, a := range e.Attrs {
		if a.Key == key && a.Value.Kind() == slog.KindInt64 {
			return int(a.Value.Int64()), true
		}
	}
	return 0, false
}

// Hook receives diagnostic events. Implementations must not fail the caller.
type Hook interface {
	Emit(Event)
}

type HookFunc func(Event)

func (f HookFunc) Emit(e Event) {
	f(e)
}

type nopHook struct{}

func (nopHook) Emit(Event) {}

func Nop() Hook {
	return nopHook{}
}

type multiHook []Hook

func (m multiHook) Emit(e Event) {
	for _, h := range m {
		h.Emit(e)
	}
}

// Multi fans an event out to every non-nil hook in order.
func Multi(hooks ...Hook) Hook {
	out := make(multiHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	switch len(out) {
	case 0:
		return Nop()
	case 1:
		return out[0]
	}
	return out
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
