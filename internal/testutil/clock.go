package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/simkernel/internal/engine"
)

// EventRecorder subscribes to clock events and records what fired.
//
// Entries have the form "2006-01-02 EventName". Reset clears them so one
// recorder can observe several clocks in turn.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type EventRecorder struct {
	mu      sync.Mutex
	entries []string
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Attach subscribes the recorder to each event on c under subscriber name
// "recorder". With no events it attaches to every known event.
func (r *EventRecorder) Attach(c *engine.Clock, events ...engine.EventName) error {
	if len(events) == 0 {
		events = engine.KnownEvents
	}
	for _, name := range events {
		if err := c.Subscribe(name, "recorder", r.handle); err != nil {
			return fmt.Errorf("attach recorder to %s: %w", name, err)
		}
	}
	return nil
}

func (r *EventRecorder) handle(_ context.Context, ev engine.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, ev.Date.Format("2006-01-02")+" "+string(ev.Name))
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *EventRecorder) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many times name fired.
func (r *EventRecorder) Count(name engine.EventName) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	suffix := " " + string(name)
	for _, e := range r.entries {
		if len(e) > len(suffix) && e[len(e)-len(suffix):] == suffix {
			n++
		}
	}
	return n
}

// Reset clears the recorded entries.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
