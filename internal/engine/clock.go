package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Clock drives simulated days from a start date to an end date, publishing
// ordered lifecycle events to subscribers.
//
// Thread-safety model:
//   - Subscribe(): safe from any goroutine, rejected once Run has started
//   - Run(): single goroutine; re-entrant calls are rejected
//   - Today(), Start(), End(), FractionComplete(): safe from any goroutine
//
// INVARIANTS:
//   - handler order within an event is subscription order and never changes
//   - today advances by exactly one day per iteration, never backwards
type Clock struct {
	mu      sync.RWMutex
	subs    map[EventName][]subscription
	started bool
	start   time.Time
	end     time.Time
	today   time.Time

	running atomic.Bool
	seq     *Sequence
	logger  *slog.Logger
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithLogger sets the logger used for run lifecycle messages.
func WithLogger(l *slog.Logger) ClockOption {
	return func(c *Clock) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSequence shares a sequence counter, e.g. to resume numbering.
func WithSequence(s *Sequence) ClockOption {
	return func(c *Clock) {
		if s != nil {
			c.seq = s
		}
	}
}

// NewClock creates a Clock with no subscribers.
func NewClock(opts ...ClockOption) *Clock {
	c := &Clock{
		subs:   make(map[EventName][]subscription),
		seq:    NewSequence(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers handler for event under the given subscriber name.
// Handlers run in the order they were subscribed.
func (c *Clock) Subscribe(event EventName, subscriber string, handler Handler) error {
	if event == "" || handler == nil {
		return &RuntimeError{
			Code:       ErrCodeInvalidSubscription,
			Message:    "event name and handler are required",
			Event:      event,
			Subscriber: subscriber,
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return newSubscribeAfterStartError(event, subscriber)
	}
	c.subs[event] = append(c.subs[event], subscription{subscriber: subscriber, handler: handler})
	return nil
}

// Subscribers returns the subscriber names for event in dispatch order.
func (c *Clock) Subscribers(event EventName) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := c.subs[event]
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.subscriber
	}
	return out
}

// Run walks every day from start to end inclusive. Dates are truncated to
// the calendar day. An end before start runs zero days but still brackets
// the run with StartOfSimulation and EndOfSimulation.
//
// The context is checked between days; cancellation stops the loop and
// returns ctx.Err(). A handler error stops the loop immediately.
func (c *Clock) Run(ctx context.Context, start, end time.Time) error {
	if !c.running.CompareAndSwap(false, true) {
		return newReentrantRunError(c.Today())
	}
	defer c.running.Store(false)

	start, end = truncateDay(start), truncateDay(end)
	subs := c.freeze(start, end)

	c.logger.Debug("clock starting",
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
	)

	if err := c.fire(ctx, subs, StartOfSimulation); err != nil {
		return err
	}

	days := 0
	for today := start; !today.After(end); today = today.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			c.logger.Info("clock cancelled", "today", today.Format(time.DateOnly))
			return fmt.Errorf("clock cancelled on %s: %w", today.Format(time.DateOnly), err)
		}
		c.setToday(today)
		for _, name := range eventsForDay(today) {
			if err := c.fire(ctx, subs, name); err != nil {
				return err
			}
		}
		days++
	}

	c.setToday(end)
	if err := c.fire(ctx, subs, EndOfSimulation); err != nil {
		return err
	}

	c.logger.Debug("clock finished", "days", days)
	return nil
}

// Running reports whether Run is in progress.
func (c *Clock) Running() bool {
	return c.running.Load()
}

// Today returns the day currently being processed. Before the first run it
// is the zero time; after a run it is the end date.
func (c *Clock) Today() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.today
}

// Start returns the start date of the current or last run.
func (c *Clock) Start() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start
}

// End returns the end date of the current or last run.
func (c *Clock) End() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.end
}

// FractionComplete returns (today - start) / (end - start) clamped to [0,1].
// It is 0 before the first run and 1 when start equals end.
func (c *Clock) FractionComplete() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.today.IsZero() {
		return 0
	}
	span := c.end.Sub(c.start)
	if span <= 0 {
		return 1
	}
	f := float64(c.today.Sub(c.start)) / float64(span)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Sequence returns the current logical dispatch number.
func (c *Clock) Sequence() int64 {
	return c.seq.Current()
}

// freeze marks the subscription set as closed and returns a snapshot of it.
func (c *Clock) freeze(start, end time.Time) map[EventName][]subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = true
	c.start, c.end, c.today = start, end, start

	snapshot := make(map[EventName][]subscription, len(c.subs))
	for name, subs := range c.subs {
		cp := make([]subscription, len(subs))
		copy(cp, subs)
		snapshot[name] = cp
	}
	return snapshot
}

func (c *Clock) setToday(day time.Time) {
	c.mu.Lock()
	c.today = day
	c.mu.Unlock()
}

// fire dispatches one event to every subscriber in order.
func (c *Clock) fire(ctx context.Context, subs map[EventName][]subscription, name EventName) error {
	handlers := subs[name]
	if len(handlers) == 0 {
		return nil
	}
	ev := Event{Name: name, Date: c.Today(), Seq: c.seq.Next()}
	for _, s := range handlers {
		if err := s.handler(ctx, ev); err != nil {
			c.logger.Error("subscriber failed",
				"event", string(name),
				"subscriber", s.subscriber,
				"date", ev.Date.Format(time.DateOnly),
				"error", err,
			)
			return NewHandlerError(ev, s.subscriber, err)
		}
	}
	return nil
}
