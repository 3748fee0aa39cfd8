package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// record subscribes a recorder to every named event and returns the log.
func record(t *testing.T, c *Clock, events ...EventName) *[]string {
	t.Helper()
	var log []string
	for _, name := range events {
		require.NoError(t, c.Subscribe(name, "recorder", func(_ context.Context, ev Event) error {
			log = append(log, string(ev.Name))
			return nil
		}))
	}
	return &log
}

func TestClock_EventOrder(t *testing.T) {
	c := NewClock()
	log := record(t, c, DailyEvents...)

	const days = 7
	require.NoError(t, c.Run(context.Background(), day(2000, 3, 1), day(2000, 3, days)))

	var want []string
	for i := 0; i < days; i++ {
		want = append(want, "Tick", "StartOfDay", "MiddleOfDay", "EndOfDay")
	}
	assert.Equal(t, want, *log)
}

func TestClock_SubscriptionOrderWithinEvent(t *testing.T) {
	c := NewClock()
	var log []string
	for _, name := range []string{"weather", "soil", "crop", "report"} {
		name := name
		require.NoError(t, c.Subscribe(StartOfDay, name, func(context.Context, Event) error {
			log = append(log, name)
			return nil
		}))
	}

	require.NoError(t, c.Run(context.Background(), day(2000, 1, 1), day(2000, 1, 2)))

	assert.Equal(t, []string{"weather", "soil", "crop", "report", "weather", "soil", "crop", "report"}, log)
	assert.Equal(t, []string{"weather", "soil", "crop", "report"}, c.Subscribers(StartOfDay))
}

func TestClock_LaterSubscriberSeesEarlierState(t *testing.T) {
	c := NewClock()
	rain := 0.0
	var seen []float64

	require.NoError(t, c.Subscribe(Tick, "weather", func(_ context.Context, ev Event) error {
		rain = float64(ev.Date.Day())
		return nil
	}))
	require.NoError(t, c.Subscribe(Tick, "crop", func(context.Context, Event) error {
		seen = append(seen, rain)
		return nil
	}))

	require.NoError(t, c.Run(context.Background(), day(2000, 1, 1), day(2000, 1, 3)))
	assert.Equal(t, []float64{1, 2, 3}, seen)
}

func TestClock_TodayDuringHandlers(t *testing.T) {
	c := NewClock()
	var dates []time.Time
	require.NoError(t, c.Subscribe(MiddleOfDay, "probe", func(_ context.Context, ev Event) error {
		assert.Equal(t, ev.Date, c.Today())
		dates = append(dates, c.Today())
		return nil
	}))

	start := time.Date(2001, 12, 30, 15, 30, 0, 0, time.UTC)
	require.NoError(t, c.Run(context.Background(), start, day(2002, 1, 2)))

	assert.Equal(t, []time.Time{day(2001, 12, 30), day(2001, 12, 31), day(2002, 1, 1), day(2002, 1, 2)}, dates)
	assert.Equal(t, day(2002, 1, 2), c.Today(), "today is pinned to end after the run")
}

func TestClock_FractionComplete(t *testing.T) {
	c := NewClock()
	assert.Equal(t, 0.0, c.FractionComplete(), "zero before the first run")

	var fractions []float64
	require.NoError(t, c.Subscribe(EndOfDay, "probe", func(context.Context, Event) error {
		fractions = append(fractions, c.FractionComplete())
		return nil
	}))
	require.NoError(t, c.Run(context.Background(), day(2000, 1, 1), day(2000, 1, 5)))

	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, fractions)
	assert.Equal(t, 1.0, c.FractionComplete())
}

func TestClock_FractionComplete_SingleDay(t *testing.T) {
	c := NewClock()
	require.NoError(t, c.Run(context.Background(), day(2000, 1, 1), day(2000, 1, 1)))
	assert.Equal(t, 1.0, c.FractionComplete())
}

func TestClock_HandlerErrorAbortsRun(t *testing.T) {
	c := NewClock()
	boom := errors.New("boom")
	log := record(t, c, Tick)

	require.NoError(t, c.Subscribe(StartOfDay, "crop", func(_ context.Context, ev Event) error {
		if ev.Date.Equal(day(2000, 1, 2)) {
			return boom
		}
		return nil
	}))

	err := c.Run(context.Background(), day(2000, 1, 1), day(2000, 1, 10))
	require.Error(t, err)
	assert.True(t, IsHandlerError(err))
	assert.ErrorIs(t, err, boom)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, StartOfDay, re.Event)
	assert.Equal(t, "crop", re.Subscriber)
	assert.Equal(t, day(2000, 1, 2), re.Date)

	assert.Len(t, *log, 2, "no day after the failing one is processed")
	assert.False(t, c.Running())
}

func TestClock_SubscribeDuringRunRejected(t *testing.T) {
	c := NewClock()
	var subscribeErr error
	calls := 0

	require.NoError(t, c.Subscribe(Tick, "mutator", func(context.Context, Event) error {
		if subscribeErr == nil {
			subscribeErr = c.Subscribe(Tick, "late", func(context.Context, Event) error {
				calls++
				return nil
			})
		}
		return nil
	}))

	require.NoError(t, c.Run(context.Background(), day(2000, 1, 1), day(2000, 1, 3)))

	require.Error(t, subscribeErr)
	assert.True(t, IsPreconditionError(subscribeErr))
	assert.Zero(t, calls, "rejected handler never runs")
	assert.Equal(t, []string{"mutator"}, c.Subscribers(Tick))

	err := c.Subscribe(EndOfDay, "after", func(context.Context, Event) error { return nil })
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeSubscribeAfterStart, re.Code)
}

func TestClock_ReentrantRunRejected(t *testing.T) {
	c := NewClock()
	var inner error
	require.NoError(t, c.Subscribe(StartOfDay, "nested", func(ctx context.Context, _ Event) error {
		if inner == nil {
			inner = c.Run(ctx, day(2000, 1, 1), day(2000, 1, 2))
		}
		return nil
	}))
	log := record(t, c, EndOfDay)

	require.NoError(t, c.Run(context.Background(), day(2000, 1, 1), day(2000, 1, 3)))

	var re *RuntimeError
	require.ErrorAs(t, inner, &re)
	assert.Equal(t, ErrCodeReentrantRun, re.Code)
	assert.Len(t, *log, 3, "outer run is unaffected")
}

func TestClock_InvalidSubscription(t *testing.T) {
	c := NewClock()
	assert.True(t, IsPreconditionError(c.Subscribe("", "x", func(context.Context, Event) error { return nil })))
	assert.True(t, IsPreconditionError(c.Subscribe(Tick, "x", nil)))
}

func TestClock_CalendarEvents(t *testing.T) {
	c := NewClock()
	var log []string
	for _, name := range KnownEvents {
		name := name
		require.NoError(t, c.Subscribe(name, "recorder", func(_ context.Context, ev Event) error {
			log = append(log, fmt.Sprintf("%s:%s", ev.Date.Format("01-02"), name))
			return nil
		}))
	}

	require.NoError(t, c.Run(context.Background(), day(2000, 12, 31), day(2001, 1, 1)))

	want := []string{
		"12-31:StartOfSimulation",
		"12-31:Tick", "12-31:StartOfDay", "12-31:StartOfWeek", "12-31:MiddleOfDay", "12-31:EndOfYear", "12-31:EndOfMonth", "12-31:EndOfDay",
		"01-01:Tick", "01-01:StartOfDay", "01-01:StartOfMonth", "01-01:StartOfYear", "01-01:MiddleOfDay", "01-01:EndOfDay",
		"01-01:EndOfSimulation",
	}
	assert.Equal(t, want, log)
}

func TestClock_WeekEvents(t *testing.T) {
	c := NewClock()
	var log []string
	for _, name := range []EventName{StartOfWeek, MiddleOfDay, EndOfWeek} {
		require.NoError(t, c.Subscribe(name, "recorder", func(_ context.Context, ev Event) error {
			log = append(log, fmt.Sprintf("%s:%s", ev.Date.Format("01-02"), name))
			return nil
		}))
	}

	// 2000-01-01 is a Saturday.
	require.NoError(t, c.Run(context.Background(), day(2000, 1, 1), day(2000, 1, 3)))

	assert.Equal(t, []string{
		"01-01:MiddleOfDay", "01-01:EndOfWeek",
		"01-02:StartOfWeek", "01-02:MiddleOfDay",
		"01-03:MiddleOfDay",
	}, log)
}

func TestClock_EndBeforeStartRunsNoDays(t *testing.T) {
	c := NewClock()
	log := record(t, c, StartOfSimulation, Tick, EndOfSimulation)

	require.NoError(t, c.Run(context.Background(), day(2000, 1, 5), day(2000, 1, 1)))
	assert.Equal(t, []string{"StartOfSimulation", "EndOfSimulation"}, *log)
}

func TestClock_ContextCancelledBetweenDays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClock()
	days := 0
	require.NoError(t, c.Subscribe(EndOfDay, "canceller", func(context.Context, Event) error {
		days++
		if days == 2 {
			cancel()
		}
		return nil
	}))

	err := c.Run(ctx, day(2000, 1, 1), day(2000, 12, 31))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, days)
	assert.True(t, strings.Contains(err.Error(), "2000-01-03"))
}

func TestClock_SequenceStrictlyIncreasing(t *testing.T) {
	c := NewClock()
	var seqs []int64
	for _, name := range DailyEvents {
		require.NoError(t, c.Subscribe(name, "seq", func(_ context.Context, ev Event) error {
			seqs = append(seqs, ev.Seq)
			return nil
		}))
	}
	require.NoError(t, c.Run(context.Background(), day(2000, 1, 1), day(2000, 1, 3)))

	require.Len(t, seqs, 12)
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}
}

func TestRuntimeError_Message(t *testing.T) {
	err := NewHandlerError(Event{Name: Tick, Date: day(2000, 1, 2)}, "weather", errors.New("no data"))
	assert.Equal(t, "HANDLER_FAILED: subscriber failed (event=Tick, subscriber=weather) on 2000-01-02: no data", err.Error())
}
