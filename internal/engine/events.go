package engine

import (
	"context"
	"time"
)

// EventName identifies a lifecycle event published by the Clock.
type EventName string

// Core daily quartet, fired once per simulated day in this order.
const (
	Tick        EventName = "Tick"
	StartOfDay  EventName = "StartOfDay"
	MiddleOfDay EventName = "MiddleOfDay"
	EndOfDay    EventName = "EndOfDay"
)

// Calendar and simulation-boundary events.
const (
	StartOfSimulation EventName = "StartOfSimulation"
	StartOfMonth      EventName = "StartOfMonth"
	StartOfYear       EventName = "StartOfYear"
	StartOfWeek       EventName = "StartOfWeek"
	EndOfWeek         EventName = "EndOfWeek"
	EndOfYear         EventName = "EndOfYear"
	EndOfMonth        EventName = "EndOfMonth"
	EndOfSimulation   EventName = "EndOfSimulation"
)

// DailyEvents is the core quartet in dispatch order.
var DailyEvents = []EventName{Tick, StartOfDay, MiddleOfDay, EndOfDay}

// KnownEvents lists every event the Clock can publish.
var KnownEvents = []EventName{
	StartOfSimulation,
	Tick, StartOfDay, StartOfMonth, StartOfYear, StartOfWeek,
	MiddleOfDay,
	EndOfWeek, EndOfYear, EndOfMonth, EndOfDay,
	EndOfSimulation,
}

// IsKnownEvent reports whether name is published by the Clock.
func IsKnownEvent(name EventName) bool {
	for _, e := range KnownEvents {
		if e == name {
			return true
		}
	}
	return false
}

// Event is passed to every handler.
type Event struct {
	Name EventName
	// Date is the simulated day being processed.
	Date time.Time
	// Seq is the logical dispatch number, strictly increasing per Clock.
	Seq int64
}

// Handler reacts to one event. A non-nil error aborts the run.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	subscriber string
	handler    Handler
}

// eventsForDay returns the events dispatched on day, in order. Weeks run
// Sunday to Saturday.
func eventsForDay(day time.Time) []EventName {
	events := make([]EventName, 0, 10)
	events = append(events, Tick, StartOfDay)
	if day.Day() == 1 {
		events = append(events, StartOfMonth)
	}
	if day.YearDay() == 1 {
		events = append(events, StartOfYear)
	}
	if day.Weekday() == time.Sunday {
		events = append(events, StartOfWeek)
	}
	events = append(events, MiddleOfDay)
	if day.Weekday() == time.Saturday {
		events = append(events, EndOfWeek)
	}
	if day.Month() == time.December && day.Day() == 31 {
		events = append(events, EndOfYear)
	}
	if day.AddDate(0, 0, 1).Day() == 1 {
		events = append(events, EndOfMonth)
	}
	return append(events, EndOfDay)
}

// truncateDay drops the time of day and pins the date to UTC.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
