// Package engine implements the simulation Clock: a single-threaded,
// strictly ordered daily event pump.
//
// ARCHITECTURE:
//
// Components subscribe handlers to named events during a setup phase. The
// Clock then walks calendar days from a start date to an end date
// (inclusive) and, for each day, dispatches the core quartet:
//
//	Tick -> StartOfDay -> MiddleOfDay -> EndOfDay
//
// Every subscriber of an event completes before the next event begins, and
// all events of day d complete before day d+1. Within one event, handlers
// run in subscription order: later subscribers may read state mutated by
// earlier ones (weather before crop, crop before report).
//
// Calendar events (StartOfMonth, StartOfYear, EndOfMonth, EndOfYear) fire
// between the quartet members on the days they apply, and StartOfSimulation
// and EndOfSimulation bracket the day loop.
//
// PRECONDITIONS:
//
// The subscription set is frozen once Run begins. Subscribe after that
// point returns SUBSCRIBE_AFTER_START; calling Run from inside a handler
// returns REENTRANT_RUN. Neither case changes the running loop.
//
// ERRORS:
//
// A handler error aborts the run and is returned wrapped in a RuntimeError
// (HANDLER_FAILED) naming the event, subscriber and date. The Clock does not
// retry. Anything a handler already handed to the result store stays queued
// and is flushed with the rest of the run group.
//
// There is no concurrency inside one Clock. Concurrency lives one level up,
// where many simulations (each with its own Clock) run at once.
package engine
