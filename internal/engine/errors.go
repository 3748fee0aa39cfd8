package engine

import (
	"errors"
	"fmt"
	"time"
)

// RuntimeError represents an error detected while driving the Clock.
//
// Runtime errors include:
//   - Handler failure: a subscriber returned an error, aborting the run
//   - Subscribe after start: the subscription set is frozen once Run begins
//   - Re-entrant run: Run was called while the Clock was already running
//   - Invalid subscription: empty event name or nil handler
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Event is the event being dispatched (or subscribed to).
	Event EventName

	// Subscriber names the component that owns the handler.
	Subscriber string

	// Date is the simulated day being processed, zero outside a run.
	Date time.Time

	// Err is the underlying handler error, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeHandlerFailed indicates a subscriber returned an error.
	ErrCodeHandlerFailed RuntimeErrorCode = "HANDLER_FAILED"

	// ErrCodeSubscribeAfterStart indicates Subscribe was called once Run began.
	ErrCodeSubscribeAfterStart RuntimeErrorCode = "SUBSCRIBE_AFTER_START"

	// ErrCodeReentrantRun indicates Run was called while already running.
	ErrCodeReentrantRun RuntimeErrorCode = "REENTRANT_RUN"

	// ErrCodeInvalidSubscription indicates an empty event name or nil handler.
	ErrCodeInvalidSubscription RuntimeErrorCode = "INVALID_SUBSCRIPTION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Event != "" && e.Subscriber != "" {
		msg = fmt.Sprintf("%s (event=%s, subscriber=%s)", msg, e.Event, e.Subscriber)
	} else if e.Event != "" {
		msg = fmt.Sprintf("%s (event=%s)", msg, e.Event)
	}
	if !e.Date.IsZero() {
		msg = fmt.Sprintf("%s on %s", msg, e.Date.Format(time.DateOnly))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying handler error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsHandlerError returns true if the error is a subscriber failure.
// Uses errors.As to handle wrapped errors.
func IsHandlerError(err error) bool {
	return hasCode(err, ErrCodeHandlerFailed)
}

// IsPreconditionError returns true if the error reports a subscription or
// re-entrancy precondition violation.
func IsPreconditionError(err error) bool {
	return hasCode(err, ErrCodeSubscribeAfterStart) ||
		hasCode(err, ErrCodeReentrantRun) ||
		hasCode(err, ErrCodeInvalidSubscription)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewHandlerError creates a RuntimeError for a failed subscriber.
func NewHandlerError(ev Event, subscriber string, err error) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeHandlerFailed,
		Message:    "subscriber failed",
		Event:      ev.Name,
		Subscriber: subscriber,
		Date:       ev.Date,
		Err:        err,
	}
}

func newSubscribeAfterStartError(event EventName, subscriber string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeSubscribeAfterStart,
		Message:    "subscription set is frozen once the clock has started",
		Event:      event,
		Subscriber: subscriber,
	}
}

func newReentrantRunError(today time.Time) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReentrantRun,
		Message: "clock is already running",
		Date:    today,
	}
}
