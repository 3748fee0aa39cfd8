package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// CodeConfiguration indicates the target file cannot be determined.
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodeStoreUnavailable indicates the physical file cannot be opened or created.
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// CodeSchemaConflict indicates data incompatible with a column's declared type.
	CodeSchemaConflict ErrorCode = "SCHEMA_CONFLICT"

	// CodeWriteFailure indicates a write transaction failed and was rolled back.
	CodeWriteFailure ErrorCode = "WRITE_FAILURE"

	// CodeQueueClosed indicates a write was enqueued after the store was closed.
	CodeQueueClosed ErrorCode = "QUEUE_CLOSED"
)

// StoreError is returned by every store operation that fails.
//
// Granularity: StoreUnavailable is scoped to one file, SchemaConflict and
// WriteFailure to one table of one file. Sibling files and tables in the
// same flush are unaffected.
type StoreError struct {
	Code    ErrorCode
	Message string
	File    string
	Table   string
	Err     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.File != "" && e.Table != "":
		msg = fmt.Sprintf("%s (file=%s, table=%s)", msg, e.File, e.Table)
	case e.File != "":
		msg = fmt.Sprintf("%s (file=%s)", msg, e.File)
	case e.Table != "":
		msg = fmt.Sprintf("%s (table=%s)", msg, e.Table)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is a CONFIGURATION store error.
func IsConfigurationError(err error) bool { return hasCode(err, CodeConfiguration) }

// IsStoreUnavailable reports whether err is a STORE_UNAVAILABLE store error.
func IsStoreUnavailable(err error) bool { return hasCode(err, CodeStoreUnavailable) }

// IsSchemaConflict reports whether err is a SCHEMA_CONFLICT store error.
func IsSchemaConflict(err error) bool { return hasCode(err, CodeSchemaConflict) }

// IsWriteFailure reports whether err is a WRITE_FAILURE store error.
func IsWriteFailure(err error) bool { return hasCode(err, CodeWriteFailure) }

// IsQueueClosed reports whether err is a QUEUE_CLOSED store error.
func IsQueueClosed(err error) bool { return hasCode(err, CodeQueueClosed) }

// hasCode walks joined and wrapped errors looking for a StoreError with code.
func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var se *StoreError
	if errors.As(err, &se) && se.Code == code {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if hasCode(e, code) {
				return true
			}
		}
	}
	return false
}

func configurationError(msg string) *StoreError {
	return &StoreError{Code: CodeConfiguration, Message: msg}
}

func unavailableError(file string, err error) *StoreError {
	return &StoreError{Code: CodeStoreUnavailable, Message: "cannot open result store", File: file, Err: err}
}

func schemaConflict(file, table string, err error) *StoreError {
	return &StoreError{Code: CodeSchemaConflict, Message: "incompatible column data", File: file, Table: table, Err: err}
}

func writeFailure(file, table string, err error) *StoreError {
	return &StoreError{Code: CodeWriteFailure, Message: "write transaction failed", File: file, Table: table, Err: err}
}
