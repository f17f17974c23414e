package hcf

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Application error codes.
const (
	ECONFIG    = "config"
	EINVALID   = "invalid"
	ENOTFOUND  = "not_found"
	ETRANSIENT = "transient"
	EFATAL     = "fatal"
	EDATALOSS  = "data_loss"
	EINTERNAL  = "internal"
)

// Error represents an application-specific error.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// DataLossError reports work that could not be delivered to the remote store
// after retries were exhausted. It carries the undelivered batch or the
// dirty state entries so the caller can persist or retry them.
type DataLossError struct {
	Slot     string
	Requests []Request
	States   map[Fingerprint][]byte
	Err      error
}

// Error implements the error interface.
func (e *DataLossError) Error() string {
	switch {
	case len(e.Requests) > 0:
		return fmt.Sprintf("undelivered batch for slot %q (%d requests): %v", e.Slot, len(e.Requests), e.Err)
	case len(e.States) > 0:
		return fmt.Sprintf("unflushed states (%d entries): %v", len(e.States), e.Err)
	}
	return fmt.Sprintf("data loss risk: %v", e.Err)
}

// Unwrap returns the underlying store error.
func (e *DataLossError) Unwrap() error {
	return e.Err
}

// Keys returns the fingerprints of the undelivered state entries in sorted order.
func (e *DataLossError) Keys() []Fingerprint {
	keys := make([]Fingerprint, 0, len(e.States))
	for k := range e.States {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var dl *DataLossError
	if errors.As(err, &dl) {
		return EDATALOSS
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error".
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var dl *DataLossError
	if errors.As(err, &dl) {
		return dl.Error()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error"
}

// IsRetryable reports whether an operation that failed with err may succeed
// when attempted again. Errors without an application code, such as network
// failures, are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch ErrorCode(err) {
	case ETRANSIENT:
		return true
	case EINTERNAL:
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}
