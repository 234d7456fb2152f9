// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrSchedulingConflict marks a duplicate trigger absorbed by the de-duplication window.
// Callers treat it as success.
var ErrSchedulingConflict = errors.New("duplicate trigger within de-duplication window")

// ErrClaimConflict means a concurrent dispatcher or sweep won the conditional update.
var ErrClaimConflict = errors.New("claim lost to concurrent worker")

// ErrForbidden is returned when a principal reaches for another tenant's data.
var ErrForbidden = errors.New("forbidden")

// InvalidEventError rejects a malformed or unknown trigger at intake.
type InvalidEventError struct {
	Field  string
	Reason string
}

func (e *InvalidEventError) Error() string {
	if e.Field == "" {
		return "invalid event: " + e.Reason
	}
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

func NewInvalidEvent(field, reason string) error {
	return &InvalidEventError{Field: field, Reason: reason}
}

// AdapterFailure is a channel send failure: timeout, provider rejection or bad destination.
type AdapterFailure struct {
	Channel string
	Reason  string
	Err     error
}

func (e *AdapterFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s adapter: %s: %v", e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s adapter: %s", e.Channel, e.Reason)
}

func (e *AdapterFailure) Unwrap() error { return e.Err }

func NewAdapterFailure(channel, reason string, err error) error {
	return &AdapterFailure{Channel: channel, Reason: reason, Err: err}
}

// DanglingReferenceError is a job whose review request does not exist.
// Scheduling writes both rows in one transaction, so seeing this is a bug.
type DanglingReferenceError struct {
	JobID           string
	ReviewRequestID string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("job %s references missing review request %s", e.JobID, e.ReviewRequestID)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidTransitionError is returned when a review request would move backwards.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid review request transition %s -> %s", e.From, e.To)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsInvalidEvent(err error) bool {
	var ie *InvalidEventError
	return errors.As(err, &ie)
}
