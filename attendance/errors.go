/*
errors.go - Error types for the classification engine

ERROR CATEGORIES:
  1. Validation errors - a record cannot be classified (excluded, surfaced)
  2. Partial failures - a sheet was built from a subset of the month's records
  3. Store errors - reads/writes against the record or sheet store failed

USAGE:
  if errors.Is(err, attendance.ErrInvalidRecord) { ... }

  var pf *attendance.PartialFailure
  if errors.As(err, &pf) {
      for _, ve := range pf.Excluded { ... }
  }

SEE ALSO:
  - classify.go: produces ValidationError
  - aggregate.go: produces PartialFailure
  - recalc/coordinator.go: wraps StoreError and retries
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRecord is wrapped by every ValidationError.
	ErrInvalidRecord = errors.New("invalid attendance record")

	// ErrPartialFailure is wrapped by PartialFailure.
	ErrPartialFailure = errors.New("sheet built from partial record set")

	// ErrStore is wrapped by StoreError.
	ErrStore = errors.New("store failure")

	// ErrSheetNotFound is returned by SheetStore.GetSheet for an unknown key.
	ErrSheetNotFound = errors.New("attendance sheet not found")

	// ErrRecordNotFound is returned when deleting or fetching a missing record.
	ErrRecordNotFound = errors.New("attendance record not found")

	// ErrInvalidKey is returned for malformed sheet keys.
	ErrInvalidKey = errors.New("invalid sheet key")

	// ErrInvalidCalendar is returned when calendar facts cannot be used.
	ErrInvalidCalendar = errors.New("invalid calendar facts")
)

// Validation reasons.
const (
	ReasonIncompletePunches = "incomplete punch pair"
	ReasonNonPositive       = "non-positive duration"
	ReasonPunchOutOfRange   = "punch out of range"
	ReasonLeaveWithPunches  = "leave status with punches"
	ReasonMissingPunches    = "worked status without punches"
	ReasonUnknownStatus     = "unknown status"
	ReasonUnknownShift      = "unknown shift type"
	ReasonOtherEmployee     = "record belongs to another employee"
	ReasonOutsidePeriod     = "record date outside sheet month"
	ReasonDuplicateDate     = "duplicate record for date"
	ReasonNoCalendarFacts   = "no calendar facts for date"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError identifies a record excluded from aggregation.
type ValidationError struct {
	Key    RecordKey
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRecord }

func invalid(rec Record, reason string) *ValidationError {
	return &ValidationError{Key: rec.Key(), Reason: reason}
}

// PartialFailure reports that a sheet was computed but some records were excluded.
type PartialFailure struct {
	Key      SheetKey
	Excluded []*ValidationError
}

func (e *PartialFailure) Error() string {
	parts := make([]string, len(e.Excluded))
	for i, ve := range e.Excluded {
		parts[i] = ve.Error()
	}
	return fmt.Sprintf("sheet %s excludes %d record(s): %s", e.Key, len(e.Excluded), strings.Join(parts, "; "))
}

func (e *PartialFailure) Unwrap() error { return ErrPartialFailure }

// ExcludedKeys returns the record keys left out of the sheet.
func (e *PartialFailure) ExcludedKeys() []RecordKey {
	keys := make([]RecordKey, len(e.Excluded))
	for i, ve := range e.Excluded {
		keys[i] = ve.Key
	}
	return keys
}

// StoreError wraps a failed read or write against an external store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

// Unwrap exposes both the sentinel and the cause.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// Validation problems and cancellations never do.
func IsRetryable(err error) bool {
	if err == nil || IsClientError(err) || IsNotFound(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrInvalidCalendar)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSheetNotFound) || errors.Is(err, ErrRecordNotFound)
}
