/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  The engine reads attendance records and writes derived sheets. It never owns
  the records. These interfaces are injected into the recalculation
  coordinator so SQLite, MongoDB or in-memory stores can be substituted.

CORE INTERFACES:
  RecordStore:    month snapshot of raw attendance (read-only here)
  SheetStore:     atomic upsert and read of AttendanceSheet
  LeaveReporter:  fire-and-forget leave consumption notifications
  LeaveLedger:    LeaveReporter that can be read back

OPTIONAL CAPABILITIES (checked with a type assertion):
  RecordWriter:   edit hook used by the API (save/delete a record)
  EmployeeLister: employees with records in a month (bulk recalculation)
  SheetLister:    list every sheet of a month
  StaleScanner:   keys whose sheet is missing or older than a record edit
  HolidayStore:   holiday source for the calendar adapter
  RunRecorder:    audit of recalculation runs

ATOMICITY:
  UpsertSheet writes the complete sheet in one statement. A cancelled run
  either wrote the whole sheet or nothing; there are no field updates.

IMPLEMENTATIONS:
  - attendance/store/memory.go: in-memory for tests
  - store/sqlite/sqlite.go: SQLite
  - store/mongodb/mongodb.go: MongoDB

SEE ALSO:
  - recalc/coordinator.go: the only writer of sheets
*/
package attendance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CORE STORES
// =============================================================================

// RecordStore returns every record of an employee for one month.
type RecordStore interface {
	Records(ctx context.Context, employeeID string, year int, month time.Month) ([]Record, error)
}

// SheetStore persists sheets keyed uniquely by (employee, year, month).
type SheetStore interface {
	// UpsertSheet replaces the whole sheet for its key.
	UpsertSheet(ctx context.Context, sheet Sheet) error

	// GetSheet returns ErrSheetNotFound when no sheet exists for key.
	GetSheet(ctx context.Context, key SheetKey) (Sheet, error)
}

// LeaveReporter receives leave consumption. Implementations must be
// idempotent per (employee, date): the same record is reported on every
// recalculation of its month, and a later report replaces an earlier one.
type LeaveReporter interface {
	ReportLeaveConsumption(ctx context.Context, employeeID string, date Date, kind LeaveKind, amount decimal.Decimal) error
}

// LeaveEntry is one reported day of leave.
type LeaveEntry struct {
	EmployeeID string          `json:"employee_id"`
	Date       Date            `json:"date"`
	Kind       LeaveKind       `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	ReportedAt time.Time       `json:"reported_at"`
}

// LeaveLedger is a LeaveReporter that can be read back.
type LeaveLedger interface {
	LeaveReporter
	LeaveEntries(ctx context.Context, employeeID string, from, to Date) ([]LeaveEntry, error)
}

// =============================================================================
// OPTIONAL CAPABILITIES
// =============================================================================

// RecordWriter is implemented by stores that accept record edits.
// SaveRecord replaces any existing record for the same key.
type RecordWriter interface {
	SaveRecord(ctx context.Context, rec Record) error
	DeleteRecord(ctx context.Context, key RecordKey) error
}

// EmployeeLister lists employees with at least one record in a month.
type EmployeeLister interface {
	EmployeesWithRecords(ctx context.Context, year int, month time.Month) ([]string, error)
}

// SheetLister lists the sheets of one month, ordered by employee.
type SheetLister interface {
	ListSheets(ctx context.Context, year int, month time.Month) ([]Sheet, error)
}

// StaleScanner finds keys that need recomputation: months with records but
// no sheet, or whose newest record edit is after the sheet's RecordsAsOf.
type StaleScanner interface {
	StaleKeys(ctx context.Context) ([]SheetKey, error)
}

// Holiday is a named non-working date. Recurring holidays match the same
// month and day of every year.
type Holiday struct {
	ID        string `json:"id"`
	Date      Date   `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// Matches reports whether the holiday falls on d.
func (h Holiday) Matches(d Date) bool {
	if h.Recurring {
		return h.Date.Month == d.Month && h.Date.Day == d.Day
	}
	return h.Date == d
}

// HolidayStore stores the holiday calendar.
type HolidayStore interface {
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	// HolidaysBetween returns holidays falling in [from, to], recurring ones included.
	HolidaysBetween(ctx context.Context, from, to Date) ([]Holiday, error)
}

// =============================================================================
// RECALCULATION RUNS
// =============================================================================

type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Run is one completed recalculation of a sheet.
type Run struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	Status     RunStatus `json:"status"`
	Attempts   int       `json:"attempts"`
	Excluded   int       `json:"excluded"`
	Superseded bool      `json:"superseded"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r Run) Key() SheetKey { return NewSheetKey(r.EmployeeID, r.Year, time.Month(r.Month)) }

// RunRecorder keeps an audit trail of recalculation runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
	// Runs returns the most recent runs for key, newest first.
	Runs(ctx context.Context, key SheetKey, limit int) ([]Run, error)
}
