/*
Package attendance provides the hour classification and monthly aggregation engine.

PURPOSE:
  Converts raw daily punches (check-in/check-out), shift type and day status
  into mutually exclusive payroll hour categories, and sums those per-day
  classifications into one AttendanceSheet per employee and month.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: one employee's attendance for one calendar date (read-only here)
  - Sheet: the derived monthly totals, one per (employee, year, month)
  - Status / ShiftType: day status and shift the record was worked on
  - RecordKey / SheetKey: identities used in errors and by the coordinator

DESIGN PRINCIPLES:
  1. Purity: Classify and Aggregate take immutable snapshots and return values
  2. Precision: hours are decimal.Decimal, never float64
  3. Conservation: a sheet's TotalWorkHours is the sum of its categories
  4. Exclusion over coercion: invalid records are reported, never zeroed

SEE ALSO:
  - classify.go: per-record interval classification
  - aggregate.go: per-month summation
  - store.go: store interfaces consumed by the coordinator
*/
package attendance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS & SHIFT
// =============================================================================

type Status string

const (
	StatusWorked         Status = "worked"
	StatusLate           Status = "late"
	StatusEarlyLeave     Status = "earlyLeave"
	StatusAbsent         Status = "absent"
	StatusAnnualLeave    Status = "annualLeave"
	StatusHalfDayAM      Status = "halfDayAM"
	StatusHalfDayPM      Status = "halfDayPM"
	StatusLeaveOfAbsence Status = "leaveOfAbsence"
	StatusHolidayOff     Status = "holidayOff"
	StatusOther          Status = "other"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusWorked, StatusLate, StatusEarlyLeave, StatusAbsent, StatusAnnualLeave,
		StatusHalfDayAM, StatusHalfDayPM, StatusLeaveOfAbsence, StatusHolidayOff, StatusOther:
		return true
	}
	return false
}

// IsHalfDay reports whether the status covers half of the scheduled shift.
func (s Status) IsHalfDay() bool { return s == StatusHalfDayAM || s == StatusHalfDayPM }

// IsAbsence reports whether the status excludes any worked time for the day.
func (s Status) IsAbsence() bool {
	switch s {
	case StatusAbsent, StatusAnnualLeave, StatusLeaveOfAbsence, StatusHolidayOff:
		return true
	}
	return false
}

// RequiresPunches reports whether a record with this status must carry a punch pair.
func (s Status) RequiresPunches() bool {
	return s == StatusWorked || s == StatusLate || s == StatusEarlyLeave
}

type ShiftType string

const (
	ShiftDay   ShiftType = "day"
	ShiftNight ShiftType = "night"
)

// Valid reports whether t is a known shift type. The empty value is treated as day.
func (t ShiftType) Valid() bool { return t == "" || t == ShiftDay || t == ShiftNight }

// =============================================================================
// LEAVE
// =============================================================================

type LeaveKind string

const (
	LeaveAnnual    LeaveKind = "annual"
	LeaveHalfDayAM LeaveKind = "halfDayAM"
	LeaveHalfDayPM LeaveKind = "halfDayPM"
	LeaveAbsence   LeaveKind = "leaveOfAbsence"
)

// LeaveUsage is the leave a single record consumes, in days.
type LeaveUsage struct {
	Kind LeaveKind
	Days decimal.Decimal
}

var (
	oneDay  = decimal.NewFromInt(1)
	halfDay = decimal.New(5, -1)
)

func leaveUsage(s Status) *LeaveUsage {
	switch s {
	case StatusAnnualLeave:
		return &LeaveUsage{Kind: LeaveAnnual, Days: oneDay}
	case StatusLeaveOfAbsence:
		return &LeaveUsage{Kind: LeaveAbsence, Days: oneDay}
	case StatusHalfDayAM:
		return &LeaveUsage{Kind: LeaveHalfDayAM, Days: halfDay}
	case StatusHalfDayPM:
		return &LeaveUsage{Kind: LeaveHalfDayPM, Days: halfDay}
	}
	return nil
}

// =============================================================================
// RECORD - one employee, one calendar date
// =============================================================================

type RecordKey struct {
	EmployeeID string
	Date       Date
}

func (k RecordKey) String() string { return k.EmployeeID + "@" + k.Date.String() }

// Record is a raw attendance entry. CheckIn and CheckOut are both set or both nil.
// A CheckOut earlier than CheckIn belongs to the following calendar day but is
// still attributed to Date.
type Record struct {
	EmployeeID     string     `json:"employee_id"`
	Date           Date       `json:"date"`
	CheckIn        *ClockTime `json:"check_in,omitempty"`
	CheckOut       *ClockTime `json:"check_out,omitempty"`
	Shift          ShiftType  `json:"shift_type"`
	Status         Status     `json:"status"`
	Remarks        string     `json:"remarks,omitempty"`
	AutoDetermined bool       `json:"auto_determined"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (r Record) Key() RecordKey { return RecordKey{EmployeeID: r.EmployeeID, Date: r.Date} }

// HasPunches reports whether both punches are present.
func (r Record) HasPunches() bool { return r.CheckIn != nil && r.CheckOut != nil }

// ShiftOrDefault returns the record's shift, defaulting to day.
func (r Record) ShiftOrDefault() ShiftType {
	if r.Shift == "" {
		return ShiftDay
	}
	return r.Shift
}

// =============================================================================
// SHEET - derived monthly totals
// =============================================================================

// SheetKey identifies one sheet and one recalculation job.
type SheetKey struct {
	EmployeeID string
	Year       int
	Month      time.Month
}

func NewSheetKey(employeeID string, year int, month time.Month) SheetKey {
	return SheetKey{EmployeeID: employeeID, Year: year, Month: month}
}

// KeyFor maps a record date to the sheet it contributes to.
func KeyFor(employeeID string, date Date) SheetKey {
	return SheetKey{EmployeeID: employeeID, Year: date.Year, Month: date.Month}
}

func (k SheetKey) String() string {
	return fmt.Sprintf("%s/%04d-%02d", k.EmployeeID, k.Year, int(k.Month))
}

// Validate checks the key is addressable.
func (k SheetKey) Validate() error {
	if k.EmployeeID == "" {
		return fmt.Errorf("%w: employee id is required", ErrInvalidKey)
	}
	if k.Month < time.January || k.Month > time.December {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidKey, int(k.Month))
	}
	if k.Year < 1 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidKey, k.Year)
	}
	return nil
}

// FirstDay returns the first date of the key's month.
func (k SheetKey) FirstDay() Date { return NewDate(k.Year, k.Month, 1) }

// LastDay returns the last date of the key's month.
func (k SheetKey) LastDay() Date { return EndOfMonth(k.Year, k.Month) }

// Sheet is the AttendanceSheet: monthly hour totals for one employee.
//
// INVARIANT: TotalWorkHours equals the sum of all eight category fields.
type Sheet struct {
	EmployeeID string     `json:"employee_id"`
	Year       int        `json:"year"`
	Month      time.Month `json:"month"`

	EarlyHours           decimal.Decimal `json:"early_hours"`
	OvertimeHours        decimal.Decimal `json:"overtime_hours"`
	HolidayHours         decimal.Decimal `json:"holiday_hours"`
	NightHours           decimal.Decimal `json:"night_hours"`
	OvertimeNightHours   decimal.Decimal `json:"overtime_night_hours"`
	EarlyHolidayHours    decimal.Decimal `json:"early_holiday_hours"`
	HolidayOvertimeHours decimal.Decimal `json:"holiday_overtime_hours"`
	RegularHours         decimal.Decimal `json:"regular_hours"`

	TotalWorkHours decimal.Decimal `json:"total_work_hours"`
	TotalWorkDays  decimal.Decimal `json:"total_work_days"`

	// Excluded lists dates whose records failed validation.
	Excluded []string `json:"excluded,omitempty"`

	RecordsAsOf      time.Time `json:"records_as_of"`
	LastCalculatedAt time.Time `json:"last_calculated_at"`
}

func (s Sheet) Key() SheetKey { return NewSheetKey(s.EmployeeID, s.Year, s.Month) }

// Hours returns the value of one category field.
func (s Sheet) Hours(c Category) decimal.Decimal {
	switch c {
	case CategoryEarly:
		return s.EarlyHours
	case CategoryOvertime:
		return s.OvertimeHours
	case CategoryHoliday:
		return s.HolidayHours
	case CategoryNight:
		return s.NightHours
	case CategoryOvertimeNight:
		return s.OvertimeNightHours
	case CategoryEarlyHoliday:
		return s.EarlyHolidayHours
	case CategoryHolidayOvertime:
		return s.HolidayOvertimeHours
	case CategoryRegular:
		return s.RegularHours
	}
	return decimal.Zero
}

func (s *Sheet) setHours(c Category, v decimal.Decimal) {
	switch c {
	case CategoryEarly:
		s.EarlyHours = v
	case CategoryOvertime:
		s.OvertimeHours = v
	case CategoryHoliday:
		s.HolidayHours = v
	case CategoryNight:
		s.NightHours = v
	case CategoryOvertimeNight:
		s.OvertimeNightHours = v
	case CategoryEarlyHoliday:
		s.EarlyHolidayHours = v
	case CategoryHolidayOvertime:
		s.HolidayOvertimeHours = v
	case CategoryRegular:
		s.RegularHours = v
	}
}

// CategorySum recomputes the sum of every category field.
func (s Sheet) CategorySum() decimal.Decimal {
	sum := decimal.Zero
	for _, c := range Categories {
		sum = sum.Add(s.Hours(c))
	}
	return sum
}

// IsPartial reports whether any record was excluded from this sheet.
func (s Sheet) IsPartial() bool { return len(s.Excluded) > 0 }

// IsCurrent reports whether the sheet's record snapshot already contains the
// most recent record edit for its month.
func (s Sheet) IsCurrent(latestEdit time.Time) bool {
	if s.LastCalculatedAt.IsZero() {
		return false
	}
	return !latestEdit.After(s.RecordsAsOf)
}
