/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Sheets and records are
  returned with the domain types' own JSON tags; everything derived for
  display (daily breakdowns, key status) gets a DTO here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Records:    RecordRequest, RecordResponse
  Breakdown:  DayDTO, ExcludedDTO, BreakdownDTO
  Recalc:     KeyStatusDTO
  Holidays:   HolidayRequest
  Scenarios:  ScenarioDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/recalc"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RecordRequest is the body of PUT /api/records/{employee}/{date}.
type RecordRequest struct {
	CheckIn        *attendance.ClockTime `json:"check_in"`
	CheckOut       *attendance.ClockTime `json:"check_out"`
	ShiftType      attendance.ShiftType  `json:"shift_type"`
	Status         attendance.Status     `json:"status"`
	Remarks        string                `json:"remarks"`
	AutoDetermined bool                  `json:"auto_determined"`
}

// RecordResponse echoes the stored record with a preview of its classification.
type RecordResponse struct {
	Record     attendance.Record `json:"record"`
	Day        *DayDTO           `json:"day,omitempty"`
	Validation string            `json:"validation,omitempty"`
	Recalc     KeyStatusDTO      `json:"recalc"`
}

// DayDTO is one classified record. Hours are keyed by category name and
// only non-zero categories are listed.
type DayDTO struct {
	Date        string                     `json:"date"`
	Status      attendance.Status          `json:"status"`
	Hours       map[string]decimal.Decimal `json:"hours"`
	WorkedHours decimal.Decimal            `json:"worked_hours"`
	WorkDays    decimal.Decimal            `json:"work_days"`
	LeaveKind   attendance.LeaveKind       `json:"leave_kind,omitempty"`
	LeaveDays   *decimal.Decimal           `json:"leave_days,omitempty"`
}

// ExcludedDTO is a record left out of a sheet.
type ExcludedDTO struct {
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date"`
	Reason     string `json:"reason"`
}

// BreakdownDTO is the per-day view behind a sheet.
type BreakdownDTO struct {
	Sheet    attendance.Sheet `json:"sheet"`
	Days     []DayDTO         `json:"days"`
	Excluded []ExcludedDTO    `json:"excluded"`
}

// KeyStatusDTO is the coordinator state of one sheet key.
type KeyStatusDTO struct {
	Key string `json:"key"`
	recalc.KeyStatus
}

// HolidayRequest is the body of POST /api/holidays.
type HolidayRequest struct {
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toDayDTO(d attendance.DayResult) DayDTO {
	dto := DayDTO{
		Date:        d.Key.Date.String(),
		Status:      d.Status,
		Hours:       make(map[string]decimal.Decimal),
		WorkedHours: attendance.MinutesToHours(d.WorkedMinutes),
		WorkDays:    d.WorkDays,
	}
	for name, minutes := range d.Minutes.Map() {
		dto.Hours[name] = attendance.MinutesToHours(minutes)
	}
	if d.Leave != nil {
		days := d.Leave.Days
		dto.LeaveKind = d.Leave.Kind
		dto.LeaveDays = &days
	}
	return dto
}

func toExcludedDTO(ve *attendance.ValidationError) ExcludedDTO {
	return ExcludedDTO{EmployeeID: ve.Key.EmployeeID, Date: ve.Key.Date.String(), Reason: ve.Reason}
}

func toBreakdownDTO(res attendance.AggregateResult) BreakdownDTO {
	dto := BreakdownDTO{
		Sheet:    res.Sheet,
		Days:     make([]DayDTO, 0, len(res.Days)),
		Excluded: make([]ExcludedDTO, 0, len(res.Excluded)),
	}
	for _, d := range res.Days {
		dto.Days = append(dto.Days, toDayDTO(d))
	}
	for _, ve := range res.Excluded {
		dto.Excluded = append(dto.Excluded, toExcludedDTO(ve))
	}
	return dto
}

func toKeyStatusDTO(ks recalc.KeyStatus) KeyStatusDTO {
	return KeyStatusDTO{Key: ks.Key.String(), KeyStatus: ks}
}
