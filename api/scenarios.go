/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	attendance for March 2025 and trigger recalculation, so each category
	of the hour classification can be inspected through the API.

AVAILABLE SCENARIOS:

	day-worker:       Weekday 09:00-18:00 shifts with two overtime evenings
	night-worker:     22:00-06:00 shifts crossing midnight
	holiday-overtime: Ten hours worked on a public holiday
	leave-mix:        Annual leave, half days and an absence
	invalid-punch:    A missing check-out producing a partial sheet

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Save holidays, if the scenario needs one
 3. Save the scenario's records
 4. Trigger recalculation of every touched month

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "night-worker"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	scenarioYear  = 2025
	scenarioMonth = time.March
)

var scenarios = []ScenarioDTO{
	{
		ID:          "day-worker",
		Name:        "Day Worker",
		Description: "Weekday day shifts with two overtime evenings and one early start",
	},
	{
		ID:          "night-worker",
		Name:        "Night Worker",
		Description: "Night shifts crossing midnight, one running into the morning",
	},
	{
		ID:          "holiday-overtime",
		Name:        "Holiday Overtime",
		Description: "Ten hours on a public holiday: holiday and holiday overtime hours",
	},
	{
		ID:          "leave-mix",
		Name:        "Leave Mix",
		Description: "Annual leave, morning and afternoon half days, and an absence",
	},
	{
		ID:          "invalid-punch",
		Name:        "Invalid Punch",
		Description: "A missing check-out excluded from an otherwise complete sheet",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"day-worker":       (*Handler).loadDayWorkerScenario,
	"night-worker":     (*Handler).loadNightWorkerScenario,
	"holiday-overtime": (*Handler).loadHolidayOvertimeScenario,
	"leave-mix":        (*Handler).loadLeaveMixScenario,
	"invalid-punch":    (*Handler).loadInvalidPunchScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(h, ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type scenarioDay struct {
	day     int
	in, out string
	shift   attendance.ShiftType
	status  attendance.Status
}

func worked(day int, in, out string) scenarioDay {
	return scenarioDay{day: day, in: in, out: out, shift: attendance.ShiftDay, status: attendance.StatusWorked}
}

func (h *Handler) saveDays(ctx context.Context, employeeID string, days []scenarioDay) error {
	for _, d := range days {
		rec := attendance.Record{
			EmployeeID: employeeID,
			Date:       attendance.NewDate(scenarioYear, scenarioMonth, d.day),
			Shift:      d.shift,
			Status:     d.status,
		}
		if d.in != "" {
			in := attendance.MustParseClock(d.in)
			rec.CheckIn = &in
		}
		if d.out != "" {
			out := attendance.MustParseClock(d.out)
			rec.CheckOut = &out
		}
		if err := h.Store.SaveRecord(ctx, rec); err != nil {
			return err
		}
	}
	return h.Coordinator.Trigger(employeeID, scenarioYear, scenarioMonth)
}

func (h *Handler) loadDayWorkerScenario(ctx context.Context) error {
	return h.saveDays(ctx, "emp-001", []scenarioDay{
		worked(3, "09:00", "18:00"),
		worked(4, "09:00", "20:30"),
		worked(5, "08:00", "18:00"),
		worked(6, "09:00", "18:00"),
		worked(7, "09:00", "19:00"),
		{day: 10, in: "09:40", out: "18:00", shift: attendance.ShiftDay, status: attendance.StatusLate},
	})
}

func (h *Handler) loadNightWorkerScenario(ctx context.Context) error {
	night := func(day int, in, out string) scenarioDay {
		return scenarioDay{day: day, in: in, out: out, shift: attendance.ShiftNight, status: attendance.StatusWorked}
	}
	return h.saveDays(ctx, "emp-002", []scenarioDay{
		night(3, "22:00", "06:00"),
		night(4, "22:00", "06:00"),
		night(5, "21:00", "06:00"),
		night(6, "22:00", "08:00"),
	})
}

func (h *Handler) loadHolidayOvertimeScenario(ctx context.Context) error {
	hs, ok := h.Store.(attendance.HolidayStore)
	if !ok {
		return errors.New("store does not manage holidays")
	}
	if err := hs.SaveHoliday(ctx, attendance.Holiday{
		ID:   "scenario-substitute-holiday",
		Date: attendance.NewDate(scenarioYear, scenarioMonth, 3),
		Name: "Substitute holiday",
	}); err != nil {
		return err
	}
	return h.saveDays(ctx, "emp-003", []scenarioDay{
		worked(3, "09:00", "19:00"),
		worked(4, "09:00", "18:00"),
	})
}

func (h *Handler) loadLeaveMixScenario(ctx context.Context) error {
	return h.saveDays(ctx, "emp-004", []scenarioDay{
		worked(3, "09:00", "18:00"),
		{day: 4, shift: attendance.ShiftDay, status: attendance.StatusAnnualLeave},
		{day: 5, in: "14:00", out: "18:00", shift: attendance.ShiftDay, status: attendance.StatusHalfDayAM},
		{day: 6, in: "09:00", out: "13:00", shift: attendance.ShiftDay, status: attendance.StatusHalfDayPM},
		{day: 7, shift: attendance.ShiftDay, status: attendance.StatusAbsent},
	})
}

func (h *Handler) loadInvalidPunchScenario(ctx context.Context) error {
	return h.saveDays(ctx, "emp-005", []scenarioDay{
		worked(3, "09:00", "18:00"),
		{day: 4, in: "09:00", shift: attendance.ShiftDay, status: attendance.StatusWorked},
		worked(5, "09:00", "18:00"),
	})
}
