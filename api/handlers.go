/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes record edits, sheet reads and recalculation via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the
  recalculation coordinator.

ENDPOINTS:
  Records (edit hook):
    PUT    /api/records/{employee}/{date}      Save a record, recalculate its month
    DELETE /api/records/{employee}/{date}      Delete a record, recalculate its month

  Sheets:
    GET    /api/sheets?year=&month=            List a month's sheets
    GET    /api/sheets/{employee}/{year}/{month}              getAttendanceSheet
    POST   /api/sheets/{employee}/{year}/{month}/recalculate  triggerRecalculation
    GET    /api/sheets/{employee}/{year}/{month}/breakdown    Per-day classification
    GET    /api/sheets/{employee}/{year}/{month}/runs         Run history
    GET    /api/sheets/{employee}/{year}/{month}/status       Coordinator state

  Recalculation:
    GET    /api/recalc/status                  State of every known key
    POST   /api/recalc/sweep                   Re-trigger stale and failed keys

  Holidays:
    GET    /api/holidays?year=                 List holidays of a year
    POST   /api/holidays                       Create holiday
    DELETE /api/holidays/{id}                  Delete holiday

  Scenarios:
    GET    /api/scenarios                      List demo scenarios
    POST   /api/scenarios/load                 Load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Save the edit and trigger recalculation of the affected month
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Sheet or record not found
  - 409: Key owned by another shard
  - 501: Store lacks the capability (e.g. no run history)
  - 503: Coordinator stopped
  - 504: Recalculation timed out
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/recalc"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Optional store
// capabilities (holidays, runs, sheet listing, reset) are detected with a
// type assertion on Store.
type Handler struct {
	Coordinator *recalc.Coordinator
	Store       attendance.RecordWriter
	Calendar    attendance.Calendar

	// Sweeper is optional; it backs POST /api/recalc/sweep.
	Sweeper *recalc.Sweeper

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(c *recalc.Coordinator, store attendance.RecordWriter, cal attendance.Calendar) *Handler {
	return &Handler{Coordinator: c, Store: store, Calendar: cal}
}

// =============================================================================
// RECORD HANDLERS (edit hook)
// =============================================================================

// PutRecord saves one record and triggers recalculation of its month.
// PUT /api/records/{employee}/{date}
func (h *Handler) PutRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employeeID := chi.URLParam(r, "employee")
	date, err := attendance.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Status == "" && !req.AutoDetermined {
		writeError(w, http.StatusBadRequest, "status is required unless auto_determined is set", nil)
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, attendance.ReasonUnknownStatus, nil)
		return
	}
	if !req.ShiftType.Valid() {
		writeError(w, http.StatusBadRequest, attendance.ReasonUnknownShift, nil)
		return
	}

	rec := attendance.Record{
		EmployeeID:     employeeID,
		Date:           date,
		CheckIn:        req.CheckIn,
		CheckOut:       req.CheckOut,
		Shift:          req.ShiftType,
		Status:         req.Status,
		Remarks:        req.Remarks,
		AutoDetermined: req.AutoDetermined,
	}

	facts, err := h.Calendar.Facts(ctx, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read calendar", err)
		return
	}
	rec.Status = attendance.DetermineStatus(rec, facts)
	if rec.Status == "" {
		writeError(w, http.StatusBadRequest, "status cannot be determined without punches", nil)
		return
	}

	if err := h.Store.SaveRecord(ctx, rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save record", err)
		return
	}
	if err := h.Coordinator.TriggerDate(employeeID, date); err != nil {
		writeDomainError(w, "Record saved but recalculation was not scheduled", err)
		return
	}

	resp := RecordResponse{
		Record: rec,
		Recalc: toKeyStatusDTO(h.Coordinator.Status(attendance.KeyFor(employeeID, date))),
	}
	day, err := attendance.Classify(rec, facts)
	var ve *attendance.ValidationError
	switch {
	case errors.As(err, &ve):
		resp.Validation = ve.Reason
	case err == nil:
		dto := toDayDTO(day)
		resp.Day = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteRecord removes one record and triggers recalculation of its month.
// DELETE /api/records/{employee}/{date}
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employee")
	date, err := attendance.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	key := attendance.RecordKey{EmployeeID: employeeID, Date: date}
	if err := h.Store.DeleteRecord(r.Context(), key); err != nil {
		writeDomainError(w, "Failed to delete record", err)
		return
	}
	if err := h.Coordinator.TriggerDate(employeeID, date); err != nil {
		writeDomainError(w, "Record deleted but recalculation was not scheduled", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// SHEET HANDLERS
// =============================================================================

// GetSheet returns the stored sheet.
// GET /api/sheets/{employee}/{year}/{month}
func (h *Handler) GetSheet(w http.ResponseWriter, r *http.Request) {
	key, err := sheetKey(r)
	if err != nil {
		writeDomainError(w, "Invalid sheet key", err)
		return
	}

	sheet, err := h.Coordinator.Sheet(r.Context(), key.EmployeeID, key.Year, key.Month)
	if err != nil {
		writeDomainError(w, "Failed to get sheet", err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// ListSheets returns every sheet of a month.
// GET /api/sheets?year=2025&month=3
func (h *Handler) ListSheets(w http.ResponseWriter, r *http.Request) {
	lister, ok := h.Store.(attendance.SheetLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store cannot list sheets", nil)
		return
	}
	year, month, err := yearMonth(r.URL.Query().Get("year"), r.URL.Query().Get("month"))
	if err != nil {
		writeDomainError(w, "Invalid month", err)
		return
	}

	sheets, err := lister.ListSheets(r.Context(), year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sheets", err)
		return
	}
	if sheets == nil {
		sheets = []attendance.Sheet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sheets": sheets})
}

// Recalculate triggers recalculation. With ?wait=true the response carries
// the committed sheet.
// POST /api/sheets/{employee}/{year}/{month}/recalculate
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	key, err := sheetKey(r)
	if err != nil {
		writeDomainError(w, "Invalid sheet key", err)
		return
	}
	if err := h.Coordinator.TriggerKey(key); err != nil {
		writeDomainError(w, "Failed to trigger recalculation", err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, toKeyStatusDTO(h.Coordinator.Status(key)))
		return
	}

	if err := h.Coordinator.Wait(r.Context(), key); err != nil {
		writeDomainError(w, "Recalculation did not finish", err)
		return
	}
	st := h.Coordinator.Status(key)
	if st.LastError != "" {
		writeError(w, http.StatusInternalServerError, "Recalculation failed", st.LastError)
		return
	}
	sheet, err := h.Coordinator.Sheet(r.Context(), key.EmployeeID, key.Year, key.Month)
	if err != nil {
		writeDomainError(w, "Failed to get sheet", err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// GetBreakdown classifies the month's current records without committing.
// GET /api/sheets/{employee}/{year}/{month}/breakdown
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	key, err := sheetKey(r)
	if err != nil {
		writeDomainError(w, "Invalid sheet key", err)
		return
	}

	res, err := h.Coordinator.Breakdown(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Failed to classify records", err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(res))
}

// ListRuns returns recalculation history, newest first.
// GET /api/sheets/{employee}/{year}/{month}/runs?limit=20
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	recorder, ok := h.Store.(attendance.RunRecorder)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not record runs", nil)
		return
	}
	key, err := sheetKey(r)
	if err != nil {
		writeDomainError(w, "Invalid sheet key", err)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
	}

	runs, err := recorder.Runs(r.Context(), key, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get runs", err)
		return
	}
	if runs == nil {
		runs = []attendance.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetKeyStatus returns the coordinator state of one key.
// GET /api/sheets/{employee}/{year}/{month}/status
func (h *Handler) GetKeyStatus(w http.ResponseWriter, r *http.Request) {
	key, err := sheetKey(r)
	if err != nil {
		writeDomainError(w, "Invalid sheet key", err)
		return
	}
	writeJSON(w, http.StatusOK, toKeyStatusDTO(h.Coordinator.Status(key)))
}

// ListRecalcStatus returns the state of every key the coordinator has seen.
// GET /api/recalc/status
func (h *Handler) ListRecalcStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := h.Coordinator.Snapshot()
	dtos := make([]KeyStatusDTO, 0, len(snapshot))
	for _, ks := range snapshot {
		dtos = append(dtos, toKeyStatusDTO(ks))
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": dtos})
}

// Sweep re-triggers stale and failed keys immediately.
// POST /api/recalc/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper == nil {
		writeError(w, http.StatusNotImplemented, "Sweeper is not configured", nil)
		return
	}
	n := h.Sweeper.RunNow(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "triggered", "triggered": n})
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

func (h *Handler) holidays(w http.ResponseWriter) (attendance.HolidayStore, bool) {
	hs, ok := h.Store.(attendance.HolidayStore)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not manage holidays", nil)
	}
	return hs, ok
}

// ListHolidays returns the holidays of a year (default: current year).
// GET /api/holidays?year=2025
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	hs, ok := h.holidays(w)
	if !ok {
		return
	}
	year := time.Now().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		var err error
		if year, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
	}

	holidays, err := hs.HolidaysBetween(r.Context(), attendance.NewDate(year, time.January, 1), attendance.NewDate(year, time.December, 31))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get holidays", err)
		return
	}
	if holidays == nil {
		holidays = []attendance.Holiday{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": holidays})
}

// CreateHoliday creates a holiday and recalculates the month it falls in.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	hs, ok := h.holidays(w)
	if !ok {
		return
	}

	var req HolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Date == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Date and name are required", nil)
		return
	}
	date, err := attendance.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	holiday := attendance.Holiday{ID: uuid.NewString(), Date: date, Name: req.Name, Recurring: req.Recurring}
	if err := hs.SaveHoliday(r.Context(), holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
		return
	}
	triggered := h.recalculateMonth(r.Context(), date.Year, date.Month)

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":    "created",
		"holiday":   holiday,
		"triggered": triggered,
	})
}

// DeleteHoliday deletes a holiday. ?date= names the month to recalculate.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	hs, ok := h.holidays(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := hs.DeleteHoliday(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}

	triggered := 0
	if v := r.URL.Query().Get("date"); v != "" {
		if date, err := attendance.ParseDate(v); err == nil {
			triggered = h.recalculateMonth(r.Context(), date.Year, date.Month)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "triggered": triggered})
}

// recalculateMonth triggers every employee with records in the month.
// Stores without EmployeeLister trigger nothing; the sweeper catches up.
func (h *Handler) recalculateMonth(ctx context.Context, year int, month time.Month) int {
	lister, ok := h.Store.(attendance.EmployeeLister)
	if !ok {
		return 0
	}
	ids, err := lister.EmployeesWithRecords(ctx, year, month)
	if err != nil {
		return 0
	}
	n := 0
	for _, id := range ids {
		if err := h.Coordinator.Trigger(id, year, month); err == nil {
			n++
		}
	}
	return n
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resetter interface {
	Reset(ctx context.Context) error
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(resetter)
	if !ok {
		return errors.New("store cannot be reset")
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func sheetKey(r *http.Request) (attendance.SheetKey, error) {
	year, month, err := yearMonth(chi.URLParam(r, "year"), chi.URLParam(r, "month"))
	if err != nil {
		return attendance.SheetKey{}, err
	}
	key := attendance.NewSheetKey(chi.URLParam(r, "employee"), year, month)
	return key, key.Validate()
}

func yearMonth(y, m string) (int, time.Month, error) {
	year, err := strconv.Atoi(y)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: year %q", attendance.ErrInvalidKey, y)
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: month %q", attendance.ErrInvalidKey, m)
	}
	return year, time.Month(month), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	resp := ErrorResponse{Error: message}
	switch d := details.(type) {
	case nil:
	case error:
		resp.Details = d.Error()
	default:
		resp.Details = d
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case attendance.IsClientError(err):
		status = http.StatusBadRequest
	case attendance.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, recalc.ErrNotOwner):
		status = http.StatusConflict
	case errors.Is(err, recalc.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, message, err)
}
