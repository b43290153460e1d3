package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/recalc"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	store  *sqlite.Store
	coord  *recalc.Coordinator
	router http.Handler
	h      *Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cal, err := calendar.New(calendar.DefaultRules(), store)
	require.NoError(t, err)

	coord := recalc.New(recalc.Deps{Records: store, Sheets: store, Calendar: cal, Leave: store}, recalc.DefaultOptions())
	coord.Start(context.Background())
	t.Cleanup(coord.Stop)

	h := NewHandler(coord, store, cal)
	return &testServer{store: store, coord: coord, router: NewRouter(h, []string{"*"}), h: h}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.coord.Drain(ctx))
}

func (s *testServer) sheet(t *testing.T, path string) attendance.Sheet {
	t.Helper()
	rec := s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sheet attendance.Sheet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sheet))
	return sheet
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// RECORD EDIT HOOK
// =============================================================================

func TestPutRecord_RecalculatesSheet(t *testing.T) {
	// GIVEN: an empty store
	s := newTestServer(t)

	// WHEN: a ten hour Tuesday is saved
	rec := s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-04", map[string]any{
		"check_in": "09:00", "check_out": "19:00", "shift_type": "day", "status": "worked",
	})

	// THEN: the preview splits regular and overtime hours
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RecordResponse](t, rec)
	require.NotNil(t, resp.Day)
	assert.Empty(t, resp.Validation)
	assert.Equal(t, "8", resp.Day.Hours["regular"].String())
	assert.Equal(t, "2", resp.Day.Hours["overtime"].String())
	assert.Equal(t, "emp-1/2025-03", resp.Recalc.Key)

	// AND: the committed sheet matches once the coordinator is idle
	s.drain(t)
	sheet := s.sheet(t, "/api/sheets/emp-1/2025/3")
	assert.Equal(t, "8", sheet.RegularHours.String())
	assert.Equal(t, "2", sheet.OvertimeHours.String())
	assert.Equal(t, "10", sheet.TotalWorkHours.String())
	assert.Equal(t, "1", sheet.TotalWorkDays.String())
}

func TestPutRecord_AutoDeterminedStatus(t *testing.T) {
	// GIVEN: a record without status arriving after shift start
	s := newTestServer(t)

	// WHEN: it is saved with auto_determined
	rec := s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-04", map[string]any{
		"check_in": "09:30", "check_out": "18:00", "auto_determined": true,
	})

	// THEN: the status is derived from the day shift window
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RecordResponse](t, rec)
	assert.Equal(t, attendance.StatusLate, resp.Record.Status)
}

func TestPutRecord_RejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"bad date", "/api/records/emp-1/2025-13-01", map[string]any{"status": "worked"}},
		{"bad json", "/api/records/emp-1/2025-03-04", "{"},
		{"bad clock", "/api/records/emp-1/2025-03-04", map[string]any{"check_in": "25:00", "check_out": "18:00", "status": "worked"}},
		{"unknown status", "/api/records/emp-1/2025-03-04", map[string]any{"status": "vacation"}},
		{"unknown shift", "/api/records/emp-1/2025-03-04", map[string]any{"status": "worked", "shift_type": "swing"}},
		{"missing status", "/api/records/emp-1/2025-03-04", map[string]any{"check_in": "09:00", "check_out": "18:00"}},
		{"auto without punches", "/api/records/emp-1/2025-03-04", map[string]any{"auto_determined": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestPutRecord_InvalidRecordIsExcluded(t *testing.T) {
	// GIVEN: one complete day
	s := newTestServer(t)
	s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-03", map[string]any{
		"check_in": "09:00", "check_out": "17:00", "status": "worked",
	})

	// WHEN: a check-in without check-out is saved
	rec := s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-04", map[string]any{
		"check_in": "09:00", "status": "worked",
	})

	// THEN: the record is stored but flagged
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RecordResponse](t, rec)
	assert.Nil(t, resp.Day)
	assert.Equal(t, attendance.ReasonIncompletePunches, resp.Validation)

	// AND: the sheet is published without it
	s.drain(t)
	sheet := s.sheet(t, "/api/sheets/emp-1/2025/3")
	assert.Equal(t, "8", sheet.RegularHours.String())
	assert.Equal(t, []string{"2025-03-04"}, sheet.Excluded)
}

func TestDeleteRecord(t *testing.T) {
	s := newTestServer(t)

	t.Run("missing record is 404", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/records/emp-1/2025-03-04", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("deleting recalculates", func(t *testing.T) {
		// GIVEN: two worked days
		s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-03", map[string]any{"check_in": "09:00", "check_out": "17:00", "status": "worked"})
		s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-04", map[string]any{"check_in": "09:00", "check_out": "17:00", "status": "worked"})
		s.drain(t)
		assert.Equal(t, "16", s.sheet(t, "/api/sheets/emp-1/2025/3").RegularHours.String())

		// WHEN: one is deleted
		rec := s.do(t, http.MethodDelete, "/api/records/emp-1/2025-03-04", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		s.drain(t)

		// THEN: the sheet only counts the remaining day
		sheet := s.sheet(t, "/api/sheets/emp-1/2025/3")
		assert.Equal(t, "8", sheet.RegularHours.String())
		assert.Equal(t, "1", sheet.TotalWorkDays.String())
	})
}

// =============================================================================
// SHEETS
// =============================================================================

func TestGetSheet_Errors(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/sheets/emp-1/2025/3", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/sheets/emp-1/2025/13", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/sheets/emp-1/year/3", nil).Code)
}

func TestRecalculate(t *testing.T) {
	// GIVEN: a record written straight to the store, bypassing the edit hook
	s := newTestServer(t)
	in, out := attendance.Clock(22, 0), attendance.Clock(6, 0)
	require.NoError(t, s.store.SaveRecord(context.Background(), attendance.Record{
		EmployeeID: "emp-2",
		Date:       attendance.NewDate(2025, time.March, 4),
		CheckIn:    &in,
		CheckOut:   &out,
		Shift:      attendance.ShiftNight,
		Status:     attendance.StatusWorked,
	}))

	t.Run("async returns 202", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/sheets/emp-2/2025/3/recalculate", nil)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		st := decode[KeyStatusDTO](t, rec)
		assert.Equal(t, "emp-2/2025-03", st.Key)
		s.drain(t)
	})

	t.Run("wait returns the sheet", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/sheets/emp-2/2025/3/recalculate?wait=true", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		sheet := decode[attendance.Sheet](t, rec)
		assert.Equal(t, "8", sheet.NightHours.String())
		assert.True(t, sheet.TotalWorkHours.Equal(sheet.CategorySum()))
	})

	t.Run("status and runs", func(t *testing.T) {
		st := decode[KeyStatusDTO](t, s.do(t, http.MethodGet, "/api/sheets/emp-2/2025/3/status", nil))
		assert.Equal(t, recalc.StateIdle, st.State)
		assert.Equal(t, 2, st.Runs)
		assert.Empty(t, st.LastError)

		var body struct {
			Runs []attendance.Run `json:"runs"`
		}
		rec := s.do(t, http.MethodGet, "/api/sheets/emp-2/2025/3/runs?limit=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Runs, 1)
		assert.Equal(t, attendance.RunSucceeded, body.Runs[0].Status)

		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/sheets/emp-2/2025/3/runs?limit=x", nil).Code)
	})

	t.Run("list sheets of the month", func(t *testing.T) {
		var body struct {
			Sheets []attendance.Sheet `json:"sheets"`
		}
		rec := s.do(t, http.MethodGet, "/api/sheets?year=2025&month=3", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Sheets, 1)
		assert.Equal(t, "emp-2", body.Sheets[0].EmployeeID)
	})
}

// heldRecords blocks reads of one employee until released.
type heldRecords struct {
	attendance.RecordStore
	employeeID string
	entered    chan struct{}
	release    chan struct{}
	once       sync.Once
}

func (h *heldRecords) Records(ctx context.Context, employeeID string, year int, month time.Month) ([]attendance.Record, error) {
	if employeeID == h.employeeID {
		h.once.Do(func() { close(h.entered) })
		<-h.release
	}
	return h.RecordStore.Records(ctx, employeeID, year, month)
}

func TestRecalculate_WaitIgnoresOtherKeys(t *testing.T) {
	// GIVEN: a recalculation of emp-9 stuck in the record store
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	cal, err := calendar.New(calendar.DefaultRules(), store)
	require.NoError(t, err)
	held := &heldRecords{RecordStore: store, employeeID: "emp-9", entered: make(chan struct{}), release: make(chan struct{})}
	coord := recalc.New(recalc.Deps{Records: held, Sheets: store, Calendar: cal}, recalc.DefaultOptions())
	coord.Start(context.Background())
	t.Cleanup(coord.Stop)
	t.Cleanup(func() { close(held.release) })
	s := &testServer{store: store, coord: coord, router: NewRouter(NewHandler(coord, store, cal), []string{"*"})}

	in, out := attendance.Clock(9, 0), attendance.Clock(17, 0)
	require.NoError(t, store.SaveRecord(context.Background(), attendance.Record{
		EmployeeID: "emp-1", Date: attendance.NewDate(2025, time.March, 4), CheckIn: &in, CheckOut: &out,
		Shift: attendance.ShiftDay, Status: attendance.StatusWorked,
	}))
	require.NoError(t, coord.Trigger("emp-9", 2025, time.March))
	<-held.entered

	// WHEN: emp-1 is recalculated with wait=true
	rec := s.do(t, http.MethodPost, "/api/sheets/emp-1/2025/3/recalculate?wait=true", nil)

	// THEN: the response carries emp-1's sheet while emp-9 is still running
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "8", decode[attendance.Sheet](t, rec).RegularHours.String())
	assert.Equal(t, recalc.StateRunning, coord.Status(attendance.NewSheetKey("emp-9", 2025, time.March)).State)
}

func TestGetBreakdown(t *testing.T) {
	// GIVEN: a worked day and a leave day
	s := newTestServer(t)
	s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-03", map[string]any{"check_in": "08:00", "check_out": "18:00", "status": "worked"})
	s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-04", map[string]any{"status": "annualLeave"})
	s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-05", map[string]any{"check_out": "18:00", "status": "worked"})

	// WHEN: the breakdown is requested
	rec := s.do(t, http.MethodGet, "/api/sheets/emp-1/2025/3/breakdown", nil)

	// THEN: each classified day and each exclusion is listed
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bd := decode[BreakdownDTO](t, rec)
	require.Len(t, bd.Days, 2)
	assert.Equal(t, "2025-03-03", bd.Days[0].Date)
	assert.Equal(t, "1", bd.Days[0].Hours["early"].String())
	assert.Equal(t, "8", bd.Days[0].Hours["regular"].String())
	assert.Equal(t, "1", bd.Days[0].Hours["overtime"].String())
	assert.Equal(t, attendance.LeaveAnnual, bd.Days[1].LeaveKind)
	require.NotNil(t, bd.Days[1].LeaveDays)
	assert.Equal(t, "1", bd.Days[1].LeaveDays.String())

	require.Len(t, bd.Excluded, 1)
	assert.Equal(t, "2025-03-05", bd.Excluded[0].Date)
	assert.Equal(t, "10", bd.Sheet.TotalWorkHours.String())
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestHolidays_RecalculateAffectedMonth(t *testing.T) {
	// GIVEN: a ten hour Tuesday on a regular working day
	s := newTestServer(t)
	s.do(t, http.MethodPut, "/api/records/emp-1/2025-03-04", map[string]any{"check_in": "09:00", "check_out": "19:00", "status": "worked"})
	s.drain(t)
	assert.Equal(t, "2", s.sheet(t, "/api/sheets/emp-1/2025/3").OvertimeHours.String())

	// WHEN: the day becomes a holiday
	rec := s.do(t, http.MethodPost, "/api/holidays", HolidayRequest{Date: "2025-03-04", Name: "Election day"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Holiday   attendance.Holiday `json:"holiday"`
		Triggered int                `json:"triggered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Holiday.ID)
	assert.Equal(t, 1, created.Triggered)
	s.drain(t)

	// THEN: the hours move to the holiday categories
	sheet := s.sheet(t, "/api/sheets/emp-1/2025/3")
	assert.Equal(t, "8", sheet.HolidayHours.String())
	assert.Equal(t, "2", sheet.HolidayOvertimeHours.String())
	assert.True(t, sheet.OvertimeHours.IsZero())

	// AND: the holiday is listed for its year
	var listed struct {
		Holidays []attendance.Holiday `json:"holidays"`
	}
	rec = s.do(t, http.MethodGet, "/api/holidays?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Holidays, 1)

	// WHEN: it is deleted again
	rec = s.do(t, http.MethodDelete, "/api/holidays/"+created.Holiday.ID+"?date=2025-03-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s.drain(t)

	// THEN: the overtime is back
	sheet = s.sheet(t, "/api/sheets/emp-1/2025/3")
	assert.Equal(t, "2", sheet.OvertimeHours.String())
	assert.True(t, sheet.HolidayHours.IsZero())
}

func TestCreateHoliday_RejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/holidays", HolidayRequest{Name: "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/holidays", HolidayRequest{Date: "03/04/2025", Name: "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/holidays?year=abc", nil).Code)
}

// =============================================================================
// COORDINATOR STATE
// =============================================================================

func TestSweep(t *testing.T) {
	s := newTestServer(t)

	t.Run("not configured", func(t *testing.T) {
		assert.Equal(t, http.StatusNotImplemented, s.do(t, http.MethodPost, "/api/recalc/sweep", nil).Code)
	})

	t.Run("re-triggers stale keys", func(t *testing.T) {
		// GIVEN: a record the coordinator never heard of
		in, out := attendance.Clock(9, 0), attendance.Clock(17, 0)
		require.NoError(t, s.store.SaveRecord(context.Background(), attendance.Record{
			EmployeeID: "emp-9",
			Date:       attendance.NewDate(2025, time.March, 4),
			CheckIn:    &in,
			CheckOut:   &out,
			Status:     attendance.StatusWorked,
		}))
		s.h.Sweeper = recalc.NewSweeper(s.coord, s.store)

		// WHEN: a sweep is requested
		rec := s.do(t, http.MethodPost, "/api/recalc/sweep", nil)

		// THEN: the stale key is recalculated
		require.Equal(t, http.StatusAccepted, rec.Code)
		var body struct {
			Triggered int `json:"triggered"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Triggered)
		s.drain(t)
		assert.Equal(t, "8", s.sheet(t, "/api/sheets/emp-9/2025/3").RegularHours.String())

		var status struct {
			Keys []KeyStatusDTO `json:"keys"`
		}
		require.NoError(t, json.Unmarshal(s.do(t, http.MethodGet, "/api/recalc/status", nil).Body.Bytes(), &status))
		require.Len(t, status.Keys, 1)
		assert.Equal(t, "emp-9/2025-03", status.Keys[0].Key)
	})
}
