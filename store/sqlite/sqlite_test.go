package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/recalc"
	"github.com/warp/attendance-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(emp, date string, in, out *attendance.ClockTime, status attendance.Status) attendance.Record {
	return attendance.Record{
		EmployeeID: emp,
		Date:       attendance.MustParseDate(date),
		CheckIn:    in,
		CheckOut:   out,
		Shift:      attendance.ShiftDay,
		Status:     status,
	}
}

func TestStore_RecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	t0 := time.Date(2025, time.March, 3, 18, 30, 0, 123, time.UTC)
	s.Now = func() time.Time { return t0 }

	rec := record("emp-1", "2025-03-03", attendance.ClockPtr(22, 0), attendance.ClockPtr(6, 0), attendance.StatusWorked)
	rec.Shift = attendance.ShiftNight
	rec.Remarks = "covering"
	require.NoError(t, s.SaveRecord(ctx, rec))
	require.NoError(t, s.SaveRecord(ctx, record("emp-1", "2025-03-04", nil, nil, attendance.StatusAnnualLeave)))
	require.NoError(t, s.SaveRecord(ctx, record("emp-1", "2025-04-01", nil, nil, attendance.StatusAbsent)))

	recs, err := s.Records(ctx, "emp-1", 2025, time.March)

	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, attendance.Clock(22, 0), *recs[0].CheckIn)
	assert.Equal(t, attendance.Clock(6, 0), *recs[0].CheckOut)
	assert.Equal(t, attendance.ShiftNight, recs[0].Shift)
	assert.Equal(t, "covering", recs[0].Remarks)
	assert.True(t, t0.Equal(recs[0].UpdatedAt), "timestamps keep nanoseconds")
	assert.Nil(t, recs[1].CheckIn)
	assert.Equal(t, attendance.StatusAnnualLeave, recs[1].Status)
}

func TestStore_SaveRecordReplaces(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveRecord(ctx, record("emp-1", "2025-03-03", attendance.ClockPtr(9, 0), attendance.ClockPtr(18, 0), attendance.StatusWorked)))
	require.NoError(t, s.SaveRecord(ctx, record("emp-1", "2025-03-03", attendance.ClockPtr(10, 0), attendance.ClockPtr(18, 0), attendance.StatusLate)))

	recs, err := s.Records(ctx, "emp-1", 2025, time.March)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, attendance.StatusLate, recs[0].Status)

	ids, err := s.EmployeesWithRecords(ctx, 2025, time.March)
	require.NoError(t, err)
	assert.Equal(t, []string{"emp-1"}, ids)
}

func TestStore_DeleteRecord(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rec := record("emp-1", "2025-03-03", nil, nil, attendance.StatusAbsent)
	require.NoError(t, s.SaveRecord(ctx, rec))

	require.NoError(t, s.DeleteRecord(ctx, rec.Key()))
	err := s.DeleteRecord(ctx, rec.Key())

	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

func TestStore_SheetUpsert(t *testing.T) {
	// GIVEN: A sheet already stored for March
	// WHEN: The same key is upserted with new totals
	// THEN: The row is replaced and decimals survive exactly

	ctx := context.Background()
	s := newStore(t)
	key := attendance.NewSheetKey("emp-1", 2025, time.March)
	at := time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC)

	_, err := s.GetSheet(ctx, key)
	require.ErrorIs(t, err, attendance.ErrSheetNotFound)

	require.NoError(t, s.UpsertSheet(ctx, attendance.Sheet{EmployeeID: "emp-1", Year: 2025, Month: time.March, RegularHours: decimal.NewFromInt(8), LastCalculatedAt: at}))
	require.NoError(t, s.UpsertSheet(ctx, attendance.Sheet{
		EmployeeID:       "emp-1",
		Year:             2025,
		Month:            time.March,
		RegularHours:     decimal.RequireFromString("16"),
		OvertimeHours:    decimal.RequireFromString("0.3333"),
		TotalWorkHours:   decimal.RequireFromString("16.3333"),
		TotalWorkDays:    decimal.RequireFromString("2.5"),
		Excluded:         []string{"2025-03-05"},
		RecordsAsOf:      at.Add(-time.Hour),
		LastCalculatedAt: at,
	}))

	got, err := s.GetSheet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "16", got.RegularHours.String())
	assert.Equal(t, "0.3333", got.OvertimeHours.String())
	assert.Equal(t, "16.3333", got.TotalWorkHours.String())
	assert.Equal(t, "2.5", got.TotalWorkDays.String())
	assert.Equal(t, []string{"2025-03-05"}, got.Excluded)
	assert.True(t, at.Equal(got.LastCalculatedAt))
	assert.True(t, got.IsPartial())

	list, err := s.ListSheets(ctx, 2025, time.March)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_StaleKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	t0 := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return t0 }

	require.NoError(t, s.SaveRecord(ctx, record("emp-1", "2025-03-01", nil, nil, attendance.StatusAbsent)))
	require.NoError(t, s.SaveRecord(ctx, record("emp-1", "2025-04-01", nil, nil, attendance.StatusAbsent)))
	require.NoError(t, s.UpsertSheet(ctx, attendance.Sheet{EmployeeID: "emp-1", Year: 2025, Month: time.March, RecordsAsOf: t0, LastCalculatedAt: t0}))

	keys, err := s.StaleKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []attendance.SheetKey{attendance.NewSheetKey("emp-1", 2025, time.April)}, keys)

	s.Now = func() time.Time { return t0.Add(time.Millisecond) }
	require.NoError(t, s.SaveRecord(ctx, record("emp-1", "2025-03-02", nil, nil, attendance.StatusAbsent)))

	keys, err = s.StaleKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []attendance.SheetKey{
		attendance.NewSheetKey("emp-1", 2025, time.March),
		attendance.NewSheetKey("emp-1", 2025, time.April),
	}, keys)
}

func TestStore_LeaveIsIdempotentPerDate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	d := attendance.MustParseDate("2025-03-04")

	require.NoError(t, s.ReportLeaveConsumption(ctx, "emp-1", d, attendance.LeaveAnnual, decimal.NewFromInt(1)))
	require.NoError(t, s.ReportLeaveConsumption(ctx, "emp-1", d, attendance.LeaveHalfDayAM, decimal.RequireFromString("0.5")))

	entries, err := s.LeaveEntries(ctx, "emp-1", attendance.MustParseDate("2025-03-01"), attendance.MustParseDate("2025-03-31"))

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, attendance.LeaveHalfDayAM, entries[0].Kind)
	assert.Equal(t, "0.5", entries[0].Amount.String())
}

func TestStore_Holidays(t *testing.T) {
	// GIVEN: A recurring New Year and a one-off holiday in 2025
	// WHEN: Querying January 2026 and a range crossing the year end
	// THEN: Recurring holidays match every year, fixed ones only their date

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveHoliday(ctx, attendance.Holiday{ID: "ny", Date: attendance.MustParseDate("2020-01-01"), Name: "New Year", Recurring: true}))
	require.NoError(t, s.SaveHoliday(ctx, attendance.Holiday{ID: "sub", Date: attendance.MustParseDate("2025-12-31"), Name: "Substitute"}))
	require.NoError(t, s.SaveHoliday(ctx, attendance.Holiday{ID: "xmas", Date: attendance.MustParseDate("2020-12-25"), Name: "Christmas", Recurring: true}))

	jan, err := s.HolidaysBetween(ctx, attendance.MustParseDate("2026-01-01"), attendance.MustParseDate("2026-01-31"))
	require.NoError(t, err)
	require.Len(t, jan, 1)
	assert.Equal(t, "ny", jan[0].ID)

	yearEnd, err := s.HolidaysBetween(ctx, attendance.MustParseDate("2025-12-30"), attendance.MustParseDate("2026-01-02"))
	require.NoError(t, err)
	require.Len(t, yearEnd, 2)
	assert.Equal(t, "ny", yearEnd[0].ID)
	assert.Equal(t, "sub", yearEnd[1].ID)

	require.NoError(t, s.DeleteHoliday(ctx, "ny"))
	jan, err = s.HolidaysBetween(ctx, attendance.MustParseDate("2026-01-01"), attendance.MustParseDate("2026-01-31"))
	require.NoError(t, err)
	assert.Empty(t, jan)
}

func TestStore_RunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	for i, status := range []attendance.RunStatus{attendance.RunFailed, attendance.RunPartial, attendance.RunSucceeded} {
		require.NoError(t, s.RecordRun(ctx, attendance.Run{
			ID: string(status), EmployeeID: "emp-1", Year: 2025, Month: 3, Status: status,
			Attempts: i + 1, StartedAt: base, FinishedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := s.Runs(ctx, attendance.NewSheetKey("emp-1", 2025, time.March), 2)

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, attendance.RunSucceeded, runs[0].Status)
	assert.Equal(t, attendance.RunPartial, runs[1].Status)
	assert.Equal(t, 2, runs[1].Attempts)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRecord(ctx, record("emp-1", "2025-03-01", nil, nil, attendance.StatusAbsent)))

	require.NoError(t, s.Reset(ctx))

	recs, err := s.Records(ctx, "emp-1", 2025, time.March)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_DrivesCoordinator(t *testing.T) {
	// GIVEN: A SQLite store wired as every coordinator dependency
	// WHEN: A worked day is saved and its month recalculated
	// THEN: The sheet and an audit run are persisted

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRecord(ctx, record("emp-1", "2025-03-03", attendance.ClockPtr(9, 0), attendance.ClockPtr(19, 0), attendance.StatusWorked)))

	c := recalc.New(recalc.Deps{Records: s, Sheets: s, Calendar: weekdays{}, Leave: s}, recalc.DefaultOptions())
	c.Start(ctx)
	defer c.Stop()

	require.NoError(t, c.Trigger("emp-1", 2025, time.March))
	require.NoError(t, c.Drain(ctx))

	sheet, err := s.GetSheet(ctx, attendance.NewSheetKey("emp-1", 2025, time.March))
	require.NoError(t, err)
	assert.Equal(t, "8", sheet.RegularHours.String())
	assert.Equal(t, "2", sheet.OvertimeHours.String())

	runs, err := s.Runs(ctx, sheet.Key(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, attendance.RunSucceeded, runs[0].Status)

	stale, err := s.StaleKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

type weekdays struct{}

func (weekdays) Facts(_ context.Context, d attendance.Date) (attendance.CalendarFacts, error) {
	return attendance.CalendarFacts{
		Date:                d,
		DayShift:            attendance.ShiftWindow{Start: attendance.Clock(9, 0), End: attendance.Clock(18, 0)},
		NightShift:          attendance.ShiftWindow{Start: attendance.Clock(22, 0), End: attendance.Clock(6, 0)},
		RegularShiftMinutes: 480,
		Night:               attendance.DefaultNightWindow(),
	}, nil
}
