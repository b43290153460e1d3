package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestMemory_RecordsByMonth(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	for _, d := range []string{"2025-03-02", "2025-03-01", "2025-04-01"} {
		require.NoError(t, m.SaveRecord(ctx, attendance.Record{
			EmployeeID: "emp-1", Date: attendance.MustParseDate(d), Status: attendance.StatusAbsent,
		}))
	}
	require.NoError(t, m.SaveRecord(ctx, attendance.Record{
		EmployeeID: "emp-2", Date: attendance.MustParseDate("2025-03-01"), Status: attendance.StatusAbsent,
	}))

	recs, err := m.Records(ctx, "emp-1", 2025, time.March)

	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2025-03-01", recs[0].Date.String())
	assert.Equal(t, "2025-03-02", recs[1].Date.String())
	assert.False(t, recs[0].UpdatedAt.IsZero(), "edits are stamped")
}

func TestMemory_DeleteMissingRecord(t *testing.T) {
	m := store.NewMemory()
	err := m.DeleteRecord(context.Background(), attendance.RecordKey{EmployeeID: "emp-1", Date: attendance.MustParseDate("2025-03-01")})
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
	assert.True(t, attendance.IsNotFound(err))
}

func TestMemory_SheetUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	key := attendance.NewSheetKey("emp-1", 2025, time.March)

	_, err := m.GetSheet(ctx, key)
	assert.ErrorIs(t, err, attendance.ErrSheetNotFound)

	require.NoError(t, m.UpsertSheet(ctx, attendance.Sheet{EmployeeID: "emp-1", Year: 2025, Month: time.March, RegularHours: decimal.NewFromInt(8)}))
	require.NoError(t, m.UpsertSheet(ctx, attendance.Sheet{EmployeeID: "emp-1", Year: 2025, Month: time.March, RegularHours: decimal.NewFromInt(16)}))

	got, err := m.GetSheet(ctx, key)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(16).Equal(got.RegularHours))

	list, err := m.ListSheets(ctx, 2025, time.March)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemory_StaleKeys(t *testing.T) {
	// GIVEN: Two months with records, one with a current sheet
	// WHEN: A record of the current month is edited after its sheet
	// THEN: Both months are reported stale

	ctx := context.Background()
	m := store.NewMemory()
	t0 := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	m.Now = fixedClock(t0)

	require.NoError(t, m.SaveRecord(ctx, attendance.Record{EmployeeID: "emp-1", Date: attendance.MustParseDate("2025-03-01"), Status: attendance.StatusAbsent}))
	require.NoError(t, m.SaveRecord(ctx, attendance.Record{EmployeeID: "emp-1", Date: attendance.MustParseDate("2025-04-01"), Status: attendance.StatusAbsent}))
	require.NoError(t, m.UpsertSheet(ctx, attendance.Sheet{EmployeeID: "emp-1", Year: 2025, Month: time.March, RecordsAsOf: t0, LastCalculatedAt: t0}))

	keys, err := m.StaleKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []attendance.SheetKey{attendance.NewSheetKey("emp-1", 2025, time.April)}, keys)

	m.Now = fixedClock(t0.Add(time.Hour))
	require.NoError(t, m.SaveRecord(ctx, attendance.Record{EmployeeID: "emp-1", Date: attendance.MustParseDate("2025-03-02"), Status: attendance.StatusAbsent}))

	keys, err = m.StaleKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestMemory_LeaveReportsAreIdempotentPerDate(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	d := attendance.MustParseDate("2025-03-07")

	require.NoError(t, m.ReportLeaveConsumption(ctx, "emp-1", d, attendance.LeaveAnnual, decimal.NewFromInt(1)))
	require.NoError(t, m.ReportLeaveConsumption(ctx, "emp-1", d, attendance.LeaveAnnual, decimal.NewFromInt(1)))
	require.NoError(t, m.ReportLeaveConsumption(ctx, "emp-1", d, attendance.LeaveHalfDayAM, decimal.RequireFromString("0.5")))

	entries, err := m.LeaveEntries(ctx, "emp-1", d, d)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, attendance.LeaveHalfDayAM, entries[0].Kind)
}

func TestMemory_RecurringHolidays(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SaveHoliday(ctx, attendance.Holiday{ID: "h1", Date: attendance.MustParseDate("2020-01-01"), Name: "New Year", Recurring: true}))
	require.NoError(t, m.SaveHoliday(ctx, attendance.Holiday{ID: "h2", Date: attendance.MustParseDate("2024-01-15"), Name: "One-off"}))

	got, err := m.HolidaysBetween(ctx, attendance.MustParseDate("2025-01-01"), attendance.MustParseDate("2025-01-31"))

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h1", got[0].ID)
}

func TestMemory_RunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	key := attendance.NewSheetKey("emp-1", 2025, time.March)

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, m.RecordRun(ctx, attendance.Run{ID: id, EmployeeID: "emp-1", Year: 2025, Month: 3, Status: attendance.RunSucceeded}))
	}

	runs, err := m.Runs(ctx, key, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	in, out := attendance.Clock(9, 0), attendance.Clock(17, 0)
	require.NoError(t, m.SaveRecord(ctx, attendance.Record{
		EmployeeID: "emp-1", Date: attendance.NewDate(2025, time.March, 3), CheckIn: &in, CheckOut: &out, Status: attendance.StatusWorked,
	}))
	require.NoError(t, m.SaveHoliday(ctx, attendance.Holiday{ID: "h1", Date: attendance.NewDate(2025, time.March, 4), Name: "x"}))

	require.NoError(t, m.Reset(ctx))

	recs, err := m.Records(ctx, "emp-1", 2025, time.March)
	require.NoError(t, err)
	assert.Empty(t, recs)
	hs, err := m.HolidaysBetween(ctx, attendance.NewDate(2025, time.March, 1), attendance.NewDate(2025, time.March, 31))
	require.NoError(t, err)
	assert.Empty(t, hs)
}
