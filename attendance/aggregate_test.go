package attendance_test

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func marchFacts(holidays ...int) map[attendance.Date]attendance.CalendarFacts {
	isHoliday := make(map[int]bool)
	for _, d := range holidays {
		isHoliday[d] = true
	}
	out := make(map[attendance.Date]attendance.CalendarFacts)
	for _, d := range attendance.MonthDates(2025, time.March) {
		out[d] = facts(d, isHoliday[d.Day])
	}
	return out
}

func march(day int) attendance.Date { return attendance.NewDate(2025, time.March, day) }

func marchInput(records ...attendance.Record) attendance.AggregateInput {
	return attendance.AggregateInput{
		EmployeeID: "emp-1",
		Year:       2025,
		Month:      time.March,
		Records:    records,
		Facts:      marchFacts(15),
		Rounding:   attendance.NoRounding,
	}
}

func sheetJSON(t *testing.T, s attendance.Sheet) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}

func assertConserved(t *testing.T, s attendance.Sheet) {
	t.Helper()
	assert.True(t, s.TotalWorkHours.Equal(s.CategorySum()),
		"total %s must equal category sum %s", s.TotalWorkHours, s.CategorySum())
}

// =============================================================================
// SUMMATION
// =============================================================================

func TestAggregate_SumsCategoriesAcrossMonth(t *testing.T) {
	// GIVEN: A month with a plain day, an overtime day, a holiday, a night shift,
	//        a half-day and an annual leave
	// WHEN: Aggregating
	// THEN: Each category is the sum of its days and work days count half days as 0.5

	in := marchInput(
		worked(march(3), "09:00", "17:00"),
		worked(march(4), "09:00", "17:30"),
		worked(march(15), "09:00", "19:00"),
		punched(march(5), attendance.ShiftNight, attendance.StatusWorked, "22:00", "06:00"),
		punched(march(6), attendance.ShiftDay, attendance.StatusHalfDayPM, "09:00", "13:00"),
		attendance.Record{EmployeeID: "emp-1", Date: march(7), Status: attendance.StatusAnnualLeave},
	)

	res := attendance.Aggregate(in)

	require.NoError(t, res.Err())
	s := res.Sheet
	assert.Equal(t, in.Key(), s.Key())
	assertHours(t, "20", s.RegularHours, "8 + 8 + 4")
	assertHours(t, "0.5", s.OvertimeHours)
	assertHours(t, "8", s.HolidayHours)
	assertHours(t, "2", s.HolidayOvertimeHours)
	assertHours(t, "8", s.NightHours)
	assertHours(t, "0", s.EarlyHours)
	assertHours(t, "38.5", s.TotalWorkHours)
	assertHours(t, "4.5", s.TotalWorkDays)
	assertConserved(t, s)
	assert.Empty(t, s.Excluded)
	assert.True(t, s.LastCalculatedAt.IsZero(), "the coordinator stamps the calculation time")
	assert.Len(t, res.Days, 6)
}

func TestAggregate_EmptyMonth(t *testing.T) {
	res := attendance.Aggregate(marchInput())

	require.NoError(t, res.Err())
	assertHours(t, "0", res.Sheet.TotalWorkHours)
	assertHours(t, "0", res.Sheet.TotalWorkDays)
	assert.Empty(t, res.Days)
}

func TestAggregate_RecordsAsOfIsNewestEdit(t *testing.T) {
	a := worked(march(3), "09:00", "17:00")
	a.UpdatedAt = time.Date(2025, time.March, 3, 18, 0, 0, 0, time.UTC)
	b := worked(march(4), "09:00", "17:00")
	b.UpdatedAt = time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)

	res := attendance.Aggregate(marchInput(b, a))

	assert.Equal(t, b.UpdatedAt, res.Sheet.RecordsAsOf)
}

// =============================================================================
// IDEMPOTENCE
// =============================================================================

func TestAggregate_IdempotentAndOrderIndependent(t *testing.T) {
	// GIVEN: The same record set in many orders
	// WHEN: Aggregating each
	// THEN: Every sheet is identical

	records := []attendance.Record{
		worked(march(3), "08:30", "17:00"),
		worked(march(4), "09:00", "23:00"),
		worked(march(15), "07:00", "19:00"),
		punched(march(5), attendance.ShiftNight, attendance.StatusWorked, "21:00", "07:30"),
		punched(march(6), attendance.ShiftDay, attendance.StatusHalfDayAM, "13:00", "18:00"),
		worked(march(10), "09:00", "18:00"),
	}
	want := sheetJSON(t, attendance.Aggregate(marchInput(records...)).Sheet)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]attendance.Record(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := attendance.Aggregate(marchInput(shuffled...))

		require.Equal(t, want, sheetJSON(t, got.Sheet))
		assertConserved(t, got.Sheet)
	}
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	records := []attendance.Record{
		worked(march(4), "09:00", "17:00"),
		worked(march(3), "09:00", "17:00"),
	}

	attendance.Aggregate(marchInput(records...))

	assert.Equal(t, march(4), records[0].Date)
	assert.Equal(t, march(3), records[1].Date)
}

// =============================================================================
// PARTIAL FAILURE
// =============================================================================

func TestAggregate_ExcludesInvalidRecord_PartialFailure(t *testing.T) {
	// GIVEN: Two valid days and one with a missing checkOut
	// WHEN: Aggregating
	// THEN: The sheet totals the valid days and a PartialFailure names the bad record

	in9 := attendance.Clock(9, 0)
	bad := attendance.Record{EmployeeID: "emp-1", Date: march(5), CheckIn: &in9, Status: attendance.StatusWorked}
	in := marchInput(
		worked(march(3), "09:00", "17:00"),
		bad,
		worked(march(4), "09:00", "17:30"),
	)

	res := attendance.Aggregate(in)

	err := res.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, attendance.ErrPartialFailure))
	var pf *attendance.PartialFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, in.Key(), pf.Key)
	assert.Equal(t, []attendance.RecordKey{bad.Key()}, pf.ExcludedKeys())
	assert.Equal(t, attendance.ReasonIncompletePunches, pf.Excluded[0].Reason)

	assertHours(t, "16", res.Sheet.RegularHours)
	assertHours(t, "0.5", res.Sheet.OvertimeHours)
	assertHours(t, "2", res.Sheet.TotalWorkDays)
	assert.Equal(t, []string{"2025-03-05"}, res.Sheet.Excluded)
	assert.True(t, res.Sheet.IsPartial())
	assertConserved(t, res.Sheet)
}

func TestAggregate_ExclusionRules(t *testing.T) {
	other := worked(march(3), "09:00", "17:00")
	other.EmployeeID = "emp-2"

	tests := []struct {
		name    string
		records []attendance.Record
		facts   map[attendance.Date]attendance.CalendarFacts
		reasons []string
	}{
		{
			name:    "record for another employee",
			records: []attendance.Record{other},
			reasons: []string{attendance.ReasonOtherEmployee},
		},
		{
			name:    "record outside the month",
			records: []attendance.Record{worked(attendance.NewDate(2025, time.April, 1), "09:00", "17:00")},
			reasons: []string{attendance.ReasonOutsidePeriod},
		},
		{
			name: "duplicate date excludes every copy",
			records: []attendance.Record{
				worked(march(3), "09:00", "17:00"),
				worked(march(3), "09:00", "18:00"),
			},
			reasons: []string{attendance.ReasonDuplicateDate, attendance.ReasonDuplicateDate},
		},
		{
			name:    "date without calendar facts",
			records: []attendance.Record{worked(march(3), "09:00", "17:00")},
			facts:   map[attendance.Date]attendance.CalendarFacts{},
			reasons: []string{attendance.ReasonNoCalendarFacts},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := marchInput(tt.records...)
			if tt.facts != nil {
				in.Facts = tt.facts
			}

			res := attendance.Aggregate(in)

			var reasons []string
			for _, ve := range res.Excluded {
				reasons = append(reasons, ve.Reason)
			}
			assert.Equal(t, tt.reasons, reasons)
			assertHours(t, "0", res.Sheet.TotalWorkHours)
			assert.Error(t, res.Err())
		})
	}
}

// =============================================================================
// ROUNDING
// =============================================================================

func TestAggregate_Rounding(t *testing.T) {
	// Two days with 10 minutes of overtime each.
	records := []attendance.Record{
		worked(march(3), "09:00", "17:10"),
		worked(march(4), "09:00", "17:10"),
	}

	tests := []struct {
		name     string
		rounding attendance.Rounding
		overtime string
	}{
		{name: "unrounded", rounding: attendance.NoRounding, overtime: "0.3333"},
		{name: "daily quarter hour floor", rounding: attendance.Rounding{UnitMinutes: 15, Mode: attendance.RoundFloor, Scope: attendance.ScopeDaily}, overtime: "0"},
		{name: "daily quarter hour ceil", rounding: attendance.Rounding{UnitMinutes: 15, Mode: attendance.RoundCeil, Scope: attendance.ScopeDaily}, overtime: "0.5"},
		{name: "monthly quarter hour floor", rounding: attendance.Rounding{UnitMinutes: 15, Mode: attendance.RoundFloor, Scope: attendance.ScopeMonthly}, overtime: "0.25"},
		{name: "monthly quarter hour nearest", rounding: attendance.Rounding{UnitMinutes: 15, Mode: attendance.RoundNearest, Scope: attendance.ScopeMonthly}, overtime: "0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := marchInput(records...)
			in.Rounding = tt.rounding

			res := attendance.Aggregate(in)

			assertHours(t, tt.overtime, res.Sheet.OvertimeHours)
			assertHours(t, "16", res.Sheet.RegularHours, "rounding applies to every category alike")
			assertConserved(t, res.Sheet)
		})
	}
}

func TestRounding_Apply(t *testing.T) {
	r := attendance.Rounding{UnitMinutes: 15, Mode: attendance.RoundNearest}
	assert.Equal(t, 0, r.Apply(7))
	assert.Equal(t, 15, r.Apply(8))
	assert.Equal(t, 30, r.Apply(30))
	assert.Equal(t, 0, r.Apply(0))

	assert.NoError(t, attendance.NoRounding.Validate())
	assert.Error(t, attendance.Rounding{UnitMinutes: 90}.Validate())
	assert.Error(t, attendance.Rounding{UnitMinutes: 15, Mode: "bankers"}.Validate())
}
