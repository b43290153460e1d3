package attendance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AggregateInput is an immutable snapshot of everything one sheet depends on.
type AggregateInput struct {
	EmployeeID string
	Year       int
	Month      time.Month
	Records    []Record
	Facts      map[Date]CalendarFacts
	Rounding   Rounding
}

func (in AggregateInput) Key() SheetKey { return NewSheetKey(in.EmployeeID, in.Year, in.Month) }

// AggregateResult carries the sheet and what went into it.
type AggregateResult struct {
	Sheet    Sheet
	Days     []DayResult
	Excluded []*ValidationError
}

// Err returns a *PartialFailure when any record was excluded. The sheet is
// still the correct total of the valid subset.
func (r AggregateResult) Err() error {
	if len(r.Excluded) == 0 {
		return nil
	}
	return &PartialFailure{Key: r.Sheet.Key(), Excluded: r.Excluded}
}

// Aggregate classifies every record of the month and sums the categories.
// It is a pure function of its input: record order and repetition do not
// change the result. LastCalculatedAt is left zero for the caller to stamp.
func Aggregate(in AggregateInput) AggregateResult {
	records := make([]Record, len(in.Records))
	copy(records, in.Records)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})

	perDate := make(map[Date]int, len(records))
	for _, r := range records {
		if r.EmployeeID == in.EmployeeID {
			perDate[r.Date]++
		}
	}

	var (
		res      = AggregateResult{Days: []DayResult{}}
		minutes  CategoryMinutes
		workDays = decimal.Zero
		asOf     time.Time
	)

	for _, rec := range records {
		if rec.UpdatedAt.After(asOf) {
			asOf = rec.UpdatedAt
		}

		day, ve := classifyForSheet(in, rec, perDate)
		if ve != nil {
			res.Excluded = append(res.Excluded, ve)
			continue
		}
		res.Days = append(res.Days, day)

		dayMinutes := day.Minutes
		if in.Rounding.daily() {
			dayMinutes = dayMinutes.Round(in.Rounding)
		}
		minutes = minutes.Add(dayMinutes)
		workDays = workDays.Add(day.WorkDays)
	}
	if !in.Rounding.daily() {
		minutes = minutes.Round(in.Rounding)
	}

	sort.SliceStable(res.Excluded, func(i, j int) bool {
		a, b := res.Excluded[i], res.Excluded[j]
		if a.Key.Date != b.Key.Date {
			return a.Key.Date.Before(b.Key.Date)
		}
		if a.Key.EmployeeID != b.Key.EmployeeID {
			return a.Key.EmployeeID < b.Key.EmployeeID
		}
		return a.Reason < b.Reason
	})

	res.Sheet = buildSheet(in.Key(), minutes, workDays, asOf, res.Excluded)
	return res
}

func classifyForSheet(in AggregateInput, rec Record, perDate map[Date]int) (DayResult, *ValidationError) {
	switch {
	case rec.EmployeeID != in.EmployeeID:
		return DayResult{}, invalid(rec, ReasonOtherEmployee)
	case !rec.Date.InMonth(in.Year, in.Month):
		return DayResult{}, invalid(rec, ReasonOutsidePeriod)
	case perDate[rec.Date] > 1:
		return DayResult{}, invalid(rec, ReasonDuplicateDate)
	}
	facts, ok := in.Facts[rec.Date]
	if !ok {
		return DayResult{}, invalid(rec, ReasonNoCalendarFacts)
	}
	day, err := Classify(rec, facts)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			return DayResult{}, ve
		}
		return DayResult{}, &ValidationError{Key: rec.Key(), Reason: err.Error()}
	}
	return day, nil
}

func buildSheet(key SheetKey, minutes CategoryMinutes, workDays decimal.Decimal, asOf time.Time, excluded []*ValidationError) Sheet {
	sheet := Sheet{
		EmployeeID:     key.EmployeeID,
		Year:           key.Year,
		Month:          key.Month,
		TotalWorkHours: decimal.Zero,
		TotalWorkDays:  workDays,
		RecordsAsOf:    asOf,
	}
	for _, c := range Categories {
		h := MinutesToHours(minutes[c])
		sheet.setHours(c, h)
		sheet.TotalWorkHours = sheet.TotalWorkHours.Add(h)
	}

	seen := make(map[string]bool, len(excluded))
	for _, ve := range excluded {
		d := ve.Key.Date.String()
		if !seen[d] {
			seen[d] = true
			sheet.Excluded = append(sheet.Excluded, d)
		}
	}
	return sheet
}
