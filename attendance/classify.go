/*
classify.go - Interval classification of one day's punches

PURPOSE:
  Splits the worked interval [checkIn, checkOut) of a single record into
  disjoint minute ranges and assigns each range to exactly one category.

ALGORITHM:
  1. Validate the record (punch pair, status vs punches, duration)
  2. Normalize midnight crossing: a checkOut earlier than checkIn is on the
     next day, still attributed to the record's own date
  3. Carve out early minutes: everything before the scheduled shift start.
     A check-in after midnight but before a night shift's end belongs to the
     shift that started the previous evening
  4. Threshold point = max(checkIn, shiftStart) + regular shift minutes;
     every minute at or after it is beyond the regular threshold
  5. Sweep the interval between every boundary (punches, shift start,
     threshold, night window edges) and categorize each elementary segment:

     holiday, beyond                      -> holidayOvertime
     holiday, before shift start          -> earlyHoliday
     holiday, otherwise                   -> holiday
     night, beyond                        -> overtimeNight
     night, otherwise                     -> night
     beyond                               -> overtime
     before shift start                   -> early
     otherwise                            -> regular

HALF DAYS:
  halfDayAM/halfDayPM with punches credit only regular minutes, capped at
  half the regular threshold; the unworked half is leave, not hours.

SEE ALSO:
  - aggregate.go: sums DayResults into a Sheet
  - calendar.go: CalendarFacts
*/
package attendance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DayResult is the classification of one record.
type DayResult struct {
	Key     RecordKey
	Status  Status
	Minutes CategoryMinutes

	// WorkedMinutes is the raw punch interval; it exceeds Minutes.Total()
	// only when a half-day cap discarded minutes.
	WorkedMinutes int

	WorkDays decimal.Decimal
	Leave    *LeaveUsage
}

// Classify assigns the record's worked minutes to categories. It never returns
// partial numbers: on error the DayResult is zero.
func Classify(rec Record, facts CalendarFacts) (DayResult, error) {
	if ve := validate(rec); ve != nil {
		return DayResult{}, ve
	}

	res := DayResult{
		Key:      rec.Key(),
		Status:   rec.Status,
		WorkDays: decimal.Zero,
		Leave:    leaveUsage(rec.Status),
	}
	if !rec.HasPunches() {
		return res, nil
	}

	in, out := interval(*rec.CheckIn, *rec.CheckOut)
	res.WorkedMinutes = out - in

	if rec.Status.IsHalfDay() {
		credited := min(out-in, facts.regularMinutes()/2)
		res.Minutes[CategoryRegular] = credited
		if credited > 0 {
			res.WorkDays = halfDay
		}
		return res, nil
	}

	res.Minutes = sweep(in, out, facts, rec.ShiftOrDefault())
	res.WorkDays = oneDay
	return res, nil
}

func validate(rec Record) *ValidationError {
	if !rec.Status.Valid() {
		return invalid(rec, ReasonUnknownStatus)
	}
	if !rec.Shift.Valid() {
		return invalid(rec, ReasonUnknownShift)
	}
	if (rec.CheckIn == nil) != (rec.CheckOut == nil) {
		return invalid(rec, ReasonIncompletePunches)
	}
	if !rec.HasPunches() {
		if rec.Status.RequiresPunches() {
			return invalid(rec, ReasonMissingPunches)
		}
		return nil
	}
	if rec.Status.IsAbsence() {
		return invalid(rec, ReasonLeaveWithPunches)
	}
	if !rec.CheckIn.Valid() || !rec.CheckOut.Valid() {
		return invalid(rec, ReasonPunchOutOfRange)
	}
	if in, out := interval(*rec.CheckIn, *rec.CheckOut); out <= in {
		return invalid(rec, ReasonNonPositive)
	}
	return nil
}

// interval returns absolute minutes from the record date's midnight.
func interval(checkIn, checkOut ClockTime) (int, int) {
	in, out := int(checkIn), int(checkOut)
	if out < in {
		out += minutesPerDay
	}
	return in, out
}

// shiftStart returns the absolute start of the shift occurrence the check-in
// belongs to. A check-in before the end of a midnight-crossing shift belongs
// to the occurrence that started the previous evening.
func shiftStart(in int, w ShiftWindow) int {
	if w.End < w.Start && in < int(w.End) {
		return int(w.Start) - minutesPerDay
	}
	return int(w.Start)
}

func sweep(in, out int, facts CalendarFacts, shift ShiftType) CategoryMinutes {
	start := shiftStart(in, facts.Window(shift))
	threshold := max(in, start) + facts.regularMinutes()

	bounds := []int{out, start, threshold}
	if facts.Night.Enabled() {
		for day := -1; day <= 2; day++ {
			base := day * minutesPerDay
			bounds = append(bounds, base+int(facts.Night.Start), base+int(facts.Night.End))
		}
	}
	sort.Ints(bounds)

	var m CategoryMinutes
	cursor := in
	for _, b := range bounds {
		if b <= cursor {
			continue
		}
		if b > out {
			b = out
		}
		m[categorize(cursor, facts, start, threshold)] += b - cursor
		cursor = b
		if cursor == out {
			break
		}
	}
	return m
}

// categorize decides the category of the segment starting at minute t.
func categorize(t int, facts CalendarFacts, start, threshold int) Category {
	beyond := t >= threshold
	early := t < start

	if facts.IsHoliday {
		switch {
		case beyond:
			return CategoryHolidayOvertime
		case early:
			return CategoryEarlyHoliday
		default:
			return CategoryHoliday
		}
	}

	night := facts.Night.Contains(minuteOfDay(t))
	switch {
	case night && beyond:
		return CategoryOvertimeNight
	case night:
		return CategoryNight
	case beyond:
		return CategoryOvertime
	case early:
		return CategoryEarly
	default:
		return CategoryRegular
	}
}
