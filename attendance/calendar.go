package attendance

import (
	"context"
	"fmt"
)

// DefaultRegularShiftMinutes is the daily regular-hours threshold.
const DefaultRegularShiftMinutes = 480

// ShiftWindow is a scheduled shift. End before Start means the shift crosses midnight.
type ShiftWindow struct {
	Start ClockTime
	End   ClockTime
}

// Minutes returns the scheduled length of the window.
func (w ShiftWindow) Minutes() int {
	end := int(w.End)
	if end <= int(w.Start) {
		end += minutesPerDay
	}
	return end - int(w.Start)
}

// NightWindow is the legally defined night period, 22:00-06:00 by default.
// A window whose Start equals End covers no minutes.
type NightWindow struct {
	Start ClockTime
	End   ClockTime
}

func DefaultNightWindow() NightWindow {
	return NightWindow{Start: Clock(22, 0), End: Clock(6, 0)}
}

func (n NightWindow) Enabled() bool { return n.Start != n.End }

// Contains reports whether the minute c lies inside the window.
func (n NightWindow) Contains(c ClockTime) bool {
	switch {
	case n.Start == n.End:
		return false
	case n.Start < n.End:
		return c >= n.Start && c < n.End
	default:
		return c >= n.Start || c < n.End
	}
}

// CalendarFacts is what the calendar knows about one date.
type CalendarFacts struct {
	Date                Date
	IsHoliday           bool
	HolidayName         string
	DayShift            ShiftWindow
	NightShift          ShiftWindow
	RegularShiftMinutes int
	Night               NightWindow
}

// Window returns the scheduled window for the given shift type.
func (f CalendarFacts) Window(shift ShiftType) ShiftWindow {
	if shift == ShiftNight {
		return f.NightShift
	}
	return f.DayShift
}

func (f CalendarFacts) regularMinutes() int {
	if f.RegularShiftMinutes <= 0 {
		return DefaultRegularShiftMinutes
	}
	return f.RegularShiftMinutes
}

// Validate rejects facts the classifier cannot use.
func (f CalendarFacts) Validate() error {
	for name, c := range map[string]ClockTime{
		"day shift start":   f.DayShift.Start,
		"day shift end":     f.DayShift.End,
		"night shift start": f.NightShift.Start,
		"night shift end":   f.NightShift.End,
		"night start":       f.Night.Start,
		"night end":         f.Night.End,
	} {
		if !c.Valid() {
			return fmt.Errorf("%w: %s %d out of range", ErrInvalidCalendar, name, int(c))
		}
	}
	if f.RegularShiftMinutes < 0 {
		return fmt.Errorf("%w: negative regular shift minutes", ErrInvalidCalendar)
	}
	return nil
}

// Calendar is the calendar oracle: holiday status and scheduled shifts per date.
type Calendar interface {
	Facts(ctx context.Context, date Date) (CalendarFacts, error)
}

// MonthFacts fetches facts for every date of a month.
func MonthFacts(ctx context.Context, cal Calendar, key SheetKey) (map[Date]CalendarFacts, error) {
	dates := MonthDates(key.Year, key.Month)
	facts := make(map[Date]CalendarFacts, len(dates))
	for _, d := range dates {
		f, err := cal.Facts(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("calendar facts for %s: %w", d, err)
		}
		facts[d] = f
	}
	return facts, nil
}
