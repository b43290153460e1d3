/*
Package calendar answers the calendar-oracle question for the engine: is a
date a holiday, and what are its scheduled shifts.

PURPOSE:
  Combines company-wide shift rules with a holiday source. Configured rest
  days (weekends by default) are reported as holidays, so work on them is
  paid as holiday hours.

SOURCES:
  - attendance.HolidayStore (SQLite, in-memory) via HolidaySource
  - Static: a fixed list, used by config and tests

SEE ALSO:
  - attendance/calendar.go: CalendarFacts
  - config/config.go: Rules from engine.yml
*/
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// Rules are the company-wide schedule.
type Rules struct {
	DayShift            attendance.ShiftWindow
	NightShift          attendance.ShiftWindow
	RegularShiftMinutes int
	Night               attendance.NightWindow
	RestDays            []time.Weekday
}

func DefaultRules() Rules {
	return Rules{
		DayShift:            attendance.ShiftWindow{Start: attendance.Clock(9, 0), End: attendance.Clock(18, 0)},
		NightShift:          attendance.ShiftWindow{Start: attendance.Clock(22, 0), End: attendance.Clock(6, 0)},
		RegularShiftMinutes: attendance.DefaultRegularShiftMinutes,
		Night:               attendance.DefaultNightWindow(),
		RestDays:            []time.Weekday{time.Saturday, time.Sunday},
	}
}

func (r Rules) isRestDay(d attendance.Date) bool {
	wd := d.Weekday()
	for _, rd := range r.RestDays {
		if rd == wd {
			return true
		}
	}
	return false
}

// HolidaySource lists holidays in a date range.
type HolidaySource interface {
	HolidaysBetween(ctx context.Context, from, to attendance.Date) ([]attendance.Holiday, error)
}

// Static is a fixed holiday list.
type Static []attendance.Holiday

func (s Static) HolidaysBetween(_ context.Context, from, to attendance.Date) ([]attendance.Holiday, error) {
	var out []attendance.Holiday
	for _, h := range s {
		for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
			if h.Matches(d) {
				out = append(out, h)
				break
			}
		}
	}
	return out, nil
}

// Calendar implements attendance.Calendar.
type Calendar struct {
	rules    Rules
	holidays HolidaySource
}

var _ attendance.Calendar = (*Calendar)(nil)

// New creates a calendar. holidays may be nil.
func New(rules Rules, holidays HolidaySource) (*Calendar, error) {
	base := attendance.CalendarFacts{
		DayShift:            rules.DayShift,
		NightShift:          rules.NightShift,
		RegularShiftMinutes: rules.RegularShiftMinutes,
		Night:               rules.Night,
	}
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("calendar rules: %w", err)
	}
	return &Calendar{rules: rules, holidays: holidays}, nil
}

func (c *Calendar) Facts(ctx context.Context, date attendance.Date) (attendance.CalendarFacts, error) {
	facts := attendance.CalendarFacts{
		Date:                date,
		DayShift:            c.rules.DayShift,
		NightShift:          c.rules.NightShift,
		RegularShiftMinutes: c.rules.RegularShiftMinutes,
		Night:               c.rules.Night,
	}

	if c.holidays != nil {
		hs, err := c.holidays.HolidaysBetween(ctx, date, date)
		if err != nil {
			return attendance.CalendarFacts{}, fmt.Errorf("holidays for %s: %w", date, err)
		}
		if len(hs) > 0 {
			facts.IsHoliday = true
			facts.HolidayName = hs[0].Name
			return facts, nil
		}
	}

	if c.rules.isRestDay(date) {
		facts.IsHoliday = true
		facts.HolidayName = "rest day"
	}
	return facts, nil
}
