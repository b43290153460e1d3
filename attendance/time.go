package attendance

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - civil calendar day, no time zone
// =============================================================================

type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// NewDate normalizes out-of-range days and months the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC) }

func (d Date) String() string { return d.Time().Format(dateLayout) }

func (d Date) IsZero() bool { return d == Date{} }

// Comparison
func (d Date) Before(o Date) bool        { return d.Time().Before(o.Time()) }
func (d Date) After(o Date) bool         { return d.Time().After(o.Time()) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

// Properties
func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }
func (d Date) IsWeekend() bool       { wd := d.Weekday(); return wd == time.Saturday || wd == time.Sunday }

// InMonth reports whether d falls in the given month.
func (d Date) InMonth(year int, month time.Month) bool { return d.Year == year && d.Month == month }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func EndOfMonth(year int, month time.Month) Date {
	return DateOf(time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1))
}

// MonthDates returns every date of the month in order.
func MonthDates(year int, month time.Month) []Date {
	last := EndOfMonth(year, month).Day
	dates := make([]Date, 0, last)
	for day := 1; day <= last; day++ {
		dates = append(dates, Date{Year: year, Month: month, Day: day})
	}
	return dates
}

// =============================================================================
// CLOCK TIME - minutes since midnight
// =============================================================================

const minutesPerDay = 24 * 60

// ClockTime is a time of day in minutes since midnight, 0 through 1439.
type ClockTime int

// Clock builds a ClockTime from hours and minutes.
func Clock(hour, minute int) ClockTime { return ClockTime(hour*60 + minute) }

// ClockPtr is Clock returning a pointer, for building records.
func ClockPtr(hour, minute int) *ClockTime {
	c := Clock(hour, minute)
	return &c
}

// ParseClock parses HH:MM (24h).
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q (use HH:MM): %w", s, err)
	}
	return Clock(t.Hour(), t.Minute()), nil
}

func MustParseClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Valid() bool { return c >= 0 && c < minutesPerDay }

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

func (c ClockTime) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// minuteOfDay folds an absolute minute offset back onto the clock.
func minuteOfDay(abs int) ClockTime {
	m := abs % minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return ClockTime(m)
}
