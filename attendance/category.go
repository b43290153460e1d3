package attendance

import "github.com/shopspring/decimal"

// Category is one payroll hour bucket. Every worked minute lands in exactly one.
type Category int

const (
	CategoryEarly Category = iota
	CategoryOvertime
	CategoryHoliday
	CategoryNight
	CategoryOvertimeNight
	CategoryEarlyHoliday
	CategoryHolidayOvertime
	CategoryRegular

	numCategories
)

// Categories lists every category in sheet field order.
var Categories = []Category{
	CategoryEarly,
	CategoryOvertime,
	CategoryHoliday,
	CategoryNight,
	CategoryOvertimeNight,
	CategoryEarlyHoliday,
	CategoryHolidayOvertime,
	CategoryRegular,
}

var categoryNames = [numCategories]string{
	CategoryEarly:           "early",
	CategoryOvertime:        "overtime",
	CategoryHoliday:         "holiday",
	CategoryNight:           "night",
	CategoryOvertimeNight:   "overtimeNight",
	CategoryEarlyHoliday:    "earlyHoliday",
	CategoryHolidayOvertime: "holidayOvertime",
	CategoryRegular:         "regular",
}

func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return "unknown"
	}
	return categoryNames[c]
}

// CategoryMinutes holds minute counts per category.
type CategoryMinutes [numCategories]int

func (m CategoryMinutes) Total() int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func (m CategoryMinutes) Add(o CategoryMinutes) CategoryMinutes {
	for i := range m {
		m[i] += o[i]
	}
	return m
}

// Round applies r to every category.
func (m CategoryMinutes) Round(r Rounding) CategoryMinutes {
	for i := range m {
		m[i] = r.Apply(m[i])
	}
	return m
}

// Map returns the non-zero categories keyed by name.
func (m CategoryMinutes) Map() map[string]int {
	out := make(map[string]int)
	for _, c := range Categories {
		if m[c] != 0 {
			out[c.String()] = m[c]
		}
	}
	return out
}

var sixty = decimal.NewFromInt(60)

// hoursPlaces is the precision hours are stored at.
const hoursPlaces = 4

// MinutesToHours converts minutes to hours at storage precision.
func MinutesToHours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(sixty).Round(hoursPlaces)
}
