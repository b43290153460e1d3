package attendance

import "fmt"

type RoundingMode string

const (
	RoundFloor   RoundingMode = "floor"
	RoundNearest RoundingMode = "nearest"
	RoundCeil    RoundingMode = "ceil"
)

// RoundingScope decides whether minutes are rounded per day or on monthly totals.
type RoundingScope string

const (
	ScopeDaily   RoundingScope = "daily"
	ScopeMonthly RoundingScope = "monthly"
)

// Rounding is applied identically to every category. UnitMinutes of 0 or 1
// keeps minute precision.
type Rounding struct {
	UnitMinutes int
	Mode        RoundingMode
	Scope       RoundingScope
}

// NoRounding keeps exact minutes.
var NoRounding = Rounding{UnitMinutes: 0, Mode: RoundFloor, Scope: ScopeMonthly}

func (r Rounding) Validate() error {
	if r.UnitMinutes < 0 || r.UnitMinutes > 60 {
		return fmt.Errorf("rounding unit %d out of range 0-60", r.UnitMinutes)
	}
	switch r.Mode {
	case "", RoundFloor, RoundNearest, RoundCeil:
	default:
		return fmt.Errorf("unknown rounding mode %q", r.Mode)
	}
	switch r.Scope {
	case "", ScopeDaily, ScopeMonthly:
	default:
		return fmt.Errorf("unknown rounding scope %q", r.Scope)
	}
	return nil
}

func (r Rounding) daily() bool { return r.Scope == ScopeDaily }

// Apply rounds a minute count to the configured unit. Nearest rounds halves up.
func (r Rounding) Apply(minutes int) int {
	u := r.UnitMinutes
	if u <= 1 || minutes <= 0 {
		return minutes
	}
	switch r.Mode {
	case RoundCeil:
		return (minutes + u - 1) / u * u
	case RoundNearest:
		return (minutes + u/2) / u * u
	default:
		return minutes / u * u
	}
}
