package attendance

// DetermineStatus derives worked/late/earlyLeave from the punches and the
// scheduled window. Records that are not auto-determined, carry no punches, or
// hold a leave status are returned unchanged. Late wins over early leave.
func DetermineStatus(rec Record, facts CalendarFacts) Status {
	if !rec.AutoDetermined || !rec.HasPunches() || (rec.Status != "" && !rec.Status.RequiresPunches()) {
		return rec.Status
	}
	window := facts.Window(rec.ShiftOrDefault())
	in, out := interval(*rec.CheckIn, *rec.CheckOut)
	start := shiftStart(in, window)
	end := start + window.Minutes()

	switch {
	case in > start:
		return StatusLate
	case out < end:
		return StatusEarlyLeave
	default:
		return StatusWorked
	}
}
