package booking

// =============================================================================
// WINDOW POLICY - The allowed booking date range
// =============================================================================

// Window is the inclusive range of bookable dates: today through
// today+AdvanceDays. Pure value type, no side effects; an invalid Today is a
// caller contract violation, not a runtime failure to recover from.
type Window struct {
	Today       Date
	AdvanceDays int
}

// End returns the last bookable date.
func (w Window) End() Date { return w.Today.AddDays(w.AdvanceDays) }

// Contains reports whether date is bookable: today <= date <= today+N,
// inclusive on both ends, compared at day granularity.
func (w Window) Contains(date Date) bool {
	return date.AfterOrEqual(w.Today) && date.BeforeOrEqual(w.End())
}

// Days returns every bookable date in order.
func (w Window) Days() []Date {
	days := make([]Date, 0, w.AdvanceDays+1)
	for d := w.Today; d.BeforeOrEqual(w.End()); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}
