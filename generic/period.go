package generic

// =============================================================================
// PERIOD - Inclusive range of calendar days
// =============================================================================

// Period is the closed interval [Start, End].
type Period struct {
	Start Date
	End   Date
}

// YearOf returns Jan 1 - Dec 31 of the given year.
func YearOf(year int) Period {
	return Period{Start: NewDate(year, 1, 1), End: NewDate(year, 12, 31)}
}

// Contains returns true if d is within the period.
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns all days in the period. A reversed period has no days.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Workdays counts the Monday-Friday days in the period. Holidays are not
// considered.
func (p Period) Workdays() int {
	n := 0
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		if current.IsWorkday() {
			n++
		}
	}
	return n
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
