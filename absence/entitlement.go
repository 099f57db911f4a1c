/*
entitlement.go - Working days and the yearly absence balance

WORKING DAYS:
  Every calendar day from start to end inclusive counts unless it is a
  Saturday or Sunday. Public holidays are NOT excluded; the count is stored on
  the absence at creation and never recomputed.

ENTITLEMENT:
  Only absences whose start date falls in the year of asOf count.

    vacationTaken     = Σ workingDays  (vacation, approved)
    vacationPlanned   = Σ workingDays  (vacation, requested)
    vacationRemaining = total - taken - planned      (may go negative)
    sickDaysSelf      = Σ workingDays  (sick,       approved|requested)
    sickDaysChild     = Σ workingDays  (sick_child, approved|requested)

  The snapshot is never persisted: recompute it whenever the absence set
  changes.
*/
package absence

import "github.com/warp/hr-engine/generic"

// WorkingDays counts weekdays in [start, end]. start must not be after end;
// a reversed range yields 0.
func WorkingDays(start, end generic.Date) int {
	return generic.Period{Start: start, End: end}.Workdays()
}

// Entitlement is one user's balance for one calendar year.
type Entitlement struct {
	Year              int
	VacationTotal     generic.Amount
	VacationTaken     generic.Amount
	VacationPlanned   generic.Amount
	VacationRemaining generic.Amount
	SickDaysSelf      generic.Amount
	SickDaysChild     generic.Amount
}

// ComputeEntitlement aggregates absences against an annual allowance for the
// calendar year containing asOf.
func ComputeEntitlement(allowance int, absences []Absence, asOf generic.Date) Entitlement {
	year := generic.YearOf(asOf.Year())

	taken := generic.Days(0)
	planned := generic.Days(0)
	sickSelf := generic.Days(0)
	sickChild := generic.Days(0)

	for _, a := range absences {
		if !year.Contains(a.StartDate) {
			continue
		}
		days := generic.Days(a.WorkingDays)

		switch a.Type {
		case TypeVacation:
			switch a.Status {
			case StatusApproved:
				taken = taken.Add(days)
			case StatusRequested:
				planned = planned.Add(days)
			}
		case TypeSick, TypeSickChild:
			if a.Status != StatusApproved && a.Status != StatusRequested {
				continue
			}
			if a.Type == TypeSick {
				sickSelf = sickSelf.Add(days)
			} else {
				sickChild = sickChild.Add(days)
			}
		}
	}

	total := generic.Days(allowance)
	return Entitlement{
		Year:              asOf.Year(),
		VacationTotal:     total,
		VacationTaken:     taken,
		VacationPlanned:   planned,
		VacationRemaining: total.Sub(taken).Sub(planned),
		SickDaysSelf:      sickSelf,
		SickDaysChild:     sickChild,
	}
}
