// Package probation reminds HR staff about probation milestones of new
// employees: the halfway point and 30 days before the end.
package probation

import (
	"fmt"

	"github.com/warp/hr-engine/generic"
)

type Milestone string

const (
	MilestoneHalfway Milestone = "halfway"
	Milestone30Days  Milestone = "30_days"
)

// DaysBeforeEnd is the lead time of the Milestone30Days reminder.
const DaysBeforeEnd = 30

// Halfway returns start plus half the probation length, rounded down.
func Halfway(start, end generic.Date) generic.Date {
	return start.AddDays(generic.DaysBetween(start, end) / 2)
}

// Due returns the milestones reached on today for a probation running from
// start to end. Nothing is due once end has passed.
func Due(start, end, today generic.Date) []Milestone {
	if end.Before(today) {
		return nil
	}
	var due []Milestone
	if today.Equal(Halfway(start, end)) {
		due = append(due, MilestoneHalfway)
	}
	if generic.DaysBetween(today, end) == DaysBeforeEnd {
		due = append(due, Milestone30Days)
	}
	return due
}

// Key identifies one recipient's copy of one milestone notification.
func Key(companyID, userID string, m Milestone, recipientID string) string {
	return fmt.Sprintf("probation:%s:%s:%s:%s", companyID, userID, m, recipientID)
}

// Group ties the copies of one milestone together.
func Group(companyID, userID string, m Milestone) string {
	return fmt.Sprintf("probation:%s:%s:%s", companyID, userID, m)
}
