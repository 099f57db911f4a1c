/*
scanner.go - Probation deadline scanner

PURPOSE:
  Once per run, finds every active employee of a company whose probation
  reaches a milestone today and tells each HR reviewer about it.

FLOW (per employee with both start and probation end date):
  1. skip if the probation already ended
  2. Due() decides which milestones fall on today
  3. fan out one notification per reviewer (hr_manager, company_admin,
     global_admin), each with its own de-duplication key

IDEMPOTENCE:
  Every copy is written through create-if-absent on
  probation:{company}:{user}:{milestone}:{recipient}. Running the scan again
  on the same day writes nothing new, and a fan-out that failed half way is
  completed by the next run.

ERRORS:
  A failure for one employee is logged and the scan moves on. Scan returns an
  error only when the employee list itself cannot be read.

SEE ALSO:
  - api/scheduler.go: runs Scan on an interval
*/
package probation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
)

// Scanner emits probation milestone notifications.
type Scanner struct {
	Employees employee.Store
	Notifier  *notify.Notifier
	Clock     generic.Clock
	Logger    *zap.Logger
}

func NewScanner(employees employee.Store, notifier *notify.Notifier, logger *zap.Logger) *Scanner {
	return &Scanner{
		Employees: employees,
		Notifier:  notifier,
		Clock:     generic.SystemClock{},
		Logger:    logger.Named("probation"),
	}
}

// Result summarizes one scan.
type Result struct {
	Scanned int // employees with a probation period
	Sent    int // notifications written
	Failed  int // employees whose fan-out hit an error
}

// Scan checks every active employee of companyID against today's date.
func (s *Scanner) Scan(ctx context.Context, companyID string) (Result, error) {
	var res Result
	today := generic.Today(s.Clock)

	employees, err := s.Employees.ListEmployees(ctx, companyID)
	if err != nil {
		return res, fmt.Errorf("failed to list employees: %w", err)
	}

	var recipients []employee.Employee
	recipientsLoaded := false

	for _, e := range employees {
		if !e.IsActive() || e.StartDate == nil || e.ProbationEndDate == nil {
			continue
		}
		res.Scanned++

		due := Due(*e.StartDate, *e.ProbationEndDate, today)
		if len(due) == 0 {
			continue
		}

		if !recipientsLoaded {
			recipients, err = s.Employees.ListActiveByRoles(ctx, companyID, employee.ReviewerRoles)
			if err != nil {
				s.Logger.Error("failed to list probation recipients",
					zap.String("company_id", companyID), zap.Error(err))
				res.Failed++
				continue
			}
			recipientsLoaded = true
		}

		for _, m := range due {
			sent, err := s.fanOut(ctx, companyID, e, m, recipients)
			res.Sent += sent
			if err != nil {
				res.Failed++
				s.Logger.Error("probation notification failed",
					zap.String("company_id", companyID),
					zap.String("user_id", e.ID),
					zap.String("milestone", string(m)),
					zap.Error(err),
				)
			}
		}
	}

	s.Logger.Info("probation scan finished",
		zap.String("company_id", companyID),
		zap.Int("scanned", res.Scanned),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// fanOut writes one copy per recipient and keeps going past failures.
func (s *Scanner) fanOut(ctx context.Context, companyID string, e employee.Employee, m Milestone, recipients []employee.Employee) (int, error) {
	key := notify.MsgProbationHalfway
	if m == Milestone30Days {
		key = notify.MsgProbation30Days
	}
	title, message := s.Notifier.Messages.Render(key, e.Name, e.ProbationEndDate.String())

	sent := 0
	var firstErr error
	for _, r := range recipients {
		created, err := s.Notifier.Send(ctx, notify.Notification{
			Key:       Key(companyID, e.ID, m, r.ID),
			Group:     Group(companyID, e.ID, m),
			CompanyID: companyID,
			UserID:    r.ID,
			Category:  notify.CategoryProbation,
			Type:      notify.TypeInfo,
			Title:     title,
			Message:   message,
			Link:      "/employees/" + e.ID,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if created {
			sent++
		}
	}
	return sent, firstErr
}
