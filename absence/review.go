/*
review.go - Absence review state machine

STATES:
  requested ──approve──► approved   (reviewer)
      │     ──reject───► rejected   (reviewer)
      └─────cancel─────► cancelled  (owner only)

  approved, rejected and cancelled are terminal.

CONCURRENCY:
  Every transition re-reads the record inside a transaction and writes it
  back with a compare-and-swap on the status it read. A transition that lost
  the race re-reads, finds a terminal status and fails with a StateError, so
  two reviewers can never both decide the same request.

NOTIFICATIONS:
  Approve and reject notify the requester after the transition committed.
  Notification failures are logged; the transition stands.
*/
package absence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
)

// CancelStatus fails with a StateError unless an absence in currentStatus
// may be cancelled.
func CancelStatus(currentStatus Status) error {
	if currentStatus != StatusRequested {
		return &generic.StateError{Status: string(currentStatus), Message: "only requested absences can be cancelled"}
	}
	return nil
}

// Approve marks a requested absence approved. The entitlement is not checked
// again: the request was validated when it was written.
func (s *Service) Approve(ctx context.Context, companyID, absenceID, reviewerID string) (*Absence, error) {
	a, err := s.transition(ctx, companyID, absenceID, func(a *Absence, now int64) error {
		if a.Status != StatusRequested {
			return &generic.StateError{ID: a.ID, Status: string(a.Status), Message: "only requested absences can be approved"}
		}
		a.Status = StatusApproved
		a.ApprovedBy = reviewerID
		a.ApprovedAt = now
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("absence approved",
		zap.String("company_id", companyID),
		zap.String("absence_id", a.ID),
		zap.String("reviewer_id", reviewerID),
	)
	s.notifyRequester(ctx, a, notify.TypeSuccess, notify.MsgAbsenceApproved)
	return a, nil
}

// Reject marks a requested absence rejected. The reason is stored as given.
func (s *Service) Reject(ctx context.Context, companyID, absenceID, reviewerID, reason string) (*Absence, error) {
	a, err := s.transition(ctx, companyID, absenceID, func(a *Absence, now int64) error {
		if a.Status != StatusRequested {
			return &generic.StateError{ID: a.ID, Status: string(a.Status), Message: "only requested absences can be rejected"}
		}
		a.Status = StatusRejected
		a.ApprovedBy = reviewerID
		a.RejectedReason = reason
		a.RejectedAt = now
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("absence rejected",
		zap.String("company_id", companyID),
		zap.String("absence_id", a.ID),
		zap.String("reviewer_id", reviewerID),
	)
	s.notifyRequester(ctx, a, notify.TypeError, notify.MsgAbsenceRejected, a.RejectedReason)
	return a, nil
}

// Cancel withdraws the actor's own requested absence. No notification.
func (s *Service) Cancel(ctx context.Context, companyID, absenceID, actorID string) (*Absence, error) {
	a, err := s.transition(ctx, companyID, absenceID, func(a *Absence, now int64) error {
		if a.UserID != actorID {
			return fmt.Errorf("absence %s belongs to another user: %w", a.ID, generic.ErrForbidden)
		}
		if err := CancelStatus(a.Status); err != nil {
			var se *generic.StateError
			if errors.As(err, &se) {
				se.ID = a.ID
			}
			return err
		}
		a.Status = StatusCancelled
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("absence cancelled",
		zap.String("company_id", companyID),
		zap.String("absence_id", a.ID),
	)
	return a, nil
}

// transition re-reads the absence, lets mutate change it and writes it back
// only if the stored status is still the one that was read.
func (s *Service) transition(ctx context.Context, companyID, absenceID string, mutate func(*Absence, int64) error) (*Absence, error) {
	var result *Absence
	err := s.inTx(ctx, func(tx Store) error {
		current, err := tx.GetAbsence(ctx, companyID, absenceID)
		if err != nil {
			return err
		}
		read := current.Status
		if err := mutate(current, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateAbsence(ctx, *current, read); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) notifyRequester(ctx context.Context, a *Absence, typ notify.Type, key string, extra ...any) {
	if s.Notifier == nil {
		return
	}
	msgs := s.Notifier.Messages
	args := append([]any{msgs.Label(string(a.Type)), a.StartDate.String()}, extra...)
	title, message := msgs.Render(key, args...)

	_, err := s.Notifier.Send(ctx, notify.Notification{
		CompanyID: a.CompanyID,
		UserID:    a.UserID,
		Category:  notify.CategoryAbsence,
		Type:      typ,
		Title:     title,
		Message:   message,
		Link:      "/absences/" + a.ID,
	})
	if err != nil {
		s.Logger.Error("failed to notify requester",
			zap.String("absence_id", a.ID),
			zap.String("user_id", a.UserID),
			zap.Error(err),
		)
	}
}
