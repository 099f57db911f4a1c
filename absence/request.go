package absence

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/storage"
)

// Request is the user input for a new absence. Dates are YYYY-MM-DD.
type Request struct {
	Type               Type
	StartDate          string
	EndDate            string
	Note               string
	DestinationCountry string
}

// Attachment is an optional supporting document.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// span checks everything that does not depend on the balance.
func (r Request) span() (generic.Period, error) {
	if !r.Type.Valid() {
		return generic.Period{}, generic.NewValidationError("type", "unknown absence type %q", r.Type)
	}
	start, err := generic.ParseDate(r.StartDate)
	if err != nil {
		return generic.Period{}, generic.NewValidationError("startDate", "invalid date %q", r.StartDate)
	}
	end, err := generic.ParseDate(r.EndDate)
	if err != nil {
		return generic.Period{}, generic.NewValidationError("endDate", "invalid date %q", r.EndDate)
	}
	if end.Before(start) {
		return generic.Period{}, generic.NewValidationError("endDate", "end date %s is before start date %s", end, start)
	}
	if r.Type == TypeWorkRemoteAbroad && strings.TrimSpace(r.DestinationCountry) == "" {
		return generic.Period{}, generic.NewValidationError("destinationCountry", "destination country is required for remote work abroad")
	}
	return generic.Period{Start: start, End: end}, nil
}

// =============================================================================
// VALIDATE REQUEST - pure check, no side effects
// =============================================================================

// ValidateRequest rejects a request that breaks a business rule given the
// requester's current balance.
func ValidateRequest(r Request, snapshot Entitlement) error {
	span, err := r.span()
	if err != nil {
		return err
	}
	if r.Type != TypeVacation {
		return nil
	}

	requested := generic.Days(span.Workdays())
	if requested.GreaterThan(snapshot.VacationRemaining) {
		return generic.NewValidationError("endDate",
			"requested %s working days exceed the remaining vacation of %s days",
			requested.Value, snapshot.VacationRemaining.Value)
	}
	return nil
}

// =============================================================================
// REQUEST ABSENCE
// =============================================================================

// RequestAbsence uploads the optional file, then checks the balance and
// writes the record in one transaction. Returns the new absence id. Only sick
// absences take a file.
//
// The balance is read inside the same transaction that writes the record, so
// two concurrent requests cannot both spend the last days.
func (s *Service) RequestAbsence(ctx context.Context, companyID, userID string, r Request, file *Attachment) (string, error) {
	span, err := r.span()
	if err != nil {
		return "", err
	}
	if file != nil && !r.Type.AcceptsCertificate() {
		return "", generic.NewValidationError("certificate", "only sick absences take a certificate")
	}

	emp, err := s.Employees.GetEmployee(ctx, companyID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load employee %s: %w", userID, err)
	}

	rec := Absence{
		ID:                 s.IDs.New(),
		UserID:             userID,
		CompanyID:          companyID,
		Type:               r.Type,
		Status:             StatusRequested,
		StartDate:          span.Start,
		EndDate:            span.End,
		WorkingDays:        span.Workdays(),
		Note:               r.Note,
		DestinationCountry: strings.TrimSpace(r.DestinationCountry),
	}

	var uploadedKey string
	if file != nil {
		if s.Files == nil {
			return "", fmt.Errorf("file storage is not configured")
		}
		key := storage.CertificateKey(companyID, userID, rec.ID, file.Filename)
		if err := s.Files.Put(ctx, key, file.Content, file.Size, file.ContentType); err != nil {
			return "", fmt.Errorf("failed to upload certificate: %w", err)
		}
		uploadedKey = key
		rec.CertificateURL = s.CertificateBaseURL + key
	}

	err = s.inTx(ctx, func(tx Store) error {
		existing, err := tx.ListAbsences(ctx, Filter{CompanyID: companyID, UserID: userID})
		if err != nil {
			return fmt.Errorf("failed to list absences: %w", err)
		}
		snapshot := ComputeEntitlement(emp.VacationAllowance(), existing, generic.Today(s.Clock))
		if err := ValidateRequest(r, snapshot); err != nil {
			return err
		}

		now := s.now()
		rec.CreatedAt = now
		rec.UpdatedAt = now
		return tx.CreateAbsence(ctx, rec)
	})
	if err != nil {
		if uploadedKey != "" {
			s.discardUpload(uploadedKey)
		}
		return "", err
	}

	s.Logger.Info("absence requested",
		zap.String("company_id", companyID),
		zap.String("user_id", userID),
		zap.String("absence_id", rec.ID),
		zap.String("type", string(rec.Type)),
		zap.Int("working_days", rec.WorkingDays),
	)
	return rec.ID, nil
}

// discardUpload removes a file whose record was never written. It runs
// detached from the request context, which may already be cancelled.
func (s *Service) discardUpload(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Files.Delete(ctx, key); err != nil {
		s.Logger.Warn("failed to delete orphaned certificate", zap.String("key", key), zap.Error(err))
	}
}
