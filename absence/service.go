package absence

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
	"github.com/warp/hr-engine/storage"
)

// DefaultCertificateBaseURL prefixes storage keys to form certificateUrl.
const DefaultCertificateBaseURL = "/api/certificates/"

// =============================================================================
// SERVICE - request writing and review with transactional guarantees
// =============================================================================

// Service owns every absence write. Company ids are always explicit.
type Service struct {
	Store     TxStore
	Employees employee.Store
	Files     storage.FileStore
	Notifier  *notify.Notifier // nil disables review notifications
	Clock     generic.Clock
	IDs       generic.IDGenerator
	Logger    *zap.Logger

	CertificateBaseURL string

	// NewBackOff paces the optimistic retry around a transaction.
	NewBackOff func() backoff.BackOff
}

func NewService(store TxStore, employees employee.Store, files storage.FileStore, notifier *notify.Notifier, logger *zap.Logger) *Service {
	return &Service{
		Store:              store,
		Employees:          employees,
		Files:              files,
		Notifier:           notifier,
		Clock:              generic.SystemClock{},
		IDs:                generic.UUIDGenerator{},
		Logger:             logger.Named("absence"),
		CertificateBaseURL: DefaultCertificateBaseURL,
		NewBackOff:         DefaultBackOff,
	}
}

// DefaultBackOff retries a conflicting transaction up to four times.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return backoff.WithMaxRetries(b, 4)
}

// Get returns one absence of the company.
func (s *Service) Get(ctx context.Context, companyID, id string) (*Absence, error) {
	return s.Store.GetAbsence(ctx, companyID, id)
}

// List returns the company's absences matching f, ordered by start date.
func (s *Service) List(ctx context.Context, f Filter) ([]Absence, error) {
	return s.Store.ListAbsences(ctx, f)
}

// Entitlement computes the user's balance for the current year.
func (s *Service) Entitlement(ctx context.Context, companyID, userID string) (Entitlement, error) {
	emp, err := s.Employees.GetEmployee(ctx, companyID, userID)
	if err != nil {
		return Entitlement{}, fmt.Errorf("failed to load employee %s: %w", userID, err)
	}
	absences, err := s.Store.ListAbsences(ctx, Filter{CompanyID: companyID, UserID: userID})
	if err != nil {
		return Entitlement{}, fmt.Errorf("failed to list absences: %w", err)
	}
	return ComputeEntitlement(emp.VacationAllowance(), absences, generic.Today(s.Clock)), nil
}

// inTx runs fn in a transaction, retrying the whole transaction while it
// fails with generic.ErrConcurrentModification.
func (s *Service) inTx(ctx context.Context, fn func(Store) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := s.Store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !generic.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		s.Logger.Debug("transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	return backoff.Retry(op, backoff.WithContext(s.NewBackOff(), ctx))
}

func (s *Service) now() int64 {
	return generic.Millis(s.Clock.Now())
}
