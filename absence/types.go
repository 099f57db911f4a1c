// Package absence implements the absence lifecycle and entitlement accounting:
// working-day counting, the yearly vacation/sick balance, request validation
// and writing, and the review state machine.
package absence

import (
	"context"

	"github.com/warp/hr-engine/generic"
)

// =============================================================================
// ABSENCE TYPES
// =============================================================================

type Type string

const (
	TypeVacation         Type = "vacation"
	TypeSick             Type = "sick"
	TypeSickChild        Type = "sick_child"
	TypeWorkRemoteAbroad Type = "work_remote_abroad"
	TypeBusinessTrip     Type = "business_trip"
)

// Types lists every known absence type.
var Types = []Type{TypeVacation, TypeSick, TypeSickChild, TypeWorkRemoteAbroad, TypeBusinessTrip}

func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// AcceptsCertificate reports whether a supporting document is meaningful.
func (t Type) AcceptsCertificate() bool { return t == TypeSick || t == TypeSickChild }

type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition leaves s.
func (s Status) IsTerminal() bool { return s != StatusRequested }

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// =============================================================================
// ABSENCE RECORD
// =============================================================================

// Absence is one leave or travel request by one employee. Timestamps are
// epoch milliseconds.
type Absence struct {
	ID        string
	UserID    string
	CompanyID string

	Type   Type
	Status Status

	StartDate   generic.Date
	EndDate     generic.Date
	WorkingDays int

	Note               string
	CertificateURL     string
	DestinationCountry string

	CreatedAt int64
	UpdatedAt int64

	// Review audit. ApprovedBy holds the reviewer for rejections too.
	ApprovedBy     string
	ApprovedAt     int64
	RejectedReason string
	RejectedAt     int64
}

// Span returns the inclusive date range of the absence.
func (a Absence) Span() generic.Period {
	return generic.Period{Start: a.StartDate, End: a.EndDate}
}

// =============================================================================
// STORE
// =============================================================================

// Filter selects absences of one company. Empty fields match everything.
type Filter struct {
	CompanyID string
	UserID    string
	Status    Status
}

// Store persists absences. Records are never deleted.
type Store interface {
	CreateAbsence(ctx context.Context, a Absence) error
	// GetAbsence returns generic.ErrNotFound for unknown ids and for ids of
	// another company.
	GetAbsence(ctx context.Context, companyID, id string) (*Absence, error)
	// ListAbsences returns matches ordered by StartDate ascending.
	ListAbsences(ctx context.Context, f Filter) ([]Absence, error)
	// UpdateAbsence replaces the record if its stored status still equals
	// expected, else returns generic.ErrConcurrentModification.
	UpdateAbsence(ctx context.Context, a Absence, expected Status) error
}

// TxStore runs fn atomically: every read and write fn performs through the
// given Store commits together or not at all.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
