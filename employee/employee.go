// Package employee holds the directory record the HR engine reads: who works
// for which company, in which role, and the dates that drive entitlements and
// probation reminders.
package employee

import (
	"context"

	"github.com/warp/hr-engine/generic"
)

// DefaultVacationEntitlement applies when an employee has no allowance set.
const DefaultVacationEntitlement = 30

type Role string

const (
	RoleEmployee     Role = "employee"
	RoleHRManager    Role = "hr_manager"
	RoleCompanyAdmin Role = "company_admin"
	RoleGlobalAdmin  Role = "global_admin"
)

// ReviewerRoles may approve or reject absences and receive HR alerts.
var ReviewerRoles = []Role{RoleHRManager, RoleCompanyAdmin, RoleGlobalAdmin}

// IsReviewer reports whether r is one of ReviewerRoles.
func (r Role) IsReviewer() bool {
	for _, rr := range ReviewerRoles {
		if r == rr {
			return true
		}
	}
	return false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleEmployee || r.IsReviewer() }

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Employee is a person in a company's directory.
type Employee struct {
	ID        string
	CompanyID string
	Name      string
	Email     string
	Role      Role
	Status    Status

	StartDate        *generic.Date
	ProbationEndDate *generic.Date

	// VacationEntitlement is the annual allowance in days; nil means default.
	VacationEntitlement *int

	CreatedAt int64
	UpdatedAt int64
}

// VacationAllowance resolves the annual allowance.
func (e Employee) VacationAllowance() int {
	if e.VacationEntitlement == nil {
		return DefaultVacationEntitlement
	}
	return *e.VacationEntitlement
}

func (e Employee) IsActive() bool { return e.Status == StatusActive }

// Store is the directory persistence the engine needs.
type Store interface {
	SaveEmployee(ctx context.Context, e Employee) error
	// GetEmployee returns generic.ErrNotFound for an unknown id or an id
	// that belongs to another company.
	GetEmployee(ctx context.Context, companyID, id string) (*Employee, error)
	ListEmployees(ctx context.Context, companyID string) ([]Employee, error)
	// ListActiveByRoles returns active employees holding any of roles.
	ListActiveByRoles(ctx context.Context, companyID string, roles []Role) ([]Employee, error)
}
