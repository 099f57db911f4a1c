/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the HTTP API. Domain types stay free of
  JSON concerns; these types own the wire names (camelCase).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Shape checks (required,
  enum, date format) happen here; business rules stay in the domain.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/notify"
)

// =============================================================================
// ABSENCES
// =============================================================================

// CreateAbsenceRequest is the JSON body (or multipart fields) of POST /api/absences.
type CreateAbsenceRequest struct {
	Type               string `json:"type" validate:"required,oneof=vacation sick sick_child work_remote_abroad business_trip"`
	StartDate          string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate            string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Note               string `json:"note" validate:"max=2000"`
	DestinationCountry string `json:"destinationCountry" validate:"max=100"`
}

func (r CreateAbsenceRequest) toDomain() absence.Request {
	return absence.Request{
		Type:               absence.Type(r.Type),
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		Note:               r.Note,
		DestinationCountry: r.DestinationCountry,
	}
}

type RejectAbsenceRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type CreatedDTO struct {
	ID string `json:"id"`
}

type AbsenceDTO struct {
	ID                 string `json:"id"`
	UserID             string `json:"userId"`
	CompanyID          string `json:"companyId"`
	Type               string `json:"type"`
	Status             string `json:"status"`
	StartDate          string `json:"startDate"`
	EndDate            string `json:"endDate"`
	WorkingDays        int    `json:"workingDays"`
	Note               string `json:"note,omitempty"`
	CertificateURL     string `json:"certificateUrl,omitempty"`
	DestinationCountry string `json:"destinationCountry,omitempty"`
	CreatedAt          int64  `json:"createdAt"`
	UpdatedAt          int64  `json:"updatedAt"`
	ApprovedBy         string `json:"approvedBy,omitempty"`
	ApprovedAt         int64  `json:"approvedAt,omitempty"`
	RejectedReason     string `json:"rejectedReason,omitempty"`
	RejectedAt         int64  `json:"rejectedAt,omitempty"`
}

func toAbsenceDTO(a absence.Absence) AbsenceDTO {
	return AbsenceDTO{
		ID:                 a.ID,
		UserID:             a.UserID,
		CompanyID:          a.CompanyID,
		Type:               string(a.Type),
		Status:             string(a.Status),
		StartDate:          a.StartDate.String(),
		EndDate:            a.EndDate.String(),
		WorkingDays:        a.WorkingDays,
		Note:               a.Note,
		CertificateURL:     a.CertificateURL,
		DestinationCountry: a.DestinationCountry,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
		ApprovedBy:         a.ApprovedBy,
		ApprovedAt:         a.ApprovedAt,
		RejectedReason:     a.RejectedReason,
		RejectedAt:         a.RejectedAt,
	}
}

// EntitlementDTO is the yearly snapshot. Day counts may be negative.
type EntitlementDTO struct {
	Year              int     `json:"year"`
	VacationTotal     float64 `json:"vacationTotal"`
	VacationTaken     float64 `json:"vacationTaken"`
	VacationPlanned   float64 `json:"vacationPlanned"`
	VacationRemaining float64 `json:"vacationRemaining"`
	SickDaysSelf      float64 `json:"sickDaysSelf"`
	SickDaysChild     float64 `json:"sickDaysChild"`
}

func toEntitlementDTO(e absence.Entitlement) EntitlementDTO {
	return EntitlementDTO{
		Year:              e.Year,
		VacationTotal:     e.VacationTotal.Float(),
		VacationTaken:     e.VacationTaken.Float(),
		VacationPlanned:   e.VacationPlanned.Float(),
		VacationRemaining: e.VacationRemaining.Float(),
		SickDaysSelf:      e.SickDaysSelf.Float(),
		SickDaysChild:     e.SickDaysChild.Float(),
	}
}

type WorkingDaysDTO struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	WorkingDays int    `json:"workingDays"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type CreateEmployeeRequest struct {
	ID                  string `json:"id" validate:"required,max=64"`
	Name                string `json:"name" validate:"required,max=200"`
	Email               string `json:"email" validate:"omitempty,email"`
	Role                string `json:"role" validate:"required,oneof=employee hr_manager company_admin global_admin"`
	Status              string `json:"status" validate:"omitempty,oneof=active inactive"`
	StartDate           string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	ProbationEndDate    string `json:"probationEndDate" validate:"omitempty,datetime=2006-01-02"`
	VacationEntitlement *int   `json:"vacationEntitlement" validate:"omitempty,min=0,max=366"`
}

type EmployeeDTO struct {
	ID                  string `json:"id"`
	CompanyID           string `json:"companyId"`
	Name                string `json:"name"`
	Email               string `json:"email,omitempty"`
	Role                string `json:"role"`
	Status              string `json:"status"`
	StartDate           string `json:"startDate,omitempty"`
	ProbationEndDate    string `json:"probationEndDate,omitempty"`
	VacationEntitlement int    `json:"vacationEntitlement"`
}

func toEmployeeDTO(e employee.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:                  e.ID,
		CompanyID:           e.CompanyID,
		Name:                e.Name,
		Email:               e.Email,
		Role:                string(e.Role),
		Status:              string(e.Status),
		VacationEntitlement: e.VacationAllowance(),
	}
	if e.StartDate != nil {
		dto.StartDate = e.StartDate.String()
	}
	if e.ProbationEndDate != nil {
		dto.ProbationEndDate = e.ProbationEndDate.String()
	}
	return dto
}

// =============================================================================
// NOTIFICATIONS & ADMIN
// =============================================================================

type NotificationDTO struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"createdAt"`
}

func toNotificationDTO(n notify.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Category:  string(n.Category),
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

type ScanResultDTO struct {
	CompanyID string `json:"companyId"`
	Scanned   int    `json:"scanned"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
