package gormstore

import (
	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
)

// Timestamps are epoch millis set by the services, so gorm's own
// auto-timestamping is switched off.

// Employee ids are scoped to the company: the primary key is (company_id, id).
type employeeRow struct {
	CompanyID           string  `gorm:"primaryKey"`
	ID                  string  `gorm:"primaryKey"`
	Name                string  `gorm:"not null"`
	Email               string
	Role                string  `gorm:"not null"`
	Status              string  `gorm:"not null"`
	StartDate           *string `gorm:"size:10"`
	ProbationEndDate    *string `gorm:"size:10"`
	VacationEntitlement *int
	CreatedAt           int64 `gorm:"autoCreateTime:false"`
	UpdatedAt           int64 `gorm:"autoUpdateTime:false"`
}

func (employeeRow) TableName() string { return "employees" }

type absenceRow struct {
	ID                 string `gorm:"primaryKey"`
	CompanyID          string `gorm:"index:idx_absences_company_user_start,priority:1;not null"`
	UserID             string `gorm:"index:idx_absences_company_user_start,priority:2;not null"`
	Type               string `gorm:"not null"`
	Status             string `gorm:"index;not null"`
	StartDate          string `gorm:"index:idx_absences_company_user_start,priority:3;size:10;not null"`
	EndDate            string `gorm:"size:10;not null"`
	WorkingDays        int    `gorm:"not null"`
	Note               string
	CertificateURL     string
	DestinationCountry string
	CreatedAt          int64 `gorm:"autoCreateTime:false"`
	UpdatedAt          int64 `gorm:"autoUpdateTime:false"`
	ApprovedBy         string
	ApprovedAt         int64
	RejectedReason     string
	RejectedAt         int64
}

func (absenceRow) TableName() string { return "absences" }

type notificationRow struct {
	ID        string  `gorm:"primaryKey"`
	DedupKey  *string `gorm:"uniqueIndex"`
	CompanyID string  `gorm:"index:idx_notifications_inbox,priority:1;not null"`
	UserID    string  `gorm:"index:idx_notifications_inbox,priority:2;not null"`
	Category  string  `gorm:"not null"`
	Type      string  `gorm:"not null"`
	Title     string
	Message   string
	Link      string
	Read      bool
	CreatedAt int64 `gorm:"index:idx_notifications_inbox,priority:3;autoCreateTime:false"`
}

func (notificationRow) TableName() string { return "notifications" }

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAbsenceRow(a absence.Absence) absenceRow {
	return absenceRow{
		ID:                 a.ID,
		CompanyID:          a.CompanyID,
		UserID:             a.UserID,
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

func (r absenceRow) toAbsence() (absence.Absence, error) {
	start, err := generic.ParseDate(r.StartDate)
	if err != nil {
		return absence.Absence{}, err
	}
	end, err := generic.ParseDate(r.EndDate)
	if err != nil {
		return absence.Absence{}, err
	}
	return absence.Absence{
		ID:                 r.ID,
		UserID:             r.UserID,
		CompanyID:          r.CompanyID,
		Type:               absence.Type(r.Type),
		Status:             absence.Status(r.Status),
		StartDate:          start,
		EndDate:            end,
		WorkingDays:        r.WorkingDays,
		Note:               r.Note,
		CertificateURL:     r.CertificateURL,
		DestinationCountry: r.DestinationCountry,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ApprovedBy:         r.ApprovedBy,
		ApprovedAt:         r.ApprovedAt,
		RejectedReason:     r.RejectedReason,
		RejectedAt:         r.RejectedAt,
	}, nil
}

func toEmployeeRow(e employee.Employee) employeeRow {
	return employeeRow{
		ID:                  e.ID,
		CompanyID:           e.CompanyID,
		Name:                e.Name,
		Email:               e.Email,
		Role:                string(e.Role),
		Status:              string(e.Status),
		StartDate:           dateString(e.StartDate),
		ProbationEndDate:    dateString(e.ProbationEndDate),
		VacationEntitlement: e.VacationEntitlement,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

func (r employeeRow) toEmployee() (employee.Employee, error) {
	start, err := parseDateString(r.StartDate)
	if err != nil {
		return employee.Employee{}, err
	}
	end, err := parseDateString(r.ProbationEndDate)
	if err != nil {
		return employee.Employee{}, err
	}
	return employee.Employee{
		ID:                  r.ID,
		CompanyID:           r.CompanyID,
		Name:                r.Name,
		Email:               r.Email,
		Role:                employee.Role(r.Role),
		Status:              employee.Status(r.Status),
		StartDate:           start,
		ProbationEndDate:    end,
		VacationEntitlement: r.VacationEntitlement,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}, nil
}

func toNotificationRow(n notify.Notification) notificationRow {
	var key *string
	if n.Key != "" {
		k := n.Key
		key = &k
	}
	return notificationRow{
		ID:        n.ID,
		DedupKey:  key,
		CompanyID: n.CompanyID,
		UserID:    n.UserID,
		Category:  string(n.Category),
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

func (r notificationRow) toNotification() notify.Notification {
	n := notify.Notification{
		ID:        r.ID,
		CompanyID: r.CompanyID,
		UserID:    r.UserID,
		Category:  notify.Category(r.Category),
		Type:      notify.Type(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		Link:      r.Link,
		Read:      r.Read,
		CreatedAt: r.CreatedAt,
	}
	if r.DedupKey != nil {
		n.Key = *r.DedupKey
	}
	return n
}

func dateString(d *generic.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDateString(s *string) (*generic.Date, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := generic.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
