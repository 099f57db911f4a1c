// Package gormstore implements the HR stores on gorm. Postgres is the
// production dialect; the sqlite dialect serves embedded deployments and
// tests.
package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Store implements absence.TxStore, employee.Store and notify.Store.
type Store struct {
	db      *gorm.DB
	dialect string

	// txMu serializes sqlite transactions, which have no row locking.
	txMu sync.Mutex
}

// Open connects and auto-migrates. For sqlite, dsn is a file path or
// ":memory:".
func Open(dialect, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown dialect: %s", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == DialectSQLite && dsn == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&employeeRow{}, &absenceRow{}, &notificationRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// =============================================================================
// ABSENCES
// =============================================================================

func (s *Store) CreateAbsence(ctx context.Context, a absence.Absence) error {
	return createAbsence(s.db.WithContext(ctx), a)
}

func (s *Store) GetAbsence(ctx context.Context, companyID, id string) (*absence.Absence, error) {
	return getAbsence(s.db.WithContext(ctx), companyID, id)
}

func (s *Store) ListAbsences(ctx context.Context, f absence.Filter) ([]absence.Absence, error) {
	return listAbsences(s.db.WithContext(ctx), f)
}

func (s *Store) UpdateAbsence(ctx context.Context, a absence.Absence, expected absence.Status) error {
	return updateAbsence(s.db.WithContext(ctx), a, expected)
}

func createAbsence(db *gorm.DB, a absence.Absence) error {
	row := toAbsenceRow(a)
	if err := db.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("absence %s: %w", a.ID, generic.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert absence: %w", mapTxError(err))
	}
	return nil
}

func getAbsence(db *gorm.DB, companyID, id string) (*absence.Absence, error) {
	var row absenceRow
	err := db.Where("id = ? AND company_id = ?", id, companyID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("absence %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, mapTxError(err)
	}
	a, err := row.toAbsence()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func listAbsences(db *gorm.DB, f absence.Filter) ([]absence.Absence, error) {
	q := db.Model(&absenceRow{})
	if f.CompanyID != "" {
		q = q.Where("company_id = ?", f.CompanyID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}

	var rows []absenceRow
	if err := q.Order("start_date, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query absences: %w", mapTxError(err))
	}

	result := make([]absence.Absence, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAbsence()
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

func updateAbsence(db *gorm.DB, a absence.Absence, expected absence.Status) error {
	res := db.Model(&absenceRow{}).
		Where("id = ? AND company_id = ? AND status = ?", a.ID, a.CompanyID, string(expected)).
		Updates(map[string]any{
			"status":          string(a.Status),
			"note":            a.Note,
			"certificate_url": a.CertificateURL,
			"updated_at":      a.UpdatedAt,
			"approved_by":     a.ApprovedBy,
			"approved_at":     a.ApprovedAt,
			"rejected_reason": a.RejectedReason,
			"rejected_at":     a.RejectedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update absence: %w", mapTxError(res.Error))
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := getAbsence(db, a.CompanyID, a.ID); err != nil {
		return err
	}
	return fmt.Errorf("absence %s no longer %s: %w", a.ID, expected, generic.ErrConcurrentModification)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a transaction. Postgres runs it SERIALIZABLE and reports
// serialization failures as generic.ErrConcurrentModification so callers can
// retry; sqlite transactions are serialized in process.
func (s *Store) WithTx(ctx context.Context, fn func(absence.Store) error) error {
	var opts []*sql.TxOptions
	if s.dialect == DialectPostgres {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	} else {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txStore{db: tx})
	}, opts...)
	return mapTxError(err)
}

type txStore struct {
	db *gorm.DB
}

func (ts *txStore) CreateAbsence(_ context.Context, a absence.Absence) error {
	return createAbsence(ts.db, a)
}

func (ts *txStore) GetAbsence(_ context.Context, companyID, id string) (*absence.Absence, error) {
	return getAbsence(ts.db, companyID, id)
}

func (ts *txStore) ListAbsences(_ context.Context, f absence.Filter) ([]absence.Absence, error) {
	return listAbsences(ts.db, f)
}

func (ts *txStore) UpdateAbsence(_ context.Context, a absence.Absence, expected absence.Status) error {
	return updateAbsence(ts.db, a, expected)
}

// mapTxError turns postgres serialization failures (SQLSTATE 40001) into
// generic.ErrConcurrentModification.
func mapTxError(err error) error {
	if err == nil || errors.Is(err, generic.ErrConcurrentModification) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLSTATE 40001") || strings.Contains(msg, "could not serialize access") {
		return fmt.Errorf("%v: %w", err, generic.ErrConcurrentModification)
	}
	return err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e employee.Employee) error {
	row := toEmployeeRow(e)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, companyID, id string) (*employee.Employee, error) {
	var row employeeRow
	err := s.db.WithContext(ctx).Where("id = ? AND company_id = ?", id, companyID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e, err := row.toEmployee()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, companyID string) ([]employee.Employee, error) {
	return s.findEmployees(s.db.WithContext(ctx).Where("company_id = ?", companyID))
}

func (s *Store) ListActiveByRoles(ctx context.Context, companyID string, roles []employee.Role) ([]employee.Employee, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return s.findEmployees(s.db.WithContext(ctx).
		Where("company_id = ? AND status = ? AND role IN ?", companyID, string(employee.StatusActive), names))
}

func (s *Store) findEmployees(q *gorm.DB) ([]employee.Employee, error) {
	var rows []employeeRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	result := make([]employee.Employee, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEmployee()
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (s *Store) CreateNotification(ctx context.Context, n notify.Notification) error {
	row := toNotificationRow(n)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("notification %s: %w", n.Key, generic.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *Store) CreateNotificationIfAbsent(ctx context.Context, n notify.Notification) (bool, error) {
	if n.Key == "" {
		return false, fmt.Errorf("create-if-absent requires a key")
	}
	row := toNotificationRow(n)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert notification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ListNotifications(ctx context.Context, companyID, userID string) ([]notify.Notification, error) {
	var rows []notificationRow
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND user_id = ?", companyID, userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	result := make([]notify.Notification, len(rows))
	for i, r := range rows {
		result[i] = r.toNotification()
	}
	return result, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, companyID, userID, id string) error {
	res := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("id = ? AND company_id = ? AND user_id = ?", id, companyID, userID).
		Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("failed to update notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", id, generic.ErrNotFound)
	}
	return nil
}
