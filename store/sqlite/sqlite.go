/*
Package sqlite provides a SQLite-backed implementation of the HR stores.

INTERFACES IMPLEMENTED:
  absence.TxStore:  absence records, transactional
  employee.Store:   company directory
  notify.Store:     notification inbox

KEY TABLES:
  employees:      directory records, keyed by (company, id)
  absences:       absence requests; never deleted
  notifications:  inbox entries; dedup_key is UNIQUE

OPTIMISTIC CONCURRENCY:
  UpdateAbsence is a compare-and-swap:

    UPDATE absences SET ... WHERE id = ? AND company_id = ? AND status = ?

  Zero affected rows on an existing record means another writer changed the
  status first; the caller gets generic.ErrConcurrentModification.

DE-DUPLICATION:
  CreateNotificationIfAbsent inserts with ON CONFLICT(dedup_key) DO NOTHING,
  so concurrent scanners cannot both write the same keyed notification.

CONCURRENCY:
  sync.RWMutex serializes writers. WithTx holds the write lock for the whole
  transaction and every statement of the transaction runs on the *sql.Tx.

MIGRATION:
  Schema is managed by golang-migrate from the embedded migrations/ files and
  applied on New().

USAGE:
  store, err := sqlite.New("./data/hr.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/gormstore: same interfaces on gorm (postgres, sqlite)
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens dbPath and migrates it. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	if err := MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Open opens dbPath without migrating it.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for migrations tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// =============================================================================
// ABSENCE STORE (absence.Store interface)
// =============================================================================

const absenceColumns = `id, company_id, user_id, type, status, start_date, end_date, working_days,
	note, certificate_url, destination_country, created_at, updated_at,
	approved_by, approved_at, rejected_reason, rejected_at`

func (s *Store) CreateAbsence(ctx context.Context, a absence.Absence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAbsence(ctx, s.db, a)
}

func (s *Store) GetAbsence(ctx context.Context, companyID, id string) (*absence.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAbsence(ctx, s.db, companyID, id)
}

func (s *Store) ListAbsences(ctx context.Context, f absence.Filter) ([]absence.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAbsences(ctx, s.db, f)
}

func (s *Store) UpdateAbsence(ctx context.Context, a absence.Absence, expected absence.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAbsence(ctx, s.db, a, expected)
}

func createAbsence(ctx context.Context, q querier, a absence.Absence) error {
	_, err := q.ExecContext(ctx, `INSERT INTO absences (`+absenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CompanyID, a.UserID, a.Type, a.Status,
		a.StartDate.String(), a.EndDate.String(), a.WorkingDays,
		a.Note, a.CertificateURL, a.DestinationCountry,
		a.CreatedAt, a.UpdatedAt,
		a.ApprovedBy, a.ApprovedAt, a.RejectedReason, a.RejectedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("absence %s: %w", a.ID, generic.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert absence: %w", err)
	}
	return nil
}

func getAbsence(ctx context.Context, q querier, companyID, id string) (*absence.Absence, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+absenceColumns+` FROM absences WHERE id = ? AND company_id = ?`, id, companyID)
	a, err := scanAbsence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("absence %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func listAbsences(ctx context.Context, q querier, f absence.Filter) ([]absence.Absence, error) {
	query := `SELECT ` + absenceColumns + ` FROM absences WHERE 1 = 1`
	var args []any
	if f.CompanyID != "" {
		query += ` AND company_id = ?`
		args = append(args, f.CompanyID)
	}
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY start_date, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query absences: %w", err)
	}
	defer rows.Close()

	var result []absence.Absence
	for rows.Next() {
		a, err := scanAbsence(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func updateAbsence(ctx context.Context, q querier, a absence.Absence, expected absence.Status) error {
	res, err := q.ExecContext(ctx, `
		UPDATE absences SET
			status = ?, note = ?, certificate_url = ?, updated_at = ?,
			approved_by = ?, approved_at = ?, rejected_reason = ?, rejected_at = ?
		WHERE id = ? AND company_id = ? AND status = ?`,
		a.Status, a.Note, a.CertificateURL, a.UpdatedAt,
		a.ApprovedBy, a.ApprovedAt, a.RejectedReason, a.RejectedAt,
		a.ID, a.CompanyID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update absence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update absence: %w", err)
	}
	if n == 1 {
		return nil
	}

	// distinguish a missing record from a lost race
	if _, err := getAbsence(ctx, q, a.CompanyID, a.ID); err != nil {
		return err
	}
	return fmt.Errorf("absence %s no longer %s: %w", a.ID, expected, generic.ErrConcurrentModification)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAbsence(row rowScanner) (absence.Absence, error) {
	var a absence.Absence
	var typ, status, start, end string
	err := row.Scan(
		&a.ID, &a.CompanyID, &a.UserID, &typ, &status, &start, &end, &a.WorkingDays,
		&a.Note, &a.CertificateURL, &a.DestinationCountry, &a.CreatedAt, &a.UpdatedAt,
		&a.ApprovedBy, &a.ApprovedAt, &a.RejectedReason, &a.RejectedAt,
	)
	if err != nil {
		return a, err
	}
	a.Type = absence.Type(typ)
	a.Status = absence.Status(status)
	if a.StartDate, err = generic.ParseDate(start); err != nil {
		return a, fmt.Errorf("absence %s: %w", a.ID, err)
	}
	if a.EndDate, err = generic.ParseDate(end); err != nil {
		return a, fmt.Errorf("absence %s: %w", a.ID, err)
	}
	return a, nil
}

// =============================================================================
// TRANSACTIONAL STORE (absence.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(absence.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore never touches the parent: the parent's lock is already held.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateAbsence(ctx context.Context, a absence.Absence) error {
	return createAbsence(ctx, ts.tx, a)
}

func (ts *txStore) GetAbsence(ctx context.Context, companyID, id string) (*absence.Absence, error) {
	return getAbsence(ctx, ts.tx, companyID, id)
}

func (ts *txStore) ListAbsences(ctx context.Context, f absence.Filter) ([]absence.Absence, error) {
	return listAbsences(ctx, ts.tx, f)
}

func (ts *txStore) UpdateAbsence(ctx context.Context, a absence.Absence, expected absence.Status) error {
	return updateAbsence(ctx, ts.tx, a, expected)
}

// =============================================================================
// EMPLOYEE STORE (employee.Store interface)
// =============================================================================

const employeeColumns = `id, company_id, name, email, role, status, start_date, probation_end_date,
	vacation_entitlement, created_at, updated_at`

// SaveEmployee inserts or replaces an employee. Ids are scoped to the company.
func (s *Store) SaveEmployee(ctx context.Context, e employee.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entitlement sql.NullInt64
	if e.VacationEntitlement != nil {
		entitlement = sql.NullInt64{Int64: int64(*e.VacationEntitlement), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			status = excluded.status,
			start_date = excluded.start_date,
			probation_end_date = excluded.probation_end_date,
			vacation_entitlement = excluded.vacation_entitlement,
			updated_at = excluded.updated_at`,
		e.ID, e.CompanyID, e.Name, e.Email, e.Role, e.Status,
		nullDate(e.StartDate), nullDate(e.ProbationEndDate), entitlement,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, companyID, id string) (*employee.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = ? AND company_id = ?`, id, companyID)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, companyID string) ([]employee.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryEmployees(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE company_id = ? ORDER BY id`, companyID)
}

func (s *Store) ListActiveByRoles(ctx context.Context, companyID string, roles []employee.Role) ([]employee.Employee, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := []any{companyID, employee.StatusActive}
	for _, r := range roles {
		args = append(args, r)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(roles)), ", ")
	return s.queryEmployees(ctx,
		`SELECT `+employeeColumns+` FROM employees
		WHERE company_id = ? AND status = ? AND role IN (`+placeholders+`) ORDER BY id`, args...)
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]employee.Employee, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var result []employee.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanEmployee(row rowScanner) (employee.Employee, error) {
	var e employee.Employee
	var role, status string
	var start, probationEnd sql.NullString
	var entitlement sql.NullInt64
	err := row.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Email, &role, &status,
		&start, &probationEnd, &entitlement, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	e.Role = employee.Role(role)
	e.Status = employee.Status(status)
	if e.StartDate, err = parseNullDate(start); err != nil {
		return e, fmt.Errorf("employee %s: %w", e.ID, err)
	}
	if e.ProbationEndDate, err = parseNullDate(probationEnd); err != nil {
		return e, fmt.Errorf("employee %s: %w", e.ID, err)
	}
	if entitlement.Valid {
		v := int(entitlement.Int64)
		e.VacationEntitlement = &v
	}
	return e, nil
}

// =============================================================================
// NOTIFICATION STORE (notify.Store interface)
// =============================================================================

const notificationColumns = `id, dedup_key, company_id, user_id, category, type, title, message, link, read, created_at`

func (s *Store) CreateNotification(ctx context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		notificationArgs(n)...)
	if err != nil {
		if isUniqueConstraintError(err) {
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
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING`,
		notificationArgs(n)...)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	return affected == 1, nil
}

func notificationArgs(n notify.Notification) []any {
	return []any{n.ID, nullString(n.Key), n.CompanyID, n.UserID, n.Category, n.Type,
		n.Title, n.Message, n.Link, n.Read, n.CreatedAt}
}

// ListNotifications returns the user's inbox, newest first.
func (s *Store) ListNotifications(ctx context.Context, companyID, userID string) ([]notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE company_id = ? AND user_id = ? ORDER BY created_at DESC, rowid DESC`,
		companyID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var result []notify.Notification
	for rows.Next() {
		var n notify.Notification
		var key sql.NullString
		var category, typ string
		if err := rows.Scan(&n.ID, &key, &n.CompanyID, &n.UserID, &category, &typ,
			&n.Title, &n.Message, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Key = key.String
		n.Category = notify.Category(category)
		n.Type = notify.Type(typ)
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, companyID, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ? AND company_id = ? AND user_id = ?`,
		id, companyID, userID)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("notification %s: %w", id, generic.ErrNotFound)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *generic.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (*generic.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := generic.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
