// Package memory provides an in-process implementation of every store the
// HR engine needs, for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store implements absence.TxStore, employee.Store and notify.Store.
type Store struct {
	mu            sync.RWMutex
	absences      map[string]absence.Absence
	employees     map[employeeKey]employee.Employee
	notifications []notify.Notification
	keys          map[string]bool

	// conflicts makes the next n absence writes fail with
	// generic.ErrConcurrentModification.
	conflicts int
}

// employeeKey scopes employee ids to their company.
type employeeKey struct {
	companyID string
	id        string
}

func New() *Store {
	return &Store{
		absences:  make(map[string]absence.Absence),
		employees: make(map[employeeKey]employee.Employee),
		keys:      make(map[string]bool),
	}
}

// InjectConflicts simulates n lost optimistic races on absence writes.
func (m *Store) InjectConflicts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts = n
}

// -----------------------------------------------------------------------------
// absences
// -----------------------------------------------------------------------------

func (m *Store) CreateAbsence(ctx context.Context, a absence.Absence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAbsenceLocked(a)
}

func (m *Store) GetAbsence(_ context.Context, companyID, id string) (*absence.Absence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAbsenceLocked(companyID, id)
}

func (m *Store) ListAbsences(_ context.Context, f absence.Filter) ([]absence.Absence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAbsencesLocked(f), nil
}

func (m *Store) UpdateAbsence(_ context.Context, a absence.Absence, expected absence.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAbsenceLocked(a, expected)
}

func (m *Store) conflictLocked() error {
	if m.conflicts > 0 {
		m.conflicts--
		return generic.ErrConcurrentModification
	}
	return nil
}

func (m *Store) createAbsenceLocked(a absence.Absence) error {
	if err := m.conflictLocked(); err != nil {
		return err
	}
	if _, ok := m.absences[a.ID]; ok {
		return fmt.Errorf("absence %s: %w", a.ID, generic.ErrDuplicateKey)
	}
	m.absences[a.ID] = a
	return nil
}

func (m *Store) getAbsenceLocked(companyID, id string) (*absence.Absence, error) {
	a, ok := m.absences[id]
	if !ok || a.CompanyID != companyID {
		return nil, fmt.Errorf("absence %s: %w", id, generic.ErrNotFound)
	}
	return &a, nil
}

func (m *Store) listAbsencesLocked(f absence.Filter) []absence.Absence {
	var result []absence.Absence
	for _, a := range m.absences {
		if f.CompanyID != "" && a.CompanyID != f.CompanyID {
			continue
		}
		if f.UserID != "" && a.UserID != f.UserID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Store) updateAbsenceLocked(a absence.Absence, expected absence.Status) error {
	if err := m.conflictLocked(); err != nil {
		return err
	}
	current, ok := m.absences[a.ID]
	if !ok || current.CompanyID != a.CompanyID {
		return fmt.Errorf("absence %s: %w", a.ID, generic.ErrNotFound)
	}
	if current.Status != expected {
		return fmt.Errorf("absence %s is %s, expected %s: %w", a.ID, current.Status, expected, generic.ErrConcurrentModification)
	}
	m.absences[a.ID] = a
	return nil
}

// -----------------------------------------------------------------------------
// employees
// -----------------------------------------------------------------------------

func (m *Store) SaveEmployee(_ context.Context, e employee.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[employeeKey{e.CompanyID, e.ID}] = e
	return nil
}

func (m *Store) GetEmployee(_ context.Context, companyID, id string) (*employee.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[employeeKey{companyID, id}]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	return &e, nil
}

func (m *Store) ListEmployees(_ context.Context, companyID string) ([]employee.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []employee.Employee
	for _, e := range m.employees {
		if e.CompanyID == companyID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Store) ListActiveByRoles(ctx context.Context, companyID string, roles []employee.Role) ([]employee.Employee, error) {
	all, err := m.ListEmployees(ctx, companyID)
	if err != nil {
		return nil, err
	}
	var result []employee.Employee
	for _, e := range all {
		if !e.IsActive() {
			continue
		}
		for _, r := range roles {
			if e.Role == r {
				result = append(result, e)
				break
			}
		}
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// notifications
// -----------------------------------------------------------------------------

func (m *Store) CreateNotification(_ context.Context, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.Key != "" && m.keys[n.Key] {
		return fmt.Errorf("notification %s: %w", n.Key, generic.ErrDuplicateKey)
	}
	m.insertNotificationLocked(n)
	return nil
}

func (m *Store) CreateNotificationIfAbsent(_ context.Context, n notify.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[n.Key] {
		return false, nil
	}
	m.insertNotificationLocked(n)
	return true, nil
}

func (m *Store) insertNotificationLocked(n notify.Notification) {
	if n.Key != "" {
		m.keys[n.Key] = true
	}
	m.notifications = append(m.notifications, n)
}

// ListNotifications returns the user's inbox, newest first.
func (m *Store) ListNotifications(_ context.Context, companyID, userID string) ([]notify.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []notify.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.CompanyID == companyID && n.UserID == userID {
			result = append(result, n)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt > result[j].CreatedAt })
	return result, nil
}

func (m *Store) MarkNotificationRead(_ context.Context, companyID, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		n := &m.notifications[i]
		if n.ID == id && n.CompanyID == companyID && n.UserID == userID {
			n.Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, generic.ErrNotFound)
}

// AllNotifications returns every stored notification in insertion order.
func (m *Store) AllNotifications() []notify.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]notify.Notification(nil), m.notifications...)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx holds the write lock for the whole of fn, which serializes
// transactions. Absence writes are rolled back from a snapshot on error.
func (m *Store) WithTx(_ context.Context, fn func(absence.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]absence.Absence, len(m.absences))
	for k, v := range m.absences {
		snapshot[k] = v
	}

	if err := fn(&txView{parent: m}); err != nil {
		m.absences = snapshot
		return err
	}
	return nil
}

// txView runs against the parent's maps while WithTx holds its lock.
type txView struct {
	parent *Store
}

func (tv *txView) CreateAbsence(_ context.Context, a absence.Absence) error {
	return tv.parent.createAbsenceLocked(a)
}

func (tv *txView) GetAbsence(_ context.Context, companyID, id string) (*absence.Absence, error) {
	return tv.parent.getAbsenceLocked(companyID, id)
}

func (tv *txView) ListAbsences(_ context.Context, f absence.Filter) ([]absence.Absence, error) {
	return tv.parent.listAbsencesLocked(f), nil
}

func (tv *txView) UpdateAbsence(_ context.Context, a absence.Absence, expected absence.Status) error {
	return tv.parent.updateAbsenceLocked(a, expected)
}
