package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
)

var (
	_ absence.TxStore = (*Store)(nil)
	_ employee.Store  = (*Store)(nil)
	_ notify.Store    = (*Store)(nil)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleAbsence(id, user, start, end string) absence.Absence {
	s, e := generic.MustParseDate(start), generic.MustParseDate(end)
	return absence.Absence{
		ID: id, CompanyID: "acme", UserID: user,
		Type: absence.TypeVacation, Status: absence.StatusRequested,
		StartDate: s, EndDate: e, WorkingDays: absence.WorkingDays(s, e),
		CreatedAt: 1000, UpdatedAt: 1000,
	}
}

func TestMigrations_AtLatestVersion(t *testing.T) {
	store := newTestStore(t)

	version, dirty, err := SchemaVersion(store.DB())
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	// running again is a no-op
	assert.NoError(t, MigrateUp(store.DB()))
}

func TestSchemaVersion_FreshDatabase(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	version, _, err := SchemaVersion(db)
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestAbsences_CreateGetList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleAbsence("a2", "alice", "2024-06-03", "2024-06-07")
	a.Note = "beach"
	a.CertificateURL = "/api/certificates/x"
	require.NoError(t, store.CreateAbsence(ctx, a))
	require.NoError(t, store.CreateAbsence(ctx, sampleAbsence("a1", "alice", "2024-02-01", "2024-02-02")))
	require.NoError(t, store.CreateAbsence(ctx, sampleAbsence("b1", "bob", "2024-01-15", "2024-01-15")))

	got, err := store.GetAbsence(ctx, "acme", "a2")
	require.NoError(t, err)
	assert.Equal(t, a, *got)

	// other company sees nothing
	_, err = store.GetAbsence(ctx, "globex", "a2")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	// ordered by start date
	list, err := store.ListAbsences(ctx, absence.Filter{CompanyID: "acme", UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a1", list[0].ID)
	assert.Equal(t, "a2", list[1].ID)

	all, err := store.ListAbsences(ctx, absence.Filter{CompanyID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "b1", all[0].ID)

	// duplicate id
	err = store.CreateAbsence(ctx, a)
	assert.ErrorIs(t, err, generic.ErrDuplicateKey)
}

func TestAbsences_CompareAndSwap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAbsence(ctx, sampleAbsence("a1", "alice", "2024-06-03", "2024-06-07")))

	approved := sampleAbsence("a1", "alice", "2024-06-03", "2024-06-07")
	approved.Status = absence.StatusApproved
	approved.ApprovedBy = "hr"
	approved.ApprovedAt = 2000
	approved.UpdatedAt = 2000

	// GIVEN: the first reviewer wins
	require.NoError(t, store.UpdateAbsence(ctx, approved, absence.StatusRequested))

	// WHEN: a second reviewer writes against the stale status
	rejected := approved
	rejected.Status = absence.StatusRejected
	err := store.UpdateAbsence(ctx, rejected, absence.StatusRequested)

	// THEN: it is refused and the first decision stands
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	got, err := store.GetAbsence(ctx, "acme", "a1")
	require.NoError(t, err)
	assert.Equal(t, absence.StatusApproved, got.Status)
	assert.Equal(t, "hr", got.ApprovedBy)

	// unknown ids are not found rather than conflicting
	missing := sampleAbsence("zz", "alice", "2024-06-03", "2024-06-07")
	assert.ErrorIs(t, store.UpdateAbsence(ctx, missing, absence.StatusRequested), generic.ErrNotFound)

	filtered, err := store.ListAbsences(ctx, absence.Filter{CompanyID: "acme", Status: absence.StatusApproved})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx absence.Store) error {
		require.NoError(t, tx.CreateAbsence(ctx, sampleAbsence("a1", "alice", "2024-06-03", "2024-06-07")))

		// visible inside the transaction
		list, err := tx.ListAbsences(ctx, absence.Filter{CompanyID: "acme"})
		require.NoError(t, err)
		assert.Len(t, list, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := store.ListAbsences(ctx, absence.Filter{CompanyID: "acme"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWithTx_Commits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx absence.Store) error {
		if err := tx.CreateAbsence(ctx, sampleAbsence("a1", "alice", "2024-06-03", "2024-06-07")); err != nil {
			return err
		}
		a, err := tx.GetAbsence(ctx, "acme", "a1")
		if err != nil {
			return err
		}
		a.Status = absence.StatusCancelled
		return tx.UpdateAbsence(ctx, *a, absence.StatusRequested)
	})
	require.NoError(t, err)

	got, err := store.GetAbsence(ctx, "acme", "a1")
	require.NoError(t, err)
	assert.Equal(t, absence.StatusCancelled, got.Status)
}

func TestEmployees(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := generic.MustParseDate("2024-01-01")
	end := generic.MustParseDate("2024-06-30")
	allowance := 28

	require.NoError(t, store.SaveEmployee(ctx, employee.Employee{
		ID: "alice", CompanyID: "acme", Name: "Alice", Email: "alice@acme.test",
		Role: employee.RoleEmployee, Status: employee.StatusActive,
		StartDate: &start, ProbationEndDate: &end, VacationEntitlement: &allowance,
	}))
	require.NoError(t, store.SaveEmployee(ctx, employee.Employee{
		ID: "hr", CompanyID: "acme", Name: "Hank", Role: employee.RoleHRManager, Status: employee.StatusActive,
	}))
	require.NoError(t, store.SaveEmployee(ctx, employee.Employee{
		ID: "old-admin", CompanyID: "acme", Name: "Olga", Role: employee.RoleCompanyAdmin, Status: employee.StatusInactive,
	}))
	require.NoError(t, store.SaveEmployee(ctx, employee.Employee{
		ID: "x", CompanyID: "globex", Name: "X", Role: employee.RoleGlobalAdmin, Status: employee.StatusActive,
	}))

	got, err := store.GetEmployee(ctx, "acme", "alice")
	require.NoError(t, err)
	require.NotNil(t, got.StartDate)
	assert.Equal(t, "2024-01-01", got.StartDate.String())
	assert.Equal(t, "2024-06-30", got.ProbationEndDate.String())
	assert.Equal(t, 28, got.VacationAllowance())

	hr, err := store.GetEmployee(ctx, "acme", "hr")
	require.NoError(t, err)
	assert.Nil(t, hr.StartDate)
	assert.Equal(t, employee.DefaultVacationEntitlement, hr.VacationAllowance())

	_, err = store.GetEmployee(ctx, "globex", "alice")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	list, err := store.ListEmployees(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	reviewers, err := store.ListActiveByRoles(ctx, "acme", employee.ReviewerRoles)
	require.NoError(t, err)
	require.Len(t, reviewers, 1)
	assert.Equal(t, "hr", reviewers[0].ID)

	// upsert
	got.Status = employee.StatusInactive
	require.NoError(t, store.SaveEmployee(ctx, *got))
	again, err := store.GetEmployee(ctx, "acme", "alice")
	require.NoError(t, err)
	assert.False(t, again.IsActive())
}

func TestEmployees_SameIDInTwoCompanies(t *testing.T) {
	// GIVEN: the same user id saved in two companies
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEmployee(ctx, employee.Employee{
		ID: "alice", CompanyID: "acme", Name: "Alice A", Role: employee.RoleHRManager, Status: employee.StatusActive,
	}))
	require.NoError(t, store.SaveEmployee(ctx, employee.Employee{
		ID: "alice", CompanyID: "globex", Name: "Alice G", Role: employee.RoleEmployee, Status: employee.StatusActive,
	}))

	// WHEN: each company reads its directory
	acme, err := store.GetEmployee(ctx, "acme", "alice")
	require.NoError(t, err)
	globex, err := store.GetEmployee(ctx, "globex", "alice")
	require.NoError(t, err)

	// THEN: both records survive unchanged
	assert.Equal(t, "Alice A", acme.Name)
	assert.Equal(t, employee.RoleHRManager, acme.Role)
	assert.Equal(t, "Alice G", globex.Name)
	assert.Equal(t, employee.RoleEmployee, globex.Role)

	list, err := store.ListEmployees(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// AND: updating one company's record leaves the other alone
	acme.Status = employee.StatusInactive
	require.NoError(t, store.SaveEmployee(ctx, *acme))
	globex, err = store.GetEmployee(ctx, "globex", "alice")
	require.NoError(t, err)
	assert.True(t, globex.IsActive())
}

func TestNotifications_CreateIfAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n := notify.Notification{ID: "n1", Key: "probation:acme:u1:halfway:hr", CompanyID: "acme", UserID: "hr",
		Category: notify.CategoryProbation, Type: notify.TypeInfo, Title: "t", Message: "m", CreatedAt: 10}

	created, err := store.CreateNotificationIfAbsent(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)

	n.ID = "n2"
	created, err = store.CreateNotificationIfAbsent(ctx, n)
	require.NoError(t, err)
	assert.False(t, created)

	// plain create with a taken key is a duplicate
	n.ID = "n3"
	assert.ErrorIs(t, store.CreateNotification(ctx, n), generic.ErrDuplicateKey)

	inbox, err := store.ListNotifications(ctx, "acme", "hr")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "n1", inbox[0].ID)
	assert.Equal(t, n.Key, inbox[0].Key)
}

func TestNotifications_ConcurrentCreateIfAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.CreateNotificationIfAbsent(ctx, notify.Notification{
				ID: fmt.Sprintf("n%d", i), Key: "same", CompanyID: "acme", UserID: "hr",
				Category: notify.CategoryProbation, Type: notify.TypeInfo,
			})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestNotifications_InboxAndRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, ts := range []int64{100, 300, 200} {
		require.NoError(t, store.CreateNotification(ctx, notify.Notification{
			ID: fmt.Sprintf("n%d", i), CompanyID: "acme", UserID: "alice",
			Category: notify.CategoryAbsence, Type: notify.TypeSuccess, Title: "t", Message: "m", CreatedAt: ts,
		}))
	}
	// unkeyed notifications do not collide on the unique key
	require.NoError(t, store.CreateNotification(ctx, notify.Notification{ID: "other", CompanyID: "acme", UserID: "bob", Category: notify.CategoryAbsence, Type: notify.TypeInfo}))

	inbox, err := store.ListNotifications(ctx, "acme", "alice")
	require.NoError(t, err)
	require.Len(t, inbox, 3)
	assert.Equal(t, []string{"n1", "n2", "n0"}, []string{inbox[0].ID, inbox[1].ID, inbox[2].ID})
	assert.False(t, inbox[0].Read)

	require.NoError(t, store.MarkNotificationRead(ctx, "acme", "alice", "n1"))
	inbox, err = store.ListNotifications(ctx, "acme", "alice")
	require.NoError(t, err)
	assert.True(t, inbox[0].Read)

	// someone else's notification
	assert.ErrorIs(t, store.MarkNotificationRead(ctx, "acme", "alice", "other"), generic.ErrNotFound)
}
