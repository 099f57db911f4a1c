package absence_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
	"github.com/warp/hr-engine/storage"
	"github.com/warp/hr-engine/store/memory"
)

// =============================================================================
// FIXTURES
// =============================================================================

const company = "acme"

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("abs-%d", g.n)
}

type failingFiles struct{ storage.FileStore }

func (failingFiles) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("bucket unavailable")
}

type env struct {
	store *memory.Store
	files *storage.Memory
	svc   *absence.Service
	ctx   context.Context
}

func newEnv(t *testing.T, today string) *env {
	t.Helper()
	store := memory.New()
	files := storage.NewMemory()
	clock := fixedClock{t: generic.MustParseDate(today).Time.Add(9 * time.Hour)}

	notifier := notify.NewNotifier(store, zap.NewNop())
	notifier.Clock = clock

	svc := absence.NewService(store, store, files, notifier, zap.NewNop())
	svc.Clock = clock
	svc.IDs = &seqIDs{}
	svc.NewBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 4) }

	e := &env{store: store, files: files, svc: svc, ctx: context.Background()}
	e.addEmployee(t, "alice", employee.RoleEmployee, intPtr(30))
	e.addEmployee(t, "hr", employee.RoleHRManager, nil)
	return e
}

func intPtr(n int) *int { return &n }

func (e *env) addEmployee(t *testing.T, id string, role employee.Role, allowance *int) {
	t.Helper()
	require.NoError(t, e.store.SaveEmployee(e.ctx, employee.Employee{
		ID:                  id,
		CompanyID:           company,
		Name:                strings.ToUpper(id[:1]) + id[1:],
		Role:                role,
		Status:              employee.StatusActive,
		VacationEntitlement: allowance,
	}))
}

func vacation(start, end string) absence.Request {
	return absence.Request{Type: absence.TypeVacation, StartDate: start, EndDate: end}
}

func (e *env) remaining(t *testing.T, userID string) generic.Amount {
	t.Helper()
	ent, err := e.svc.Entitlement(e.ctx, company, userID)
	require.NoError(t, err)
	return ent.VacationRemaining
}

// =============================================================================
// REQUEST
// =============================================================================

func TestRequestAbsence_VacationScenario(t *testing.T) {
	e := newEnv(t, "2024-05-20")

	// GIVEN: 30 days allowance and no absences
	// WHEN: requesting Mon-Fri
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-07"), nil)
	require.NoError(t, err)

	// THEN: the record is requested with 5 working days
	a, err := e.svc.Get(e.ctx, company, id)
	require.NoError(t, err)
	assert.Equal(t, absence.StatusRequested, a.Status)
	assert.Equal(t, 5, a.WorkingDays)
	assert.Equal(t, "alice", a.UserID)
	assert.Equal(t, company, a.CompanyID)
	assert.NotZero(t, a.CreatedAt)
	assert.Equal(t, a.CreatedAt, a.UpdatedAt)

	// AND: the balance shows it as planned
	assert.True(t, e.remaining(t, "alice").Equal(generic.Days(25)))

	// AND: creating a request notifies nobody
	assert.Empty(t, e.store.AllNotifications())
}

func TestRequestAbsence_RejectScenario(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-07"), nil)
	require.NoError(t, err)

	// WHEN: HR rejects it
	a, err := e.svc.Reject(e.ctx, company, id, "hr", "Understaffed")
	require.NoError(t, err)

	// THEN: the record carries the reviewer and reason
	assert.Equal(t, absence.StatusRejected, a.Status)
	assert.Equal(t, "Understaffed", a.RejectedReason)
	assert.Equal(t, "hr", a.ApprovedBy)
	assert.NotZero(t, a.RejectedAt)

	stored, err := e.svc.Get(e.ctx, company, id)
	require.NoError(t, err)
	assert.Equal(t, absence.StatusRejected, stored.Status)

	// AND: alice is told why
	inbox, err := e.store.ListNotifications(e.ctx, company, "alice")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, notify.TypeError, inbox[0].Type)
	assert.Contains(t, inbox[0].Message, "Understaffed")
	assert.False(t, inbox[0].Read)

	// AND: the days are back
	assert.True(t, e.remaining(t, "alice").Equal(generic.Days(30)))
}

func TestRequestAbsence_OverBudgetWritesNothing(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	e.addEmployee(t, "bob", employee.RoleEmployee, intPtr(3))

	_, err := e.svc.RequestAbsence(e.ctx, company, "bob", vacation("2024-06-03", "2024-06-07"), nil)

	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ErrorIs(t, err, generic.ErrValidation)

	list, err := e.svc.List(e.ctx, absence.Filter{CompanyID: company, UserID: "bob"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRequestAbsence_PlannedDaysCountAgainstBudget(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	e.addEmployee(t, "bob", employee.RoleEmployee, intPtr(7))

	_, err := e.svc.RequestAbsence(e.ctx, company, "bob", vacation("2024-06-03", "2024-06-07"), nil)
	require.NoError(t, err)

	// 5 planned, 2 remaining: a 3-day request no longer fits
	_, err = e.svc.RequestAbsence(e.ctx, company, "bob", vacation("2024-07-01", "2024-07-03"), nil)
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = e.svc.RequestAbsence(e.ctx, company, "bob", vacation("2024-07-01", "2024-07-02"), nil)
	assert.NoError(t, err)
}

func TestRequestAbsence_RemoteAbroadNeedsDestination(t *testing.T) {
	e := newEnv(t, "2024-05-20")

	req := absence.Request{Type: absence.TypeWorkRemoteAbroad, StartDate: "2024-06-03", EndDate: "2024-06-07"}
	_, err := e.svc.RequestAbsence(e.ctx, company, "alice", req, nil)
	assert.ErrorIs(t, err, generic.ErrValidation)

	req.DestinationCountry = " PT "
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", req, nil)
	require.NoError(t, err)
	a, err := e.svc.Get(e.ctx, company, id)
	require.NoError(t, err)
	assert.Equal(t, "PT", a.DestinationCountry)
}

func TestRequestAbsence_NotIdempotent(t *testing.T) {
	e := newEnv(t, "2024-05-20")

	id1, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	require.NoError(t, err)
	id2, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.True(t, e.remaining(t, "alice").Equal(generic.Days(26)))
}

func TestRequestAbsence_UnknownEmployee(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	_, err := e.svc.RequestAbsence(e.ctx, "other-company", "alice", vacation("2024-06-03", "2024-06-04"), nil)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRequestAbsence_UploadsCertificate(t *testing.T) {
	e := newEnv(t, "2024-05-20")

	file := &absence.Attachment{Filename: "note.pdf", ContentType: "application/pdf", Size: 4, Content: strings.NewReader("%PDF")}
	req := absence.Request{Type: absence.TypeSick, StartDate: "2024-05-20", EndDate: "2024-05-21"}

	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", req, file)
	require.NoError(t, err)

	a, err := e.svc.Get(e.ctx, company, id)
	require.NoError(t, err)
	key := storage.CertificateKey(company, "alice", id, "note.pdf")
	assert.Equal(t, absence.DefaultCertificateBaseURL+key, a.CertificateURL)

	rc, err := e.files.Get(e.ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body))
}

func TestRequestAbsence_CertificateOnlyForSickTypes(t *testing.T) {
	e := newEnv(t, "2024-05-20")

	tests := []struct {
		name string
		req  absence.Request
	}{
		{"vacation", vacation("2024-06-03", "2024-06-07")},
		{"business trip", absence.Request{Type: absence.TypeBusinessTrip, StartDate: "2024-06-03", EndDate: "2024-06-04"}},
		{"remote abroad", absence.Request{Type: absence.TypeWorkRemoteAbroad, StartDate: "2024-06-03", EndDate: "2024-06-04", DestinationCountry: "PT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: a file attached to a non-sick absence
			file := &absence.Attachment{Filename: "x.pdf", Size: 1, Content: strings.NewReader("x")}

			// WHEN: it is requested through the service
			_, err := e.svc.RequestAbsence(e.ctx, company, "alice", tt.req, file)

			// THEN: it is rejected before anything is stored
			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "certificate", ve.Field)
			assert.Equal(t, 0, e.files.Len())
		})
	}

	list, err := e.svc.List(e.ctx, absence.Filter{CompanyID: company})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRequestAbsence_FailedWriteRemovesUpload(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	e.store.InjectConflicts(100)

	file := &absence.Attachment{Filename: "x.pdf", Size: 1, Content: strings.NewReader("x")}
	req := absence.Request{Type: absence.TypeSickChild, StartDate: "2024-05-20", EndDate: "2024-05-21"}
	_, err := e.svc.RequestAbsence(e.ctx, company, "alice", req, file)

	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	assert.Equal(t, 0, e.files.Len())
}

func TestRequestAbsence_UploadFailureAborts(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	e.svc.Files = failingFiles{e.files}

	file := &absence.Attachment{Filename: "x.pdf", Size: 1, Content: strings.NewReader("x")}
	req := absence.Request{Type: absence.TypeSick, StartDate: "2024-05-20", EndDate: "2024-05-20"}
	_, err := e.svc.RequestAbsence(e.ctx, company, "alice", req, file)
	require.Error(t, err)

	list, err := e.svc.List(e.ctx, absence.Filter{CompanyID: company})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRequestAbsence_RetriesConflicts(t *testing.T) {
	e := newEnv(t, "2024-05-20")

	// GIVEN: the first two writes lose an optimistic race
	e.store.InjectConflicts(2)

	// WHEN/THEN: the third attempt goes through
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	require.NoError(t, err)
	_, err = e.svc.Get(e.ctx, company, id)
	assert.NoError(t, err)
}

func TestRequestAbsence_GivesUpAfterRetries(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	e.store.InjectConflicts(100)

	_, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
}

func TestRequestAbsence_ConcurrentRequestsCannotOverspend(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	e.addEmployee(t, "bob", employee.RoleEmployee, intPtr(5))

	// GIVEN: ten concurrent 1-day requests against a 5-day budget
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.svc.RequestAbsence(e.ctx, company, "bob", vacation("2024-06-03", "2024-06-03"), nil); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// THEN: exactly the budget was granted
	assert.Equal(t, 5, succeeded)
	assert.True(t, e.remaining(t, "bob").IsZero())
}

// =============================================================================
// REVIEW
// =============================================================================

func TestApprove_NotifiesRequester(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-07"), nil)
	require.NoError(t, err)

	a, err := e.svc.Approve(e.ctx, company, id, "hr")
	require.NoError(t, err)

	assert.Equal(t, absence.StatusApproved, a.Status)
	assert.Equal(t, "hr", a.ApprovedBy)
	assert.NotZero(t, a.ApprovedAt)
	assert.Equal(t, a.ApprovedAt, a.UpdatedAt)

	inbox, err := e.store.ListNotifications(e.ctx, company, "alice")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, notify.TypeSuccess, inbox[0].Type)
	assert.Equal(t, notify.CategoryAbsence, inbox[0].Category)
	assert.Equal(t, "Your vacation starting 2024-06-03 has been approved.", inbox[0].Message)
	assert.Equal(t, "/absences/"+id, inbox[0].Link)

	// approved days move from planned to taken
	ent, err := e.svc.Entitlement(e.ctx, company, "alice")
	require.NoError(t, err)
	assert.True(t, ent.VacationTaken.Equal(generic.Days(5)))
	assert.True(t, ent.VacationPlanned.IsZero())
	assert.True(t, ent.VacationRemaining.Equal(generic.Days(25)))
}

func TestReview_TerminalStatesAreFinal(t *testing.T) {
	e := newEnv(t, "2024-05-20")

	approved, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	require.NoError(t, err)
	_, err = e.svc.Approve(e.ctx, company, approved, "hr")
	require.NoError(t, err)

	rejected, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-07-01", "2024-07-02"), nil)
	require.NoError(t, err)
	_, err = e.svc.Reject(e.ctx, company, rejected, "hr", "no")
	require.NoError(t, err)

	cancelled, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-08-01", "2024-08-02"), nil)
	require.NoError(t, err)
	_, err = e.svc.Cancel(e.ctx, company, cancelled, "alice")
	require.NoError(t, err)

	for _, id := range []string{approved, rejected, cancelled} {
		before, err := e.svc.Get(e.ctx, company, id)
		require.NoError(t, err)

		_, err = e.svc.Approve(e.ctx, company, id, "hr")
		assert.ErrorIs(t, err, generic.ErrState, "approve %s", before.Status)
		_, err = e.svc.Reject(e.ctx, company, id, "hr", "late")
		assert.ErrorIs(t, err, generic.ErrState, "reject %s", before.Status)
		_, err = e.svc.Cancel(e.ctx, company, id, "alice")
		assert.ErrorIs(t, err, generic.ErrState, "cancel %s", before.Status)

		after, err := e.svc.Get(e.ctx, company, id)
		require.NoError(t, err)
		assert.Equal(t, *before, *after)
	}
}

func TestCancel_OwnerOnly(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	require.NoError(t, err)

	_, err = e.svc.Cancel(e.ctx, company, id, "hr")
	assert.ErrorIs(t, err, generic.ErrForbidden)

	a, err := e.svc.Cancel(e.ctx, company, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, absence.StatusCancelled, a.Status)

	// no notification on cancel
	assert.Empty(t, e.store.AllNotifications())
	assert.True(t, e.remaining(t, "alice").Equal(generic.Days(30)))
}

func TestCancel_ApprovedFailsWithStateError(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	require.NoError(t, err)
	_, err = e.svc.Approve(e.ctx, company, id, "hr")
	require.NoError(t, err)

	_, err = e.svc.Cancel(e.ctx, company, id, "alice")

	var se *generic.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, id, se.ID)
	assert.Equal(t, string(absence.StatusApproved), se.Status)
}

func TestReview_OtherCompanyIsNotFound(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	require.NoError(t, err)

	_, err = e.svc.Approve(e.ctx, "globex", id, "hr")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestReview_ConcurrentReviewersDecideOnce(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = e.svc.Approve(e.ctx, company, id, "hr") }()
	go func() { defer wg.Done(); _, errs[1] = e.svc.Reject(e.ctx, company, id, "hr", "no") }()
	wg.Wait()

	// exactly one reviewer wins, the other sees a StateError
	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, generic.ErrState)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, e.store.AllNotifications(), 1)
}

func TestReview_NotificationFailureKeepsTransition(t *testing.T) {
	e := newEnv(t, "2024-05-20")
	id, err := e.svc.RequestAbsence(e.ctx, company, "alice", vacation("2024-06-03", "2024-06-04"), nil)
	require.NoError(t, err)

	e.svc.Notifier.Store = brokenInbox{}

	a, err := e.svc.Approve(e.ctx, company, id, "hr")
	require.NoError(t, err)
	assert.Equal(t, absence.StatusApproved, a.Status)
}

type brokenInbox struct{ notify.Store }

func (brokenInbox) CreateNotification(context.Context, notify.Notification) error {
	return errors.New("inbox down")
}
