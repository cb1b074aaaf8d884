package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gear-lending-api/internal/models"
	"gear-lending-api/internal/notify"
	"gear-lending-api/internal/settings"
)

type fakeMetrics struct {
	mu            sync.Mutex
	created       map[string]int
	conflicts     map[string]int
	compensations map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		created:       map[string]int{},
		conflicts:     map[string]int{},
		compensations: map[string]int{},
	}
}

func (m *fakeMetrics) BookingCreated(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created[kind]++
}

func (m *fakeMetrics) ConflictDetected(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[source]++
}

func (m *fakeMetrics) CompensationRun(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensations[outcome]++
}

func newTestService(store *fakeStore) (*Service, *fakeNotifier, *fakeMetrics) {
	notifier := newFakeNotifier()
	metrics := newFakeMetrics()
	svc := NewService(store, NewValidator(settings.Static(testSettings()), store), notifier, metrics).
		WithClock(func() time.Time { return testNow })
	return svc, notifier, metrics
}

var (
	student = Principal{ID: 5, Role: models.RoleStudent}
	staff   = Principal{ID: 2, Role: models.RoleStaff}
)

func TestSubmitReservationStudent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addEquipment(1, 10, models.EquipmentAvailable)
	svc, notifier, metrics := newTestService(store)

	r, checked, err := svc.SubmitReservation(ctx, student, models.CreateReservationRequest{
		EquipmentID: 1,
		StartDate:   "2026-03-03",
		EndDate:     "2026-03-04",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, r.Status)
	assert.NotEmpty(t, r.Reference)
	assert.Nil(t, r.ApprovedBy)
	assert.Equal(t, 2, checked.Days)
	assert.Equal(t, 1, metrics.created["reservation"])
	require.Len(t, notifier.messages(notify.ChannelBookings), 1)
	assert.Contains(t, notifier.messages(notify.ChannelBookings)[0], r.Reference)

	stored, err := store.ReservationByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, stored.Status)
}

func TestSubmitReservationStaffSelfService(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addEquipment(1, 10, models.EquipmentAvailable)
	svc, _, _ := newTestService(store)

	r, _, err := svc.SubmitReservation(ctx, staff, models.CreateReservationRequest{
		EquipmentID: 1,
		StartDate:   "2026-03-03",
		EndDate:     "2026-03-04",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReservationApproved, r.Status)
	require.NotNil(t, r.ApprovedBy)
	assert.Equal(t, staff.ID, *r.ApprovedBy)
	require.NotNil(t, r.ApprovedAt)

	require.Len(t, store.activities, 1)
	entry := store.activities[0]
	assert.Equal(t, models.ActionApprove, entry.Action)
	assert.Equal(t, models.TargetReservation, entry.TargetKind)
	assert.True(t, entry.SelfAction)
}

func TestSubmitLoanStaffMarksEquipmentBorrowed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addEquipment(1, 10, models.EquipmentAvailable)
	svc, _, metrics := newTestService(store)

	l, _, err := svc.SubmitLoan(ctx, staff, models.CreateLoanRequest{
		EquipmentID: 1,
		StartDate:   "2026-03-02",
		EndDate:     "2026-03-03",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, l.Status)
	assert.Equal(t, 1, metrics.created["loan"])

	eq, err := store.EquipmentByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.EquipmentBorrowed, eq.Status)
}

func TestSubmitReservationTypeConflict(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addEquipment(1, 10, models.EquipmentAvailable)
	store.addEquipment(2, 10, models.EquipmentAvailable)
	store.reservations[1] = &models.Reservation{
		ID: 1, UserID: student.ID, EquipmentID: 1,
		StartDate: day("2026-03-10"), EndDate: day("2026-03-11"),
		Status: models.ReservationApproved,
	}
	svc, _, metrics := newTestService(store)

	// A different unit of the same category is still blocked.
	_, _, err := svc.SubmitReservation(ctx, student, models.CreateReservationRequest{
		EquipmentID: 2,
		StartDate:   "2026-03-20",
		EndDate:     "2026-03-20",
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "you already hold a booking for equipment of this type", conflict.Message)
	assert.False(t, conflict.Storage)
	assert.Equal(t, 1, metrics.conflicts["app"])
}

func TestSubmitReservationTimeConflict(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addEquipment(1, 10, models.EquipmentAvailable)
	store.reservations[1] = &models.Reservation{
		ID: 1, UserID: 9, EquipmentID: 1,
		StartDate: day("2026-03-10"), EndDate: day("2026-03-12"),
		Status: models.ReservationApproved,
	}
	svc, notifier, metrics := newTestService(store)

	// End touching the existing booking's start still conflicts.
	_, _, err := svc.SubmitReservation(ctx, student, models.CreateReservationRequest{
		EquipmentID: 1,
		StartDate:   "2026-03-09",
		EndDate:     "2026-03-10",
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "this equipment is unavailable for the requested dates", conflict.Message)
	assert.Equal(t, 1, metrics.conflicts["app"])
	assert.Len(t, notifier.messages(notify.ChannelOps), 1)
}

func TestSubmitReservationStorageConflict(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addEquipment(1, 10, models.EquipmentAvailable)
	store.createReservationErr = &ConflictError{Message: "overlap constraint", Storage: true}
	svc, notifier, metrics := newTestService(store)

	_, _, err := svc.SubmitReservation(ctx, student, models.CreateReservationRequest{
		EquipmentID: 1,
		StartDate:   "2026-03-03",
		EndDate:     "2026-03-04",
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.Storage)
	assert.Equal(t, 1, metrics.conflicts["storage"])
	require.Len(t, notifier.messages(notify.ChannelOps), 1)
	assert.Contains(t, notifier.messages(notify.ChannelOps)[0], "storage constraint")
}

func TestSubmitReservationAnonymousForbidden(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newFakeStore())

	_, _, err := svc.SubmitReservation(ctx, Principal{}, models.CreateReservationRequest{
		EquipmentID: 1,
		StartDate:   "2026-03-03",
		EndDate:     "2026-03-04",
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestApproveReservationsBulkPartialSuccess(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addEquipment(1, 10, models.EquipmentAvailable)
	store.reservations[1] = &models.Reservation{
		ID: 1, UserID: 5, EquipmentID: 1, Reference: "a",
		StartDate: day("2026-03-10"), EndDate: day("2026-03-11"),
		Status: models.ReservationPending,
	}
	store.reservations[2] = &models.Reservation{
		ID: 2, UserID: 6, EquipmentID: 1, Reference: "b",
		StartDate: day("2026-03-20"), EndDate: day("2026-03-21"),
		Status: models.ReservationRejected,
	}
	svc, _, _ := newTestService(store)

	results, err := svc.ApproveReservations(ctx, staff, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Error, "cannot transition")
	assert.False(t, results[2].OK)

	r, err := store.ReservationByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationApproved, r.Status)
	require.NotNil(t, r.ApprovedBy)
	assert.Equal(t, staff.ID, *r.ApprovedBy)

	// The rejected one was not touched.
	r2, err := store.ReservationByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationRejected, r2.Status)
}

func TestApproveReservationsRequiresStaff(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newFakeStore())

	_, err := svc.ApproveReservations(ctx, student, []int64{1})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRejectReservationRequiresReason(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.reservations[1] = &models.Reservation{
		ID: 1, UserID: 5, EquipmentID: 1, Reference: "a",
		StartDate: day("2026-03-10"), EndDate: day("2026-03-11"),
		Status: models.ReservationPending,
	}
	svc, _, _ := newTestService(store)

	err := svc.RejectReservation(ctx, staff, 1, "")
	requireRule(t, err, "reason_required")

	err = svc.RejectReservation(ctx, staff, 1, "equipment needed for a course")
	require.NoError(t, err)

	r, err := store.ReservationByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationRejected, r.Status)
	require.NotNil(t, r.RejectionReason)
	assert.Equal(t, "equipment needed for a course", *r.RejectionReason)
}

func TestRejectReservationsBulkReasonOptional(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.reservations[1] = &models.Reservation{
		ID: 1, UserID: 5, EquipmentID: 1, Reference: "a",
		StartDate: day("2026-03-10"), EndDate: day("2026-03-11"),
		Status: models.ReservationPending,
	}
	svc, _, _ := newTestService(store)

	results, err := svc.RejectReservations(ctx, staff, []int64{1}, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)

	r, err := store.ReservationByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationRejected, r.Status)
	assert.Nil(t, r.RejectionReason)
}

func TestApproveLoansMarksEquipmentBorrowed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addEquipment(1, 10, models.EquipmentAvailable)
	store.loans[1] = &models.Loan{
		ID: 1, UserID: 5, EquipmentID: 1, Reference: "l",
		StartDate: day("2026-03-02"), EndDate: day("2026-03-03"),
		Status: models.LoanPending,
	}
	svc, _, _ := newTestService(store)

	results, err := svc.ApproveLoans(ctx, staff, []int64{1})
	require.NoError(t, err)
	require.True(t, results[0].OK)

	l, err := store.LoanByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, l.Status)

	eq, err := store.EquipmentByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.EquipmentBorrowed, eq.Status)
}

func TestCancelReservation(t *testing.T) {
	ctx := context.Background()

	seed := func() *fakeStore {
		store := newFakeStore()
		store.reservations[1] = &models.Reservation{
			ID: 1, UserID: student.ID, EquipmentID: 1, Reference: "a",
			StartDate: day("2026-03-10"), EndDate: day("2026-03-11"),
			Status: models.ReservationPending,
		}
		return store
	}

	t.Run("owner cancels pending", func(t *testing.T) {
		store := seed()
		svc, notifier, _ := newTestService(store)
		require.NoError(t, svc.CancelReservation(ctx, student, 1))

		r, err := store.ReservationByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationCancelled, r.Status)
		assert.Len(t, notifier.messages(notify.ChannelBookings), 1)
		assert.Empty(t, store.activities)
	})

	t.Run("staff cancels and is audited", func(t *testing.T) {
		store := seed()
		svc, _, _ := newTestService(store)
		require.NoError(t, svc.CancelReservation(ctx, staff, 1))
		require.Len(t, store.activities, 1)
		assert.Equal(t, models.ActionCancel, store.activities[0].Action)
	})

	t.Run("other user forbidden", func(t *testing.T) {
		store := seed()
		svc, _, _ := newTestService(store)
		other := Principal{ID: 99, Role: models.RoleStudent}
		assert.ErrorIs(t, svc.CancelReservation(ctx, other, 1), ErrForbidden)
	})

	t.Run("completed cannot be cancelled", func(t *testing.T) {
		store := seed()
		store.reservations[1].Status = models.ReservationCompleted
		svc, _, _ := newTestService(store)
		var bad *InvalidTransitionError
		assert.ErrorAs(t, svc.CancelReservation(ctx, student, 1), &bad)
	})

	t.Run("missing reservation", func(t *testing.T) {
		svc, _, _ := newTestService(newFakeStore())
		assert.ErrorIs(t, svc.CancelReservation(ctx, student, 42), ErrNotFound)
	})
}

func TestProcessReturn(t *testing.T) {
	ctx := context.Background()

	seed := func() *fakeStore {
		store := newFakeStore()
		store.addEquipment(1, 10, models.EquipmentBorrowed)
		store.loans[1] = &models.Loan{
			ID: 1, UserID: 5, EquipmentID: 1, Reference: "l",
			StartDate: day("2026-03-01"), EndDate: day("2026-03-02"),
			Status: models.LoanApproved,
		}
		return store
	}

	t.Run("good condition frees the equipment", func(t *testing.T) {
		store := seed()
		svc, notifier, _ := newTestService(store)

		l, err := svc.ProcessReturn(ctx, staff, 1, models.ReturnRequest{Condition: models.ConditionGood})
		require.NoError(t, err)
		assert.Equal(t, models.LoanReturned, l.Status)
		require.NotNil(t, l.ReturnedAt)
		assert.Equal(t, testNow, *l.ReturnedAt)

		eq, err := store.EquipmentByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.EquipmentAvailable, eq.Status)
		assert.Len(t, notifier.messages(notify.ChannelReturns), 1)
		assert.Empty(t, notifier.messages(notify.ChannelMaintenance))
	})

	t.Run("damaged condition routes to maintenance", func(t *testing.T) {
		store := seed()
		svc, notifier, _ := newTestService(store)

		l, err := svc.ProcessReturn(ctx, staff, 1, models.ReturnRequest{
			Condition: models.ConditionDamaged,
			Notes:     "cracked lens hood",
		})
		require.NoError(t, err)
		require.NotNil(t, l.ReturnNotes)
		assert.Equal(t, "cracked lens hood", *l.ReturnNotes)

		eq, err := store.EquipmentByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.EquipmentMaintenance, eq.Status)
		assert.Len(t, notifier.messages(notify.ChannelMaintenance), 1)
		assert.Empty(t, notifier.messages(notify.ChannelReturns))
	})

	t.Run("equipment write failure does not fail the return", func(t *testing.T) {
		store := seed()
		store.setEquipmentStatusErr = assert.AnError
		svc, _, _ := newTestService(store)

		l, err := svc.ProcessReturn(ctx, staff, 1, models.ReturnRequest{Condition: models.ConditionGood})
		require.NoError(t, err)
		assert.Equal(t, models.LoanReturned, l.Status)

		stored, err := store.LoanByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.LoanReturned, stored.Status)
	})

	t.Run("invalid condition", func(t *testing.T) {
		svc, _, _ := newTestService(seed())
		_, err := svc.ProcessReturn(ctx, staff, 1, models.ReturnRequest{Condition: "pristine"})
		requireRule(t, err, "condition")
	})

	t.Run("already returned", func(t *testing.T) {
		store := seed()
		store.loans[1].Status = models.LoanReturned
		svc, _, _ := newTestService(store)
		var bad *InvalidTransitionError
		_, err := svc.ProcessReturn(ctx, staff, 1, models.ReturnRequest{Condition: models.ConditionGood})
		assert.ErrorAs(t, err, &bad)
	})

	t.Run("non-staff forbidden", func(t *testing.T) {
		svc, _, _ := newTestService(seed())
		_, err := svc.ProcessReturn(ctx, student, 1, models.ReturnRequest{Condition: models.ConditionGood})
		assert.ErrorIs(t, err, ErrForbidden)
	})
}
