package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gear-lending-api/internal/models"
	"gear-lending-api/internal/notify"
)

func seedReadyReservation(status models.ReservationStatus) *fakeStore {
	store := newFakeStore()
	store.addEquipment(1, 10, models.EquipmentAvailable)
	store.reservations[1] = &models.Reservation{
		ID: 1, UserID: 5, EquipmentID: 1, Reference: "res-1",
		StartDate: day("2026-03-02"), EndDate: day("2026-03-04"),
		Status: status,
	}
	return store
}

func TestConvertReservation(t *testing.T) {
	ctx := context.Background()
	store := seedReadyReservation(models.ReservationReady)
	svc, notifier, _ := newTestService(store)

	loan, err := svc.ConvertReservation(ctx, staff, 1)
	require.NoError(t, err)

	assert.Equal(t, models.LoanApproved, loan.Status)
	assert.Equal(t, int64(5), loan.UserID)
	assert.Equal(t, day("2026-03-02"), loan.StartDate)
	assert.Equal(t, day("2026-03-04"), loan.EndDate)
	require.NotNil(t, loan.ApprovedBy)
	assert.Equal(t, staff.ID, *loan.ApprovedBy)

	r, err := store.ReservationByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCompleted, r.Status)
	require.NotNil(t, r.LoanID)
	assert.Equal(t, loan.ID, *r.LoanID)
	require.NotNil(t, r.CompletedBy)
	assert.Equal(t, staff.ID, *r.CompletedBy)

	eq, err := store.EquipmentByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.EquipmentBorrowed, eq.Status)

	require.Len(t, store.activities, 1)
	assert.Equal(t, models.ActionConvert, store.activities[0].Action)
	require.Len(t, notifier.messages(notify.ChannelBookings), 1)
	assert.Contains(t, notifier.messages(notify.ChannelBookings)[0], "converted")
}

func TestConvertReservationFromApproved(t *testing.T) {
	ctx := context.Background()
	store := seedReadyReservation(models.ReservationApproved)
	svc, _, _ := newTestService(store)

	_, err := svc.ConvertReservation(ctx, staff, 1)
	require.NoError(t, err)

	r, err := store.ReservationByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCompleted, r.Status)
}

func TestConvertReservationPendingRejected(t *testing.T) {
	ctx := context.Background()
	store := seedReadyReservation(models.ReservationPending)
	svc, _, _ := newTestService(store)

	_, err := svc.ConvertReservation(ctx, staff, 1)
	var bad *InvalidTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, string(models.ReservationPending), bad.From)
}

func TestConvertReservationRequiresStaff(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(seedReadyReservation(models.ReservationReady))

	_, err := svc.ConvertReservation(ctx, student, 1)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestConvertReservationRolledBackOnCompleteFailure(t *testing.T) {
	ctx := context.Background()
	store := seedReadyReservation(models.ReservationReady)
	store.completeReservationErr = assert.AnError
	svc, _, metrics := newTestService(store)

	_, err := svc.ConvertReservation(ctx, staff, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "complete_reservation")
	var comp *CompensationError
	assert.False(t, errors.As(err, &comp))

	// The created loan was deleted and the reservation kept its status.
	assert.Empty(t, store.loans)
	r, rerr := store.ReservationByID(ctx, 1)
	require.NoError(t, rerr)
	assert.Equal(t, models.ReservationReady, r.Status)
	assert.Nil(t, r.LoanID)

	assert.Equal(t, 1, metrics.compensations["reverted"])
	assert.Equal(t, 0, metrics.compensations["failed"])
	assert.Empty(t, store.activities)
}

func TestConvertReservationRolledBackOnEquipmentFailure(t *testing.T) {
	ctx := context.Background()
	store := seedReadyReservation(models.ReservationReady)
	store.markEquipmentBorrowedErr = assert.AnError
	svc, _, metrics := newTestService(store)

	_, err := svc.ConvertReservation(ctx, staff, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark_equipment_borrowed")

	// Both earlier steps were undone.
	assert.Empty(t, store.loans)
	r, rerr := store.ReservationByID(ctx, 1)
	require.NoError(t, rerr)
	assert.Equal(t, models.ReservationReady, r.Status)
	assert.Nil(t, r.LoanID)
	assert.Nil(t, r.CompletedBy)

	assert.Equal(t, 1, metrics.compensations["reverted"])
}

func TestConvertReservationCompensationFailure(t *testing.T) {
	ctx := context.Background()
	store := seedReadyReservation(models.ReservationReady)
	store.completeReservationErr = assert.AnError
	store.deleteLoanErr = assert.AnError
	svc, _, metrics := newTestService(store)

	_, err := svc.ConvertReservation(ctx, staff, 1)
	var comp *CompensationError
	require.ErrorAs(t, err, &comp)
	assert.Equal(t, "complete_reservation", comp.Step)
	assert.Equal(t, int64(1), comp.ReservationID)
	assert.NotZero(t, comp.LoanID)
	require.Len(t, comp.Compensations, 1)
	assert.Contains(t, comp.Compensations[0].Error(), "create_loan")

	assert.Equal(t, 1, metrics.compensations["failed"])
	// The orphaned loan is left for operator cleanup.
	assert.Len(t, store.loans, 1)
}
