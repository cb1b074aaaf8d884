package booking

import (
	"context"
	"sync"
	"time"

	"gear-lending-api/internal/models"
	"gear-lending-api/internal/notify"
)

// fakeStore is an in-memory Store for unit tests, with per-method error
// injection to exercise failure paths.
type fakeStore struct {
	mu           sync.Mutex
	equipment    map[int64]models.Equipment
	reservations map[int64]*models.Reservation
	loans        map[int64]*models.Loan
	activities   []models.StaffActivity

	nextReservationID int64
	nextLoanID        int64

	createReservationErr   error
	createLoanErr          error
	completeReservationErr error
	setEquipmentStatusErr  error
	deleteLoanErr          error
	reopenReservationErr   error
	markEquipmentBorrowedErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		equipment:    map[int64]models.Equipment{},
		reservations: map[int64]*models.Reservation{},
		loans:        map[int64]*models.Loan{},
	}
}

func (f *fakeStore) addEquipment(id, categoryID int64, status models.EquipmentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.equipment[id] = models.Equipment{
		ID: id, Name: "unit", Number: "N", CategoryID: categoryID, Status: status,
	}
}

func (f *fakeStore) EquipmentByID(_ context.Context, id int64) (models.Equipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.equipment[id]
	if !ok {
		return models.Equipment{}, ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) SetEquipmentStatus(_ context.Context, id int64, status models.EquipmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setEquipmentStatusErr != nil {
		return f.setEquipmentStatusErr
	}
	if f.markEquipmentBorrowedErr != nil && status == models.EquipmentBorrowed {
		return f.markEquipmentBorrowedErr
	}
	e, ok := f.equipment[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	f.equipment[id] = e
	return nil
}

func isActiveReservation(s models.ReservationStatus) bool {
	for _, a := range models.ActiveReservationStatuses {
		if a == s {
			return true
		}
	}
	return false
}

func isActiveLoan(s models.LoanStatus) bool {
	for _, a := range models.ActiveLoanStatuses {
		if a == s {
			return true
		}
	}
	return false
}

func (f *fakeStore) ActiveReservationsForEquipment(_ context.Context, equipmentID int64) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reservation
	for _, r := range f.reservations {
		if r.EquipmentID == equipmentID && isActiveReservation(r.Status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveLoansForEquipment(_ context.Context, equipmentID int64) ([]models.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Loan
	for _, l := range f.loans {
		if l.EquipmentID == equipmentID && isActiveLoan(l.Status) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeStore) UserHoldsCategory(_ context.Context, userID, categoryID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.UserID == userID && isActiveReservation(r.Status) && f.equipment[r.EquipmentID].CategoryID == categoryID {
			return true, nil
		}
	}
	for _, l := range f.loans {
		if l.UserID == userID && isActiveLoan(l.Status) && f.equipment[l.EquipmentID].CategoryID == categoryID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CountActiveReservations(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.reservations {
		if r.UserID == userID && isActiveReservation(r.Status) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountActiveLoans(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, l := range f.loans {
		if l.UserID == userID && isActiveLoan(l.Status) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateReservation(_ context.Context, r *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createReservationErr != nil {
		return f.createReservationErr
	}
	f.nextReservationID++
	r.ID = f.nextReservationID
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	f.reservations[r.ID] = &cp
	return nil
}

func (f *fakeStore) CreateLoan(_ context.Context, l *models.Loan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createLoanErr != nil {
		return f.createLoanErr
	}
	f.nextLoanID++
	l.ID = f.nextLoanID
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	cp := *l
	f.loans[l.ID] = &cp
	return nil
}

func (f *fakeStore) ReservationByID(_ context.Context, id int64) (models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return models.Reservation{}, ErrNotFound
	}
	return *r, nil
}

func (f *fakeStore) LoanByID(_ context.Context, id int64) (models.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[id]
	if !ok {
		return models.Loan{}, ErrNotFound
	}
	return *l, nil
}

func (f *fakeStore) SetReservationStatus(_ context.Context, id int64, from, to models.ReservationStatus, actorID *int64, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok || r.Status != from {
		return ErrNotFound
	}
	r.Status = to
	if actorID != nil && (to == models.ReservationApproved || to == models.ReservationReady) {
		r.ApprovedBy = actorID
	}
	if reason != nil {
		r.RejectionReason = reason
	}
	return nil
}

func (f *fakeStore) SetLoanStatus(_ context.Context, id int64, from, to models.LoanStatus, actorID *int64, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[id]
	if !ok || l.Status != from {
		return ErrNotFound
	}
	l.Status = to
	if actorID != nil && to == models.LoanApproved {
		l.ApprovedBy = actorID
	}
	if reason != nil {
		l.RejectionReason = reason
	}
	return nil
}

func (f *fakeStore) MarkLoanReturned(_ context.Context, id int64, at time.Time, condition models.ReturnCondition, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[id]
	if !ok || l.Status != models.LoanApproved {
		return ErrNotFound
	}
	l.Status = models.LoanReturned
	l.ReturnedAt = &at
	l.ReturnCondition = &condition
	if notes != "" {
		l.ReturnNotes = &notes
	}
	return nil
}

func (f *fakeStore) CompleteReservation(_ context.Context, id, loanID, staffID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeReservationErr != nil {
		return f.completeReservationErr
	}
	r, ok := f.reservations[id]
	if !ok || (r.Status != models.ReservationReady && r.Status != models.ReservationApproved) {
		return ErrNotFound
	}
	r.Status = models.ReservationCompleted
	r.LoanID = &loanID
	r.CompletedBy = &staffID
	r.CompletedAt = &at
	return nil
}

func (f *fakeStore) ReopenReservation(_ context.Context, id int64, prior models.ReservationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reopenReservationErr != nil {
		return f.reopenReservationErr
	}
	r, ok := f.reservations[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = prior
	r.LoanID = nil
	r.CompletedBy = nil
	r.CompletedAt = nil
	return nil
}

func (f *fakeStore) DeleteLoan(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteLoanErr != nil {
		return f.deleteLoanErr
	}
	if _, ok := f.loans[id]; !ok {
		return ErrNotFound
	}
	delete(f.loans, id)
	return nil
}

func (f *fakeStore) RecordActivity(_ context.Context, entry models.StaffActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, entry)
	return nil
}

// fakeNotifier records every message per channel.
type fakeNotifier struct {
	mu   sync.Mutex
	sent map[notify.Channel][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: map[notify.Channel][]string{}}
}

func (n *fakeNotifier) Send(_ context.Context, ch notify.Channel, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[ch] = append(n.sent[ch], message)
	return nil
}

func (n *fakeNotifier) messages(ch notify.Channel) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent[ch]...)
}
