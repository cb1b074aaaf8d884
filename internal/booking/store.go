package booking

import (
	"context"
	"time"

	"gear-lending-api/internal/models"
)

// Principal is the authenticated requester behind a booking operation.
type Principal struct {
	ID   int64
	Role string
}

// Staff reports whether the principal sits in the staff tier or above.
func (p Principal) Staff() bool {
	return models.TierAtLeast(p.Role, models.TierStaff)
}

// Store is the data-store collaborator for the booking core. Implementations
// back it with Postgres in production and an in-memory fake in tests.
//
// Status-changing methods are guarded: they match both id and the expected
// current status, and return ErrNotFound when no row matched, so a lost race
// surfaces as an expected error rather than a silent double transition.
type Store interface {
	EquipmentByID(ctx context.Context, id int64) (models.Equipment, error)
	SetEquipmentStatus(ctx context.Context, id int64, status models.EquipmentStatus) error

	// Conflict-check reads over non-terminal bookings.
	ActiveReservationsForEquipment(ctx context.Context, equipmentID int64) ([]models.Reservation, error)
	ActiveLoansForEquipment(ctx context.Context, equipmentID int64) ([]models.Loan, error)
	UserHoldsCategory(ctx context.Context, userID, categoryID int64) (bool, error)
	CountActiveReservations(ctx context.Context, userID int64) (int, error)
	CountActiveLoans(ctx context.Context, userID int64) (int, error)

	CreateReservation(ctx context.Context, r *models.Reservation) error
	CreateLoan(ctx context.Context, l *models.Loan) error
	ReservationByID(ctx context.Context, id int64) (models.Reservation, error)
	LoanByID(ctx context.Context, id int64) (models.Loan, error)

	SetReservationStatus(ctx context.Context, id int64, from, to models.ReservationStatus, actorID *int64, reason *string) error
	SetLoanStatus(ctx context.Context, id int64, from, to models.LoanStatus, actorID *int64, reason *string) error

	MarkLoanReturned(ctx context.Context, id int64, at time.Time, condition models.ReturnCondition, notes string) error

	// CompleteReservation links a reservation to the loan it was converted
	// into; ReopenReservation is its compensating inverse.
	CompleteReservation(ctx context.Context, id, loanID, staffID int64, at time.Time) error
	ReopenReservation(ctx context.Context, id int64, prior models.ReservationStatus) error
	DeleteLoan(ctx context.Context, id int64) error

	RecordActivity(ctx context.Context, entry models.StaffActivity) error
}

// Metrics receives domain counters from the service. The HTTP layer plugs
// in a Prometheus-backed implementation.
type Metrics interface {
	BookingCreated(kind string)
	ConflictDetected(source string) // "app" or "storage"
	CompensationRun(outcome string) // "reverted" or "failed"
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) BookingCreated(string)   {}
func (NopMetrics) ConflictDetected(string) {}
func (NopMetrics) CompensationRun(string)  {}
