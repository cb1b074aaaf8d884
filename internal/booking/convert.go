package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gear-lending-api/internal/models"
	"gear-lending-api/internal/notify"
)

// sagaStep is one write in a multi-step sequence. Each write is a separate
// network call with no cross-call transaction, so partial failure is a
// first-class expected case: run is the forward action, compensate undoes
// it when a later step fails.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error // nil when nothing to undo
}

// runSaga executes steps in order. On failure it compensates the completed
// steps in reverse order; if any compensation itself fails the state needs
// manual operator intervention and the returned *CompensationError names
// the affected records.
func (s *Service) runSaga(ctx context.Context, steps []sagaStep, reservationID int64, loanID func() int64) error {
	done := make([]sagaStep, 0, len(steps))
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			var compErrs []error
			for i := len(done) - 1; i >= 0; i-- {
				if done[i].compensate == nil {
					continue
				}
				if cerr := done[i].compensate(ctx); cerr != nil {
					compErrs = append(compErrs, fmt.Errorf("compensate %s: %w", done[i].name, cerr))
				}
			}
			if len(compErrs) > 0 {
				s.metrics.CompensationRun("failed")
				return &CompensationError{
					Step:          step.name,
					Cause:         err,
					Compensations: compErrs,
					ReservationID: reservationID,
					LoanID:        loanID(),
				}
			}
			if len(done) > 0 {
				s.metrics.CompensationRun("reverted")
				s.logger.Printf("conversion of reservation %d rolled back after step %s: %v", reservationID, step.name, err)
			}
			return fmt.Errorf("convert reservation %d: step %s: %w", reservationID, step.name, err)
		}
		done = append(done, step)
	}
	return nil
}

// ConvertReservation materializes a ready (or approved) reservation into a
// pre-approved loan: (1) create the loan, (2) complete the reservation and
// link the loan, (3) mark the equipment borrowed. Steps (1) and (2) are
// compensated on later failure; step (3) has nothing after it.
func (s *Service) ConvertReservation(ctx context.Context, p Principal, reservationID int64) (models.Loan, error) {
	if !p.Staff() {
		return models.Loan{}, ErrForbidden
	}

	r, err := s.store.ReservationByID(ctx, reservationID)
	if err != nil {
		return models.Loan{}, err
	}
	if r.Status != models.ReservationReady && r.Status != models.ReservationApproved {
		return models.Loan{}, &InvalidTransitionError{
			Kind: "reservation", From: string(r.Status), To: string(models.ReservationCompleted),
		}
	}
	priorStatus := r.Status

	now := s.now()
	actor := p.ID
	loan := models.Loan{
		Reference:   uuid.NewString(),
		UserID:      r.UserID,
		EquipmentID: r.EquipmentID,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Status:      models.LoanApproved,
		ApprovedBy:  &actor,
		ApprovedAt:  &now,
	}

	steps := []sagaStep{
		{
			name: "create_loan",
			run: func(ctx context.Context) error {
				return s.store.CreateLoan(ctx, &loan)
			},
			compensate: func(ctx context.Context) error {
				return s.store.DeleteLoan(ctx, loan.ID)
			},
		},
		{
			name: "complete_reservation",
			run: func(ctx context.Context) error {
				return s.store.CompleteReservation(ctx, r.ID, loan.ID, p.ID, now)
			},
			compensate: func(ctx context.Context) error {
				return s.store.ReopenReservation(ctx, r.ID, priorStatus)
			},
		},
		{
			name: "mark_equipment_borrowed",
			run: func(ctx context.Context) error {
				return s.store.SetEquipmentStatus(ctx, r.EquipmentID, models.EquipmentBorrowed)
			},
		},
	}

	if err := s.runSaga(ctx, steps, r.ID, func() int64 { return loan.ID }); err != nil {
		return models.Loan{}, err
	}

	s.recordActivity(ctx, p, models.ActionConvert, models.TargetReservation, r.ID, &r.UserID,
		fmt.Sprintf("loan_id=%d", loan.ID))
	notify.Fire(ctx, s.notifier, notify.ChannelBookings,
		fmt.Sprintf("reservation %s converted to loan %s", r.Reference, loan.Reference))
	return loan, nil
}
