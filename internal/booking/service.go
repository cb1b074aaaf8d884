package booking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"gear-lending-api/internal/models"
	"gear-lending-api/internal/notify"
)

// Service owns booking submissions and lifecycle transitions. Every
// state-changing operation is gated on the authenticated principal; all
// notification side effects are fire-and-forget.
type Service struct {
	store     Store
	checker   *Checker
	validator *Validator
	notifier  notify.Notifier
	metrics   Metrics
	logger    *log.Logger
	now       func() time.Time
}

func NewService(store Store, validator *Validator, notifier notify.Notifier, metrics Metrics) *Service {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Service{
		store:     store,
		checker:   NewChecker(store),
		validator: validator,
		notifier:  notifier,
		metrics:   metrics,
		logger:    log.Default(),
		now:       time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	if s.validator != nil {
		s.validator.Now = now
	}
	return s
}

// SubmitReservation validates and creates a forward-dated booking request.
// Staff and admin principals booking for themselves are auto-approved at
// creation; everyone else enters the pending queue.
func (s *Service) SubmitReservation(ctx context.Context, p Principal, req models.CreateReservationRequest) (models.Reservation, *Validated, error) {
	checked, err := s.precheck(ctx, p, Request{
		UserID:      p.ID,
		Role:        p.Role,
		EquipmentID: req.EquipmentID,
		Kind:        KindReservation,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		PickupTime:  req.PickupTime,
	})
	if err != nil {
		return models.Reservation{}, nil, err
	}

	r := models.Reservation{
		Reference:   uuid.NewString(),
		UserID:      p.ID,
		EquipmentID: req.EquipmentID,
		StartDate:   checked.Start,
		EndDate:     checked.End,
		Status:      models.ReservationPending,
	}
	selfService := p.Staff()
	if selfService {
		now := s.now()
		actor := p.ID
		r.Status = models.ReservationApproved
		r.ApprovedBy = &actor
		r.ApprovedAt = &now
	}

	if err := s.store.CreateReservation(ctx, &r); err != nil {
		return models.Reservation{}, nil, s.mapStorageConflict(ctx, err, "reservation", req.EquipmentID)
	}
	s.metrics.BookingCreated(string(KindReservation))

	if selfService {
		s.recordActivity(ctx, p, models.ActionApprove, models.TargetReservation, r.ID, &p.ID,
			"self-service reservation auto-approved")
	}
	notify.Fire(ctx, s.notifier, notify.ChannelBookings,
		fmt.Sprintf("reservation %s submitted for equipment %d (%s to %s), status %s",
			r.Reference, r.EquipmentID, r.StartDate.Format(DateLayout), r.EndDate.Format(DateLayout), r.Status))
	return r, checked, nil
}

// SubmitLoan validates and creates an immediate borrowing request.
func (s *Service) SubmitLoan(ctx context.Context, p Principal, req models.CreateLoanRequest) (models.Loan, *Validated, error) {
	checked, err := s.precheck(ctx, p, Request{
		UserID:      p.ID,
		Role:        p.Role,
		EquipmentID: req.EquipmentID,
		Kind:        KindLoan,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		PickupTime:  req.PickupTime,
	})
	if err != nil {
		return models.Loan{}, nil, err
	}

	l := models.Loan{
		Reference:   uuid.NewString(),
		UserID:      p.ID,
		EquipmentID: req.EquipmentID,
		StartDate:   checked.Start,
		EndDate:     checked.End,
		Status:      models.LoanPending,
	}
	selfService := p.Staff()
	if selfService {
		now := s.now()
		actor := p.ID
		l.Status = models.LoanApproved
		l.ApprovedBy = &actor
		l.ApprovedAt = &now
	}

	if err := s.store.CreateLoan(ctx, &l); err != nil {
		return models.Loan{}, nil, s.mapStorageConflict(ctx, err, "loan", req.EquipmentID)
	}
	s.metrics.BookingCreated(string(KindLoan))

	if selfService {
		s.recordActivity(ctx, p, models.ActionApprove, models.TargetLoan, l.ID, &p.ID,
			"self-service loan auto-approved")
		s.deriveEquipmentStatus(ctx, l.EquipmentID, models.EquipmentBorrowed)
	}
	notify.Fire(ctx, s.notifier, notify.ChannelBookings,
		fmt.Sprintf("loan %s submitted for equipment %d (%s to %s), status %s",
			l.Reference, l.EquipmentID, l.StartDate.Format(DateLayout), l.EndDate.Format(DateLayout), l.Status))
	return l, checked, nil
}

// precheck runs the validation rules, then the type-conflict gate, then the
// time-conflict check. A time conflict found after the type gate passed is
// unexpected enough to alert operators: it implies a race or inconsistent
// data.
func (s *Service) precheck(ctx context.Context, p Principal, req Request) (*Validated, error) {
	if p.ID == 0 {
		return nil, ErrForbidden
	}

	checked, err := s.validator.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	typeConflict, err := s.checker.TypeConflict(ctx, req.UserID, req.EquipmentID)
	if err != nil {
		return nil, fmt.Errorf("type conflict check: %w", err)
	}
	if typeConflict {
		s.metrics.ConflictDetected("app")
		return nil, &ConflictError{Message: "you already hold a booking for equipment of this type"}
	}

	timeConflict, err := s.checker.TimeConflict(ctx, req.EquipmentID, checked.Start, checked.End)
	if err != nil {
		return nil, fmt.Errorf("time conflict check: %w", err)
	}
	if timeConflict {
		s.metrics.ConflictDetected("app")
		notify.Fire(ctx, s.notifier, notify.ChannelOps,
			fmt.Sprintf("time conflict on equipment %d for user %d after type gate passed", req.EquipmentID, req.UserID))
		return nil, &ConflictError{Message: "this equipment is unavailable for the requested dates"}
	}
	return checked, nil
}

// mapStorageConflict converts a database overlap/uniqueness rejection into
// a user-facing conflict and alerts operators, since the application-level
// pre-check should have caught it first.
func (s *Service) mapStorageConflict(ctx context.Context, err error, kind string, equipmentID int64) error {
	var conflict *ConflictError
	if asConflict(err, &conflict) {
		s.metrics.ConflictDetected("storage")
		notify.Fire(ctx, s.notifier, notify.ChannelOps,
			fmt.Sprintf("storage constraint rejected %s on equipment %d: pre-check bypassed or raced", kind, equipmentID))
		return &ConflictError{Message: "this equipment is unavailable for the requested dates", Storage: true}
	}
	return fmt.Errorf("create %s: %w", kind, err)
}

// BulkResult reports the per-item outcome of a bulk decision. The batch has
// no cross-item transactionality: partial success is acceptable and is not
// rolled back.
type BulkResult struct {
	ID    int64  `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ApproveReservations transitions pending reservations to approved.
func (s *Service) ApproveReservations(ctx context.Context, p Principal, ids []int64) ([]BulkResult, error) {
	if !p.Staff() {
		return nil, ErrForbidden
	}
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		res := BulkResult{ID: id, OK: true}
		if err := s.decideReservation(ctx, p, id, models.ReservationApproved, nil); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// RejectReservations transitions pending reservations to rejected. The
// reason is optional in bulk mode; RejectReservation enforces it for
// single-item rejections.
func (s *Service) RejectReservations(ctx context.Context, p Principal, ids []int64, reason string) ([]BulkResult, error) {
	if !p.Staff() {
		return nil, ErrForbidden
	}
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		res := BulkResult{ID: id, OK: true}
		if err := s.decideReservation(ctx, p, id, models.ReservationRejected, reasonPtr); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// RejectReservation rejects a single reservation; a reason is mandatory.
func (s *Service) RejectReservation(ctx context.Context, p Principal, id int64, reason string) error {
	if !p.Staff() {
		return ErrForbidden
	}
	if reason == "" {
		return failRule("reason_required", "a rejection reason is required")
	}
	return s.decideReservation(ctx, p, id, models.ReservationRejected, &reason)
}

func (s *Service) decideReservation(ctx context.Context, p Principal, id int64, to models.ReservationStatus, reason *string) error {
	r, err := s.store.ReservationByID(ctx, id)
	if err != nil {
		return err
	}
	if !r.Status.CanTransitionTo(to) {
		return &InvalidTransitionError{Kind: "reservation", From: string(r.Status), To: string(to)}
	}
	actor := p.ID
	if err := s.store.SetReservationStatus(ctx, id, r.Status, to, &actor, reason); err != nil {
		return err
	}
	action := models.ActionApprove
	if to == models.ReservationRejected {
		action = models.ActionReject
	}
	s.recordActivity(ctx, p, action, models.TargetReservation, id, &r.UserID, "")
	notify.Fire(ctx, s.notifier, notify.ChannelBookings,
		fmt.Sprintf("reservation %s %s by staff %d", r.Reference, to, p.ID))
	return nil
}

// ApproveLoans transitions pending loans to approved and derives the
// equipment status to borrowed.
func (s *Service) ApproveLoans(ctx context.Context, p Principal, ids []int64) ([]BulkResult, error) {
	if !p.Staff() {
		return nil, ErrForbidden
	}
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		res := BulkResult{ID: id, OK: true}
		if err := s.decideLoan(ctx, p, id, models.LoanApproved, nil); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// RejectLoans transitions pending loans to rejected; reason optional in bulk.
func (s *Service) RejectLoans(ctx context.Context, p Principal, ids []int64, reason string) ([]BulkResult, error) {
	if !p.Staff() {
		return nil, ErrForbidden
	}
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		res := BulkResult{ID: id, OK: true}
		if err := s.decideLoan(ctx, p, id, models.LoanRejected, reasonPtr); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// RejectLoan rejects a single loan; a reason is mandatory.
func (s *Service) RejectLoan(ctx context.Context, p Principal, id int64, reason string) error {
	if !p.Staff() {
		return ErrForbidden
	}
	if reason == "" {
		return failRule("reason_required", "a rejection reason is required")
	}
	return s.decideLoan(ctx, p, id, models.LoanRejected, &reason)
}

func (s *Service) decideLoan(ctx context.Context, p Principal, id int64, to models.LoanStatus, reason *string) error {
	l, err := s.store.LoanByID(ctx, id)
	if err != nil {
		return err
	}
	if !l.Status.CanTransitionTo(to) {
		return &InvalidTransitionError{Kind: "loan", From: string(l.Status), To: string(to)}
	}
	actor := p.ID
	if err := s.store.SetLoanStatus(ctx, id, l.Status, to, &actor, reason); err != nil {
		return err
	}
	action := models.ActionApprove
	if to == models.LoanRejected {
		action = models.ActionReject
	}
	s.recordActivity(ctx, p, action, models.TargetLoan, id, &l.UserID, "")
	if to == models.LoanApproved {
		s.deriveEquipmentStatus(ctx, l.EquipmentID, models.EquipmentBorrowed)
	}
	notify.Fire(ctx, s.notifier, notify.ChannelBookings,
		fmt.Sprintf("loan %s %s by staff %d", l.Reference, to, p.ID))
	return nil
}

// CancelReservation lets the owning user cancel while the reservation is
// still pending or approved. Staff may cancel anyone's reservation.
func (s *Service) CancelReservation(ctx context.Context, p Principal, id int64) error {
	r, err := s.store.ReservationByID(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID != p.ID && !p.Staff() {
		return ErrForbidden
	}
	if !r.Status.CanTransitionTo(models.ReservationCancelled) {
		return &InvalidTransitionError{Kind: "reservation", From: string(r.Status), To: string(models.ReservationCancelled)}
	}
	actor := p.ID
	if err := s.store.SetReservationStatus(ctx, id, r.Status, models.ReservationCancelled, &actor, nil); err != nil {
		return err
	}
	if p.Staff() {
		s.recordActivity(ctx, p, models.ActionCancel, models.TargetReservation, id, &r.UserID, "")
	}
	notify.Fire(ctx, s.notifier, notify.ChannelBookings,
		fmt.Sprintf("reservation %s cancelled", r.Reference))
	return nil
}

// ProcessReturn records a loan return. The loan row is the source of truth:
// once it is marked returned the operation has succeeded, and the derived
// equipment-status update is best-effort, logged on failure but never
// surfaced or rolled back.
func (s *Service) ProcessReturn(ctx context.Context, p Principal, loanID int64, req models.ReturnRequest) (models.Loan, error) {
	if !p.Staff() {
		return models.Loan{}, ErrForbidden
	}
	if !models.ValidReturnCondition(req.Condition) {
		return models.Loan{}, failRule("condition", "condition must be one of good, damaged, missing_parts")
	}

	l, err := s.store.LoanByID(ctx, loanID)
	if err != nil {
		return models.Loan{}, err
	}
	if !l.Status.CanTransitionTo(models.LoanReturned) {
		return models.Loan{}, &InvalidTransitionError{Kind: "loan", From: string(l.Status), To: string(models.LoanReturned)}
	}

	returnedAt := s.now()
	if err := s.store.MarkLoanReturned(ctx, loanID, returnedAt, req.Condition, req.Notes); err != nil {
		return models.Loan{}, fmt.Errorf("mark loan returned: %w", err)
	}

	equipmentStatus := models.EquipmentAvailable
	channel := notify.ChannelReturns
	if req.Condition != models.ConditionGood {
		equipmentStatus = models.EquipmentMaintenance
		channel = notify.ChannelMaintenance
	}
	equipmentID := req.EquipmentID
	if equipmentID == 0 {
		equipmentID = l.EquipmentID
	}
	s.deriveEquipmentStatus(ctx, equipmentID, equipmentStatus)

	s.recordActivity(ctx, p, models.ActionReturn, models.TargetLoan, loanID, &l.UserID,
		fmt.Sprintf("condition=%s", req.Condition))
	notify.Fire(ctx, s.notifier, channel,
		fmt.Sprintf("loan %s returned with condition %s", l.Reference, req.Condition))

	l.Status = models.LoanReturned
	l.ReturnedAt = &returnedAt
	l.ReturnCondition = &req.Condition
	if req.Notes != "" {
		l.ReturnNotes = &req.Notes
	}
	return l, nil
}

// deriveEquipmentStatus applies the derived equipment state. Equipment
// status is best-effort derived data; a failed write is logged only.
func (s *Service) deriveEquipmentStatus(ctx context.Context, equipmentID int64, status models.EquipmentStatus) {
	if err := s.store.SetEquipmentStatus(ctx, equipmentID, status); err != nil {
		s.logger.Printf("equipment %d: status update to %s failed: %v", equipmentID, status, err)
	}
}

// recordActivity appends an audit entry. Audit failures are logged only.
func (s *Service) recordActivity(ctx context.Context, p Principal, action, targetKind string, targetID int64, affectedUserID *int64, details string) {
	entry := models.StaffActivity{
		ActorID:        p.ID,
		ActorRole:      p.Role,
		Action:         action,
		TargetKind:     targetKind,
		TargetID:       targetID,
		AffectedUserID: affectedUserID,
		SelfAction:     affectedUserID != nil && *affectedUserID == p.ID,
		Details:        details,
		CreatedAt:      s.now(),
	}
	if err := s.store.RecordActivity(ctx, entry); err != nil {
		s.logger.Printf("activity log write failed (%s %s %d): %v", action, targetKind, targetID, err)
	}
}
