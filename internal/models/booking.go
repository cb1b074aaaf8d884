package models

import (
	"time"
)

// ReservationStatus is the lifecycle state of a forward-dated booking.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationApproved  ReservationStatus = "approved"
	ReservationReady     ReservationStatus = "ready"
	ReservationCompleted ReservationStatus = "completed"
	ReservationRejected  ReservationStatus = "rejected"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// ActiveReservationStatuses are the non-terminal reservation states that
// count for conflict detection and per-user item limits.
var ActiveReservationStatuses = []ReservationStatus{
	ReservationPending,
	ReservationApproved,
	ReservationReady,
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:  {ReservationApproved, ReservationRejected, ReservationCancelled},
	ReservationApproved: {ReservationReady, ReservationCancelled, ReservationCompleted},
	ReservationReady:    {ReservationCompleted},
}

// Terminal reports whether no further transitions are possible.
func (s ReservationStatus) Terminal() bool {
	return len(reservationTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LoanStatus is the lifecycle state of a borrowing record.
type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanApproved LoanStatus = "approved"
	LoanReturned LoanStatus = "returned"
	LoanRejected LoanStatus = "rejected"
)

// ActiveLoanStatuses are the non-terminal loan states.
var ActiveLoanStatuses = []LoanStatus{LoanPending, LoanApproved}

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanPending:  {LoanApproved, LoanRejected},
	LoanApproved: {LoanReturned},
}

func (s LoanStatus) Terminal() bool {
	return len(loanTransitions[s]) == 0
}

func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReturnCondition classifies the state of equipment at return time.
type ReturnCondition string

const (
	ConditionGood         ReturnCondition = "good"
	ConditionDamaged      ReturnCondition = "damaged"
	ConditionMissingParts ReturnCondition = "missing_parts"
)

func ValidReturnCondition(c ReturnCondition) bool {
	return c == ConditionGood || c == ConditionDamaged || c == ConditionMissingParts
}

// Reservation is a forward-dated request to borrow equipment.
type Reservation struct {
	ID              int64             `json:"id"`
	Reference       string            `json:"reference"`
	UserID          int64             `json:"user_id"`
	EquipmentID     int64             `json:"equipment_id"`
	StartDate       time.Time         `json:"start_date"`
	EndDate         time.Time         `json:"end_date"`
	Status          ReservationStatus `json:"status"`
	ApprovedBy      *int64            `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
	LoanID          *int64            `json:"loan_id,omitempty"`
	CompletedBy     *int64            `json:"completed_by,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Loan is an actual borrowing record, created directly or materialized
// from a completed reservation.
type Loan struct {
	ID              int64            `json:"id"`
	Reference       string           `json:"reference"`
	UserID          int64            `json:"user_id"`
	EquipmentID     int64            `json:"equipment_id"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	Status          LoanStatus       `json:"status"`
	ApprovedBy      *int64           `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	RejectionReason *string          `json:"rejection_reason,omitempty"`
	ReturnedAt      *time.Time       `json:"returned_at,omitempty"`
	ReturnCondition *ReturnCondition `json:"return_condition,omitempty"`
	ReturnNotes     *string          `json:"return_notes,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// CreateReservationRequest is the request body for submitting a reservation.
type CreateReservationRequest struct {
	EquipmentID int64  `json:"equipment_id"`
	StartDate   string `json:"start_date"` // YYYY-MM-DD
	EndDate     string `json:"end_date"`   // YYYY-MM-DD
	PickupTime  string `json:"pickup_time,omitempty"` // HH:MM, optional
}

// CreateLoanRequest is the request body for submitting an immediate loan.
type CreateLoanRequest struct {
	EquipmentID int64  `json:"equipment_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	PickupTime  string `json:"pickup_time,omitempty"`
}

// BulkDecisionRequest is the request body for bulk approve/reject.
type BulkDecisionRequest struct {
	IDs    []int64 `json:"ids"`
	Reason string  `json:"reason,omitempty"`
}

// ReturnRequest is the request body for processing a loan return.
type ReturnRequest struct {
	EquipmentID int64           `json:"equipment_id"`
	Condition   ReturnCondition `json:"condition"`
	Notes       string          `json:"notes,omitempty"`
}
