package models

import "time"

// Activity action types for the staff audit log.
const (
	ActionApprove      = "approve"
	ActionReject       = "reject"
	ActionCancel       = "cancel"
	ActionReturn       = "return"
	ActionConvert      = "convert"
	ActionApproveUser  = "approve_user"
	ActionSuspendUser  = "suspend_user"
	ActionEditSettings = "edit_settings"
)

// Target entity kinds.
const (
	TargetReservation = "reservation"
	TargetLoan        = "loan"
	TargetUser        = "user"
	TargetEquipment   = "equipment"
	TargetSettings    = "settings"
)

// StaffActivity is an immutable audit record written whenever a staff or
// admin principal performs a state-changing action. Created once, never
// mutated or deleted through normal flow.
type StaffActivity struct {
	ID             int64     `json:"id"`
	ActorID        int64     `json:"actor_id"`
	ActorRole      string    `json:"actor_role"`
	Action         string    `json:"action"`
	TargetKind     string    `json:"target_kind"`
	TargetID       int64     `json:"target_id"`
	AffectedUserID *int64    `json:"affected_user_id,omitempty"`
	SelfAction     bool      `json:"self_action"`
	Details        string    `json:"details,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
