package models

import (
	"time"
)

// User represents a registered borrower or staff member.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose in JSON
	FullName     string     `json:"full_name"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ApprovedBy   *int64     `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// RegisterRequest is the request body for self-service registration.
// New accounts start in status "pending" until staff approve them.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the response body for a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ChangePasswordRequest is the request body for changing password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// UpdateUserRequest is the request body for admin user updates.
type UpdateUserRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Status   *string `json:"status,omitempty"`
}

// User account statuses.
const (
	UserPending   = "pending"
	UserApproved  = "approved"
	UserSuspended = "suspended"
)

// Roles. Students and lecturers sit in the "user" tier; staff and admin
// form the elevated tiers, with admin inheriting staff permissions.
const (
	RoleStudent  = "student"
	RoleLecturer = "lecturer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// ValidRoles defines the assignable roles.
var ValidRoles = []string{RoleStudent, RoleLecturer, RoleStaff, RoleAdmin}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, validRole := range ValidRoles {
		if role == validRole {
			return true
		}
	}
	return false
}

// Tier names, strictly ordered: user < staff < admin.
const (
	TierUser  = "user"
	TierStaff = "staff"
	TierAdmin = "admin"
)

var tierRank = map[string]int{
	TierUser:  1,
	TierStaff: 2,
	TierAdmin: 3,
}

// RoleTier maps a role to its permission tier.
func RoleTier(role string) string {
	switch role {
	case RoleAdmin:
		return TierAdmin
	case RoleStaff:
		return TierStaff
	default:
		return TierUser
	}
}

// TierAtLeast reports whether role meets or exceeds the required tier.
func TierAtLeast(role, requiredTier string) bool {
	return tierRank[RoleTier(role)] >= tierRank[requiredTier]
}

// IsStaff reports whether the role sits in the staff tier or above.
func (u *User) IsStaff() bool {
	return TierAtLeast(u.Role, TierStaff)
}

// Redacted returns a copy of the user with sensitive fields removed.
func (u *User) Redacted() User {
	return User{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		Status:      u.Status,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		ApprovedBy:  u.ApprovedBy,
		ApprovedAt:  u.ApprovedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
