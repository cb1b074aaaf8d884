package models

import "time"

// EquipmentStatus tracks whether a unit can be lent out. It is derived from
// booking outcomes; only maintenance and retirement are set directly by staff.
type EquipmentStatus string

const (
	EquipmentAvailable   EquipmentStatus = "available"
	EquipmentBorrowed    EquipmentStatus = "borrowed"
	EquipmentMaintenance EquipmentStatus = "maintenance"
	EquipmentRetired     EquipmentStatus = "retired"
)

func ValidEquipmentStatus(s EquipmentStatus) bool {
	switch s {
	case EquipmentAvailable, EquipmentBorrowed, EquipmentMaintenance, EquipmentRetired:
		return true
	}
	return false
}

// Equipment is a physical lendable item.
type Equipment struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Number       string          `json:"number"` // human-readable unique code
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name,omitempty"`
	Status       EquipmentStatus `json:"status"`
	ImageURL     *string         `json:"image_url,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Category groups equipment for same-type conflict detection.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateEquipmentRequest is the request body for creating equipment.
type CreateEquipmentRequest struct {
	Name       string  `json:"name"`
	Number     string  `json:"number"`
	CategoryID int64   `json:"category_id"`
	ImageURL   *string `json:"image_url,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// UpdateEquipmentRequest is the request body for updating equipment.
// Status here covers staff maintenance/retire actions only.
type UpdateEquipmentRequest struct {
	Name       *string          `json:"name,omitempty"`
	Number     *string          `json:"number,omitempty"`
	CategoryID *int64           `json:"category_id,omitempty"`
	Status     *EquipmentStatus `json:"status,omitempty"`
	ImageURL   *string          `json:"image_url,omitempty"`
	Notes      *string          `json:"notes,omitempty"`
}
