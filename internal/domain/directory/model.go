package directory

import (
	"time"

	"github.com/google/uuid"
)

// StaffRole is the job of a staff member within a facility.
type StaffRole string

const (
	RoleDentist      StaffRole = "dentist"
	RoleAssistant    StaffRole = "assistant"
	RoleReceptionist StaffRole = "receptionist"
	RoleAdmin        StaffRole = "admin"
)

func (r StaffRole) Valid() bool {
	switch r {
	case RoleDentist, RoleAssistant, RoleReceptionist, RoleAdmin:
		return true
	}
	return false
}

// RoomType distinguishes treatment chairs from surgery rooms.
type RoomType string

const (
	RoomChair   RoomType = "chair"
	RoomSurgery RoomType = "surgery_room"
)

func (t RoomType) Valid() bool {
	return t == RoomChair || t == RoomSurgery
}

// Facility maps to the facility table.
type Facility struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" validate:"required"`
	City      string    `db:"city" json:"city" validate:"required"`
	Address   string    `db:"address" json:"address" validate:"required"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Staff maps to the staff table. KeycloakUserID links the record to the
// subject of an identity provider token.
type Staff struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FacilityID     uuid.UUID `db:"facility_id" json:"facility_id" validate:"required"`
	KeycloakUserID *string   `db:"keycloak_user_id" json:"keycloak_user_id,omitempty"`
	Name           string    `db:"name" json:"name" validate:"required"`
	Email          string    `db:"email" json:"email" validate:"required,email"`
	Role           StaffRole `db:"role" json:"role" validate:"required,oneof=dentist assistant receptionist admin"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Room maps to the room table.
type Room struct {
	ID         uuid.UUID `db:"id" json:"id"`
	FacilityID uuid.UUID `db:"facility_id" json:"facility_id" validate:"required"`
	Name       string    `db:"name" json:"name" validate:"required"`
	Type       RoomType  `db:"type" json:"type" validate:"required,oneof=chair surgery_room"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patient table.
type Patient struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FacilityID     uuid.UUID `db:"facility_id" json:"facility_id" validate:"required"`
	KeycloakUserID *string   `db:"keycloak_user_id" json:"keycloak_user_id,omitempty"`
	Name           string    `db:"name" json:"name" validate:"required"`
	BirthDate      time.Time `db:"birth_date" json:"birth_date" validate:"required"`
	Email          *string   `db:"email" json:"email,omitempty"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Address        *string   `db:"address" json:"address,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
