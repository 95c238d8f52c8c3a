package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("directory record not found")

// Repository is the persistence interface for the facility registry.
type Repository interface {
	CreateFacility(ctx context.Context, f *Facility) error
	GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error)
	ListFacilities(ctx context.Context) ([]*Facility, error)

	CreateStaff(ctx context.Context, s *Staff) error
	GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error)
	ListStaff(ctx context.Context, facilityID uuid.UUID) ([]*Staff, error)

	CreateRoom(ctx context.Context, r *Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*Room, error)
	ListRooms(ctx context.Context, facilityID uuid.UUID) ([]*Room, error)

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	// FacilityForSubject resolves the facility of the staff member, or failing
	// that the patient, linked to an identity provider subject.
	FacilityForSubject(ctx context.Context, subject string) (uuid.UUID, error)
}
