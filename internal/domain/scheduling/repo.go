package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/lbecken/smiles/internal/platform/auth"
)

// AppointmentRepository is the appointment store. Implementations read the
// active transaction from ctx when one is open.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate loads the appointment and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Appointment, error)
	ListByFacilityInRange(ctx context.Context, facilityID uuid.UUID, window Interval) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	ListByDentist(ctx context.Context, dentistID uuid.UUID) ([]*Appointment, error)
	// HasConflict reports whether a non-cancelled appointment other than
	// exclude books the resource during window.
	HasConflict(ctx context.Context, kind ResourceKind, resourceID uuid.UUID, window Interval, exclude Optional[uuid.UUID]) (bool, error)
	// LockResources serializes concurrent bookings of the given resources
	// until the surrounding transaction ends.
	LockResources(ctx context.Context, ids ...uuid.UUID) error
}

// Transactor runs fn inside a single store transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ResourceDirectory resolves staff, rooms and patients. Missing records are
// reported as ErrResourceNotFound.
type ResourceDirectory interface {
	GetStaff(ctx context.Context, id uuid.UUID) (*StaffRef, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*RoomRef, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*PatientRef, error)
}

// AccessPolicy decides whether an actor may act on a facility's appointments.
type AccessPolicy interface {
	CheckFacilityAccess(ctx context.Context, actor auth.Actor, facilityID uuid.UUID) error
}

// EventPublisher receives committed appointment changes. The topic is the
// event type and payload is JSON encodable.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}
