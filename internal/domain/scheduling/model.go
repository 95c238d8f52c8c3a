package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusScheduled: true, StatusOngoing: true,
	StatusCompleted: true, StatusCancelled: true,
}

var statusTransitions = map[Status][]Status{
	StatusScheduled: {StatusOngoing, StatusCancelled},
	StatusOngoing:   {StatusCompleted, StatusCancelled},
}

// ParseStatus converts a raw value into a known Status.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, validStatuses[st]
}

func (s Status) Valid() bool { return validStatuses[s] }

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
// UpdateAppointment does not consult it; any valid status may be written.
func (s Status) CanTransitionTo(next Status) bool {
	for _, n := range statusTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// ResourceKind names the bookable resource a conflict check applies to.
type ResourceKind string

const (
	ResourceDentist ResourceKind = "dentist"
	ResourceRoom    ResourceKind = "room"
)

// Appointment maps to the appointment table.
type Appointment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	DentistID  uuid.UUID `db:"dentist_id" json:"dentist_id"`
	RoomID     uuid.UUID `db:"room_id" json:"room_id"`
	FacilityID uuid.UUID `db:"facility_id" json:"facility_id"`
	StartTime  time.Time `db:"start_time" json:"start_time"`
	EndTime    time.Time `db:"end_time" json:"end_time"`
	Status     Status    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Interval returns the half-open booking window of the appointment.
func (a *Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// Uses reports whether the appointment books the given resource.
func (a *Appointment) Uses(kind ResourceKind, id uuid.UUID) bool {
	switch kind {
	case ResourceDentist:
		return a.DentistID == id
	case ResourceRoom:
		return a.RoomID == id
	}
	return false
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether Start is strictly before End.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps reports whether the two half-open ranges share any instant.
// Ranges that only touch at a boundary do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// UTC returns the interval with both ends normalized to UTC at microsecond
// precision, the resolution of timestamptz.
func (i Interval) UTC() Interval {
	return Interval{Start: normalizeTime(i.Start), End: normalizeTime(i.End)}
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// StaffRef is the directory projection of a staff member.
type StaffRef struct {
	ID         uuid.UUID
	FacilityID uuid.UUID
	Role       string
}

// IsDentist reports whether the staff member may be booked as a dentist.
func (s *StaffRef) IsDentist() bool { return s.Role == "dentist" }

// RoomRef is the directory projection of a treatment room.
type RoomRef struct {
	ID         uuid.UUID
	FacilityID uuid.UUID
}

// PatientRef is the directory projection of a patient.
type PatientRef struct {
	ID         uuid.UUID
	FacilityID uuid.UUID
}

// CreateAppointmentRequest carries the fields of a new booking.
type CreateAppointmentRequest struct {
	PatientID  uuid.UUID `json:"patient_id" validate:"required"`
	DentistID  uuid.UUID `json:"dentist_id" validate:"required"`
	RoomID     uuid.UUID `json:"room_id" validate:"required"`
	FacilityID uuid.UUID `json:"facility_id" validate:"required"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" validate:"required"`
}

// AppointmentUpdate is a partial update. Absent fields keep their value.
type AppointmentUpdate struct {
	DentistID Optional[uuid.UUID] `json:"dentist_id"`
	RoomID    Optional[uuid.UUID] `json:"room_id"`
	StartTime Optional[time.Time] `json:"start_time"`
	EndTime   Optional[time.Time] `json:"end_time"`
	Status    Optional[string]    `json:"status"`
}

// touchesDentist reports whether the update can move the dentist booking.
func (u AppointmentUpdate) touchesDentist() bool {
	return u.DentistID.Present || u.StartTime.Present || u.EndTime.Present
}

// touchesRoom reports whether the update can move the room booking.
func (u AppointmentUpdate) touchesRoom() bool {
	return u.RoomID.Present || u.StartTime.Present || u.EndTime.Present
}
