package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lbecken/smiles/internal/platform/auth"
	"github.com/lbecken/smiles/internal/platform/metrics"
)

// Service is the scheduling engine. Every mutation runs in one transaction
// that re-reads the current state, checks conflicts and writes.
type Service struct {
	appointments AppointmentRepository
	tx           Transactor
	directory    ResourceDirectory
	policy       AccessPolicy
	events       EventPublisher
	logger       zerolog.Logger
	now          func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithEvents publishes committed changes to p.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger sets the logger used for mutations and failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(appt AppointmentRepository, tx Transactor, dir ResourceDirectory, policy AccessPolicy, opts ...Option) *Service {
	s := &Service{
		appointments: appt,
		tx:           tx,
		directory:    dir,
		policy:       policy,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Mutations --

func (s *Service) CreateAppointment(ctx context.Context, actor auth.Actor, req CreateAppointmentRequest) (*Appointment, error) {
	if err := s.policy.CheckFacilityAccess(ctx, actor, req.FacilityID); err != nil {
		return nil, err
	}

	window := Interval{Start: req.StartTime, End: req.EndTime}.UTC()
	if !window.Valid() {
		metrics.IncRejected(KindValidation.String())
		return nil, validationf("Start time must be before end time")
	}

	a := &Appointment{
		PatientID:  req.PatientID,
		DentistID:  req.DentistID,
		RoomID:     req.RoomID,
		FacilityID: req.FacilityID,
		StartTime:  window.Start,
		EndTime:    window.End,
		Status:     StatusScheduled,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		dentist, err := s.lookupDentist(ctx, req.DentistID)
		if err != nil {
			return err
		}
		room, err := s.lookupRoom(ctx, req.RoomID)
		if err != nil {
			return err
		}
		if dentist.FacilityID != req.FacilityID {
			return validationf("Dentist does not belong to the specified facility")
		}
		if room.FacilityID != req.FacilityID {
			return validationf("Room does not belong to the specified facility")
		}
		patient, err := s.lookupPatient(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if patient.FacilityID != req.FacilityID {
			return validationf("Patient does not belong to the specified facility")
		}

		if err := s.appointments.LockResources(ctx, a.DentistID, a.RoomID); err != nil {
			return err
		}
		if err := s.checkConflict(ctx, ResourceDentist, a.DentistID, window, None[uuid.UUID]()); err != nil {
			return err
		}
		if err := s.checkConflict(ctx, ResourceRoom, a.RoomID, window, None[uuid.UUID]()); err != nil {
			return err
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("create", err)
	}

	metrics.IncCreated()
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("dentist_id", a.DentistID.String()).
		Str("room_id", a.RoomID.String()).
		Time("start", a.StartTime).
		Time("end", a.EndTime).
		Str("actor", actor.Subject).
		Msg("appointment created")
	s.publish(ctx, EventCreated, actor, a)
	return a, nil
}

func (s *Service) UpdateAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID, upd AppointmentUpdate) (*Appointment, error) {
	// An unknown status is rejected like a malformed body, before the
	// appointment is loaded.
	var status Status
	if raw, ok := upd.Status.Get(); ok {
		st, valid := ParseStatus(raw)
		if !valid {
			return nil, s.fail("update", validationf("Invalid appointment status: %s", raw))
		}
		status = st
	}

	var a *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.loadForUpdate(ctx, actor, id)
		if err != nil {
			return err
		}

		if dentistID, ok := upd.DentistID.Get(); ok {
			dentist, err := s.lookupDentist(ctx, dentistID)
			if err != nil {
				return err
			}
			if dentist.FacilityID != a.FacilityID {
				return validationf("Dentist does not belong to the same facility")
			}
			a.DentistID = dentistID
		}
		if roomID, ok := upd.RoomID.Get(); ok {
			room, err := s.lookupRoom(ctx, roomID)
			if err != nil {
				return err
			}
			if room.FacilityID != a.FacilityID {
				return validationf("Room does not belong to the same facility")
			}
			a.RoomID = roomID
		}
		if start, ok := upd.StartTime.Get(); ok {
			a.StartTime = normalizeTime(start)
		}
		if end, ok := upd.EndTime.Get(); ok {
			a.EndTime = normalizeTime(end)
		}

		window := a.Interval()
		if !window.Valid() {
			return validationf("Start time must be before end time")
		}

		var lock []uuid.UUID
		if upd.touchesDentist() {
			lock = append(lock, a.DentistID)
		}
		if upd.touchesRoom() {
			lock = append(lock, a.RoomID)
		}
		if len(lock) > 0 {
			if err := s.appointments.LockResources(ctx, lock...); err != nil {
				return err
			}
		}
		self := Some(a.ID)
		if upd.touchesDentist() {
			if err := s.checkConflict(ctx, ResourceDentist, a.DentistID, window, self); err != nil {
				return err
			}
		}
		if upd.touchesRoom() {
			if err := s.checkConflict(ctx, ResourceRoom, a.RoomID, window, self); err != nil {
				return err
			}
		}

		if upd.Status.Present {
			a.Status = status
		}
		return s.save(ctx, a)
	})
	if err != nil {
		return nil, s.fail("update", err)
	}

	metrics.IncUpdated()
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("status", string(a.Status)).
		Str("actor", actor.Subject).
		Msg("appointment updated")
	s.publish(ctx, EventUpdated, actor, a)
	return a, nil
}

// CancelAppointment frees the appointment's resources by forcing the
// cancelled status, whatever the current one is.
func (s *Service) CancelAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	var a *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.loadForUpdate(ctx, actor, id)
		if err != nil {
			return err
		}
		a.Status = StatusCancelled
		return s.save(ctx, a)
	})
	if err != nil {
		return nil, s.fail("cancel", err)
	}

	metrics.IncCancelled()
	s.logger.Info().Str("appointment_id", a.ID.String()).Str("actor", actor.Subject).Msg("appointment cancelled")
	s.publish(ctx, EventCancelled, actor, a)
	return a, nil
}

// DeleteAppointment removes the record outright. It is an administrative
// override and ignores the status.
func (s *Service) DeleteAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	var a *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.loadForUpdate(ctx, actor, id)
		if err != nil {
			return err
		}
		if err := s.appointments.Delete(ctx, id); err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return notFoundf("Appointment not found: %s", id)
			}
			return fmt.Errorf("delete appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail("delete", err)
	}

	metrics.IncDeleted()
	s.logger.Info().Str("appointment_id", id.String()).Str("actor", actor.Subject).Msg("appointment deleted")
	s.publish(ctx, EventDeleted, actor, a)
	return nil
}

// -- Queries --

func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, notFoundf("Appointment not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if err := s.policy.CheckFacilityAccess(ctx, actor, a.FacilityID); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByFacility returns the facility's appointments ordered by start time.
// With a window, only appointments overlapping it are returned, cancelled
// ones included.
func (s *Service) ListByFacility(ctx context.Context, actor auth.Actor, facilityID uuid.UUID, window *Interval) ([]*Appointment, error) {
	if err := s.policy.CheckFacilityAccess(ctx, actor, facilityID); err != nil {
		return nil, err
	}
	if window == nil {
		return s.appointments.ListByFacility(ctx, facilityID)
	}
	w := window.UTC()
	if !w.Valid() {
		return nil, validationf("Start time must be before end time")
	}
	return s.appointments.ListByFacilityInRange(ctx, facilityID, w)
}

func (s *Service) ListByPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID) ([]*Appointment, error) {
	patient, err := s.lookupPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckFacilityAccess(ctx, actor, patient.FacilityID); err != nil {
		return nil, err
	}
	return s.appointments.ListByPatient(ctx, patientID)
}

func (s *Service) ListByDentist(ctx context.Context, actor auth.Actor, dentistID uuid.UUID) ([]*Appointment, error) {
	dentist, err := s.directory.GetStaff(ctx, dentistID)
	if errors.Is(err, ErrResourceNotFound) {
		return nil, notFoundf("Dentist not found: %s", dentistID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup dentist: %w", err)
	}
	if err := s.policy.CheckFacilityAccess(ctx, actor, dentist.FacilityID); err != nil {
		return nil, err
	}
	return s.appointments.ListByDentist(ctx, dentistID)
}

// -- Helpers --

func (s *Service) loadForUpdate(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetForUpdate(ctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, notFoundf("Appointment not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := s.policy.CheckFacilityAccess(ctx, actor, a.FacilityID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) save(ctx context.Context, a *Appointment) error {
	err := s.appointments.Update(ctx, a)
	if errors.Is(err, ErrAppointmentNotFound) {
		return notFoundf("Appointment not found: %s", a.ID)
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (s *Service) lookupDentist(ctx context.Context, id uuid.UUID) (*StaffRef, error) {
	staff, err := s.directory.GetStaff(ctx, id)
	if errors.Is(err, ErrResourceNotFound) {
		return nil, notFoundf("Dentist not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup dentist: %w", err)
	}
	if !staff.IsDentist() {
		return nil, validationf("Staff member is not a dentist: %s", id)
	}
	return staff, nil
}

func (s *Service) lookupPatient(ctx context.Context, id uuid.UUID) (*PatientRef, error) {
	patient, err := s.directory.GetPatient(ctx, id)
	if errors.Is(err, ErrResourceNotFound) {
		return nil, notFoundf("Patient not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup patient: %w", err)
	}
	return patient, nil
}

func (s *Service) lookupRoom(ctx context.Context, id uuid.UUID) (*RoomRef, error) {
	room, err := s.directory.GetRoom(ctx, id)
	if errors.Is(err, ErrResourceNotFound) {
		return nil, notFoundf("Room not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup room: %w", err)
	}
	return room, nil
}

func (s *Service) checkConflict(ctx context.Context, kind ResourceKind, resourceID uuid.UUID, window Interval, exclude Optional[uuid.UUID]) error {
	conflict, err := s.appointments.HasConflict(ctx, kind, resourceID, window, exclude)
	if err != nil {
		return fmt.Errorf("check %s conflict: %w", kind, err)
	}
	if conflict {
		return conflictError(kind)
	}
	return nil
}

// fail records the failure and returns err unchanged.
func (s *Service) fail(op string, err error) error {
	var se *Error
	switch {
	case errors.As(err, &se) && se.Kind == KindConflict:
		metrics.IncConflict(string(se.Resource))
		s.logger.Warn().Str("op", op).Str("resource", string(se.Resource)).Msg(se.Reason)
	case errors.As(err, &se):
		metrics.IncRejected(se.Kind.String())
	case errors.Is(err, auth.ErrForbidden):
		metrics.IncRejected("forbidden")
	default:
		s.logger.Error().Err(err).Str("op", op).Msg("appointment operation failed")
	}
	return err
}

func (s *Service) publish(ctx context.Context, typ EventType, actor auth.Actor, a *Appointment) {
	if s.events == nil || a == nil {
		return
	}
	ev := Event{Type: typ, Appointment: *a, Actor: actor.Subject, OccurredAt: s.now().UTC()}
	if err := s.events.Publish(ctx, string(typ), ev); err != nil {
		s.logger.Warn().Err(err).Str("event", string(typ)).Str("appointment_id", a.ID.String()).Msg("publish event failed")
	}
}
