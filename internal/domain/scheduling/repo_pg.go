package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lbecken/smiles/internal/platform/db"
)

const (
	pgExclusionViolation  = "23P01"
	pgForeignKeyViolation = "23503"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, patient_id, dentist_id, room_id, facility_id,
	start_time, end_time, status, created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DentistID, &a.RoomID, &a.FacilityID,
		&a.StartTime, &a.EndTime, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	a.StartTime, a.EndTime = a.StartTime.UTC(), a.EndTime.UTC()
	return &a, nil
}

func (r *appointmentRepoPG) list(ctx context.Context, where string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment WHERE `+where+` ORDER BY start_time ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, dentist_id, room_id, facility_id,
			start_time, end_time, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.PatientID, a.DentistID, a.RoomID, a.FacilityID,
		a.StartTime, a.EndTime, a.Status, a.CreatedAt, a.UpdatedAt)
	return translatePgError(err, a)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET dentist_id=$2, room_id=$3, start_time=$4, end_time=$5,
			status=$6, updated_at=$7
		WHERE id = $1`,
		a.ID, a.DentistID, a.RoomID, a.StartTime, a.EndTime, a.Status, a.UpdatedAt)
	if err != nil {
		return translatePgError(err, a)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, `facility_id = $1`, facilityID)
}

func (r *appointmentRepoPG) ListByFacilityInRange(ctx context.Context, facilityID uuid.UUID, window Interval) ([]*Appointment, error) {
	return r.list(ctx, `facility_id = $1 AND start_time < $3 AND end_time > $2`,
		facilityID, window.Start, window.End)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, `patient_id = $1`, patientID)
}

func (r *appointmentRepoPG) ListByDentist(ctx context.Context, dentistID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, `dentist_id = $1`, dentistID)
}

func (r *appointmentRepoPG) HasConflict(ctx context.Context, kind ResourceKind, resourceID uuid.UUID, window Interval, exclude Optional[uuid.UUID]) (bool, error) {
	column, err := resourceColumn(kind)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM appointment
		WHERE %s = $1 AND status <> $2 AND start_time < $4 AND end_time > $3`, column)
	args := []interface{}{resourceID, StatusCancelled, window.Start, window.End}
	if id, ok := exclude.Get(); ok {
		query += ` AND id <> $5`
		args = append(args, id)
	}
	query += `)`

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// LockResources takes a transaction-scoped advisory lock per resource id.
// Ids are locked in a fixed order so two bookings never wait on each other.
func (r *appointmentRepoPG) LockResources(ctx context.Context, ids ...uuid.UUID) error {
	keys := make([]string, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, id.String())
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			return fmt.Errorf("lock resource %s: %w", k, err)
		}
	}
	return nil
}

func resourceColumn(kind ResourceKind) (string, error) {
	switch kind {
	case ResourceDentist:
		return "dentist_id", nil
	case ResourceRoom:
		return "room_id", nil
	}
	return "", fmt.Errorf("unknown resource kind %q", kind)
}

// translatePgError maps constraint violations that can still surface after
// the engine's own checks to scheduling errors.
func translatePgError(err error, a *Appointment) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == "appointment_dentist_no_overlap":
		return conflictError(ResourceDentist)
	case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == "appointment_room_no_overlap":
		return conflictError(ResourceRoom)
	case pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == "appointment_patient_fk":
		return notFoundf("Patient not found: %s", a.PatientID)
	}
	return err
}
