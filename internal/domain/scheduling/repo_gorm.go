package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lbecken/smiles/internal/platform/db"
)

// appointmentRecord is the gorm mapping of the appointment table.
type appointmentRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	PatientID  uuid.UUID `gorm:"type:uuid;not null;index"`
	DentistID  uuid.UUID `gorm:"type:uuid;not null;index:idx_appointment_dentist_start,priority:1"`
	RoomID     uuid.UUID `gorm:"type:uuid;not null;index:idx_appointment_room_start,priority:1"`
	FacilityID uuid.UUID `gorm:"type:uuid;not null;index:idx_appointment_facility_start,priority:1"`
	StartTime  time.Time `gorm:"not null;index:idx_appointment_dentist_start,priority:2;index:idx_appointment_room_start,priority:2;index:idx_appointment_facility_start,priority:2"`
	EndTime    time.Time `gorm:"not null"`
	Status     string    `gorm:"size:32;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (appointmentRecord) TableName() string { return "appointment" }

func toRecord(a *Appointment) *appointmentRecord {
	return &appointmentRecord{
		ID: a.ID, PatientID: a.PatientID, DentistID: a.DentistID, RoomID: a.RoomID,
		FacilityID: a.FacilityID, StartTime: a.StartTime.UTC(), EndTime: a.EndTime.UTC(),
		Status: string(a.Status), CreatedAt: a.CreatedAt.UTC(), UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func (rec *appointmentRecord) toAppointment() *Appointment {
	return &Appointment{
		ID: rec.ID, PatientID: rec.PatientID, DentistID: rec.DentistID, RoomID: rec.RoomID,
		FacilityID: rec.FacilityID, StartTime: rec.StartTime.UTC(), EndTime: rec.EndTime.UTC(),
		Status: Status(rec.Status), CreatedAt: rec.CreatedAt.UTC(), UpdatedAt: rec.UpdatedAt.UTC(),
	}
}

type appointmentRepoGorm struct{ db *gorm.DB }

// NewAppointmentRepoGorm returns the embedded SQLite-backed store.
func NewAppointmentRepoGorm(gdb *gorm.DB) AppointmentRepository {
	return &appointmentRepoGorm{db: gdb}
}

// AutoMigrateGorm creates the appointment table for the embedded store.
func AutoMigrateGorm(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&appointmentRecord{})
}

func (r *appointmentRepoGorm) conn(ctx context.Context) *gorm.DB {
	return db.GormFromContext(ctx, r.db)
}

func (r *appointmentRepoGorm) list(ctx context.Context, query interface{}, args ...interface{}) ([]*Appointment, error) {
	var recs []appointmentRecord
	if err := r.conn(ctx).Where(query, args...).Order("start_time ASC").Order("id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	items := make([]*Appointment, 0, len(recs))
	for i := range recs {
		items = append(items, recs[i].toAppointment())
	}
	return items, nil
}

func (r *appointmentRepoGorm) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	if err := r.guardOverlap(ctx, a); err != nil {
		return err
	}
	return r.conn(ctx).Create(toRecord(a)).Error
}

// guardOverlap refuses to store a live appointment that overlaps another
// live booking of its dentist or room, as the Postgres exclusion
// constraints do.
func (r *appointmentRepoGorm) guardOverlap(ctx context.Context, a *Appointment) error {
	if a.Status == StatusCancelled {
		return nil
	}
	for _, kind := range []ResourceKind{ResourceDentist, ResourceRoom} {
		resourceID := a.DentistID
		if kind == ResourceRoom {
			resourceID = a.RoomID
		}
		taken, err := r.HasConflict(ctx, kind, resourceID, a.Interval(), Some(a.ID))
		if err != nil {
			return err
		}
		if taken {
			return conflictError(kind)
		}
	}
	return nil
}

func (r *appointmentRepoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var rec appointmentRecord
	err := r.conn(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toAppointment(), nil
}

// GetForUpdate needs no row lock: the single SQLite connection already
// serializes transactions.
func (r *appointmentRepoGorm) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.GetByID(ctx, id)
}

func (r *appointmentRepoGorm) Update(ctx context.Context, a *Appointment) error {
	if err := r.guardOverlap(ctx, a); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	res := r.conn(ctx).Model(&appointmentRecord{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
		"dentist_id": a.DentistID,
		"room_id":    a.RoomID,
		"start_time": a.StartTime.UTC(),
		"end_time":   a.EndTime.UTC(),
		"status":     string(a.Status),
		"updated_at": a.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoGorm) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.conn(ctx).Where("id = ?", id).Delete(&appointmentRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoGorm) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, "facility_id = ?", facilityID)
}

func (r *appointmentRepoGorm) ListByFacilityInRange(ctx context.Context, facilityID uuid.UUID, window Interval) ([]*Appointment, error) {
	return r.list(ctx, "facility_id = ? AND start_time < ? AND end_time > ?",
		facilityID, window.End.UTC(), window.Start.UTC())
}

func (r *appointmentRepoGorm) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, "patient_id = ?", patientID)
}

func (r *appointmentRepoGorm) ListByDentist(ctx context.Context, dentistID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, "dentist_id = ?", dentistID)
}

func (r *appointmentRepoGorm) HasConflict(ctx context.Context, kind ResourceKind, resourceID uuid.UUID, window Interval, exclude Optional[uuid.UUID]) (bool, error) {
	column, err := resourceColumn(kind)
	if err != nil {
		return false, err
	}
	q := r.conn(ctx).Model(&appointmentRecord{}).
		Where(column+" = ?", resourceID).
		Where("status <> ?", string(StatusCancelled)).
		Where("start_time < ? AND end_time > ?", window.End.UTC(), window.Start.UTC())
	if id, ok := exclude.Get(); ok {
		q = q.Where("id <> ?", id)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// LockResources is a no-op: SQLite admits one writer at a time.
func (r *appointmentRepoGorm) LockResources(context.Context, ...uuid.UUID) error {
	return nil
}
