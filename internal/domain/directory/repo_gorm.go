package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lbecken/smiles/internal/platform/db"
)

type facilityRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	City      string    `gorm:"size:255;not null"`
	Address   string    `gorm:"size:500;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (facilityRecord) TableName() string { return "facility" }

type staffRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	FacilityID     uuid.UUID `gorm:"type:uuid;not null;index"`
	KeycloakUserID *string   `gorm:"size:255;uniqueIndex"`
	Name           string    `gorm:"size:255;not null"`
	Email          string    `gorm:"size:255;not null;uniqueIndex"`
	Role           string    `gorm:"size:32;not null"`
	Active         bool      `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (staffRecord) TableName() string { return "staff" }

type roomRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	FacilityID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_facility_name,priority:1"`
	Name       string    `gorm:"size:255;not null;uniqueIndex:idx_room_facility_name,priority:2"`
	Type       string    `gorm:"size:32;not null"`
	Active     bool      `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (roomRecord) TableName() string { return "room" }

type patientRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	FacilityID     uuid.UUID `gorm:"type:uuid;not null;index"`
	KeycloakUserID *string   `gorm:"size:255;uniqueIndex"`
	Name           string    `gorm:"size:255;not null"`
	BirthDate      time.Time `gorm:"not null"`
	Email          *string   `gorm:"size:255"`
	Phone          *string   `gorm:"size:50"`
	Address        *string   `gorm:"size:500"`
	Active         bool      `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (patientRecord) TableName() string { return "patient" }

// AutoMigrateGorm creates the registry tables for the embedded store.
func AutoMigrateGorm(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&facilityRecord{}, &staffRecord{}, &roomRecord{}, &patientRecord{})
}

type repoGorm struct {
	db *gorm.DB
}

func NewRepoGorm(gdb *gorm.DB) Repository {
	return &repoGorm{db: gdb}
}

func (r *repoGorm) conn(ctx context.Context) *gorm.DB {
	return db.GormFromContext(ctx, r.db)
}

func take(q *gorm.DB, dest interface{}) error {
	err := q.Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// -- Facility --

func (r *repoGorm) CreateFacility(ctx context.Context, f *Facility) error {
	f.ID = uuid.New()
	rec := facilityRecord{ID: f.ID, Name: f.Name, City: f.City, Address: f.Address}
	if err := r.conn(ctx).Create(&rec).Error; err != nil {
		return err
	}
	f.CreatedAt, f.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (rec *facilityRecord) toFacility() *Facility {
	return &Facility{ID: rec.ID, Name: rec.Name, City: rec.City, Address: rec.Address,
		CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
}

func (r *repoGorm) GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error) {
	var rec facilityRecord
	if err := take(r.conn(ctx).Where("id = ?", id), &rec); err != nil {
		return nil, err
	}
	return rec.toFacility(), nil
}

func (r *repoGorm) ListFacilities(ctx context.Context) ([]*Facility, error) {
	var recs []facilityRecord
	if err := r.conn(ctx).Order("name").Find(&recs).Error; err != nil {
		return nil, err
	}
	items := make([]*Facility, 0, len(recs))
	for i := range recs {
		items = append(items, recs[i].toFacility())
	}
	return items, nil
}

// -- Staff --

func (rec *staffRecord) toStaff() *Staff {
	return &Staff{ID: rec.ID, FacilityID: rec.FacilityID, KeycloakUserID: rec.KeycloakUserID,
		Name: rec.Name, Email: rec.Email, Role: StaffRole(rec.Role), Active: rec.Active,
		CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
}

func (r *repoGorm) CreateStaff(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	rec := staffRecord{ID: s.ID, FacilityID: s.FacilityID, KeycloakUserID: s.KeycloakUserID,
		Name: s.Name, Email: s.Email, Role: string(s.Role), Active: s.Active}
	if err := r.conn(ctx).Create(&rec).Error; err != nil {
		return err
	}
	s.CreatedAt, s.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (r *repoGorm) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	var rec staffRecord
	if err := take(r.conn(ctx).Where("id = ?", id), &rec); err != nil {
		return nil, err
	}
	return rec.toStaff(), nil
}

func (r *repoGorm) ListStaff(ctx context.Context, facilityID uuid.UUID) ([]*Staff, error) {
	var recs []staffRecord
	if err := r.conn(ctx).Where("facility_id = ?", facilityID).Order("name").Find(&recs).Error; err != nil {
		return nil, err
	}
	items := make([]*Staff, 0, len(recs))
	for i := range recs {
		items = append(items, recs[i].toStaff())
	}
	return items, nil
}

// -- Room --

func (rec *roomRecord) toRoom() *Room {
	return &Room{ID: rec.ID, FacilityID: rec.FacilityID, Name: rec.Name, Type: RoomType(rec.Type),
		Active: rec.Active, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
}

func (r *repoGorm) CreateRoom(ctx context.Context, rm *Room) error {
	rm.ID = uuid.New()
	rec := roomRecord{ID: rm.ID, FacilityID: rm.FacilityID, Name: rm.Name, Type: string(rm.Type), Active: rm.Active}
	if err := r.conn(ctx).Create(&rec).Error; err != nil {
		return err
	}
	rm.CreatedAt, rm.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (r *repoGorm) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	var rec roomRecord
	if err := take(r.conn(ctx).Where("id = ?", id), &rec); err != nil {
		return nil, err
	}
	return rec.toRoom(), nil
}

func (r *repoGorm) ListRooms(ctx context.Context, facilityID uuid.UUID) ([]*Room, error) {
	var recs []roomRecord
	if err := r.conn(ctx).Where("facility_id = ?", facilityID).Order("name").Find(&recs).Error; err != nil {
		return nil, err
	}
	items := make([]*Room, 0, len(recs))
	for i := range recs {
		items = append(items, recs[i].toRoom())
	}
	return items, nil
}

// -- Patient --

func (r *repoGorm) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	rec := patientRecord{ID: p.ID, FacilityID: p.FacilityID, KeycloakUserID: p.KeycloakUserID,
		Name: p.Name, BirthDate: p.BirthDate.UTC(), Email: p.Email, Phone: p.Phone,
		Address: p.Address, Active: p.Active}
	if err := r.conn(ctx).Create(&rec).Error; err != nil {
		return err
	}
	p.CreatedAt, p.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (r *repoGorm) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var rec patientRecord
	if err := take(r.conn(ctx).Where("id = ?", id), &rec); err != nil {
		return nil, err
	}
	return &Patient{ID: rec.ID, FacilityID: rec.FacilityID, KeycloakUserID: rec.KeycloakUserID,
		Name: rec.Name, BirthDate: rec.BirthDate, Email: rec.Email, Phone: rec.Phone,
		Address: rec.Address, Active: rec.Active, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}, nil
}

func (r *repoGorm) FacilityForSubject(ctx context.Context, subject string) (uuid.UUID, error) {
	var staff staffRecord
	err := take(r.conn(ctx).Where("keycloak_user_id = ? AND active = ?", subject, true), &staff)
	if err == nil {
		return staff.FacilityID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return uuid.Nil, err
	}

	var patient patientRecord
	if err := take(r.conn(ctx).Where("keycloak_user_id = ? AND active = ?", subject, true), &patient); err != nil {
		return uuid.Nil, err
	}
	return patient.FacilityID, nil
}
