package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lbecken/smiles/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// -- Facility --

const facilityCols = `id, name, city, address, created_at, updated_at`

func scanFacility(row pgx.Row) (*Facility, error) {
	var f Facility
	if err := row.Scan(&f.ID, &f.Name, &f.City, &f.Address, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func (r *repoPG) CreateFacility(ctx context.Context, f *Facility) error {
	f.ID = uuid.New()
	f.CreatedAt = time.Now().UTC()
	f.UpdatedAt = f.CreatedAt
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO facility (id, name, city, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.Name, f.City, f.Address, f.CreatedAt, f.UpdatedAt)
	return err
}

func (r *repoPG) GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error) {
	return scanFacility(r.conn(ctx).QueryRow(ctx, `SELECT `+facilityCols+` FROM facility WHERE id = $1`, id))
}

func (r *repoPG) ListFacilities(ctx context.Context) ([]*Facility, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+facilityCols+` FROM facility ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// -- Staff --

const staffCols = `id, facility_id, keycloak_user_id, name, email, role, active, created_at, updated_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	if err := row.Scan(&s.ID, &s.FacilityID, &s.KeycloakUserID, &s.Name, &s.Email,
		&s.Role, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *repoPG) CreateStaff(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO staff (`+staffCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.FacilityID, s.KeycloakUserID, s.Name, s.Email, s.Role, s.Active, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *repoPG) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id))
}

func (r *repoPG) ListStaff(ctx context.Context, facilityID uuid.UUID) ([]*Staff, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+staffCols+` FROM staff WHERE facility_id = $1 ORDER BY name`, facilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// -- Room --

const roomCols = `id, facility_id, name, type, active, created_at, updated_at`

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	if err := row.Scan(&rm.ID, &rm.FacilityID, &rm.Name, &rm.Type, &rm.Active, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &rm, nil
}

func (r *repoPG) CreateRoom(ctx context.Context, rm *Room) error {
	rm.ID = uuid.New()
	rm.CreatedAt = time.Now().UTC()
	rm.UpdatedAt = rm.CreatedAt
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO room (`+roomCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rm.ID, rm.FacilityID, rm.Name, rm.Type, rm.Active, rm.CreatedAt, rm.UpdatedAt)
	return err
}

func (r *repoPG) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE id = $1`, id))
}

func (r *repoPG) ListRooms(ctx context.Context, facilityID uuid.UUID) ([]*Room, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+roomCols+` FROM room WHERE facility_id = $1 ORDER BY name`, facilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rm)
	}
	return items, rows.Err()
}

// -- Patient --

const patientCols = `id, facility_id, keycloak_user_id, name, birth_date, email, phone, address,
	active, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.FacilityID, &p.KeycloakUserID, &p.Name, &p.BirthDate,
		&p.Email, &p.Phone, &p.Address, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (`+patientCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.FacilityID, p.KeycloakUserID, p.Name, p.BirthDate,
		p.Email, p.Phone, p.Address, p.Active, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) FacilityForSubject(ctx context.Context, subject string) (uuid.UUID, error) {
	var facilityID uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT facility_id FROM (
			SELECT facility_id, 1 AS rank FROM staff WHERE keycloak_user_id = $1 AND active
			UNION ALL
			SELECT facility_id, 2 AS rank FROM patient WHERE keycloak_user_id = $1 AND active
		) linked ORDER BY rank LIMIT 1`, subject).Scan(&facilityID)
	if err != nil {
		return uuid.Nil, notFound(err)
	}
	return facilityID, nil
}
