package scheduling

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbecken/smiles/internal/platform/auth"
	"github.com/lbecken/smiles/internal/platform/db"
)

func newGormRepo(t *testing.T) (AppointmentRepository, *db.GormTxManager) {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrateGorm(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewAppointmentRepoGorm(gdb), db.NewGormTxManager(gdb)
}

func TestAppointmentRepoGorm_CRUD(t *testing.T) {
	repo, _ := newGormRepo(t)
	ctx := context.Background()

	a := &Appointment{
		PatientID: uuid.New(), DentistID: uuid.New(), RoomID: uuid.New(), FacilityID: uuid.New(),
		StartTime: at(9, 0), EndTime: at(10, 0), Status: StatusScheduled,
	}
	require.NoError(t, repo.Create(ctx, a))
	require.NotEqual(t, uuid.Nil, a.ID)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.StartTime.Equal(a.StartTime))
	assert.Equal(t, a.DentistID, got.DentistID)
	assert.Equal(t, StatusScheduled, got.Status)

	got.Status = StatusOngoing
	got.EndTime = at(10, 30)
	require.NoError(t, repo.Update(ctx, got))

	reloaded, err := repo.GetForUpdate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOngoing, reloaded.Status)
	assert.True(t, reloaded.EndTime.Equal(at(10, 30)))

	require.NoError(t, repo.Delete(ctx, a.ID))
	_, err = repo.GetByID(ctx, a.ID)
	assert.True(t, errors.Is(err, ErrAppointmentNotFound))
	assert.True(t, errors.Is(repo.Delete(ctx, a.ID), ErrAppointmentNotFound))
	assert.True(t, errors.Is(repo.Update(ctx, a), ErrAppointmentNotFound))
}

func TestAppointmentRepoGorm_HasConflict(t *testing.T) {
	repo, _ := newGormRepo(t)
	ctx := context.Background()
	dentist, room := uuid.New(), uuid.New()

	booked := &Appointment{
		PatientID: uuid.New(), DentistID: dentist, RoomID: room, FacilityID: uuid.New(),
		StartTime: at(9, 0), EndTime: at(10, 0), Status: StatusScheduled,
	}
	require.NoError(t, repo.Create(ctx, booked))

	tests := []struct {
		name    string
		kind    ResourceKind
		id      uuid.UUID
		window  Interval
		exclude Optional[uuid.UUID]
		want    bool
	}{
		{"dentist overlap", ResourceDentist, dentist, Interval{at(9, 30), at(10, 30)}, None[uuid.UUID](), true},
		{"room overlap", ResourceRoom, room, Interval{at(8, 30), at(9, 1)}, None[uuid.UUID](), true},
		{"touching end", ResourceDentist, dentist, Interval{at(10, 0), at(11, 0)}, None[uuid.UUID](), false},
		{"touching start", ResourceRoom, room, Interval{at(8, 0), at(9, 0)}, None[uuid.UUID](), false},
		{"other dentist", ResourceDentist, uuid.New(), Interval{at(9, 0), at(10, 0)}, None[uuid.UUID](), false},
		{"room id as dentist", ResourceDentist, room, Interval{at(9, 0), at(10, 0)}, None[uuid.UUID](), false},
		{"excluded self", ResourceDentist, dentist, Interval{at(9, 0), at(10, 0)}, Some(booked.ID), false},
		{"excluded other", ResourceDentist, dentist, Interval{at(9, 0), at(10, 0)}, Some(uuid.New()), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.HasConflict(ctx, tt.kind, tt.id, tt.window, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	booked.Status = StatusCancelled
	require.NoError(t, repo.Update(ctx, booked))
	got, err := repo.HasConflict(ctx, ResourceDentist, dentist, Interval{at(9, 0), at(10, 0)}, None[uuid.UUID]())
	require.NoError(t, err)
	assert.False(t, got, "cancelled appointments never conflict")

	_, err = repo.HasConflict(ctx, ResourceKind("chair"), room, Interval{at(9, 0), at(10, 0)}, None[uuid.UUID]())
	assert.Error(t, err)
}

func TestAppointmentRepoGorm_Listings(t *testing.T) {
	repo, _ := newGormRepo(t)
	ctx := context.Background()
	facility, patient, dentist := uuid.New(), uuid.New(), uuid.New()

	for _, h := range []int{14, 9, 11} {
		require.NoError(t, repo.Create(ctx, &Appointment{
			PatientID: patient, DentistID: dentist, RoomID: uuid.New(), FacilityID: facility,
			StartTime: at(h, 0), EndTime: at(h+1, 0), Status: StatusScheduled,
		}))
	}
	require.NoError(t, repo.Create(ctx, &Appointment{
		PatientID: uuid.New(), DentistID: uuid.New(), RoomID: uuid.New(), FacilityID: uuid.New(),
		StartTime: at(9, 0), EndTime: at(10, 0), Status: StatusScheduled,
	}))

	all, err := repo.ListByFacility(ctx, facility)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].StartTime.Equal(at(9, 0)))
	assert.True(t, all[1].StartTime.Equal(at(11, 0)))
	assert.True(t, all[2].StartTime.Equal(at(14, 0)))

	ranged, err := repo.ListByFacilityInRange(ctx, facility, Interval{at(10, 0), at(14, 0)})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.True(t, ranged[0].StartTime.Equal(at(11, 0)))

	byPatient, err := repo.ListByPatient(ctx, patient)
	require.NoError(t, err)
	assert.Len(t, byPatient, 3)

	byDentist, err := repo.ListByDentist(ctx, dentist)
	require.NoError(t, err)
	assert.Len(t, byDentist, 3)

	none, err := repo.ListByDentist(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestService_WithGormStore(t *testing.T) {
	repo, tx := newGormRepo(t)
	f := newFixture()
	dir := f.svc.directory
	svc := NewService(repo, tx, dir, auth.AllowAll{})
	ctx := context.Background()

	a, err := svc.CreateAppointment(ctx, admin, f.request(at(9, 0), at(10, 0)))
	require.NoError(t, err)

	_, err = svc.CreateAppointment(ctx, admin, f.request(at(9, 30), at(10, 30)))
	assert.True(t, IsConflict(err))

	// A failed update rolls back and leaves the stored row untouched.
	second, err := svc.CreateAppointment(ctx, admin, f.request(at(11, 0), at(12, 0)))
	require.NoError(t, err)
	_, err = svc.UpdateAppointment(ctx, admin, second.ID, AppointmentUpdate{StartTime: Some(at(9, 59))})
	assert.True(t, IsConflict(err))
	stored, err := svc.GetAppointment(ctx, admin, second.ID)
	require.NoError(t, err)
	assert.True(t, stored.StartTime.Equal(at(11, 0)))

	_, err = svc.UpdateAppointment(ctx, admin, a.ID, AppointmentUpdate{EndTime: Some(at(11, 30))})
	assert.True(t, IsConflict(err), "extending into the next booking must conflict")

	_, err = svc.CancelAppointment(ctx, admin, a.ID)
	require.NoError(t, err)
	_, err = svc.CreateAppointment(ctx, admin, f.request(at(9, 30), at(10, 30)))
	assert.NoError(t, err)
}

func TestAppointmentRepoGorm_RefusesLiveOverlap(t *testing.T) {
	repo, _ := newGormRepo(t)
	ctx := context.Background()
	dentist, room := uuid.New(), uuid.New()

	live := &Appointment{
		PatientID: uuid.New(), DentistID: dentist, RoomID: room, FacilityID: uuid.New(),
		StartTime: at(9, 0), EndTime: at(10, 0), Status: StatusScheduled,
	}
	require.NoError(t, repo.Create(ctx, live))

	err := repo.Create(ctx, &Appointment{
		PatientID: uuid.New(), DentistID: uuid.New(), RoomID: room, FacilityID: uuid.New(),
		StartTime: at(9, 30), EndTime: at(10, 30), Status: StatusScheduled,
	})
	assert.True(t, IsConflict(err))

	cancelled := &Appointment{
		PatientID: uuid.New(), DentistID: dentist, RoomID: uuid.New(), FacilityID: uuid.New(),
		StartTime: at(9, 0), EndTime: at(10, 0), Status: StatusCancelled,
	}
	require.NoError(t, repo.Create(ctx, cancelled), "cancelled rows never overlap")

	cancelled.Status = StatusScheduled
	err = repo.Update(ctx, cancelled)
	require.True(t, IsConflict(err))
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ResourceDentist, se.Resource)

	stored, err := repo.GetByID(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
}

func TestService_WithGormStore_UnknownPatient(t *testing.T) {
	repo, tx := newGormRepo(t)
	f := newFixture()
	svc := NewService(repo, tx, f.svc.directory, auth.AllowAll{})
	ctx := context.Background()

	req := f.request(at(9, 0), at(10, 0))
	req.PatientID = uuid.New()
	_, err := svc.CreateAppointment(ctx, admin, req)
	expectError(t, err, KindNotFound, fmt.Sprintf("Patient not found: %s", req.PatientID))

	listed, err := repo.ListByFacility(ctx, f.facility)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestService_WithGormStore_ReactivationIntoTakenSlot(t *testing.T) {
	repo, tx := newGormRepo(t)
	f := newFixture()
	svc := NewService(repo, tx, f.svc.directory, auth.AllowAll{})
	ctx := context.Background()

	first, err := svc.CreateAppointment(ctx, admin, f.request(at(9, 0), at(10, 0)))
	require.NoError(t, err)
	_, err = svc.CancelAppointment(ctx, admin, first.ID)
	require.NoError(t, err)
	_, err = svc.CreateAppointment(ctx, admin, f.request(at(9, 30), at(10, 30)))
	require.NoError(t, err)

	_, err = svc.UpdateAppointment(ctx, admin, first.ID, AppointmentUpdate{Status: Some("scheduled")})
	expectError(t, err, KindConflict, "Dentist has a conflicting appointment at this time")

	stored, err := svc.GetAppointment(ctx, admin, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)

	_, err = svc.UpdateAppointment(ctx, admin, first.ID, AppointmentUpdate{Status: Some("cancelled")})
	assert.NoError(t, err, "a cancelled booking can always be saved")
}
