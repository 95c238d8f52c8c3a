package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
)

// Transactor runs fn inside a single store transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SeedOptions sizes the demo data set.
type SeedOptions struct {
	Facilities          int
	DentistsPerFacility int
	ChairsPerFacility   int
	PatientsPerFacility int
}

func DefaultSeedOptions() SeedOptions {
	return SeedOptions{Facilities: 2, DentistsPerFacility: 3, ChairsPerFacility: 3, PatientsPerFacility: 20}
}

// SeedSummary counts the records written by Seed.
type SeedSummary struct {
	Facilities int `json:"facilities"`
	Staff      int `json:"staff"`
	Rooms      int `json:"rooms"`
	Patients   int `json:"patients"`
}

// Seeder fills an empty registry with generated facilities, staff, rooms and
// patients. Staff and patients get predictable subjects (dentist-1-2,
// receptionist-1, patient-2-7) so development tokens can be minted for them.
type Seeder struct {
	repo   Repository
	tx     Transactor
	faker  *gofakeit.Faker
	logger zerolog.Logger
	seq    int
}

func NewSeeder(repo Repository, tx Transactor, seed uint64, logger zerolog.Logger) *Seeder {
	return &Seeder{repo: repo, tx: tx, faker: gofakeit.New(seed), logger: logger}
}

// Seed writes one transaction per facility.
func (s *Seeder) Seed(ctx context.Context, opts SeedOptions) (*SeedSummary, error) {
	sum := &SeedSummary{}
	for i := 1; i <= opts.Facilities; i++ {
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			return s.seedFacility(ctx, i, opts, sum)
		})
		if err != nil {
			return sum, fmt.Errorf("seed facility %d: %w", i, err)
		}
	}
	return sum, nil
}

func (s *Seeder) seedFacility(ctx context.Context, n int, opts SeedOptions, sum *SeedSummary) error {
	city := s.faker.City()
	f := &Facility{
		Name:    fmt.Sprintf("%s Dental %s", city, s.faker.LastName()),
		City:    city,
		Address: s.faker.Street(),
	}
	if err := s.repo.CreateFacility(ctx, f); err != nil {
		return fmt.Errorf("create facility: %w", err)
	}
	sum.Facilities++

	staff := []struct {
		role    StaffRole
		subject string
	}{
		{RoleReceptionist, fmt.Sprintf("receptionist-%d", n)},
		{RoleAssistant, fmt.Sprintf("assistant-%d", n)},
	}
	for d := 1; d <= opts.DentistsPerFacility; d++ {
		staff = append(staff, struct {
			role    StaffRole
			subject string
		}{RoleDentist, fmt.Sprintf("dentist-%d-%d", n, d)})
	}
	for _, st := range staff {
		subject := st.subject
		member := &Staff{
			FacilityID:     f.ID,
			KeycloakUserID: &subject,
			Name:           s.faker.Name(),
			Email:          s.email(),
			Role:           st.role,
			Active:         true,
		}
		if err := s.repo.CreateStaff(ctx, member); err != nil {
			return fmt.Errorf("create staff %s: %w", subject, err)
		}
		sum.Staff++
	}

	rooms := make([]*Room, 0, opts.ChairsPerFacility+1)
	for c := 1; c <= opts.ChairsPerFacility; c++ {
		rooms = append(rooms, &Room{FacilityID: f.ID, Name: fmt.Sprintf("Chair %d", c), Type: RoomChair, Active: true})
	}
	rooms = append(rooms, &Room{FacilityID: f.ID, Name: "Surgery 1", Type: RoomSurgery, Active: true})
	for _, rm := range rooms {
		if err := s.repo.CreateRoom(ctx, rm); err != nil {
			return fmt.Errorf("create room %s: %w", rm.Name, err)
		}
		sum.Rooms++
	}

	now := time.Now().UTC()
	for p := 1; p <= opts.PatientsPerFacility; p++ {
		subject := fmt.Sprintf("patient-%d-%d", n, p)
		email := s.email()
		phone := s.faker.Phone()
		address := s.faker.Street()
		birth := s.faker.DateRange(now.AddDate(-90, 0, 0), now.AddDate(-2, 0, 0))
		patient := &Patient{
			FacilityID:     f.ID,
			KeycloakUserID: &subject,
			Name:           s.faker.Name(),
			BirthDate:      time.Date(birth.Year(), birth.Month(), birth.Day(), 0, 0, 0, 0, time.UTC),
			Email:          &email,
			Phone:          &phone,
			Address:        &address,
			Active:         true,
		}
		if err := s.repo.CreatePatient(ctx, patient); err != nil {
			return fmt.Errorf("create patient %s: %w", subject, err)
		}
		sum.Patients++
	}

	s.logger.Info().
		Str("facility_id", f.ID.String()).
		Str("name", f.Name).
		Int("dentists", opts.DentistsPerFacility).
		Int("rooms", len(rooms)).
		Int("patients", opts.PatientsPerFacility).
		Msg("facility seeded")
	return nil
}

// email returns a generated address made unique by a running sequence.
func (s *Seeder) email() string {
	s.seq++
	return strings.ToLower(fmt.Sprintf("%s.%d@%s", s.faker.FirstName(), s.seq, s.faker.DomainName()))
}
