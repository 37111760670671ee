// Package seed loads a small demo dataset for development and sandbox
// environments. It is idempotent: records that already exist are skipped.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/appointment"
	"github.com/clinerva/clinerva/internal/domain/catalog"
	"github.com/clinerva/clinerva/internal/domain/identity"
	"github.com/clinerva/clinerva/internal/domain/patient"
	"github.com/clinerva/clinerva/internal/platform/auth"
)

// DemoPassword is shared by every seeded account.
const DemoPassword = "clinerva"

// Stock writes run against the inventory and can stall behind a bulk
// import; bound them so seeding never hangs the whole run.
const stockWriteTimeout = 8 * time.Second

const doctorEmail = "doctor@clinerva.local"

type Seeder struct {
	users    *identity.Service
	patients *patient.Service
	catalogs *catalog.Service
	appts    *appointment.Service
	logger   zerolog.Logger
}

func New(users *identity.Service, patients *patient.Service, catalogs *catalog.Service, appts *appointment.Service, logger zerolog.Logger) *Seeder {
	return &Seeder{
		users:    users,
		patients: patients,
		catalogs: catalogs,
		appts:    appts,
		logger:   logger.With().Str("component", "seed").Logger(),
	}
}

func (s *Seeder) Run(ctx context.Context) error {
	doctorID, err := s.seedUsers(ctx)
	if err != nil {
		return fmt.Errorf("seeding users: %w", err)
	}
	if err := s.seedCatalogs(ctx); err != nil {
		return fmt.Errorf("seeding catalogs: %w", err)
	}
	patientIDs, err := s.seedPatients(ctx)
	if err != nil {
		return fmt.Errorf("seeding patients: %w", err)
	}
	if err := s.seedAppointments(ctx, doctorID, patientIDs); err != nil {
		return fmt.Errorf("seeding appointments: %w", err)
	}
	s.logger.Info().Msg("demo data loaded")
	return nil
}

func (s *Seeder) seedUsers(ctx context.Context) (uuid.UUID, error) {
	users := []identity.User{
		{Email: "admin@clinerva.local", Name: "Ada Admin", Role: auth.RoleAdmin, Active: true},
		{Email: doctorEmail, Name: "Dr. Vargas", Role: auth.RoleDoctor, Specialty: "General Medicine", Active: true},
		{Email: "nurse@clinerva.local", Name: "Nina Flores", Role: auth.RoleNurse, Active: true},
		{Email: "reception@clinerva.local", Name: "Rita Soto", Role: auth.RoleReceptionist, Active: true},
		{Email: "resident@clinerva.local", Name: "Leo Paredes", Role: auth.RoleResident, Active: true},
	}
	for i := range users {
		u := &users[i]
		if err := s.users.CreateUser(ctx, u, DemoPassword); err != nil {
			if errors.Is(err, identity.ErrEmailTaken) {
				continue
			}
			return uuid.Nil, err
		}
	}
	return s.findDoctor(ctx)
}

func (s *Seeder) findDoctor(ctx context.Context) (uuid.UUID, error) {
	all, _, err := s.users.ListUsers(ctx, 100, 0)
	if err != nil {
		return uuid.Nil, err
	}
	for _, u := range all {
		if u.Email == doctorEmail {
			return u.ID, nil
		}
	}
	return uuid.Nil, errors.New("seeded doctor account not found")
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func (s *Seeder) seedCatalogs(ctx context.Context) error {
	items := []catalog.Item{
		{Kind: catalog.KindSpecialty, Name: "General Medicine", Active: true},
		{Kind: catalog.KindSpecialty, Name: "Pediatrics", Active: true},
		{Kind: catalog.KindSpecialty, Name: "Cardiology", Active: true},
		{Kind: catalog.KindPathology, Name: "Hypertension", Code: "I10", Exams: []string{"Basic metabolic panel", "Lipid panel"}, Active: true},
		{Kind: catalog.KindPathology, Name: "Type 2 diabetes", Code: "E11", Exams: []string{"Fasting glucose", "HbA1c"}, Active: true},
		{Kind: catalog.KindLabItem, Name: "Complete blood count", Price: floatPtr(12.50), Active: true},
		{Kind: catalog.KindLabItem, Name: "Lipid panel", Price: floatPtr(18.00), Active: true},
		{Kind: catalog.KindMedicine, Name: "Amoxicillin 500mg", Strength: "500", Unit: "mg", Price: floatPtr(0.35), Stock: intPtr(200), Active: true},
		{Kind: catalog.KindMedicine, Name: "Loratadine 10mg", Strength: "10", Unit: "mg", Price: floatPtr(0.20), Stock: intPtr(120), Active: true},
		{Kind: catalog.KindExternalMedicine, Name: "Insulin glargine", Strength: "100", Unit: "IU/ml", Active: true},
	}
	var medicineID uuid.UUID
	for i := range items {
		it := &items[i]
		if err := s.catalogs.Create(ctx, it); err != nil {
			if errors.Is(err, catalog.ErrDuplicateItem) {
				continue
			}
			return err
		}
		if it.Kind == catalog.KindMedicine && medicineID == uuid.Nil {
			medicineID = it.ID
		}
	}

	if medicineID != uuid.Nil {
		stockCtx, cancel := context.WithTimeout(ctx, stockWriteTimeout)
		defer cancel()
		if _, err := s.catalogs.AdjustStock(stockCtx, medicineID, 50); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedPatients(ctx context.Context) ([]uuid.UUID, error) {
	birth := func(y, m, d int) *time.Time {
		t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	demo := []patient.Patient{
		{
			BillingCode: "BC-1001", FirstName: "Elena", LastName: "Morales", Sex: "F",
			BirthDate: birth(1984, 6, 2), Phone: "555-0101",
			Address:   patient.Address{Country: "Guatemala", Department: "Guatemala", Municipality: "Mixco", Zone: "4"},
		},
		{
			BillingCode: "BC-1002", FirstName: "Marco", LastName: "Reyes", Sex: "M",
			BirthDate: birth(1975, 11, 19), Phone: "555-0102", Allergies: "penicillin",
			MedicalHistory: "Type 2 diabetes, controlled with metformin since 2019.",
		},
		{
			BillingCode: "BC-1003", FirstName: "Lucia", LastName: "Campos", Sex: "F",
			BirthDate: birth(2015, 2, 27), Phone: "555-0103",
			Responsible: &patient.ResponsibleParty{Name: "Ana Campos", Phone: "555-0104", Relationship: "mother"},
		},
	}
	var ids []uuid.UUID
	for i := range demo {
		p := &demo[i]
		if err := s.patients.Register(ctx, p); err != nil {
			if errors.Is(err, patient.ErrBillingCodeTaken) {
				existing, lookupErr := s.patients.GetByBillingCode(ctx, p.BillingCode)
				if lookupErr != nil {
					return nil, lookupErr
				}
				ids = append(ids, existing.ID)
				continue
			}
			return nil, err
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *Seeder) seedAppointments(ctx context.Context, doctorID uuid.UUID, patientIDs []uuid.UUID) error {
	if len(patientIDs) == 0 {
		return nil
	}
	tomorrow := time.Now().AddDate(0, 0, 1)
	at := func(hour int) time.Time {
		return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), hour, 0, 0, 0, time.Local)
	}
	for i, pid := range patientIDs {
		existing, _, err := s.appts.ListByPatient(ctx, pid, 1, 0)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		a := &appointment.Appointment{
			PatientID:   pid,
			DoctorID:    doctorID,
			ScheduledAt: at(9 + i),
			Reason:      "Routine check-up",
		}
		if err := s.appts.Schedule(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
