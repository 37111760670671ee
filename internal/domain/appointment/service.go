package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/notification"
	"github.com/clinerva/clinerva/internal/platform/mailer"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrBadTransition       = errors.New("status change is not allowed from the current status")
	ErrNotCheckedIn        = errors.New("patient has not paid and checked in yet")
	ErrReceiptRequired     = errors.New("a payment receipt number is required to check in")
)

// ConsultationStarter opens the consultation when a doctor attends an
// appointment. The consultation service implements it; wiring happens in
// main to keep the packages independent.
type ConsultationStarter interface {
	Start(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID) (uuid.UUID, error)
}

type Service struct {
	repo          Repository
	notifications *notification.Service
	consultations ConsultationStarter
	mail          mailer.Mailer
	adminEmails   []string
	logger        zerolog.Logger
}

func NewService(repo Repository, notifications *notification.Service, mail mailer.Mailer, adminEmails []string, logger zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		notifications: notifications,
		mail:          mail,
		adminEmails:   adminEmails,
		logger:        logger,
	}
}

// SetConsultationStarter wires the consultation service in after both are
// constructed.
func (s *Service) SetConsultationStarter(cs ConsultationStarter) {
	s.consultations = cs
}

func (s *Service) Schedule(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if a.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if a.ScheduledAt.IsZero() {
		return fmt.Errorf("scheduled_at is required")
	}
	if a.DurationMin <= 0 {
		a.DurationMin = 30
	}
	a.Status = StatusScheduled
	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}
	if s.notifications != nil {
		err := s.notifications.Notify(ctx, &notification.Notification{
			RecipientID: a.DoctorID,
			Type:        notification.TypeAppointmentCreated,
			Title:       "Appointment scheduled",
			Body:        fmt.Sprintf("A new appointment was scheduled for %s.", a.ScheduledAt.Format("Jan 2 15:04")),
			Data:        map[string]interface{}{"appointment_id": a.ID.String()},
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("notify scheduling")
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// Reschedule moves a non-terminal appointment to a new slot.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if Terminal(a.Status) || a.Status == StatusInProgress {
		return nil, ErrBadTransition
	}
	a.ScheduledAt = newTime
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Progress advances the appointment one step: confirmed over the phone, then
// paid and checked in at the desk.
func (s *Service) Progress(ctx context.Context, id uuid.UUID, to string) (*Appointment, error) {
	if to == StatusCancelled || to == StatusInProgress || to == StatusCompleted || to == StatusPaidCheckedIn {
		return nil, fmt.Errorf("use the dedicated operation for %s", to)
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrBadTransition, a.Status, to)
	}
	a.Status = to
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckIn records the payment receipt and seats the patient. The receipt
// number is what the front desk reconciles against at closing.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID, receiptNumber string, amount float64) (*Appointment, error) {
	if receiptNumber == "" {
		return nil, ErrReceiptRequired
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusPaidCheckedIn) {
		return nil, fmt.Errorf("%w: %s to %s", ErrBadTransition, a.Status, StatusPaidCheckedIn)
	}
	a.Status = StatusPaidCheckedIn
	a.ReceiptNumber = &receiptNumber
	a.AmountPaid = &amount
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Attend is the doctor's entry into the visit: it opens the consultation and
// moves the appointment to in_progress. Only a paid, checked-in patient can
// be attended.
func (s *Service) Attend(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPaidCheckedIn {
		return nil, ErrNotCheckedIn
	}
	if s.consultations == nil {
		return nil, fmt.Errorf("consultation service is not wired")
	}

	consultID, err := s.consultations.Start(ctx, a.ID, a.PatientID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("start consultation: %w", err)
	}
	a.Status = StatusInProgress
	a.DoctorID = doctorID
	a.ConsultationID = &consultID
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Complete closes the appointment once its consultation finishes. Called by
// the consultation service through the wiring in main.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, StatusCompleted) {
		return fmt.Errorf("%w: %s to %s", ErrBadTransition, a.Status, StatusCompleted)
	}
	a.Status = StatusCompleted
	return s.repo.Update(ctx, a)
}

// Cancel terminates the appointment, notifies the assigned doctor in-app and
// mails the administrators in the background.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusCancelled) {
		return nil, fmt.Errorf("%w: %s is terminal", ErrBadTransition, a.Status)
	}
	a.Status = StatusCancelled
	a.CancelReason = &reason
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	if s.notifications != nil {
		err := s.notifications.Notify(ctx, &notification.Notification{
			RecipientID: a.DoctorID,
			Type:        notification.TypeAppointmentCancelled,
			Title:       "Appointment cancelled",
			Body:        fmt.Sprintf("The %s appointment was cancelled: %s", a.ScheduledAt.Format("Jan 2 15:04"), reason),
			Data:        map[string]interface{}{"appointment_id": a.ID.String()},
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("notify cancellation")
		}
	}
	if s.mail != nil && len(s.adminEmails) > 0 {
		subject := "Appointment cancelled"
		body := fmt.Sprintf("Appointment %s scheduled for %s was cancelled.\nReason: %s\n",
			a.ID, a.ScheduledAt.Format(time.RFC1123), reason)
		mailer.NotifyAsync(s.logger, s.mail, s.adminEmails, subject, body)
	}
	return a, nil
}

func (s *Service) ListDay(ctx context.Context, day time.Time, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByDay(ctx, day, doctorID, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// UpcomingForReminders returns tomorrow's confirmed and scheduled visits for
// the morning reminder job.
func (s *Service) UpcomingForReminders(ctx context.Context, now time.Time) ([]*Appointment, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	end := start.AddDate(0, 0, 1)
	return s.repo.ListBetween(ctx, start, end, []string{StatusScheduled, StatusConfirmedPhone})
}
