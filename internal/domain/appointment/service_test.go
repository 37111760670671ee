package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/notification"
	"github.com/clinerva/clinerva/internal/platform/mailer"
)

// -- Mock Repository --

type mockRepo struct {
	appts map[uuid.UUID]*Appointment
}

func newMockRepo() *mockRepo {
	return &mockRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	m.appts[a.ID] = a
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

func (m *mockRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	m.appts[a.ID] = a
	return nil
}

func (m *mockRepo) ListByDay(_ context.Context, day time.Time, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.appts {
		if a.ScheduledAt.Year() == day.Year() && a.ScheduledAt.YearDay() == day.YearDay() {
			if doctorID != uuid.Nil && a.DoctorID != doctorID {
				continue
			}
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListBetween(_ context.Context, from, to time.Time, statuses []string) ([]*Appointment, error) {
	allowed := map[string]bool{}
	for _, st := range statuses {
		allowed[st] = true
	}
	var out []*Appointment
	for _, a := range m.appts {
		if !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) && allowed[a.Status] {
			out = append(out, a)
		}
	}
	return out, nil
}

// -- Notification mock repo (map-backed, see notification package tests) --

type notifRepo struct {
	rows []*notification.Notification
}

func (m *notifRepo) Create(_ context.Context, n *notification.Notification) error {
	n.ID = uuid.New()
	m.rows = append(m.rows, n)
	return nil
}
func (m *notifRepo) ListByRecipient(_ context.Context, rid uuid.UUID, unreadOnly bool, limit, offset int) ([]*notification.Notification, int, error) {
	return nil, 0, nil
}
func (m *notifRepo) MarkRead(_ context.Context, id, rid uuid.UUID) error    { return nil }
func (m *notifRepo) MarkAllRead(_ context.Context, rid uuid.UUID) error    { return nil }
func (m *notifRepo) CountUnread(_ context.Context, rid uuid.UUID) (int, error) { return 0, nil }
func (m *notifRepo) DeleteOlderThan(_ context.Context, days int) (int64, error) { return 0, nil }

type fakeStarter struct {
	started bool
	id      uuid.UUID
	err     error
}

func (f *fakeStarter) Start(_ context.Context, appointmentID, patientID, doctorID uuid.UUID) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.started = true
	f.id = uuid.New()
	return f.id, nil
}

// -- Helpers --

func newTestService() (*Service, *mockRepo, *notifRepo) {
	repo := newMockRepo()
	nrepo := &notifRepo{}
	nsvc := notification.NewService(nrepo, nil, zerolog.Nop())
	svc := NewService(repo, nsvc, mailer.Nop{}, nil, zerolog.Nop())
	return svc, repo, nrepo
}

func schedule(t *testing.T, svc *Service) *Appointment {
	t.Helper()
	a := &Appointment{
		PatientID:   uuid.New(),
		DoctorID:    uuid.New(),
		ScheduledAt: time.Now().Add(24 * time.Hour),
		Reason:      "checkup",
	}
	if err := svc.Schedule(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

// -- Tests --

func TestSchedule_Defaults(t *testing.T) {
	svc, _, _ := newTestService()
	a := schedule(t, svc)
	if a.Status != StatusScheduled {
		t.Errorf("expected scheduled status, got %q", a.Status)
	}
	if a.DurationMin != 30 {
		t.Errorf("expected default duration 30, got %d", a.DurationMin)
	}
}

func TestSchedule_NotifiesDoctor(t *testing.T) {
	svc, _, nrepo := newTestService()
	a := schedule(t, svc)

	if len(nrepo.rows) != 1 {
		t.Fatalf("expected one notification, got %d", len(nrepo.rows))
	}
	n := nrepo.rows[0]
	if n.Type != notification.TypeAppointmentCreated || n.RecipientID != a.DoctorID {
		t.Errorf("expected a created notification for the doctor, got %+v", n)
	}
}

func TestProgress_FollowsOrder(t *testing.T) {
	svc, _, _ := newTestService()
	a := schedule(t, svc)

	// Skipping the phone confirmation is not allowed.
	if _, err := svc.CheckIn(context.Background(), a.ID, "R-0001", 150); !errors.Is(err, ErrBadTransition) {
		t.Errorf("expected ErrBadTransition, got %v", err)
	}

	if _, err := svc.Progress(context.Background(), a.ID, StatusConfirmedPhone); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CheckIn(context.Background(), a.ID, "R-0001", 150); err != nil {
		t.Fatal(err)
	}
}

func TestProgress_RejectsGuardedStatuses(t *testing.T) {
	svc, _, _ := newTestService()
	a := schedule(t, svc)
	for _, to := range []string{StatusCancelled, StatusInProgress, StatusCompleted, StatusPaidCheckedIn} {
		if _, err := svc.Progress(context.Background(), a.ID, to); err == nil {
			t.Errorf("progress to %s must go through its dedicated operation", to)
		}
	}
}

func TestCheckIn_RecordsPayment(t *testing.T) {
	svc, repo, _ := newTestService()
	a := schedule(t, svc)
	if _, err := svc.Progress(context.Background(), a.ID, StatusConfirmedPhone); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.CheckIn(context.Background(), a.ID, "", 150); !errors.Is(err, ErrReceiptRequired) {
		t.Errorf("check-in without a receipt: %v", err)
	}

	got, err := svc.CheckIn(context.Background(), a.ID, "R-2041", 275.50)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPaidCheckedIn {
		t.Errorf("expected paid_checked_in, got %q", got.Status)
	}
	if got.ReceiptNumber == nil || *got.ReceiptNumber != "R-2041" {
		t.Errorf("receipt_number = %v", got.ReceiptNumber)
	}
	if got.AmountPaid == nil || *got.AmountPaid != 275.50 {
		t.Errorf("amount_paid = %v", got.AmountPaid)
	}
	_ = repo
}

func TestAttend_RequiresCheckIn(t *testing.T) {
	svc, _, _ := newTestService()
	starter := &fakeStarter{}
	svc.SetConsultationStarter(starter)
	a := schedule(t, svc)

	if _, err := svc.Attend(context.Background(), a.ID, a.DoctorID); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("expected ErrNotCheckedIn, got %v", err)
	}

	if _, err := svc.Progress(context.Background(), a.ID, StatusConfirmedPhone); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CheckIn(context.Background(), a.ID, "R-0002", 150); err != nil {
		t.Fatal(err)
	}

	attended, err := svc.Attend(context.Background(), a.ID, a.DoctorID)
	if err != nil {
		t.Fatal(err)
	}
	if attended.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %q", attended.Status)
	}
	if !starter.started || attended.ConsultationID == nil || *attended.ConsultationID != starter.id {
		t.Error("consultation should be opened and linked")
	}
}

func TestAttend_ConsultationFailureKeepsStatus(t *testing.T) {
	svc, repo, _ := newTestService()
	svc.SetConsultationStarter(&fakeStarter{err: errors.New("db down")})
	a := schedule(t, svc)
	if _, err := svc.Progress(context.Background(), a.ID, StatusConfirmedPhone); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CheckIn(context.Background(), a.ID, "R-0003", 150); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Attend(context.Background(), a.ID, a.DoctorID); err == nil {
		t.Fatal("expected attend to fail")
	}
	if repo.appts[a.ID].Status != StatusPaidCheckedIn {
		t.Errorf("status should stay paid_checked_in, got %q", repo.appts[a.ID].Status)
	}
}

func TestCancel_NotifiesDoctor(t *testing.T) {
	svc, repo, nrepo := newTestService()
	a := schedule(t, svc)

	cancelled, err := svc.Cancel(context.Background(), a.ID, "patient called to cancel")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %q", cancelled.Status)
	}
	if cancelled.CancelReason == nil || *cancelled.CancelReason != "patient called to cancel" {
		t.Error("cancel reason should be stored")
	}
	last := nrepo.rows[len(nrepo.rows)-1]
	if last.Type != notification.TypeAppointmentCancelled || last.RecipientID != a.DoctorID {
		t.Error("doctor should receive a cancellation notification")
	}

	// Terminal states reject further changes.
	if _, err := svc.Cancel(context.Background(), a.ID, "again"); !errors.Is(err, ErrBadTransition) {
		t.Errorf("expected ErrBadTransition, got %v", err)
	}
	_ = repo
}

func TestComplete_OnlyFromInProgress(t *testing.T) {
	svc, _, _ := newTestService()
	svc.SetConsultationStarter(&fakeStarter{})
	a := schedule(t, svc)

	if err := svc.Complete(context.Background(), a.ID); !errors.Is(err, ErrBadTransition) {
		t.Errorf("expected ErrBadTransition, got %v", err)
	}

	if _, err := svc.Progress(context.Background(), a.ID, StatusConfirmedPhone); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CheckIn(context.Background(), a.ID, "R-0004", 150); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Attend(context.Background(), a.ID, a.DoctorID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Complete(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
}

func TestUpcomingForReminders(t *testing.T) {
	svc, repo, _ := newTestService()
	now := time.Now()
	tomorrow := now.Add(26 * time.Hour)

	a := schedule(t, svc)
	a.ScheduledAt = tomorrow
	repo.appts[a.ID] = a

	b := schedule(t, svc)
	b.ScheduledAt = tomorrow
	b.Status = StatusCancelled
	repo.appts[b.ID] = b

	out, err := svc.UpcomingForReminders(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != a.ID {
		t.Errorf("expected only the live appointment, got %d", len(out))
	}
}
