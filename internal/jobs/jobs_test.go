package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/appointment"
	"github.com/clinerva/clinerva/internal/domain/notification"
)

type fakePurger struct{ purged int64 }

func (f *fakePurger) PurgeIdleSessions(_ context.Context) (int64, error) {
	f.purged = 3
	return 3, nil
}

type fakeBackups struct {
	calls int
	err   error
}

func (f *fakeBackups) WriteBackup(_ context.Context) (string, int, error) {
	f.calls++
	return "/backups/clinerva-20250314-020000.ah", 42, f.err
}

type fakeReminders struct{ appts []*appointment.Appointment }

func (f *fakeReminders) UpcomingForReminders(_ context.Context, _ time.Time) ([]*appointment.Appointment, error) {
	return f.appts, nil
}

type fakeNotifier struct {
	sent   []*notification.Notification
	pruned int
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, n *notification.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) PruneOld(_ context.Context, days int) (int64, error) {
	f.pruned = days
	return 7, nil
}

func newTestRunner(t *testing.T) (*Runner, *fakeBackups, *fakeReminders, *fakeNotifier) {
	t.Helper()
	backups := &fakeBackups{}
	reminders := &fakeReminders{}
	notifs := &fakeNotifier{}
	r, err := NewRunner(&fakePurger{}, backups, reminders, notifs, zerolog.Nop())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r, backups, reminders, notifs
}

func TestNewRunner_RegistersAllJobs(t *testing.T) {
	r, _, _, _ := newTestRunner(t)
	if got := len(r.Entries()); got != 4 {
		t.Errorf("expected 4 scheduled jobs, got %d", got)
	}
}

func TestSendReminders_OnePerAppointment(t *testing.T) {
	r, _, reminders, notifs := newTestRunner(t)
	doctorID := uuid.New()
	reminders.appts = []*appointment.Appointment{
		{ID: uuid.New(), DoctorID: doctorID, PatientID: uuid.New(), ScheduledAt: time.Now().Add(24 * time.Hour), Status: appointment.StatusScheduled},
		{ID: uuid.New(), DoctorID: doctorID, PatientID: uuid.New(), ScheduledAt: time.Now().Add(25 * time.Hour), Status: appointment.StatusConfirmedPhone},
	}

	if err := r.sendReminders(context.Background()); err != nil {
		t.Fatalf("send reminders: %v", err)
	}
	if len(notifs.sent) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(notifs.sent))
	}
	for _, n := range notifs.sent {
		if n.Type != notification.TypeAppointmentReminder || n.RecipientID != doctorID {
			t.Errorf("bad reminder: %+v", n)
		}
	}
}

func TestSendReminders_FailuresDoNotAbortTheRest(t *testing.T) {
	r, _, reminders, notifs := newTestRunner(t)
	notifs.err = errors.New("store down")
	reminders.appts = []*appointment.Appointment{
		{ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New(), ScheduledAt: time.Now(), Status: appointment.StatusScheduled},
	}
	if err := r.sendReminders(context.Background()); err != nil {
		t.Errorf("a failed reminder should not fail the job: %v", err)
	}
}

func TestNightlyBackup(t *testing.T) {
	r, backups, _, _ := newTestRunner(t)
	if err := r.nightlyBackup(context.Background()); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if backups.calls != 1 {
		t.Errorf("backup calls = %d", backups.calls)
	}

	backups.err = errors.New("disk full")
	if err := r.nightlyBackup(context.Background()); err == nil {
		t.Error("backup failure should surface")
	}
}

func TestPruneNotifications_UsesRetention(t *testing.T) {
	r, _, _, notifs := newTestRunner(t)
	if err := r.pruneNotifications(context.Background()); err != nil {
		t.Fatal(err)
	}
	if notifs.pruned != notificationRetentionDays {
		t.Errorf("pruned with %d days, want %d", notifs.pruned, notificationRetentionDays)
	}
}
