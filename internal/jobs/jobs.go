// Package jobs runs the clinic's scheduled maintenance: nightly backups,
// session cleanup, appointment reminders and notification pruning.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/appointment"
	"github.com/clinerva/clinerva/internal/domain/notification"
)

const jobTimeout = 5 * time.Minute

// Retention for read and unread notification rows.
const notificationRetentionDays = 90

type SessionPurger interface {
	PurgeIdleSessions(ctx context.Context) (int64, error)
}

type BackupWriter interface {
	WriteBackup(ctx context.Context) (string, int, error)
}

type ReminderSource interface {
	UpcomingForReminders(ctx context.Context, now time.Time) ([]*appointment.Appointment, error)
}

type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) error
	PruneOld(ctx context.Context, days int) (int64, error)
}

type Runner struct {
	cron   *cron.Cron
	logger zerolog.Logger

	sessions  SessionPurger
	backups   BackupWriter
	reminders ReminderSource
	notifs    Notifier
}

func NewRunner(sessions SessionPurger, backups BackupWriter, reminders ReminderSource, notifs Notifier, logger zerolog.Logger) (*Runner, error) {
	r := &Runner{
		cron:      cron.New(),
		logger:    logger.With().Str("component", "jobs").Logger(),
		sessions:  sessions,
		backups:   backups,
		reminders: reminders,
		notifs:    notifs,
	}

	schedule := []struct {
		spec string
		name string
		run  func(ctx context.Context) error
	}{
		{"0 2 * * *", "nightly-backup", r.nightlyBackup},
		{"@hourly", "purge-idle-sessions", r.purgeSessions},
		{"0 7 * * *", "appointment-reminders", r.sendReminders},
		{"30 3 * * *", "prune-notifications", r.pruneNotifications},
	}
	for _, job := range schedule {
		job := job
		_, err := r.cron.AddFunc(job.spec, func() { r.execute(job.name, job.run) })
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) Start() { r.cron.Start() }

// Stop waits for any running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// Entries exposes the scheduled jobs, mainly for inspection.
func (r *Runner) Entries() []cron.Entry { return r.cron.Entries() }

func (r *Runner) execute(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := time.Now()
	if err := fn(ctx); err != nil {
		r.logger.Error().Err(err).Str("job", name).Msg("job failed")
		return
	}
	r.logger.Info().Str("job", name).Dur("took", time.Since(started)).Msg("job finished")
}

func (r *Runner) nightlyBackup(ctx context.Context) error {
	path, docs, err := r.backups.WriteBackup(ctx)
	if err != nil {
		return err
	}
	r.logger.Info().Str("path", path).Int("documents", docs).Msg("nightly backup")
	return nil
}

func (r *Runner) purgeSessions(ctx context.Context) error {
	n, err := r.sessions.PurgeIdleSessions(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info().Int64("purged", n).Msg("idle sessions removed")
	}
	return nil
}

// sendReminders tells each doctor about tomorrow's unconfirmed and confirmed
// appointments so the morning huddle starts with a current list.
func (r *Runner) sendReminders(ctx context.Context) error {
	upcoming, err := r.reminders.UpcomingForReminders(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, a := range upcoming {
		n := &notification.Notification{
			RecipientID: a.DoctorID,
			Type:        notification.TypeAppointmentReminder,
			Title:       "Appointment tomorrow",
			Body:        "Appointment at " + a.ScheduledAt.Format("15:04") + " (" + a.Status + ")",
			Data: map[string]interface{}{
				"appointment_id": a.ID.String(),
				"patient_id":     a.PatientID.String(),
			},
		}
		if err := r.notifs.Notify(ctx, n); err != nil {
			r.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("reminder failed")
		}
	}
	return nil
}

func (r *Runner) pruneNotifications(ctx context.Context) error {
	n, err := r.notifs.PruneOld(ctx, notificationRetentionDays)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info().Int64("pruned", n).Msg("old notifications removed")
	}
	return nil
}
