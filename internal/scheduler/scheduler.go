// Package scheduler runs the weekly standings reset on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"timebot/internal/command"
	"timebot/internal/domain"
	"timebot/internal/feature/reset"
	"timebot/internal/logging"
)

const runTimeout = time.Minute

type resetter interface {
	Reset(ctx context.Context, actor, trigger string) (domain.ResetRecord, error)
}

type announcer interface {
	Post(ctx context.Context, channel, text string) error
}

// WeeklyReset resets the standings whenever its schedule fires and, when a
// channel is configured, announces it there.
type WeeklyReset struct {
	cron      *cron.Cron
	resetter  resetter
	announcer announcer
	channel   string
	logger    *logrus.Entry
}

// NewWeeklyReset parses schedule (standard five-field cron syntax) in loc and
// registers the reset job. announcer may be nil when channel is empty.
func NewWeeklyReset(schedule string, loc *time.Location, r resetter, a announcer, channel string, logger *logrus.Entry) (*WeeklyReset, error) {
	if r == nil {
		return nil, errors.New("resetter is required")
	}
	if channel != "" && a == nil {
		return nil, errors.New("announcer is required when an announce channel is set")
	}
	if logger == nil {
		logger = logging.Logger()
	}
	if loc == nil {
		loc = time.Local
	}

	w := &WeeklyReset{
		cron:      cron.New(cron.WithLocation(loc)),
		resetter:  r,
		announcer: a,
		channel:   channel,
		logger:    logger,
	}

	if _, err := w.cron.AddFunc(schedule, w.run); err != nil {
		return nil, fmt.Errorf("parse reset schedule %q: %w", schedule, err)
	}

	return w, nil
}

// Start launches the cron scheduler.
func (w *WeeklyReset) Start() {
	if w == nil || w.cron == nil {
		return
	}
	w.cron.Start()

	fields := logging.Fields{"event": "reset_scheduler_started"}
	if entries := w.cron.Entries(); len(entries) > 0 {
		fields["next_run"] = entries[0].Next.Format(time.RFC3339)
	}
	w.logger.WithFields(fields).Info("weekly reset scheduler started")
}

// Stop stops the scheduler, waiting for a running reset until ctx is done.
func (w *WeeklyReset) Stop(ctx context.Context) {
	if w == nil || w.cron == nil {
		return
	}
	stopCtx := w.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	w.logger.WithField("event", "reset_scheduler_stopped").Info("weekly reset scheduler stopped")
}

func (w *WeeklyReset) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := w.RunOnce(ctx); err != nil {
		w.logger.WithFields(logging.Fields{
			"event": "scheduled_reset_failed",
		}).WithError(err).Error("scheduled reset failed")
	}
}

// RunOnce performs one reset and announcement.
func (w *WeeklyReset) RunOnce(ctx context.Context) error {
	record, err := w.resetter.Reset(ctx, reset.ActorScheduler, "scheduler")
	if err != nil {
		return err
	}

	if w.channel == "" {
		return nil
	}
	if err := w.announcer.Post(ctx, w.channel, command.ResetAnnouncement); err != nil {
		return fmt.Errorf("announce reset %s: %w", record.ResetID, err)
	}
	return nil
}
