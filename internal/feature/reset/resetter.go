// Package reset clears the weekly accumulators after exporting a timesheet.
package reset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"timebot/internal/domain"
	"timebot/internal/logging"
	"timebot/internal/metrics"
	"timebot/internal/timesheet"
)

// ActorScheduler is recorded as the actor of cron-triggered resets.
const ActorScheduler = "scheduler"

// ErrNotAdmin is returned when a non-admin asks for a reset while admins are
// configured.
var ErrNotAdmin = errors.New("only administrators can reset the standings")

type memberStore interface {
	GetByID(ctx context.Context, memberID string) (domain.Member, error)
	ListActive(ctx context.Context) ([]domain.Member, error)
	ResetWeek(ctx context.Context) (int64, error)
}

type resetLog interface {
	Create(ctx context.Context, record domain.ResetRecord) (domain.ResetRecord, error)
}

var writeTimesheet = timesheet.Write

// Resetter exports and clears the weekly accumulators.
type Resetter struct {
	members    memberStore
	resets     resetLog
	dir        string
	loc        *time.Location
	restricted bool
	now        func() time.Time
	logger     *logrus.Entry
}

// NewResetter constructs a Resetter writing timesheets into dir, dated in loc.
// When restricted is set only members with the admin role may reset.
func NewResetter(members memberStore, resets resetLog, dir string, loc *time.Location, restricted bool, logger *logrus.Entry) *Resetter {
	if logger == nil {
		logger = logging.Logger()
	}
	if loc == nil {
		loc = time.Local
	}

	return &Resetter{
		members:    members,
		resets:     resets,
		dir:        dir,
		loc:        loc,
		restricted: restricted,
		now:        time.Now,
		logger:     logger,
	}
}

// Authorize checks that memberID may reset the standings.
func (r *Resetter) Authorize(ctx context.Context, memberID string) error {
	if r == nil || r.members == nil {
		return errors.New("resetter is not initialized")
	}
	if !r.restricted {
		return nil
	}

	member, err := r.members.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return ErrNotAdmin
		}
		return fmt.Errorf("load member: %w", err)
	}
	if !domain.IsAdmin(member.Role) {
		return ErrNotAdmin
	}
	return nil
}

// Reset writes the timesheet of active members, zeroes every member's weekly
// accumulators and appends an audit record. trigger labels the metric.
func (r *Resetter) Reset(ctx context.Context, actor, trigger string) (domain.ResetRecord, error) {
	if r == nil || r.members == nil || r.resets == nil {
		return domain.ResetRecord{}, errors.New("resetter is not initialized")
	}
	if ctx == nil {
		return domain.ResetRecord{}, errors.New("context is required")
	}
	if actor == "" {
		return domain.ResetRecord{}, errors.New("actor is required")
	}

	members, err := r.members.ListActive(ctx)
	if err != nil {
		return domain.ResetRecord{}, fmt.Errorf("list active members: %w", err)
	}

	rows := make([]timesheet.Row, 0, len(members))
	for _, m := range members {
		rows = append(rows, timesheet.Row{Name: m.DisplayName, LateWeek: m.LateWeek, WorkedWeek: m.WorkedWeek})
	}

	now := r.now().In(r.loc)
	path, err := writeTimesheet(r.dir, now.Format(domain.DayLayout), rows)
	if err != nil {
		return domain.ResetRecord{}, fmt.Errorf("write timesheet: %w", err)
	}

	modified, err := r.members.ResetWeek(ctx)
	if err != nil {
		return domain.ResetRecord{}, err
	}

	record, err := r.resets.Create(ctx, domain.ResetRecord{
		ResetID:     uuid.NewString(),
		Actor:       actor,
		ResetAt:     now.UTC().Truncate(time.Millisecond),
		Timesheet:   path,
		MemberCount: len(members),
	})
	if err != nil {
		return domain.ResetRecord{}, fmt.Errorf("record reset: %w", err)
	}

	metrics.ObserveReset(trigger)
	r.logger.WithFields(logging.Fields{
		"event":     "weekly_reset",
		"actor":     actor,
		"trigger":   trigger,
		"reset_id":  record.ResetID,
		"timesheet": path,
		"modified":  modified,
	}).Info("weekly standings reset")

	return record, nil
}
