package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"timebot/internal/domain"
	"timebot/internal/logging"
	"timebot/internal/metrics"
)

const (
	// StandingsLimit caps the number of members shown in the standings.
	StandingsLimit = 5
	// MaxHoursWorked caps a single reported session.
	MaxHoursWorked = 24
)

var (
	// ErrNotEligible is returned when a member is unknown or inactive.
	ErrNotEligible = errors.New("member is not registered or not active")
	// ErrNotRegistered is returned when a member is unknown.
	ErrNotRegistered = errors.New("member is not registered")
	// ErrAlreadyRegistered is returned by Register for known members.
	ErrAlreadyRegistered = errors.New("member is already registered")
	// ErrAlreadyClockedIn is returned when a session is already open.
	ErrAlreadyClockedIn = errors.New("member is already clocked in")
	// ErrAlreadyClockedOut is returned when no session is open.
	ErrAlreadyClockedOut = errors.New("member is already clocked out")
	// ErrInvalidHours is returned for negative, non-finite or oversized hour
	// counts.
	ErrInvalidHours = errors.New("hours must be between 0 and 24")
	// ErrInvalidMinutes is returned when a late clock-in would start after
	// the end of the day.
	ErrInvalidMinutes = errors.New("minutes late must fall within the day")
)

// MemberStore is the persistence surface the service depends on.
type MemberStore interface {
	Create(ctx context.Context, member domain.Member) (domain.Member, error)
	GetByID(ctx context.Context, memberID string) (domain.Member, error)
	SetActive(ctx context.Context, memberID string, active bool) error
	RecordClockIn(ctx context.Context, memberID string, late time.Duration, at time.Time, day string) error
	RecordClockOut(ctx context.Context, memberID string, worked time.Duration) error
	ListActive(ctx context.Context) ([]domain.Member, error)
	TopLate(ctx context.Context, limit int64) ([]domain.Member, error)
	ListAbsent(ctx context.Context, day string) ([]domain.Member, error)
}

// ClockInResult describes an accepted clock-in.
type ClockInResult struct {
	Late    time.Duration
	Again   bool
	Weekend bool
}

// Totals are the accumulators summed over active members.
type Totals struct {
	LateWeek    time.Duration
	LateTotal   time.Duration
	WorkedWeek  time.Duration
	WorkedTotal time.Duration
}

// Absentee is an active member who has not checked in today.
type Absentee struct {
	Name    string
	DaysAgo int
	Never   bool
}

// Service applies the attendance rules on top of a MemberStore.
type Service struct {
	members  MemberStore
	schedule Schedule
	now      func() time.Time
	logger   *logrus.Entry
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service.
func NewService(members MemberStore, schedule Schedule, logger *logrus.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Logger()
	}
	s := &Service{
		members:  members,
		schedule: schedule,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time in the schedule's zone.
func (s *Service) Now() time.Time {
	return s.now().In(s.schedule.Location())
}

// ClockIn opens a session now. A member who already checked in today and has
// since clocked out starts a new session without extra lateness.
func (s *Service) ClockIn(ctx context.Context, memberID string) (ClockInResult, error) {
	member, err := s.eligible(ctx, memberID)
	if err != nil {
		return ClockInResult{}, err
	}
	if member.ClockedIn {
		return ClockInResult{}, ErrAlreadyClockedIn
	}

	now := s.Now()
	day := s.schedule.Day(now)
	result := ClockInResult{Weekend: s.schedule.IsWeekend(now)}
	if member.CheckedInOn(day) {
		result.Again = true
	} else {
		result.Late = s.schedule.Lateness(now)
	}

	if err := s.members.RecordClockIn(ctx, memberID, result.Late, now, day); err != nil {
		return ClockInResult{}, fmt.Errorf("clock in: %w", err)
	}

	metrics.ObserveClockIn(result.Late)
	s.logger.WithFields(logging.Fields{
		"event":     "clock_in",
		"member_id": memberID,
		"late":      result.Late.String(),
		"again":     result.Again,
	}).Info("member clocked in")

	return result, nil
}

// ClockInLate records a forgotten clock-in made minutes after the start of
// day. Negative minutes count as on time; minutes that would start the session
// after midnight are rejected.
func (s *Service) ClockInLate(ctx context.Context, memberID string, minutes int) (ClockInResult, error) {
	if minutes < 0 {
		minutes = 0
	}
	now := s.Now()
	if minutes > 24*60 {
		return ClockInResult{}, ErrInvalidMinutes
	}
	late := time.Duration(minutes) * time.Minute
	start := s.schedule.StartOfDay(now).Add(late)
	if !start.Before(s.schedule.EndOfDay(now)) {
		return ClockInResult{}, ErrInvalidMinutes
	}

	member, err := s.eligible(ctx, memberID)
	if err != nil {
		return ClockInResult{}, err
	}
	if member.ClockedIn {
		return ClockInResult{}, ErrAlreadyClockedIn
	}

	day := s.schedule.Day(now)

	if err := s.members.RecordClockIn(ctx, memberID, late, start, day); err != nil {
		return ClockInResult{}, fmt.Errorf("clock in late: %w", err)
	}

	metrics.ObserveClockIn(late)
	s.logger.WithFields(logging.Fields{
		"event":     "clock_in_late",
		"member_id": memberID,
		"late":      late.String(),
	}).Info("member clocked in with explicit lateness")

	return ClockInResult{Late: late, Weekend: s.schedule.IsWeekend(now)}, nil
}

// ClockOut closes the open session, crediting the time since it started.
func (s *Service) ClockOut(ctx context.Context, memberID string) (time.Duration, error) {
	member, err := s.eligible(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if !member.ClockedIn {
		return 0, ErrAlreadyClockedOut
	}

	worked := s.Now().Sub(member.ClockedInAt)
	if worked < 0 {
		worked = 0
	}
	return worked, s.clockOut(ctx, memberID, worked)
}

// ClockOutHours closes the open session, crediting hours of work.
func (s *Service) ClockOutHours(ctx context.Context, memberID string, hours float64) (time.Duration, error) {
	if math.IsNaN(hours) || hours < 0 || hours > MaxHoursWorked {
		return 0, ErrInvalidHours
	}

	member, err := s.eligible(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if !member.ClockedIn {
		return 0, ErrAlreadyClockedOut
	}

	worked := time.Duration(hours * float64(time.Hour))
	return worked, s.clockOut(ctx, memberID, worked)
}

func (s *Service) clockOut(ctx context.Context, memberID string, worked time.Duration) error {
	if err := s.members.RecordClockOut(ctx, memberID, worked); err != nil {
		return fmt.Errorf("clock out: %w", err)
	}

	metrics.ObserveClockOut()
	s.logger.WithFields(logging.Fields{
		"event":     "clock_out",
		"member_id": memberID,
		"worked":    worked.String(),
	}).Info("member clocked out")

	return nil
}

// SetActive marks a member active or inactive.
func (s *Service) SetActive(ctx context.Context, memberID string, active bool) error {
	if err := s.members.SetActive(ctx, memberID, active); err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return ErrNotRegistered
		}
		return fmt.Errorf("set active: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":     "set_active",
		"member_id": memberID,
		"active":    active,
	}).Info("member activity changed")

	return nil
}

// Status returns the member's record.
func (s *Service) Status(ctx context.Context, memberID string) (domain.Member, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return domain.Member{}, ErrNotRegistered
		}
		return domain.Member{}, fmt.Errorf("status: %w", err)
	}
	return member, nil
}

// Register adds a new, inactive member.
func (s *Service) Register(ctx context.Context, memberID, displayName string) (domain.Member, error) {
	if _, err := s.members.GetByID(ctx, memberID); err == nil {
		return domain.Member{}, ErrAlreadyRegistered
	} else if !errors.Is(err, domain.ErrMemberNotFound) {
		return domain.Member{}, fmt.Errorf("register: %w", err)
	}

	if displayName == "" {
		displayName = memberID
	}

	member, err := s.members.Create(ctx, domain.Member{
		MemberID:    memberID,
		DisplayName: displayName,
		Role:        domain.RoleMember,
	})
	if err != nil {
		if errors.Is(err, domain.ErrMemberExists) {
			return domain.Member{}, ErrAlreadyRegistered
		}
		return domain.Member{}, fmt.Errorf("register: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":     "register",
		"member_id": memberID,
	}).Info("member registered")

	return member, nil
}

// Standings returns the latest active members this week.
func (s *Service) Standings(ctx context.Context) ([]domain.Member, error) {
	members, err := s.members.TopLate(ctx, StandingsLimit)
	if err != nil {
		return nil, fmt.Errorf("standings: %w", err)
	}
	return members, nil
}

// Totals sums the accumulators over active members.
func (s *Service) Totals(ctx context.Context) (Totals, error) {
	members, err := s.members.ListActive(ctx)
	if err != nil {
		return Totals{}, fmt.Errorf("totals: %w", err)
	}

	var totals Totals
	for _, m := range members {
		totals.LateWeek += m.LateWeek
		totals.LateTotal += m.LateTotal
		totals.WorkedWeek += m.WorkedWeek
		totals.WorkedTotal += m.WorkedTotal
	}
	return totals, nil
}

// Absentees lists active members who have not checked in today, most recent
// check-in first.
func (s *Service) Absentees(ctx context.Context) ([]Absentee, error) {
	now := s.Now()
	members, err := s.members.ListAbsent(ctx, s.schedule.Day(now))
	if err != nil {
		return nil, fmt.Errorf("attendance: %w", err)
	}

	absentees := make([]Absentee, 0, len(members))
	for _, m := range members {
		days, ok := s.schedule.DaysSince(m.LastCheckInDay, now)
		absentees = append(absentees, Absentee{Name: m.DisplayName, DaysAgo: days, Never: !ok})
	}
	return absentees, nil
}

func (s *Service) eligible(ctx context.Context, memberID string) (domain.Member, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return domain.Member{}, ErrNotEligible
		}
		return domain.Member{}, fmt.Errorf("load member: %w", err)
	}
	if !member.Active {
		return domain.Member{}, ErrNotEligible
	}
	return member, nil
}
