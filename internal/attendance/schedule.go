// Package attendance implements the clock-in/clock-out rules: start-of-day
// schedule, lateness, session accounting and the aggregate views.
package attendance

import (
	"fmt"
	"time"

	"timebot/internal/config"
	"timebot/internal/domain"
)

// Schedule decides when the working day starts.
type Schedule struct {
	loc       *time.Location
	start     time.Duration
	overrides map[time.Weekday]time.Duration
}

// NewSchedule builds a schedule with a default start offset and optional
// per-weekday overrides, evaluated in loc.
func NewSchedule(loc *time.Location, start time.Duration, overrides map[time.Weekday]time.Duration) Schedule {
	if loc == nil {
		loc = time.Local
	}
	copied := make(map[time.Weekday]time.Duration, len(overrides))
	for day, offset := range overrides {
		copied[day] = offset
	}
	return Schedule{loc: loc, start: start, overrides: copied}
}

// ScheduleFromConfig resolves the schedule settings from cfg.
func ScheduleFromConfig(cfg config.Config) (Schedule, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Schedule{}, err
	}
	start, err := config.ParseClock(cfg.DayStart)
	if err != nil {
		return Schedule{}, fmt.Errorf("day start: %w", err)
	}
	overrides, err := config.ParseOverrides(cfg.DayStartOverrides)
	if err != nil {
		return Schedule{}, fmt.Errorf("day start overrides: %w", err)
	}
	return NewSchedule(loc, start, overrides), nil
}

// Location returns the schedule's time zone.
func (s Schedule) Location() *time.Location {
	return s.loc
}

// StartOfDay returns the wall-clock start of the working day on now's date.
// Weekday overrides do not apply on Saturday and Sunday.
func (s Schedule) StartOfDay(now time.Time) time.Time {
	local := now.In(s.loc)
	offset := s.start
	if o, ok := s.overrides[local.Weekday()]; ok && !s.IsWeekend(local) {
		offset = o
	}
	return time.Date(local.Year(), local.Month(), local.Day(),
		int(offset/time.Hour), int(offset%time.Hour/time.Minute), int(offset%time.Minute/time.Second), 0, s.loc)
}

// EndOfDay returns the local midnight that ends now's date.
func (s Schedule) EndOfDay(now time.Time) time.Time {
	local := now.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, s.loc)
}

// Lateness is how far past the start of day now is, never negative.
func (s Schedule) Lateness(now time.Time) time.Duration {
	late := now.Sub(s.StartOfDay(now))
	if late < 0 {
		return 0
	}
	return late
}

// Day is now's calendar date in the schedule's time zone.
func (s Schedule) Day(now time.Time) string {
	return now.In(s.loc).Format(domain.DayLayout)
}

// IsWeekend reports whether now falls on a Saturday or Sunday.
func (s Schedule) IsWeekend(now time.Time) bool {
	switch now.In(s.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}

// DaysSince counts whole calendar days between day and now's date. ok is
// false when day is empty or malformed.
func (s Schedule) DaysSince(day string, now time.Time) (int, bool) {
	if day == "" {
		return 0, false
	}
	// Compare calendar dates in UTC so DST shifts do not eat a day.
	then, err := time.Parse(domain.DayLayout, day)
	if err != nil {
		return 0, false
	}
	today, err := time.Parse(domain.DayLayout, s.Day(now))
	if err != nil {
		return 0, false
	}
	return int(today.Sub(then) / (24 * time.Hour)), true
}
