// Package command turns chat messages into attendance operations and renders
// the replies.
package command

import (
	"context"
	"strings"
	"time"

	"timebot/internal/attendance"
	"timebot/internal/domain"
)

// Prefix marks a message as a bot command.
const Prefix = "!"

// Reaction names the emoji the bot leaves on a message.
type Reaction string

const (
	// ReactionAck acknowledges a clock-in, clock-out or registration.
	ReactionAck Reaction = "thumbsup"
	// ReactionDone confirms an activity change.
	ReactionDone Reaction = "white_check_mark"
)

// Message is an inbound chat message, already stripped of platform detail.
type Message struct {
	Text      string
	Channel   string
	User      string
	UserName  string
	Timestamp string
	Direct    bool
}

// Replier sends the bot's responses back to the platform.
type Replier interface {
	Post(ctx context.Context, channel, text string) error
	React(ctx context.Context, msg Message, reaction Reaction) error
}

// Directory resolves platform display names.
type Directory interface {
	DisplayName(ctx context.Context, memberID string) (string, error)
}

// Attendance is the attendance surface the dispatcher drives.
type Attendance interface {
	ClockIn(ctx context.Context, memberID string) (attendance.ClockInResult, error)
	ClockInLate(ctx context.Context, memberID string, minutes int) (attendance.ClockInResult, error)
	ClockOut(ctx context.Context, memberID string) (time.Duration, error)
	ClockOutHours(ctx context.Context, memberID string, hours float64) (time.Duration, error)
	SetActive(ctx context.Context, memberID string, active bool) error
	Status(ctx context.Context, memberID string) (domain.Member, error)
	Register(ctx context.Context, memberID, displayName string) (domain.Member, error)
	Standings(ctx context.Context) ([]domain.Member, error)
	Totals(ctx context.Context) (attendance.Totals, error)
	Absentees(ctx context.Context) ([]attendance.Absentee, error)
}

// Resetter clears the weekly standings.
type Resetter interface {
	Authorize(ctx context.Context, memberID string) error
	Reset(ctx context.Context, actor, trigger string) (domain.ResetRecord, error)
}

// Accepts reports whether text looks like a command.
func Accepts(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), Prefix)
}

// Normalize trims and lower-cases text for dispatch.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
