package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"timebot/internal/domain"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type resetHistory interface {
	Latest(ctx context.Context) (domain.ResetRecord, error)
}

// Stats is a point-in-time summary of the members collection.
type Stats struct {
	Members     int64      `json:"members"`
	Active      int64      `json:"active"`
	ClockedIn   int64      `json:"clocked_in"`
	Resets      int64      `json:"resets"`
	LastResetAt *time.Time `json:"last_reset_at,omitempty"`
}

// StatsProvider exposes collection counts for diagnostics without leaking
// MongoDB internals to callers.
type StatsProvider struct {
	members countCollection
	resets  countCollection
	history resetHistory
}

// NewStatsProvider constructs a StatsProvider backed by the members and
// resets collections. history supplies the most recent reset.
func NewStatsProvider(members, resets countCollection, history resetHistory) *StatsProvider {
	return &StatsProvider{
		members: members,
		resets:  resets,
		history: history,
	}
}

// Collect counts all members, active members, members currently clocked in
// and recorded resets, along with when the last reset ran.
func (p *StatsProvider) Collect(ctx context.Context) (Stats, error) {
	if ctx == nil {
		return Stats{}, errors.New("context is required")
	}
	if p == nil || p.members == nil || p.resets == nil || p.history == nil {
		return Stats{}, errors.New("stats provider is not initialized")
	}

	var stats Stats
	var err error

	if stats.Members, err = p.members.CountDocuments(ctx, bson.D{}); err != nil {
		return Stats{}, fmt.Errorf("count members: %w", err)
	}
	if stats.Active, err = p.members.CountDocuments(ctx, bson.M{"active": true}); err != nil {
		return Stats{}, fmt.Errorf("count active members: %w", err)
	}
	if stats.ClockedIn, err = p.members.CountDocuments(ctx, bson.M{"clocked_in": true}); err != nil {
		return Stats{}, fmt.Errorf("count clocked in members: %w", err)
	}
	if stats.Resets, err = p.resets.CountDocuments(ctx, bson.D{}); err != nil {
		return Stats{}, fmt.Errorf("count resets: %w", err)
	}

	latest, err := p.history.Latest(ctx)
	switch {
	case errors.Is(err, domain.ErrNoResets):
	case err != nil:
		return Stats{}, fmt.Errorf("latest reset: %w", err)
	default:
		at := latest.ResetAt
		stats.LastResetAt = &at
	}

	return stats, nil
}
