// Package roster keeps the members collection in step with the chat
// platform's user list.
package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"timebot/internal/domain"
	"timebot/internal/logging"
)

// Profile is a platform user as reported by the roster lister.
type Profile struct {
	ID   string
	Name string
}

// Lister fetches the platform's user list.
type Lister interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
}

// Result summarises a roster sync.
type Result struct {
	Seen    int
	Created int
	Updated int
}

type memberCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar upserts platform users into the members collection.
type Registrar struct {
	members memberCollection
	logger  *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided members collection.
func NewRegistrar(members memberCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		members: members,
		logger:  logger,
	}
}

// Sync pulls the user list from lister and upserts every profile.
func (r *Registrar) Sync(ctx context.Context, lister Lister) (Result, error) {
	if lister == nil {
		return Result{}, errors.New("roster lister is required")
	}

	profiles, err := lister.ListProfiles(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list profiles: %w", err)
	}

	result := Result{Seen: len(profiles)}
	for _, profile := range profiles {
		created, err := r.EnsureMember(ctx, profile)
		if err != nil {
			return result, err
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	r.logger.WithFields(logging.Fields{
		"event":   "roster_sync",
		"seen":    result.Seen,
		"created": result.Created,
		"updated": result.Updated,
	}).Info("synced roster")

	return result, nil
}

// EnsureMember upserts one profile. New members start inactive with zeroed
// counters; existing members only get their display name refreshed.
func (r *Registrar) EnsureMember(ctx context.Context, profile Profile) (bool, error) {
	if r == nil || r.members == nil {
		return false, errors.New("roster registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if profile.ID == "" {
		return false, errors.New("member id is required")
	}

	name := profile.Name
	if name == "" {
		name = profile.ID
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"display_name": name,
			"updated_at":   now,
		},
		"$setOnInsert": bson.M{
			"member_id":         profile.ID,
			"role":              domain.RoleMember,
			"late_week":         time.Duration(0),
			"late_total":        time.Duration(0),
			"worked_week":       time.Duration(0),
			"worked_total":      time.Duration(0),
			"last_check_in_day": "",
			"clocked_in":        false,
			"active":            false,
			"created_at":        now,
		},
	}

	result, err := r.members.UpdateOne(ctx,
		bson.M{"member_id": profile.ID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("ensure member: %w", err)
	}

	created := result != nil && result.UpsertedCount > 0
	if created {
		r.logger.WithFields(logging.Fields{
			"event":     "member_registered",
			"member_id": profile.ID,
		}).Info("registered new member")
		return true, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":     "member_seen",
		"member_id": profile.ID,
	}).Debug("refreshed member display name")

	return false, nil
}
