// Package admin provides startup helpers for keeping member roles in step
// with the configured administrator list.
package admin

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

type memberCollection interface {
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar bootstraps administrator roles.
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

// EnsureAdmins grants the admin role to every listed member that exists and
// demotes admins missing from the list. Members are not created here; roster
// sync or !addme does that.
func (r *Registrar) EnsureAdmins(ctx context.Context, adminIDs []string) error {
	if r == nil || r.members == nil {
		return errors.New("admin registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	ids := make([]string, 0, len(adminIDs))
	for _, id := range adminIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}

	now := time.Now().UTC()

	demoteResult, err := r.members.UpdateMany(ctx,
		bson.M{"role": domain.RoleAdmin, "member_id": bson.M{"$nin": ids}},
		bson.M{"$set": bson.M{
			"role":       domain.RoleMember,
			"updated_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("demote previous admins: %w", err)
	}

	var promoteResult *mongo.UpdateResult
	if len(ids) > 0 {
		promoteResult, err = r.members.UpdateMany(ctx,
			bson.M{"member_id": bson.M{"$in": ids}},
			bson.M{"$set": bson.M{
				"role":       domain.RoleAdmin,
				"updated_at": now,
			}},
		)
		if err != nil {
			return fmt.Errorf("promote admins: %w", err)
		}
	}

	r.logger.WithFields(logging.Fields{
		"event":          "admin_bootstrap",
		"admins":         len(ids),
		"demoted_admins": modifiedCount(demoteResult),
		"matched_admins": matchedCount(promoteResult),
	}).Info("ensured bot admins")

	return nil
}

func modifiedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.ModifiedCount
}

func matchedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.MatchedCount
}
