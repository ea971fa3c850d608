// Package store owns the MongoDB connection and the collection layout.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"timebot/internal/config"
)

// Collection names.
const (
	CollectionMembers = "members"
	CollectionResets  = "resets"
)

const (
	appName                = "timebot"
	serverSelectionTimeout = 5 * time.Second
)

var errNotInitialized = errors.New("store manager is not initialized")

type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// collectionIndexes lists the indexes one collection needs.
type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

// indexPlan returns the indexes backing the member lookups, the standings and
// attendance queries, and the latest-reset lookup, in creation order.
func indexPlan() []collectionIndexes {
	return []collectionIndexes{
		{
			collection: CollectionMembers,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "member_id", Value: 1}},
					Options: options.Index().SetName("member_id_unique").SetUnique(true),
				},
				{
					Keys:    bson.D{{Key: "active", Value: 1}, {Key: "late_week", Value: -1}},
					Options: options.Index().SetName("active_late_week"),
				},
				{
					Keys:    bson.D{{Key: "active", Value: 1}, {Key: "last_check_in_day", Value: -1}},
					Options: options.Index().SetName("active_last_check_in_day"),
				},
			},
		},
		{
			collection: CollectionResets,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "reset_at", Value: -1}},
					Options: options.Index().SetName("reset_at_desc"),
				},
				{
					Keys:    bson.D{{Key: "reset_id", Value: 1}},
					Options: options.Index().SetName("reset_id_unique").SetUnique(true),
				},
			},
		},
	}
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

func clientOptions(cfg config.Config) *options.ClientOptions {
	return options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName(appName).
		SetServerSelectionTimeout(serverSelectionTimeout)
}

// NewManager connects to cfg.MongoURI and pings the primary before returning.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if cfg.MongoDB == "" {
		return nil, errors.New("mongo database name is required")
	}

	client, err := connectMongo(ctx, clientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{client: client, db: client.Database(cfg.MongoDB)}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Members returns the members collection.
func (m *Manager) Members() *mongo.Collection {
	return m.db.Collection(CollectionMembers)
}

// Resets returns the reset audit collection.
func (m *Manager) Resets() *mongo.Collection {
	return m.db.Collection(CollectionResets)
}

// Ping checks the primary is reachable. It backs the health endpoint.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errNotInitialized
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// EnsureBaseIndexes creates every index in the plan, stopping at the first
// failing collection. Collections are created implicitly.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errNotInitialized
	}

	for _, plan := range indexPlan() {
		if _, err := createIndexes(ctx, m.db.Collection(plan.collection), plan.models); err != nil {
			return fmt.Errorf("create %s indexes: %w", plan.collection, err)
		}
	}
	return nil
}

// Close disconnects the client. Closing a nil manager is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
