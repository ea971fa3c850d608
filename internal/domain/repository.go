package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrMemberNotFound is returned when no member matches the requested id.
	ErrMemberNotFound = errors.New("member not found")
	// ErrMemberExists is returned when creating a member whose id is taken.
	ErrMemberExists = errors.New("member already exists")
	// ErrNoResets is returned by Latest before the first reset is recorded.
	ErrNoResets = errors.New("no resets recorded")
)

type memberCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// MemberRepository persists and retrieves members in MongoDB.
type MemberRepository struct {
	collection memberCollection
	now        func() time.Time
}

// NewMemberRepository constructs a MemberRepository.
func NewMemberRepository(collection memberCollection) *MemberRepository {
	return &MemberRepository{
		collection: collection,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Create inserts a member with populated timestamps, defaulting the role to
// RoleMember when omitted.
func (r *MemberRepository) Create(ctx context.Context, member Member) (Member, error) {
	if err := r.check(ctx, member.MemberID); err != nil {
		return Member{}, err
	}
	if member.Role == "" {
		member.Role = RoleMember
	}

	now := r.now()
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	member.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, member); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Member{}, ErrMemberExists
		}
		return Member{}, fmt.Errorf("insert member: %w", err)
	}

	return member, nil
}

// GetByID fetches a member by platform id.
func (r *MemberRepository) GetByID(ctx context.Context, memberID string) (Member, error) {
	if err := r.check(ctx, memberID); err != nil {
		return Member{}, err
	}

	result := r.collection.FindOne(ctx, bson.M{"member_id": memberID})
	if result == nil {
		return Member{}, errors.New("find member returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, fmt.Errorf("find member: %w", err)
	}

	var member Member
	if err := result.Decode(&member); err != nil {
		return Member{}, fmt.Errorf("decode member: %w", err)
	}

	return member, nil
}

// SetActive flips the active flag for a member.
func (r *MemberRepository) SetActive(ctx context.Context, memberID string, active bool) error {
	return r.updateOne(ctx, memberID, "set active", bson.M{
		"$set": bson.M{
			"active":     active,
			"updated_at": r.now(),
		},
	})
}

// RecordClockIn opens a work session starting at `at`, adds late to both
// lateness accumulators and stamps the check-in day.
func (r *MemberRepository) RecordClockIn(ctx context.Context, memberID string, late time.Duration, at time.Time, day string) error {
	return r.updateOne(ctx, memberID, "record clock in", bson.M{
		"$inc": bson.M{
			"late_week":  late,
			"late_total": late,
		},
		"$set": bson.M{
			"clocked_in":        true,
			"clocked_in_at":     at,
			"last_check_in_day": day,
			"updated_at":        r.now(),
		},
	})
}

// RecordClockOut closes the open session and adds worked to both time-worked
// accumulators.
func (r *MemberRepository) RecordClockOut(ctx context.Context, memberID string, worked time.Duration) error {
	return r.updateOne(ctx, memberID, "record clock out", bson.M{
		"$inc": bson.M{
			"worked_week":  worked,
			"worked_total": worked,
		},
		"$set": bson.M{
			"clocked_in": false,
			"updated_at": r.now(),
		},
	})
}

// ListActive returns every active member ordered by display name.
func (r *MemberRepository) ListActive(ctx context.Context) ([]Member, error) {
	return r.find(ctx, bson.M{"active": true},
		options.Find().SetSort(bson.D{{Key: "display_name", Value: 1}}))
}

// TopLate returns up to limit active members with lateness this week, latest
// first.
func (r *MemberRepository) TopLate(ctx context.Context, limit int64) ([]Member, error) {
	return r.find(ctx,
		bson.M{"active": true, "late_week": bson.M{"$gt": 0}},
		options.Find().
			SetSort(bson.D{{Key: "late_week", Value: -1}}).
			SetLimit(limit),
	)
}

// ListAbsent returns active members who have not checked in on day, most
// recent check-in first.
func (r *MemberRepository) ListAbsent(ctx context.Context, day string) ([]Member, error) {
	return r.find(ctx,
		bson.M{"active": true, "last_check_in_day": bson.M{"$ne": day}},
		options.Find().SetSort(bson.D{{Key: "last_check_in_day", Value: -1}}),
	)
}

// ResetWeek zeroes the weekly accumulators for every member and returns the
// number of modified documents.
func (r *MemberRepository) ResetWeek(ctx context.Context) (int64, error) {
	if r == nil || r.collection == nil {
		return 0, errors.New("member repository is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	result, err := r.collection.UpdateMany(ctx, bson.M{}, bson.M{
		"$set": bson.M{
			"late_week":   time.Duration(0),
			"worked_week": time.Duration(0),
			"updated_at":  r.now(),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("reset week: %w", err)
	}
	if result == nil {
		return 0, nil
	}

	return result.ModifiedCount, nil
}

func (r *MemberRepository) updateOne(ctx context.Context, memberID, op string, update bson.M) error {
	if err := r.check(ctx, memberID); err != nil {
		return err
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"member_id": memberID}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result == nil || result.MatchedCount == 0 {
		return ErrMemberNotFound
	}

	return nil
}

func (r *MemberRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Member, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("member repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}

	members := make([]Member, 0)
	if err := cursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}

	return members, nil
}

func (r *MemberRepository) check(ctx context.Context, memberID string) error {
	if r == nil || r.collection == nil {
		return errors.New("member repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if memberID == "" {
		return errors.New("member_id is required")
	}
	return nil
}

type insertFindCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

// ResetRepository stores the reset audit trail.
type ResetRepository struct {
	collection insertFindCollection
}

// NewResetRepository constructs a ResetRepository.
func NewResetRepository(collection insertFindCollection) *ResetRepository {
	return &ResetRepository{collection: collection}
}

// Create appends a reset record, stamping reset_at when unset.
func (r *ResetRepository) Create(ctx context.Context, record ResetRecord) (ResetRecord, error) {
	if r == nil || r.collection == nil {
		return ResetRecord{}, errors.New("reset repository is not initialized")
	}
	if ctx == nil {
		return ResetRecord{}, errors.New("context is required")
	}
	if record.ResetID == "" {
		return ResetRecord{}, errors.New("reset_id is required")
	}
	if record.ResetAt.IsZero() {
		record.ResetAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return ResetRecord{}, fmt.Errorf("insert reset: %w", err)
	}

	return record, nil
}

// Latest returns the most recent reset record.
func (r *ResetRepository) Latest(ctx context.Context) (ResetRecord, error) {
	if r == nil || r.collection == nil {
		return ResetRecord{}, errors.New("reset repository is not initialized")
	}
	if ctx == nil {
		return ResetRecord{}, errors.New("context is required")
	}

	result := r.collection.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "reset_at", Value: -1}}))
	if result == nil {
		return ResetRecord{}, errors.New("find reset returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ResetRecord{}, ErrNoResets
		}
		return ResetRecord{}, fmt.Errorf("find reset: %w", err)
	}

	var record ResetRecord
	if err := result.Decode(&record); err != nil {
		return ResetRecord{}, fmt.Errorf("decode reset: %w", err)
	}

	return record, nil
}
