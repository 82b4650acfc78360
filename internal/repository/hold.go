package repository

import (
	"context"
	"errors"
	"fmt"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoHoldRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoHoldRepository(cfg *config.Config, db *mongo.Database) HoldRepository {
	return &mongoHoldRepository{
		cfg:        cfg,
		collection: db.Collection(HoldsCollection),
	}
}

func (r *mongoHoldRepository) Create(ctx context.Context, hold *model.Hold) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, hold); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create hold: %w", err)
	}
	return nil
}

func (r *mongoHoldRepository) FindByID(ctx context.Context, id string) (*model.Hold, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var hold model.Hold
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&hold); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find hold: %w", err)
	}
	return &hold, nil
}

func (r *mongoHoldRepository) Transition(ctx context.Context, id string, to model.HoldState, at time.Time, guard ExpiryGuard) (*model.Hold, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "state": model.HoldActive}
	switch guard {
	case OnlyLive:
		filter["expires_at"] = bson.M{"$gte": at}
	case OnlyLapsed:
		filter["expires_at"] = bson.M{"$lt": at}
	}
	update := bson.M{"$set": bson.M{"state": to, "closed_at": at}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var hold model.Hold
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&hold)
	if err == nil {
		return &hold, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to transition hold: %w", err)
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to check hold: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrStateConflict
}

func (r *mongoHoldRepository) FindLapsed(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"state": model.HoldActive, "expires_at": bson.M{"$lt": now}}
	opts := options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find lapsed holds: %w", err)
	}
	defer cursor.Close(ctx)

	var holds []*model.Hold
	if err := cursor.All(ctx, &holds); err != nil {
		return nil, fmt.Errorf("failed to decode holds: %w", err)
	}
	return holds, nil
}

func (r *mongoHoldRepository) CountActive(ctx context.Context, unitID string) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"unit_id": unitID, "state": model.HoldActive})
	if err != nil {
		return 0, fmt.Errorf("failed to count holds: %w", err)
	}
	return count, nil
}
