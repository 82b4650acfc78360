package repository

import (
	"context"
	"fmt"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoOutboxRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoOutboxRepository(cfg *config.Config, db *mongo.Database) OutboxRepository {
	return &mongoOutboxRepository{
		cfg:        cfg,
		collection: db.Collection(OutboxCollection),
	}
}

func (r *mongoOutboxRepository) Append(ctx context.Context, entry *model.OutboxEntry) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to append outbox entry: %w", err)
	}
	return nil
}

func (r *mongoOutboxRepository) Pending(ctx context.Context, limit int, exclude []string) ([]*model.OutboxEntry, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "event.subject_id", Value: 1}, {Key: "event.version", Value: 1}}).
		SetLimit(int64(limit))

	filter := bson.M{"delivered": false}
	if len(exclude) > 0 {
		filter["event.subject_id"] = bson.M{"$nin": exclude}
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending outbox entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.OutboxEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode outbox entries: %w", err)
	}
	return entries, nil
}

func (r *mongoOutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{"delivered": true, "delivered_at": at},
		"$inc": bson.M{"attempts": 1},
	}
	if _, err := r.collection.UpdateByID(ctx, id, update); err != nil {
		return fmt.Errorf("failed to mark outbox entry delivered: %w", err)
	}
	return nil
}

func (r *mongoOutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{"last_error": reason},
		"$inc": bson.M{"attempts": 1},
	}
	if _, err := r.collection.UpdateByID(ctx, id, update); err != nil {
		return fmt.Errorf("failed to mark outbox entry failed: %w", err)
	}
	return nil
}
