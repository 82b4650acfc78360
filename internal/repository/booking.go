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

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoBookingRepository(cfg *config.Config, db *mongo.Database) BookingRepository {
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(BookingsCollection),
	}
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoBookingRepository) FindByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error) {
	return r.findOne(ctx, bson.M{"idempotency_key": key})
}

func (r *mongoBookingRepository) findOne(ctx context.Context, filter bson.M) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	if err := r.collection.FindOne(ctx, filter).Decode(&booking); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) Cancel(ctx context.Context, id, reason string, at time.Time) (*model.Booking, error) {
	filter := bson.M{"_id": id, "status": model.BookingConfirmed}
	update := bson.M{"$set": bson.M{
		"status":        model.BookingCancelled,
		"cancelled_at":  at,
		"cancel_reason": reason,
	}}
	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *mongoBookingRepository) MarkCapacityRestored(ctx context.Context, id string) (*model.Booking, error) {
	filter := bson.M{"_id": id, "status": model.BookingCancelled, "capacity_restored": false}
	update := bson.M{"$set": bson.M{"capacity_restored": true}}
	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *mongoBookingRepository) conditionalUpdate(ctx context.Context, id string, filter, update bson.M) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var booking model.Booking
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&booking)
	if err == nil {
		return &booking, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to check booking: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrStateConflict
}
