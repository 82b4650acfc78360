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

type mongoUnitRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoUnitRepository(cfg *config.Config, db *mongo.Database) UnitRepository {
	return &mongoUnitRepository{
		cfg:        cfg,
		collection: db.Collection(UnitsCollection),
	}
}

func (r *mongoUnitRepository) Create(ctx context.Context, unit *model.ResourceUnit) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, unit); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create unit: %w", err)
	}
	return nil
}

func (r *mongoUnitRepository) CreateMany(ctx context.Context, units []*model.ResourceUnit) error {
	if len(units) == 0 {
		return nil
	}
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	docs := make([]any, len(units))
	for i, u := range units {
		docs[i] = u
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create units: %w", err)
	}
	return nil
}

func (r *mongoUnitRepository) FindByID(ctx context.Context, id string) (*model.ResourceUnit, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var unit model.ResourceUnit
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&unit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find unit: %w", err)
	}
	return &unit, nil
}

func (r *mongoUnitRepository) Find(ctx context.Context, q model.UnitQuery, now time.Time) ([]*model.ResourceUnit, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{}
	if q.ResourceID != "" {
		filter["resource_id"] = q.ResourceID
	}
	if q.ProviderID != "" {
		filter["provider_id"] = q.ProviderID
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Window != nil {
		filter["start"] = bson.M{"$lt": q.Window.End}
		filter["end"] = bson.M{"$gt": q.Window.Start}
	}
	if q.OnlyOpen {
		filter["retired"] = false
		filter["remaining"] = bson.M{"$gt": 0}
		if start, ok := filter["start"].(bson.M); ok {
			start["$gt"] = now
		} else {
			filter["start"] = bson.M{"$gt": now}
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "start", Value: 1}, {Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find units: %w", err)
	}
	defer cursor.Close(ctx)

	var units []*model.ResourceUnit
	if err := cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("failed to decode units: %w", err)
	}
	return units, nil
}

func (r *mongoUnitRepository) DecrementRemaining(ctx context.Context, id string, now time.Time) (*model.ResourceUnit, error) {
	filter := bson.M{
		"_id":       id,
		"retired":   false,
		"remaining": bson.M{"$gt": 0},
		"start":     bson.M{"$gt": now},
	}
	update := bson.M{
		"$inc": bson.M{"remaining": -1},
		"$set": bson.M{"updated_at": now},
	}
	return r.conditionalUpdate(ctx, id, filter, update, ErrNoCapacity)
}

func (r *mongoUnitRepository) IncrementRemaining(ctx context.Context, id string, now time.Time) (*model.ResourceUnit, error) {
	filter := bson.M{
		"_id":   id,
		"$expr": bson.M{"$lt": bson.A{"$remaining", "$capacity"}},
	}
	update := bson.M{
		"$inc": bson.M{"remaining": 1},
		"$set": bson.M{"updated_at": now},
	}
	return r.conditionalUpdate(ctx, id, filter, update, ErrAtCapacity)
}

func (r *mongoUnitRepository) UpdateWindow(ctx context.Context, id string, window model.TimeWindow, now time.Time) (*model.ResourceUnit, error) {
	filter := bson.M{"_id": id, "retired": false}
	update := bson.M{
		"$set": bson.M{"start": window.Start, "end": window.End, "updated_at": now},
		"$inc": bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, id, filter, update, ErrStateConflict)
}

func (r *mongoUnitRepository) Retire(ctx context.Context, id string, now time.Time) (*model.ResourceUnit, error) {
	filter := bson.M{"_id": id, "retired": false}
	update := bson.M{
		"$set": bson.M{"retired": true, "updated_at": now},
		"$inc": bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, id, filter, update, ErrStateConflict)
}

// conditionalUpdate applies update when filter matches. A miss is reported as ErrNotFound
// if the unit does not exist at all, otherwise as onMiss.
func (r *mongoUnitRepository) conditionalUpdate(ctx context.Context, id string, filter, update bson.M, onMiss error) (*model.ResourceUnit, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var unit model.ResourceUnit
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&unit)
	if err == nil {
		return &unit, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update unit: %w", err)
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to check unit: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, onMiss
}
