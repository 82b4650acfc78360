package repository

import (
	"context"
	"errors"
	"fmt"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type versionDoc struct {
	SubjectID string `bson:"_id"`
	Version   int64  `bson:"version"`
}

type mongoVersionRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoVersionRepository(cfg *config.Config, db *mongo.Database) VersionRepository {
	return &mongoVersionRepository{
		cfg:        cfg,
		collection: db.Collection(VersionsCollection),
	}
}

func (r *mongoVersionRepository) Next(ctx context.Context, subjectID string) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc versionDoc
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": subjectID}, bson.M{"$inc": bson.M{"version": 1}}, opts).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to advance version for %s: %w", subjectID, err)
	}
	return doc.Version, nil
}

func (r *mongoVersionRepository) Current(ctx context.Context, subjectID string) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var doc versionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": subjectID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read version for %s: %w", subjectID, err)
	}
	return doc.Version, nil
}
