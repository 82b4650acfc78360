package mongo

import (
	"testing"

	"slotkeeper/internal/repository"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCollectionsCoverRepositories(t *testing.T) {
	names := map[string]bool{}
	for _, def := range Collections() {
		names[def.Name] = true
	}

	for _, name := range []string{
		repository.UnitsCollection,
		repository.HoldsCollection,
		repository.BookingsCollection,
		repository.AuditCollection,
		repository.OutboxCollection,
		repository.VersionsCollection,
		repository.LocksCollection,
	} {
		assert.True(t, names[name], "missing migration for %s", name)
	}
}

func TestBookingKeysAreUnique(t *testing.T) {
	unique := map[string]bool{}
	for _, model := range BookingsIndexes {
		keys := model.Keys.(bson.D)
		if model.Options != nil && model.Options.Unique != nil && *model.Options.Unique {
			unique[keys[0].Key] = true
		}
	}

	assert.True(t, unique["idempotency_key"])
	assert.True(t, unique["hold_id"])
}

func TestLockDocumentsExpire(t *testing.T) {
	a := assert.New(t)
	a.Len(LocksIndexes, 1)
	a.NotNil(LocksIndexes[0].Options.ExpireAfterSeconds)
	a.Equal(int32(0), *LocksIndexes[0].Options.ExpireAfterSeconds)
}
