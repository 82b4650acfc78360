package repository

import (
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
)

// NewMongoStore wires every repository against the configured database.
// cfg.Client.Mongo must be connected.
func NewMongoStore(cfg *config.Config) *Store {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &Store{
		Units:    NewMongoUnitRepository(cfg, db),
		Holds:    NewMongoHoldRepository(cfg, db),
		Bookings: NewMongoBookingRepository(cfg, db),
		Audit:    NewMongoAuditRepository(cfg, db),
		Outbox:   NewMongoOutboxRepository(cfg, db),
		Versions: NewMongoVersionRepository(cfg, db),
		Tx:       mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}
