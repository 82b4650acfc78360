// Package memory is an in-process implementation of the repository interfaces.
// Transactions serialize on one mutex and roll back by restoring a snapshot.
package memory

import (
	"context"
	"maps"
	"slotkeeper/internal/repository"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"
	"sync"
)

type txKey struct{}

type state struct {
	units         map[string]model.ResourceUnit
	holds         map[string]model.Hold
	bookings      map[string]model.Booking
	bookingByKey  map[string]string
	bookingByHold map[string]string
	audit         []model.AuditEntry
	outbox        map[string]model.OutboxEntry
	versions      map[string]int64
}

func newState() state {
	return state{
		units:         make(map[string]model.ResourceUnit),
		holds:         make(map[string]model.Hold),
		bookings:      make(map[string]model.Booking),
		bookingByKey:  make(map[string]string),
		bookingByHold: make(map[string]string),
		outbox:        make(map[string]model.OutboxEntry),
		versions:      make(map[string]int64),
	}
}

func (s state) clone() state {
	return state{
		units:         maps.Clone(s.units),
		holds:         maps.Clone(s.holds),
		bookings:      maps.Clone(s.bookings),
		bookingByKey:  maps.Clone(s.bookingByKey),
		bookingByHold: maps.Clone(s.bookingByHold),
		audit:         s.audit[:len(s.audit):len(s.audit)],
		outbox:        maps.Clone(s.outbox),
		versions:      maps.Clone(s.versions),
	}
}

// DB holds all collections of one in-memory store.
type DB struct {
	mu sync.Mutex
	st state
}

func New() *DB {
	return &DB{st: newState()}
}

// Store returns the repositories backed by db.
func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Units:    &unitRepository{db: db},
		Holds:    &holdRepository{db: db},
		Bookings: &bookingRepository{db: db},
		Audit:    &auditRepository{db: db},
		Outbox:   &outboxRepository{db: db},
		Versions: &versionRepository{db: db},
		Tx:       db,
	}
}

func NewStore() *repository.Store {
	return New().Store()
}

var _ mongotx.TransactionManager = (*DB)(nil)

func (db *DB) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.st = snapshot
		return err
	}
	return nil
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

// run executes fn against the state, taking the mutex unless ctx already holds it.
func (db *DB) run(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.inTx(ctx) {
		return fn(&db.st)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(&db.st)
}
