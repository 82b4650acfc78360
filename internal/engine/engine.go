// Package engine wires the catalog, reservation, booking, conflict and event
// components around one store, one locker and one clock.
package engine

import (
	"context"
	"slotkeeper/internal/audit"
	bookingservice "slotkeeper/internal/bookings/service"
	bookingvalidator "slotkeeper/internal/bookings/validator"
	catalogservice "slotkeeper/internal/catalog/service"
	catalogvalidator "slotkeeper/internal/catalog/validator"
	"slotkeeper/internal/conflicts"
	"slotkeeper/internal/events"
	holdservice "slotkeeper/internal/holds/service"
	holdvalidator "slotkeeper/internal/holds/validator"
	"slotkeeper/internal/locks"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	"sync"
)

type Options struct {
	Store  *repository.Store
	Locker locks.Locker
	Clock  clock.Clock
	// Sinks receive relayed events in addition to Fanout.
	Sinks   []events.Sink
	Metrics *metrics.Engine
}

type Engine struct {
	Catalog   catalogservice.CatalogService
	Holds     holdservice.HoldService
	Bookings  bookingservice.BookingService
	Resolver  *conflicts.Resolver
	Publisher *events.Publisher
	Relay     *events.Relay
	Fanout    *events.Fanout
	Audit     *audit.Recorder
	Store     *repository.Store

	cfg *config.Config
	wg  sync.WaitGroup
}

func New(cfg *config.Config, opts Options) *Engine {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}

	recorder := audit.NewRecorder(opts.Store.Audit)
	publisher := events.NewPublisher(opts.Store.Versions, opts.Store.Outbox)
	resolver := conflicts.NewResolver(opts.Store.Units, clk, cfg.AlternativesLimit, cfg.Log.Component("conflicts"))

	fanout := events.NewFanout(cfg.Log.Component("fanout"))
	sinks := append([]events.Sink{fanout}, opts.Sinks...)
	relay := events.NewRelay(opts.Store.Outbox, sinks, clk, cfg.Log.Component("relay"), events.RelayOptions{
		Interval: cfg.RelayInterval,
		Batch:    cfg.RelayBatch,
		Metrics:  opts.Metrics,
	})
	publisher.OnPublish(relay.Notify)

	holdDeps := holdservice.Deps{
		Store:     opts.Store,
		Locker:    opts.Locker,
		Audit:     recorder,
		Publisher: publisher,
		Resolver:  resolver,
		Clock:     clk,
		Metrics:   opts.Metrics,
	}
	bookingDeps := bookingservice.Deps(holdDeps)

	return &Engine{
		Catalog: catalogservice.NewCatalogService(
			opts.Store, opts.Locker, recorder, catalogvalidator.NewUnitValidator(), clk, cfg,
		),
		Holds:     holdservice.NewHoldService(holdDeps, holdvalidator.NewHoldValidator(), cfg),
		Bookings:  bookingservice.NewBookingService(bookingDeps, bookingvalidator.NewBookingValidator(cfg.Log), cfg),
		Resolver:  resolver,
		Publisher: publisher,
		Relay:     relay,
		Fanout:    fanout,
		Audit:     recorder,
		Store:     opts.Store,
		cfg:       cfg,
	}
}

// Start runs the hold sweeper and the event relay until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.Holds.RunSweeper(ctx, e.cfg.SweepInterval)
	}()
	go func() {
		defer e.wg.Done()
		e.Relay.Run(ctx)
	}()
}

// Stop waits for the background loops started by Start, then flushes what is left in
// the outbox and closes the sinks.
func (e *Engine) Stop(ctx context.Context) error {
	e.wg.Wait()
	if _, err := e.Relay.Flush(ctx); err != nil {
		e.cfg.Log.Warn("Final outbox flush failed", "error", err)
	}
	return e.Relay.Close()
}
