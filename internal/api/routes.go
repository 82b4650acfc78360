// Package api assembles the HTTP handlers of the reservation service.
package api

import (
	audithandler "slotkeeper/internal/audit/handler"
	bookinghandler "slotkeeper/internal/bookings/handler"
	cataloghandler "slotkeeper/internal/catalog/handler"
	conflicthandler "slotkeeper/internal/conflicts/handler"
	"slotkeeper/internal/engine"
	eventhandler "slotkeeper/internal/events/handler"
	healthhandler "slotkeeper/internal/health/handler"
	holdhandler "slotkeeper/internal/holds/handler"
	"slotkeeper/pkg/client"
	"slotkeeper/pkg/contracts"
	"slotkeeper/pkg/logger"
)

// Routes returns the public API handlers backed by eng.
func Routes(eng *engine.Engine, log *logger.Logger) contracts.Handlers {
	return contracts.Handlers{
		cataloghandler.NewUnitHandler(eng.Catalog, log.Component("catalog")),
		holdhandler.NewHoldHandler(eng.Holds, log.Component("holds")),
		bookinghandler.NewBookingHandler(eng.Bookings, log.Component("bookings")),
		conflicthandler.NewAlternativesHandler(eng.Resolver),
		eventhandler.NewEventsHandler(eng.Publisher, log.Component("events")),
		audithandler.NewHistoryHandler(eng.Audit),
	}
}

// Ops returns the health and readiness handlers. Nil connections are not checked.
func Ops(c *client.Client, log *logger.Logger) contracts.Handler {
	if c == nil {
		return healthhandler.NewHealthHandler(nil, nil, log)
	}
	return healthhandler.NewHealthHandler(c.Mongo, c.Redis, log)
}

// Stream returns the server-sent event feed over eng's in-process fanout.
func Stream(eng *engine.Engine, log *logger.Logger) *eventhandler.StreamHandler {
	return eventhandler.NewStreamHandler(eng.Fanout, 0, log.Component("stream"))
}
