package handler

import (
	"context"
	"net/http"

	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type VersionSource interface {
	CurrentVersion(ctx context.Context, subjectID string) (int64, error)
}

// SubjectVersion is the last event version assigned to a subject. Feed consumers use it
// to rebase after a gap.
type SubjectVersion struct {
	SubjectID string `json:"subject_id"`
	Version   int64  `json:"version"`
}

type EventsHandler struct {
	versions VersionSource
	log      *logger.Logger
}

func NewEventsHandler(versions VersionSource, log *logger.Logger) *EventsHandler {
	return &EventsHandler{versions: versions, log: log}
}

func (h *EventsHandler) Version(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	version, err := h.versions.CurrentVersion(r.Context(), id)
	if err != nil {
		h.log.Error("Failed to read subject version", "subject_id", id, "error", err)
		httputil.WriteError(w, apperrors.Internal("Failed to read subject version", err))
		return
	}

	httputil.WriteSuccess(w, SubjectVersion{SubjectID: id, Version: version})
}

func (h *EventsHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/events/subjects/:id/version", h.Version)
}
