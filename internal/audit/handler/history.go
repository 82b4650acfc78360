package handler

import (
	"net/http"

	"slotkeeper/internal/audit"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type HistoryHandler struct {
	recorder *audit.Recorder
}

func NewHistoryHandler(recorder *audit.Recorder) *HistoryHandler {
	return &HistoryHandler{recorder: recorder}
}

func (h *HistoryHandler) History(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	subjectType := ps.ByName("type")
	switch subjectType {
	case model.SubjectUnit, model.SubjectHold, model.SubjectBooking:
	default:
		httputil.WriteError(w, apperrors.InvalidInput("subject type must be one of unit, hold, booking"))
		return
	}

	entries, err := h.recorder.History(r.Context(), subjectType, ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, apperrors.Internal("Failed to read audit history", err))
		return
	}
	if entries == nil {
		entries = []*model.AuditEntry{}
	}

	httputil.WriteSuccess(w, entries)
}

func (h *HistoryHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/audit/:type/:id", h.History)
}
