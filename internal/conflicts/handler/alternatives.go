package handler

import (
	"net/http"

	"slotkeeper/internal/conflicts"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type AlternativesHandler struct {
	resolver *conflicts.Resolver
}

func NewAlternativesHandler(resolver *conflicts.Resolver) *AlternativesHandler {
	return &AlternativesHandler{resolver: resolver}
}

// Suggest never fails on an empty result; it answers with an empty list.
func (h *AlternativesHandler) Suggest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resourceID := r.URL.Query().Get("resource_id")
	if resourceID == "" {
		httputil.WriteError(w, apperrors.InvalidInput("'resource_id' query parameter is required"))
		return
	}

	start, err := httputil.ExtractTime(r, "start")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	end, err := httputil.ExtractTime(r, "end")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		httputil.WriteError(w, apperrors.InvalidInput("'start' and 'end' are required and 'end' must be after 'start'"))
		return
	}

	window := model.TimeWindow{Start: start, End: end}
	alternatives := h.resolver.SuggestAlternatives(r.Context(), resourceID, window, httputil.ExtractList(r, "exclude"))
	httputil.WriteSuccess(w, alternatives)
}

func (h *AlternativesHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/alternatives", h.Suggest)
}
