package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"slotkeeper/internal/catalog/service"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type UnitHandler struct {
	service service.CatalogService
	log     *logger.Logger
}

func NewUnitHandler(service service.CatalogService, log *logger.Logger) *UnitHandler {
	return &UnitHandler{
		service: service,
		log:     log,
	}
}

func (h *UnitHandler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var unit model.ResourceUnit
	if err := json.NewDecoder(r.Body).Decode(&unit); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
			Code:  apperrors.CodeInvalidInput,
		})
		return
	}

	if err := h.service.Register(r.Context(), &unit); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteCreated(w, unit)
}

func (h *UnitHandler) Generate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.GenerateUnitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
			Code:  apperrors.CodeInvalidInput,
		})
		return
	}

	units, err := h.service.Generate(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.log.Info("Generated resource units", "resource_id", req.ResourceID, "count", len(units))
	httputil.WriteCreated(w, units)
}

func (h *UnitHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	unit, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, unit)
}

// List serves both the plain catalog listing and, with open=true, the holdable candidates.
func (h *UnitHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q, err := unitQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	list := h.service.List
	if open, _ := strconv.ParseBool(r.URL.Query().Get("open")); open {
		list = h.service.Candidates
	}

	units, err := list(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WritePaginated(w, units, int64(len(units)), q.Limit, 0)
}

func (h *UnitHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.RescheduleUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
			Code:  apperrors.CodeInvalidInput,
		})
		return
	}

	unit, err := h.service.Reschedule(r.Context(), ps.ByName("id"), model.TimeWindow{Start: req.Start, End: req.End})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, unit)
}

func (h *UnitHandler) Retire(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, err := h.service.Retire(r.Context(), ps.ByName("id")); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func unitQuery(r *http.Request) (model.UnitQuery, error) {
	query := r.URL.Query()
	q := model.UnitQuery{
		ResourceID: query.Get("resource_id"),
		ProviderID: query.Get("provider_id"),
		Category:   query.Get("category"),
	}

	limit, _, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		return q, err
	}
	q.Limit = limit

	start, err := httputil.ExtractTime(r, "start")
	if err != nil {
		return q, err
	}
	end, err := httputil.ExtractTime(r, "end")
	if err != nil {
		return q, err
	}
	switch {
	case start.IsZero() && end.IsZero():
	case start.IsZero() || end.IsZero():
		return q, apperrors.InvalidInput("both 'start' and 'end' are required to filter by window")
	case !end.After(start):
		return q, apperrors.InvalidInput("'end' must be after 'start'")
	default:
		q.Window = &model.TimeWindow{Start: start, End: end}
	}
	return q, nil
}

func (h *UnitHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/units", h.Register)
	router.POST("/api/v1/units/generate", h.Generate)
	router.GET("/api/v1/units", h.List)
	router.GET("/api/v1/units/id/:id", h.GetByID)
	router.PATCH("/api/v1/units/id/:id/reschedule", h.Reschedule)
	router.DELETE("/api/v1/units/id/:id", h.Retire)
}
