package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

type mockCatalogService struct {
	listFunc       func(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error)
	candidatesFunc func(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error)
}

func (m *mockCatalogService) Register(ctx context.Context, unit *model.ResourceUnit) error {
	return nil
}

func (m *mockCatalogService) Generate(ctx context.Context, req *model.GenerateUnitsRequest) ([]*model.ResourceUnit, error) {
	return nil, nil
}

func (m *mockCatalogService) Get(ctx context.Context, id string) (*model.ResourceUnit, error) {
	return nil, nil
}

func (m *mockCatalogService) List(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, q)
	}
	return []*model.ResourceUnit{}, nil
}

func (m *mockCatalogService) Candidates(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error) {
	if m.candidatesFunc != nil {
		return m.candidatesFunc(ctx, q)
	}
	return []*model.ResourceUnit{}, nil
}

func (m *mockCatalogService) Reschedule(ctx context.Context, id string, window model.TimeWindow) (*model.ResourceUnit, error) {
	return nil, nil
}

func (m *mockCatalogService) Retire(ctx context.Context, id string) (*model.ResourceUnit, error) {
	return nil, nil
}

func TestList_InvalidQueryParameters(t *testing.T) {
	called := false
	handler := NewUnitHandler(&mockCatalogService{
		listFunc: func(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error) {
			called = true
			return nil, nil
		},
	}, logger.Nop())

	tests := []struct {
		name        string
		queryString string
	}{
		{name: "alphabetic limit", queryString: "?limit=abc"},
		{name: "start without end", queryString: "?start=2026-05-01T10:00:00Z"},
		{name: "end before start", queryString: "?start=2026-05-01T10:00:00Z&end=2026-05-01T09:00:00Z"},
		{name: "not RFC3339", queryString: "?start=tomorrow&end=2026-05-01T09:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest(http.MethodGet, "/api/v1/units"+tt.queryString, nil)
			w := httptest.NewRecorder()

			handler.List(w, req, httprouter.Params{})

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
			if called {
				t.Error("service should not be called for invalid input")
			}
		})
	}
}

func TestList_PassesFilters(t *testing.T) {
	var received model.UnitQuery
	handler := NewUnitHandler(&mockCatalogService{
		listFunc: func(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error) {
			received = q
			return []*model.ResourceUnit{{ID: "u1"}, {ID: "u2"}}, nil
		},
	}, logger.Nop())

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/units?resource_id=room-1&provider_id=p1&category=consult&limit=20&start=2026-05-01T10:00:00Z&end=2026-05-01T12:00:00Z", nil)
	w := httptest.NewRecorder()

	handler.List(w, req, httprouter.Params{})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if received.ResourceID != "room-1" || received.ProviderID != "p1" || received.Category != "consult" {
		t.Errorf("unexpected filters: %+v", received)
	}
	if received.Limit != 20 {
		t.Errorf("expected limit 20, got %d", received.Limit)
	}
	if received.Window == nil || !received.Window.Start.Equal(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("expected window filter, got %+v", received.Window)
	}

	var response struct {
		Data       []model.ResourceUnit `json:"data"`
		TotalCount int64                `json:"total_count"`
		Limit      int                  `json:"limit"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Data) != 2 || response.TotalCount != 2 {
		t.Errorf("expected 2 items, got %d (total %d)", len(response.Data), response.TotalCount)
	}
}

func TestList_OpenUsesCandidates(t *testing.T) {
	var usedCandidates bool
	handler := NewUnitHandler(&mockCatalogService{
		candidatesFunc: func(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error) {
			usedCandidates = true
			return []*model.ResourceUnit{}, nil
		},
	}, logger.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/units?open=true", nil)
	w := httptest.NewRecorder()

	handler.List(w, req, httprouter.Params{})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !usedCandidates {
		t.Error("expected open=true to list candidates")
	}
}
