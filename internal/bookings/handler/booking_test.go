package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"slotkeeper/internal/bookings/service"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
)

type mockBookingService struct {
	confirmFunc func(ctx context.Context, holdID, key string) (service.ConfirmResult, error)
	cancelFunc  func(ctx context.Context, id, reason string) (*model.Booking, error)
}

func (m *mockBookingService) Confirm(ctx context.Context, holdID, key string) (service.ConfirmResult, error) {
	return m.confirmFunc(ctx, holdID, key)
}

func (m *mockBookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return nil, apperrors.BookingNotFound(id)
}

func (m *mockBookingService) Cancel(ctx context.Context, id, reason string) (*model.Booking, error) {
	return m.cancelFunc(ctx, id, reason)
}

func (m *mockBookingService) RestoreCapacity(ctx context.Context, id string) (*model.Booking, error) {
	return nil, apperrors.RestoreRejected(id, "booking is not cancelled")
}

func TestConfirm_StatusReflectsReplay(t *testing.T) {
	var gotKey, gotHold string
	created := true
	h := NewBookingHandler(&mockBookingService{
		confirmFunc: func(ctx context.Context, holdID, key string) (service.ConfirmResult, error) {
			gotKey, gotHold = key, holdID
			return service.ConfirmResult{Booking: &model.Booking{ID: "b1"}, Created: created}, nil
		},
	}, logger.Nop())

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{"hold_id":"h1"}`))
		req.Header.Set(IdempotencyHeader, "abc")
		w := httptest.NewRecorder()
		h.Confirm(w, req, httprouter.Params{})
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, "abc", gotKey)
	assert.Equal(t, "h1", gotHold)

	created = false
	assert.Equal(t, http.StatusOK, send())
}

func TestConfirm_InvalidBody(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{}, logger.Nop())
	w := httptest.NewRecorder()

	h.Confirm(w, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{`)), httprouter.Params{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancel_OptionalReason(t *testing.T) {
	var gotReason string
	h := NewBookingHandler(&mockBookingService{
		cancelFunc: func(ctx context.Context, id, reason string) (*model.Booking, error) {
			gotReason = reason
			return &model.Booking{ID: id, Status: model.BookingCancelled}, nil
		},
	}, logger.Nop())
	params := httprouter.Params{{Key: "id", Value: "b1"}}

	w := httptest.NewRecorder()
	h.Cancel(w, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/id/b1/cancel", nil), params)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, gotReason)

	w = httptest.NewRecorder()
	h.Cancel(w, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/id/b1/cancel", strings.NewReader(`{"reason":"ill"}`)), params)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ill", gotReason)
}

func TestRestore_MapsRejection(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{}, logger.Nop())
	w := httptest.NewRecorder()

	h.Restore(w, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/id/b1/restore", nil), httprouter.Params{{Key: "id", Value: "b1"}})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeRestoreRejected)
}
