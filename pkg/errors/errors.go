package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeTimeout      = "TIMEOUT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInvalidInput = "INVALID_INPUT"
	CodeRateLimited  = "RATE_LIMITED"

	CodeNoCapacity          = "NO_CAPACITY"
	CodeUnitNotFound        = "UNIT_NOT_FOUND"
	CodeHoldNotFound        = "HOLD_NOT_FOUND"
	CodeHoldInvalid         = "HOLD_INVALID"
	CodeHoldExpired         = "HOLD_EXPIRED"
	CodeBookingNotFound     = "BOOKING_NOT_FOUND"
	CodeAlreadyCancelled    = "ALREADY_CANCELLED"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeRestoreRejected     = "RESTORE_REJECTED"
	CodeTransient           = "TRANSIENT"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	response := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
	data, _ := json.Marshal(response)
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithDetail sets a single detail key, allocating the map on first use.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Timeout(message string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

func Unavailable(service string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func RateLimited(message string) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

func NoCapacity(unitID string) *AppError {
	return &AppError{
		Code:       CodeNoCapacity,
		Message:    "Resource unit has no remaining capacity",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"unit_id": unitID},
	}
}

func UnitNotFound(unitID string) *AppError {
	return &AppError{
		Code:       CodeUnitNotFound,
		Message:    "Resource unit not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"unit_id": unitID},
	}
}

func HoldNotFound(holdID string) *AppError {
	return &AppError{
		Code:       CodeHoldNotFound,
		Message:    "Hold not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"hold_id": holdID},
	}
}

func HoldInvalid(holdID, state string) *AppError {
	return &AppError{
		Code:       CodeHoldInvalid,
		Message:    fmt.Sprintf("Hold is %s and cannot be confirmed", state),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"hold_id": holdID, "state": state},
	}
}

func HoldExpired(holdID string) *AppError {
	return &AppError{
		Code:       CodeHoldExpired,
		Message:    "Hold has expired",
		HTTPStatus: http.StatusGone,
		Details:    map[string]any{"hold_id": holdID},
	}
}

func BookingNotFound(bookingID string) *AppError {
	return &AppError{
		Code:       CodeBookingNotFound,
		Message:    "Booking not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"booking_id": bookingID},
	}
}

func AlreadyCancelled(bookingID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyCancelled,
		Message:    "Booking is already cancelled",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"booking_id": bookingID},
	}
}

func IdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotencyConflict,
		Message:    "Idempotency key was already used with a different request",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

func RestoreRejected(bookingID, reason string) *AppError {
	return &AppError{
		Code:       CodeRestoreRejected,
		Message:    fmt.Sprintf("Capacity cannot be restored: %s", reason),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"booking_id": bookingID, "reason": reason},
	}
}

// Transient marks store contention or a bounded wait that ran out. Safe to retry.
func Transient(message string, err error) *AppError {
	return &AppError{
		Code:       CodeTransient,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return HasCode(err, CodeTransient)
}
