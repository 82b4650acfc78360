package validator

import (
	"regexp"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/validation"

	"github.com/go-playground/validator/v10"
)

var idempotencyKeyRegex = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

type BookingValidator struct {
	v      *validation.Validator
	logger *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validation.New()

	if err := v.Register("idempotency_key", validateIdempotencyKey); err != nil {
		log.Fatal("Failed to register 'idempotency_key' validator",
			"error", err,
		)
	}

	return &BookingValidator{
		v:      v,
		logger: log,
	}
}

func validateIdempotencyKey(fl validator.FieldLevel) bool {
	return idempotencyKeyRegex.MatchString(fl.Field().String())
}

func (bv *BookingValidator) ValidateConfirm(req *model.ConfirmBookingRequest) error {
	return bv.v.Struct(req)
}

func (bv *BookingValidator) ValidateCancel(req *model.CancelBookingRequest) error {
	return bv.v.Struct(req)
}
