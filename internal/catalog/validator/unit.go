package validator

import (
	"fmt"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/validation"
	"time"
)

// MaxGeneratedUnits bounds one Generate call.
const MaxGeneratedUnits = 1000

type UnitValidator struct {
	v *validation.Validator
}

func NewUnitValidator() *UnitValidator {
	return &UnitValidator{v: validation.New()}
}

func (uv *UnitValidator) Validate(unit *model.ResourceUnit) error {
	return uv.v.Struct(unit)
}

func (uv *UnitValidator) ValidateGenerate(req *model.GenerateUnitsRequest) error {
	if err := uv.v.Struct(req); err != nil {
		return err
	}

	slot := time.Duration(req.SlotDurationMin) * time.Minute
	if req.To.Sub(req.From) < slot {
		return validation.ValidationErrors{{
			Field:   "To",
			Message: fmt.Sprintf("window is shorter than one slot of %s", slot),
		}}
	}
	step := slot + time.Duration(req.BreakMin)*time.Minute
	if n := int(req.To.Sub(req.From)/step) + 1; n > MaxGeneratedUnits {
		return validation.ValidationErrors{{
			Field:   "To",
			Message: fmt.Sprintf("window would produce more than %d units", MaxGeneratedUnits),
		}}
	}
	return nil
}

func (uv *UnitValidator) ValidateWindow(req *model.RescheduleUnitRequest) error {
	return uv.v.Struct(req)
}
