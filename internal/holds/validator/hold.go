package validator

import (
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/validation"
)

type HoldValidator struct {
	v *validation.Validator
}

func NewHoldValidator() *HoldValidator {
	return &HoldValidator{v: validation.New()}
}

func (hv *HoldValidator) Validate(req *model.AcquireHoldRequest) error {
	return hv.v.Struct(req)
}
