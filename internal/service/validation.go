package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/fleet-inventory/internal/utils"
)

// check validates in and converts the first failure into a *ValidationError.
func check(v *validator.Validate, in any) error {
	if err := v.Struct(in); err != nil {
		return &ValidationError{Message: utils.ValidationMessage(err)}
	}
	return nil
}
