// Package validation checks request payloads against their struct-tag
// schemas and reports the first violation the way clients expect to read it,
// e.g. `"userName" is required`.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gbsr/chappy/internal/common"
	"github.com/gbsr/chappy/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return models.ValidID(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register objectid validation: %v", err))
	}
	return v
}

// Struct validates s and returns a *common.ValidationError describing the
// first failing field, or nil.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &common.ValidationError{Field: fe.Field(), Msg: message(fe)}
	}
	return fmt.Errorf("validate payload: %w", err)
}

// ID checks a path identifier.
func ID(id string) error {
	if !models.ValidID(id) {
		return common.InvalidIDError(id)
	}
	return nil
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "min":
		return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "objectid":
		return fmt.Sprintf("%q must be a valid 24 character hex id", field)
	default:
		return fmt.Sprintf("%q failed on the %q rule", field, fe.Tag())
	}
}
