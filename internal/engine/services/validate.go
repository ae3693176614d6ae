package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/go-playground/validator/v10"
)

type pairInput struct {
	AppID int64  `json:"app_id" validate:"gt=0"`
	Email string `json:"email" validate:"required,email,max=320"`
}

type bindInput struct {
	AppID      int64  `json:"app_id" validate:"gt=0"`
	Email      string `json:"email" validate:"required,email,max=320"`
	HardwareID string `json:"hardware_id" validate:"required,max=255"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their json names so errors match the CLI vocabulary
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput checks in and converts the first failure into a
// *common.ValidationError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return common.NewValidationError(fe.Field(), reason(fe))
	}
	return common.NewValidationError("input", err.Error())
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be an email address"
	case "gt":
		return "must be positive"
	case "max":
		return "too long"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
