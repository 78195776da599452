package widget

import (
	"strings"

	"github.com/banking/address-service/internal/pkg/validator"
)

// RequiredMessage is attached to required fields left empty
const RequiredMessage = "Campo obrigatório."

// RequiredChecker flags empty required fields. Disabled fields are skipped.
type RequiredChecker struct {
	validate *validator.CustomValidator
}

// NewRequiredChecker creates a checker backed by v
func NewRequiredChecker(v *validator.CustomValidator) *RequiredChecker {
	if v == nil {
		v = validator.New()
	}
	return &RequiredChecker{validate: v}
}

// ValidateRequiredFields checks every field and returns false if any required one is empty.
// A field that no longer fails the check loses a required flag left by an
// earlier run; flags set by other checks are kept.
func (c *RequiredChecker) ValidateRequiredFields(fields []Field) bool {
	ok := true
	for _, f := range fields {
		if f.Handle == nil {
			continue
		}
		if f.Required && !f.Disabled {
			if err := c.validate.Var(strings.TrimSpace(f.Handle.Value()), "required"); err != nil {
				f.Handle.SetInvalid(true, RequiredMessage)
				ok = false
				continue
			}
		}
		ClearFlag(f.Handle, RequiredMessage)
	}
	return ok
}

// ClearFlag resets field when its current flag carries message
func ClearFlag(field Flaggable, message string) {
	if field.Invalid() && field.ErrorMessage() == message {
		field.SetInvalid(false, "")
	}
}
