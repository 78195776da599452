package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// TagDomesticPostcode is registered on every validator built by New
const TagDomesticPostcode = "pt_postcode"

// CustomValidator wraps the playground validator
type CustomValidator struct {
	validator *validator.Validate
}

// New creates a new custom validator
func New() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation(TagDomesticPostcode, validateDomesticPostcode)

	return &CustomValidator{validator: v}
}

// Validate validates a struct
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// Var validates a single value against a tag expression
func (cv *CustomValidator) Var(value interface{}, tag string) error {
	return cv.validator.Var(value, tag)
}

// DomesticPostcode reports whether s has the domestic postcode shape NNNN-NNN
func (cv *CustomValidator) DomesticPostcode(s string) bool {
	return cv.validator.Var(s, TagDomesticPostcode) == nil
}

// Domestic postcode: four digits, hyphen, three digits
var domesticPostcodeRegex = regexp.MustCompile(`^\d{4}-\d{3}$`)

func validateDomesticPostcode(fl validator.FieldLevel) bool {
	return domesticPostcodeRegex.MatchString(fl.Field().String())
}
