package engine

import (
	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/pkg/validator"
	"github.com/banking/address-service/internal/widget"
)

// PostcodeFormatMessage is attached to a domestic postcode with the wrong shape
const PostcodeFormatMessage = "Código postal com formato inválido."

// Validator runs the required-field and cross-field checks over the bound fields
type Validator struct {
	required widget.RequiredFieldChecker
	rules    *validator.CustomValidator
}

// NewValidator creates a validator. A nil checker falls back to the
// in-memory required checker built on rules.
func NewValidator(required widget.RequiredFieldChecker, rules *validator.CustomValidator) *Validator {
	if rules == nil {
		rules = validator.New()
	}
	if required == nil {
		required = widget.NewRequiredChecker(rules)
	}
	return &Validator{required: required, rules: rules}
}

// ValidateRequired delegates to the required-field checker
func (v *Validator) ValidateRequired(fields []widget.Field) bool {
	return v.required.ValidateRequiredFields(fields)
}

// ValidateCrossField checks the postcode shape when the selected country is
// the domestic one. Missing country, missing postcode or a country absent
// from items all pass, and a passing field loses a format flag left by an
// earlier run.
func (v *Validator) ValidateCrossField(items []domain.CountryEntry, country domain.CountryID, postcode string, field widget.Flaggable) bool {
	if v.postcodeOK(items, country, postcode) {
		if field != nil {
			widget.ClearFlag(field, PostcodeFormatMessage)
		}
		return true
	}
	if field != nil {
		field.SetInvalid(true, PostcodeFormatMessage)
	}
	return false
}

func (v *Validator) postcodeOK(items []domain.CountryEntry, country domain.CountryID, postcode string) bool {
	if country == "" || postcode == "" {
		return true
	}
	entry, ok := domain.FindCountry(items, country)
	if !ok || !entry.IsDomestic() {
		return true
	}
	return v.rules.DomesticPostcode(postcode)
}
