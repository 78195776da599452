// Package widget declares the field capabilities an address engine consumes
// from its host and provides headless in-memory implementations of them.
package widget

import (
	"github.com/banking/address-service/internal/domain"
)

// FieldID identifies a field of the address form
type FieldID string

const (
	FieldName           FieldID = "address-name"
	FieldStreetSearch   FieldID = "address-search"
	FieldDetail         FieldID = "address-detail"
	FieldPostcode       FieldID = "address-postcode"
	FieldPostcodeSearch FieldID = "postal-code-search"
	FieldCity           FieldID = "address-city"
	FieldCountry        FieldID = "address-country"
)

// Valued is anything holding a string value
type Valued interface {
	Value() string
	SetValue(value string)
}

// Flaggable fields can be marked invalid with a user-facing message
type Flaggable interface {
	SetInvalid(invalid bool, message string)
	Invalid() bool
	ErrorMessage() string
}

// TextInput is a plain text input
type TextInput interface {
	Valued
	Flaggable
}

// SearchSelect is a searchable select. Its value is the id of the selected item.
type SearchSelect interface {
	Valued
	Flaggable
	Clear()
}

// CountrySelect is a searchable select over the country list
type CountrySelect interface {
	SearchSelect
	Items() []domain.CountryEntry
	SetItems(items []domain.CountryEntry)
}

// Hideable is implemented by handles that can be hidden from the layout
type Hideable interface {
	SetHidden(hidden bool)
	Hidden() bool
}

// Field describes a rendered field for the required-field checker
type Field struct {
	ID       FieldID
	Handle   TextInput
	Required bool
	Disabled bool
}

// RequiredFieldChecker validates required-ness over rendered fields
type RequiredFieldChecker interface {
	ValidateRequiredFields(fields []Field) bool
}

// KeyEvent is a keyboard event raised inside the form's field set
type KeyEvent struct {
	Key     string
	Shift   bool
	Focused FieldID
}

// FocusTraversal moves focus through a field set and reports whether the
// traversal left the set at either end.
type FocusTraversal interface {
	FieldTab(ev KeyEvent, fields []FieldID) (next FieldID, reachedExtreme bool)
}
