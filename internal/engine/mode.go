package engine

import (
	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/widget"
)

// ModeController derives which fields exist, which are required and which are
// disabled from the structural mode fixed at construction.
type ModeController struct {
	mode domain.Mode
}

// NewModeController creates a controller for mode
func NewModeController(mode domain.Mode) *ModeController {
	return &ModeController{mode: mode}
}

// Mode returns the structural mode
func (c *ModeController) Mode() domain.Mode {
	return c.mode
}

// Fields returns the active fields in tab order
func (c *ModeController) Fields() []widget.FieldID {
	switch c.mode {
	case domain.ModePostalCodeOnly:
		return []widget.FieldID{widget.FieldPostcodeSearch, widget.FieldCity}
	case domain.ModePostalCodeAndCountry:
		return []widget.FieldID{widget.FieldPostcode, widget.FieldCity, widget.FieldCountry}
	default:
		return []widget.FieldID{
			widget.FieldStreetSearch,
			widget.FieldName,
			widget.FieldDetail,
			widget.FieldPostcode,
			widget.FieldCity,
			widget.FieldCountry,
		}
	}
}

// Active reports whether id exists in the mode
func (c *ModeController) Active(id widget.FieldID) bool {
	for _, f := range c.Fields() {
		if f == id {
			return true
		}
	}
	return false
}

// Required reports whether id must be filled. The name stays logically
// required for primary addresses; Disabled takes it out of the check.
func (c *ModeController) Required(id widget.FieldID) bool {
	switch c.mode {
	case domain.ModePostalCodeOnly:
		return id == widget.FieldPostcodeSearch
	case domain.ModePostalCodeAndCountry:
		return id == widget.FieldPostcode || id == widget.FieldCountry
	default:
		return id == widget.FieldName || id == widget.FieldCountry
	}
}

// Disabled reports whether id is rendered but not editable
func (c *ModeController) Disabled(id widget.FieldID, isPrimary bool) bool {
	switch c.mode {
	case domain.ModePostalCodeOnly:
		return id == widget.FieldCity
	case domain.ModeFull:
		return id == widget.FieldName && isPrimary
	default:
		return false
	}
}

// LayoutClass is the presentation class applied once at setup
func (c *ModeController) LayoutClass() string {
	switch c.mode {
	case domain.ModePostalCodeOnly, domain.ModePostalCodeAndCountry:
		return c.mode.String()
	default:
		return ""
	}
}

// SearchModeFor derives the street-search flag from a selected country.
// ok is false when the selection carries no ISO code and the flag must not change.
func SearchModeFor(entry *domain.CountryEntry) (mode domain.SearchMode, ok bool) {
	if entry == nil || entry.ISOAlpha3 == "" {
		return "", false
	}
	if entry.ISOAlpha3 != domain.DomesticISOAlpha3 {
		return domain.SearchModeBasic, true
	}
	return domain.SearchModeComplete, true
}
