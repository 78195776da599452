package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownMode is returned when a mode name is not recognized
var ErrUnknownMode = errors.New("unknown address mode")

// Mode is the structural input mode of an address form. It is chosen once
// when the engine is built and never changes.
type Mode uint8

const (
	// ModeFull: name, street search, detail, postcode, city and country
	ModeFull Mode = iota
	// ModePostalCodeOnly: postal-code search filling the city, no country
	ModePostalCodeOnly
	// ModePostalCodeAndCountry: typed postcode and city with a selectable country
	ModePostalCodeAndCountry
)

// Mode names as set by host forms
const (
	modeNameFull                 = "full"
	modeNamePostalCode           = "postal-code"
	modeNamePostalCodeAndCountry = "postal-code-country"
)

// ParseMode maps a host attribute to a Mode. Unrecognized and empty values select ModeFull.
func ParseMode(name string) Mode {
	switch name {
	case modeNamePostalCode:
		return ModePostalCodeOnly
	case modeNamePostalCodeAndCountry:
		return ModePostalCodeAndCountry
	default:
		return ModeFull
	}
}

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModePostalCodeOnly:
		return modeNamePostalCode
	case ModePostalCodeAndCountry:
		return modeNamePostalCodeAndCountry
	default:
		return modeNameFull
	}
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText is strict: only known names (or empty, meaning full) are accepted.
func (m *Mode) UnmarshalText(text []byte) error {
	switch s := string(text); s {
	case "", modeNameFull, modeNamePostalCode, modeNamePostalCodeAndCountry:
		*m = ParseMode(s)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// SearchMode is the data-driven flag derived from the selected country. It
// toggles the street search without changing which fields exist.
type SearchMode string

const (
	// SearchModeComplete shows the street search (domestic country)
	SearchModeComplete SearchMode = "complete"
	// SearchModeBasic hides the street search (foreign country)
	SearchModeBasic SearchMode = "basic"
)
