package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Domestic country codes
const (
	DomesticISOAlpha3 = "PRT"
)

// Tax region tags carried by country rows
const (
	TaxRegionDomestic        = "PT"
	TaxRegionDomesticAzores  = "PT-AC"
	TaxRegionDomesticMadeira = "PT-MA"
	TaxRegionUnion           = "UE"
	TaxRegionNonUnion        = "NON-UE"
)

// Separator labels introducing each country group
const (
	SeparatorDomestic = "Mercado nacional"
	SeparatorUnion    = "Mercado comunitário"
	SeparatorNonUnion = "Mercado extra-comunitário"
)

// CountryID is an opaque country identifier. The reference service emits
// numbers, hosts usually pass strings; both decode to the same value.
type CountryID string

// UnmarshalJSON accepts a JSON string, number or null
func (id *CountryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = CountryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid country id %s: %w", data, err)
	}
	*id = CountryID(n.String())
	return nil
}

// CountryEntry is one selectable country, or a group separator
type CountryEntry struct {
	ID        CountryID `json:"id,omitempty"`
	Name      string    `json:"name"`
	ISOAlpha2 string    `json:"iso_alpha_2,omitempty"`
	ISOAlpha3 string    `json:"iso_alpha_3,omitempty"`
	Separator bool      `json:"separator,omitempty"`
}

// IsDomestic reports whether the entry is the domestic country
func (c CountryEntry) IsDomestic() bool {
	return strings.ToUpper(c.ISOAlpha3) == DomesticISOAlpha3
}

// NewSeparator creates a group separator entry
func NewSeparator(label string) CountryEntry {
	return CountryEntry{Name: label, Separator: true}
}

// FindCountry looks up a selectable entry by id
func FindCountry(entries []CountryEntry, id CountryID) (CountryEntry, bool) {
	for _, e := range entries {
		if !e.Separator && e.ID == id {
			return e, true
		}
	}
	return CountryEntry{}, false
}

// CountryRow is a raw row of the countries resource
type CountryRow struct {
	ID               CountryID `json:"id"`
	DefaultName      string    `json:"default_name"`
	ISOAlpha2        string    `json:"iso_alpha_2"`
	ISOAlpha3        string    `json:"iso_alpha_3"`
	TaxCountryRegion string    `json:"tax_country_region"`
}

// ToEntry projects the row to a selectable entry
func (r CountryRow) ToEntry() CountryEntry {
	return CountryEntry{
		ID:        r.ID,
		Name:      r.DefaultName,
		ISOAlpha2: r.ISOAlpha2,
		ISOAlpha3: r.ISOAlpha3,
	}
}

// TaxRegionClass groups tax region tags for display
type TaxRegionClass int

const (
	TaxRegionClassOther TaxRegionClass = iota
	TaxRegionClassDomestic
	TaxRegionClassUnion
	TaxRegionClassNonUnion
)

// NormalizedTaxRegion returns the upper-cased tag
func (r CountryRow) NormalizedTaxRegion() string {
	return strings.ToUpper(strings.TrimSpace(r.TaxCountryRegion))
}

// TaxRegionClass classifies the row. Archipelago variants count as domestic.
func (r CountryRow) TaxRegionClass() TaxRegionClass {
	switch r.NormalizedTaxRegion() {
	case TaxRegionDomestic, TaxRegionDomesticAzores, TaxRegionDomesticMadeira:
		return TaxRegionClassDomestic
	case TaxRegionUnion:
		return TaxRegionClassUnion
	case TaxRegionNonUnion:
		return TaxRegionClassNonUnion
	default:
		return TaxRegionClassOther
	}
}
