package domain

import (
	"encoding/json"
)

// AddressRecord is the address under construction or edit by a form session.
type AddressRecord struct {
	Name          string    `json:"name"`
	AddressDetail string    `json:"address_detail"`
	Postcode      string    `json:"postcode"`
	City          string    `json:"city"`
	Country       CountryID `json:"country"`
	IsPrimary     bool      `json:"is_primary"`
}

// StoredAddress is an existing address as returned by the addresses resource.
// Only non-empty values are meaningful: a zero field means "not present".
type StoredAddress struct {
	Name          string                `json:"name"`
	AddressDetail string                `json:"address_detail"`
	Postcode      string                `json:"postcode"`
	City          string                `json:"city"`
	IsPrimary     bool                  `json:"is_primary"`
	Country       CountryID             `json:"country"`
	Relationships *AddressRelationships `json:"relationships,omitempty"`
}

// AddressRelationships holds related resources of a stored address
type AddressRelationships struct {
	Country *RelationshipRef `json:"country,omitempty"`
}

// RelationshipRef is a reference to a related resource
type RelationshipRef struct {
	Data *struct {
		ID CountryID `json:"id"`
	} `json:"data,omitempty"`
}

// CountryRef returns the country carried by the stored address.
// The relationship reference wins over the plain attribute.
func (s *StoredAddress) CountryRef() CountryID {
	if s.Relationships != nil && s.Relationships.Country != nil &&
		s.Relationships.Country.Data != nil && s.Relationships.Country.Data.ID != "" {
		return s.Relationships.Country.Data.ID
	}
	return s.Country
}

// AddressPayload is the plain record handed to the embedding form on submit.
// Its JSON shape depends on Mode.
type AddressPayload struct {
	Mode          Mode
	Name          string
	AddressDetail string
	Postcode      *string
	City          string
	Country       *CountryID
}

// NewAddressPayload builds a payload, normalizing empty postcode and country to null
func NewAddressPayload(mode Mode, rec AddressRecord) AddressPayload {
	p := AddressPayload{
		Mode:          mode,
		Name:          rec.Name,
		AddressDetail: rec.AddressDetail,
		City:          rec.City,
	}
	if rec.Postcode != "" {
		postcode := rec.Postcode
		p.Postcode = &postcode
	}
	if rec.Country != "" {
		country := rec.Country
		p.Country = &country
	}
	return p
}

// PostcodeValue returns the postcode or an empty string when absent
func (p AddressPayload) PostcodeValue() string {
	if p.Postcode == nil {
		return ""
	}
	return *p.Postcode
}

// CountryValue returns the country or an empty id when absent
func (p AddressPayload) CountryValue() CountryID {
	if p.Country == nil {
		return ""
	}
	return *p.Country
}

// MarshalJSON emits only the fields that exist in the payload's mode.
func (p AddressPayload) MarshalJSON() ([]byte, error) {
	switch p.Mode {
	case ModePostalCodeOnly:
		return json.Marshal(struct {
			Postcode *string `json:"postcode"`
			City     string  `json:"city"`
		}{p.Postcode, p.City})
	case ModePostalCodeAndCountry:
		return json.Marshal(struct {
			Postcode *string    `json:"postcode"`
			City     string     `json:"city"`
			Country  *CountryID `json:"country"`
		}{p.Postcode, p.City, p.Country})
	default:
		return json.Marshal(struct {
			Name          string     `json:"name"`
			AddressDetail string     `json:"address_detail"`
			Postcode      *string    `json:"postcode"`
			City          string     `json:"city"`
			Country       *CountryID `json:"country"`
		}{p.Name, p.AddressDetail, p.Postcode, p.City, p.Country})
	}
}
