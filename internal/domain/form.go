package domain

// AddressFields are the field values a host form submits
type AddressFields struct {
	Name          string    `json:"name" validate:"max=255"`
	AddressDetail string    `json:"address_detail" validate:"max=500"`
	Postcode      string    `json:"postcode" validate:"max=20"`
	City          string    `json:"city" validate:"max=100"`
	Country       CountryID `json:"country"`
	IsPrimary     bool      `json:"is_primary"`
}

// Record converts the submitted fields to an address record
func (f AddressFields) Record() AddressRecord {
	return AddressRecord(f)
}

// FormRequest carries the mode and current fields of a form session
type FormRequest struct {
	Mode   string        `json:"mode" validate:"omitempty,oneof=full postal-code postal-code-country"`
	Fields AddressFields `json:"fields"`
}

// ParsedMode returns the structural mode named by the request
func (r *FormRequest) ParsedMode() Mode {
	return ParseMode(r.Mode)
}

// StreetSelectionRequest applies a street search selection to a form
type StreetSelectionRequest struct {
	FormRequest
	Item *StreetItem `json:"item"`
}

// PostalCodeSelectionRequest applies a postal-code search selection to a form
type PostalCodeSelectionRequest struct {
	FormRequest
	Item *PostalCodeItem `json:"item"`
}

// FormResult is the state of a form session after an operation
type FormResult struct {
	Address    AddressPayload    `json:"address"`
	SearchMode SearchMode        `json:"search_mode"`
	Valid      *bool             `json:"valid,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}
