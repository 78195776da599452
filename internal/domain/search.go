package domain

// StreetItem is a result of the street search
type StreetItem struct {
	ID           string `json:"id"`
	StreetName   string `json:"street_name"`
	CP           string `json:"cp"`
	CP4          string `json:"cp4"`
	LocalityName string `json:"locality_name"`
	DistrictName string `json:"district_name,omitempty"`
	Section      string `json:"section,omitempty"`
}

// PostalCodeItem is a result of the postal-code search
type PostalCodeItem struct {
	ID           string `json:"id"`
	CP           string `json:"cp"`
	CP4          string `json:"cp4,omitempty"`
	CP3          string `json:"cp3,omitempty"`
	CPAlf        string `json:"cpalf,omitempty"`
	LocalityName string `json:"locality_name"`
}
