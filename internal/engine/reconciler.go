package engine

import (
	"fmt"

	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/widget"
)

// Handles are the field handles a host binds to an engine. Only the handles
// of the engine's mode are used; the rest may be nil.
type Handles struct {
	Name           widget.TextInput
	StreetSearch   widget.SearchSelect
	Detail         widget.TextInput
	Postcode       widget.TextInput
	PostcodeSearch widget.SearchSelect
	City           widget.TextInput
	Country        widget.CountrySelect
}

// FieldReconciler keeps the in-memory record and the bound handles in step.
// Before handles are bound every write lands in the record only and is pushed
// to the handles at bind time.
type FieldReconciler struct {
	modes   *ModeController
	record  domain.AddressRecord
	handles Handles
	bound   bool
}

// NewFieldReconciler creates a reconciler seeded with initial values
func NewFieldReconciler(modes *ModeController, initial domain.AddressRecord) *FieldReconciler {
	return &FieldReconciler{modes: modes, record: initial}
}

// Bind keeps the handles of the reconciler's mode and pushes the record into them
func (r *FieldReconciler) Bind(h Handles) error {
	var owned Handles
	missing := func(id widget.FieldID) error {
		return fmt.Errorf("%w: %s (mode %s)", ErrMissingField, id, r.modes.Mode())
	}

	switch r.modes.Mode() {
	case domain.ModePostalCodeOnly:
		if h.PostcodeSearch == nil {
			return missing(widget.FieldPostcodeSearch)
		}
		if h.City == nil {
			return missing(widget.FieldCity)
		}
		owned = Handles{PostcodeSearch: h.PostcodeSearch, City: h.City}
	case domain.ModePostalCodeAndCountry:
		if h.Postcode == nil {
			return missing(widget.FieldPostcode)
		}
		if h.City == nil {
			return missing(widget.FieldCity)
		}
		if h.Country == nil {
			return missing(widget.FieldCountry)
		}
		owned = Handles{Postcode: h.Postcode, City: h.City, Country: h.Country}
	default:
		present := map[widget.FieldID]bool{
			widget.FieldName:         h.Name != nil,
			widget.FieldStreetSearch: h.StreetSearch != nil,
			widget.FieldDetail:       h.Detail != nil,
			widget.FieldPostcode:     h.Postcode != nil,
			widget.FieldCity:         h.City != nil,
			widget.FieldCountry:      h.Country != nil,
		}
		for _, id := range r.modes.Fields() {
			if !present[id] {
				return missing(id)
			}
		}
		owned = h
		owned.PostcodeSearch = nil
	}

	r.handles = owned
	r.bound = true
	r.push()
	return nil
}

// push writes non-empty record values into the bound handles
func (r *FieldReconciler) push() {
	h := r.handles
	setIf(h.Name, r.record.Name)
	setIf(h.Detail, r.record.AddressDetail)
	setIf(h.Postcode, r.record.Postcode)
	setIf(h.PostcodeSearch, r.record.Postcode)
	setIf(h.City, r.record.City)
	if h.Country != nil && r.record.Country != "" {
		h.Country.SetValue(string(r.record.Country))
	}
	r.applyDisabled()
}

type disableable interface {
	SetDisabled(disabled bool)
}

// applyDisabled forwards the mode's disabled state to handles that support it
func (r *FieldReconciler) applyDisabled() {
	for id, h := range map[widget.FieldID]widget.Valued{
		widget.FieldName: r.handles.Name,
		widget.FieldCity: r.handles.City,
	} {
		if d, ok := h.(disableable); ok {
			d.SetDisabled(r.modes.Disabled(id, r.record.IsPrimary))
		}
	}
}

func setIf(h widget.Valued, value string) {
	if h != nil && value != "" {
		h.SetValue(value)
	}
}

func (r *FieldReconciler) setName(v string) {
	r.record.Name = v
	if r.handles.Name != nil {
		r.handles.Name.SetValue(v)
	}
}

func (r *FieldReconciler) setDetail(v string) {
	r.record.AddressDetail = v
	if r.handles.Detail != nil {
		r.handles.Detail.SetValue(v)
	}
}

func (r *FieldReconciler) setPostcode(v string) {
	r.record.Postcode = v
	if r.handles.Postcode != nil {
		r.handles.Postcode.SetValue(v)
	}
	if r.handles.PostcodeSearch != nil {
		r.handles.PostcodeSearch.SetValue(v)
	}
}

func (r *FieldReconciler) setCity(v string) {
	r.record.City = v
	if r.handles.City != nil {
		r.handles.City.SetValue(v)
	}
}

// SetCountry records id and applies it to the country handle if one is bound
func (r *FieldReconciler) SetCountry(id domain.CountryID) {
	r.record.Country = id
	if r.handles.Country != nil && id != "" {
		r.handles.Country.SetValue(string(id))
	}
}

// SetPrimary flags the record as the primary address
func (r *FieldReconciler) SetPrimary(primary bool) {
	r.record.IsPrimary = primary
	r.applyDisabled()
}

// ApplyStreetSelection consumes a street search result into the fixed fields,
// infers the domestic region from its postcode prefix and clears the search.
func (r *FieldReconciler) ApplyStreetSelection(item *domain.StreetItem) {
	if item == nil {
		return
	}

	r.setDetail(item.StreetName)
	r.setPostcode(item.CP)
	r.setCity(item.LocalityName)
	if item.CP4 != "" {
		r.SetCountry(domain.InferDomesticRegion(item.CP4))
	}
	if r.handles.StreetSearch != nil {
		r.handles.StreetSearch.Clear()
	}
}

// ApplyPostalCodeSelection fills city and postcode from a postal-code search result
func (r *FieldReconciler) ApplyPostalCodeSelection(item *domain.PostalCodeItem) {
	if item == nil {
		return
	}

	r.setCity(item.LocalityName)
	r.setPostcode(item.CP)
}

// Hydrate sparse-merges a stored address: only non-empty values overwrite.
func (r *FieldReconciler) Hydrate(stored *domain.StoredAddress) {
	if stored == nil {
		return
	}

	if stored.Name != "" {
		r.setName(stored.Name)
	}
	if stored.AddressDetail != "" {
		r.setDetail(stored.AddressDetail)
	}
	if stored.Postcode != "" {
		r.setPostcode(stored.Postcode)
	}
	if stored.City != "" {
		r.setCity(stored.City)
	}
	if stored.IsPrimary {
		r.SetPrimary(true)
	}
	if country := stored.CountryRef(); country != "" {
		r.SetCountry(country)
	}
}

// Record returns the current field state, reading bound handles first
func (r *FieldReconciler) Record() domain.AddressRecord {
	rec := r.record
	h := r.handles
	if h.Name != nil {
		rec.Name = h.Name.Value()
	}
	if h.Detail != nil {
		rec.AddressDetail = h.Detail.Value()
	}
	if h.Postcode != nil {
		rec.Postcode = h.Postcode.Value()
	}
	if h.PostcodeSearch != nil {
		rec.Postcode = h.PostcodeSearch.Value()
	}
	if h.City != nil {
		rec.City = h.City.Value()
	}
	if h.Country != nil {
		rec.Country = domain.CountryID(h.Country.Value())
	}
	return rec
}

// Extract returns the plain record for the embedding form, shaped by mode
func (r *FieldReconciler) Extract() domain.AddressPayload {
	return domain.NewAddressPayload(r.modes.Mode(), r.Record())
}

// Handles returns the bound handles
func (r *FieldReconciler) Handles() Handles {
	return r.handles
}

// Bound reports whether handles were bound
func (r *FieldReconciler) Bound() bool {
	return r.bound
}
