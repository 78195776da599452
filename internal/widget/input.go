package widget

import (
	"sync"

	"github.com/banking/address-service/internal/domain"
)

// Input is an in-memory TextInput
type Input struct {
	mu       sync.RWMutex
	value    string
	invalid  bool
	message  string
	disabled bool
}

// NewInput creates an input holding value
func NewInput(value string) *Input {
	return &Input{value: value}
}

func (i *Input) Value() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.value
}

func (i *Input) SetValue(value string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.value = value
}

func (i *Input) SetInvalid(invalid bool, message string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.invalid = invalid
	i.message = message
}

func (i *Input) Invalid() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.invalid
}

func (i *Input) ErrorMessage() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.message
}

// SetDisabled toggles the disabled state
func (i *Input) SetDisabled(disabled bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.disabled = disabled
}

// Disabled reports the disabled state
func (i *Input) Disabled() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.disabled
}

// Select is an in-memory SearchSelect. Search text typed by the user is kept
// apart from the selected value.
type Select struct {
	Input
	search string
	hidden bool
	clears int
}

// NewSelect creates an empty select
func NewSelect() *Select {
	return &Select{}
}

// SetSearch sets the transient search text
func (s *Select) SetSearch(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = text
}

// Search returns the transient search text
func (s *Select) Search() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

// Clear drops both the selection and the search text
func (s *Select) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = ""
	s.search = ""
	s.clears++
}

// Clears returns how many times Clear was called
func (s *Select) Clears() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clears
}

func (s *Select) SetHidden(hidden bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden = hidden
}

func (s *Select) Hidden() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hidden
}

// CountryList is an in-memory CountrySelect
type CountryList struct {
	Select
	items []domain.CountryEntry
}

// NewCountryList creates a country select over items
func NewCountryList(items []domain.CountryEntry) *CountryList {
	return &CountryList{items: items}
}

func (c *CountryList) Items() []domain.CountryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items
}

func (c *CountryList) SetItems(items []domain.CountryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
}

// Selected returns the selected entry, if it is in the list
func (c *CountryList) Selected() (domain.CountryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.FindCountry(c.items, domain.CountryID(c.value))
}
