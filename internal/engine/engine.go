// Package engine resolves, reconciles and validates a postal address form.
// An Engine owns one form's field handles; its collaborators (record fetch,
// required-field checker, focus traversal, logger) are passed in explicitly.
package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/pkg/validator"
	"github.com/banking/address-service/internal/widget"
)

// Traversal positions carried by ReachedExtremeEvent
const (
	PositionFirst = "first"
	PositionLast  = "last"
)

// ReachedExtremeEvent is raised when keyboard traversal leaves the field set
type ReachedExtremeEvent struct {
	Position string
	Source   *Engine
}

// Options holds the collaborators of an engine
type Options struct {
	Mode            domain.Mode
	Loader          *Loader
	RequiredChecker widget.RequiredFieldChecker
	Traversal       widget.FocusTraversal
	Rules           *validator.CustomValidator
	Logger          *logger.Logger
	// RecordTimeout bounds the record fetch, DefaultRecordTimeout when zero
	RecordTimeout    time.Duration
	OnReachedExtreme func(ReachedExtremeEvent)
}

// Config is the host-settable configuration of an engine
type Config struct {
	AddressID         string
	AddressesResource string
	CountriesResource string
	// Countries is an externally supplied list; when set no fetch happens
	Countries     []domain.CountryEntry
	Country       domain.CountryID
	Name          string
	AddressDetail string
	Postcode      string
	City          string
	IsPrimary     bool
}

func (c Config) initialRecord() domain.AddressRecord {
	return domain.AddressRecord{
		Name:          c.Name,
		AddressDetail: c.AddressDetail,
		Postcode:      c.Postcode,
		City:          c.City,
		Country:       c.Country,
		IsPrimary:     c.IsPrimary,
	}
}

// Engine is the address resolution engine of one form instance
type Engine struct {
	mu sync.Mutex

	modes      *ModeController
	reconciler *FieldReconciler
	validator  *Validator
	loader     *Loader
	traversal  widget.FocusTraversal
	onExtreme  func(ReachedExtremeEvent)
	timeout    time.Duration
	log        *logger.Logger

	cfg         Config
	countries   []domain.CountryEntry
	searchMode  domain.SearchMode
	navigating  bool
	initialized bool
	closed      bool
}

// New creates an engine for opts.Mode seeded with cfg
func New(opts Options, cfg Config) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	traversal := opts.Traversal
	if traversal == nil {
		traversal = widget.TabTraversal{}
	}
	timeout := opts.RecordTimeout
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}

	modes := NewModeController(opts.Mode)
	e := &Engine{
		modes:      modes,
		reconciler: NewFieldReconciler(modes, cfg.initialRecord()),
		validator:  NewValidator(opts.RequiredChecker, opts.Rules),
		loader:     opts.Loader,
		traversal:  traversal,
		onExtreme:  opts.OnReachedExtreme,
		timeout:    timeout,
		log:        log.Named("address_engine").With(logger.Mode(opts.Mode.String())),
		cfg:        cfg,
		searchMode: domain.SearchModeComplete,
	}
	if cfg.Countries != nil {
		e.countries = cfg.Countries
	}
	return e
}

// Bind attaches the field handles of the engine's mode
func (e *Engine) Bind(h Handles) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reconciler.Bind(h); err != nil {
		return err
	}
	if h := e.reconciler.Handles(); h.Country != nil && e.countries != nil {
		h.Country.SetItems(e.countries)
		e.syncCountryLocked()
	}
	return nil
}

// Initialize runs the setup sequence: hydrate the existing record in full
// mode, load the country list, then enable keyboard navigation. Fetch
// failures are logged and leave the fields as they were.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if !e.reconciler.Bound() {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.initialized = true
	hydrate := e.modes.Mode() == domain.ModeFull && e.cfg.AddressID != ""
	e.mu.Unlock()

	if hydrate {
		_ = e.LoadAddress(ctx)
	}
	_ = e.LoadCountries(ctx)

	e.mu.Lock()
	e.navigating = true
	e.mu.Unlock()

	e.log.Debug("address engine initialized", logger.Operation("initialize"))
	return nil
}

// LoadAddress fetches the configured address and sparse-merges it into the
// fields. It is a no-op without an address id.
func (e *Engine) LoadAddress(ctx context.Context) error {
	e.mu.Lock()
	id, resource := e.cfg.AddressID, e.cfg.AddressesResource
	e.mu.Unlock()

	if id == "" || e.loader == nil {
		return nil
	}

	stored, err := e.loader.LoadAddress(ctx, resource, id, e.timeout)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err != nil {
		e.logLoadError("load_address", err, logger.AddressID(id))
		return err
	}

	e.reconciler.Hydrate(stored)
	e.syncSearchModeLocked()
	return nil
}

// LoadCountries fetches the country list unless one is already held
func (e *Engine) LoadCountries(ctx context.Context) error {
	e.mu.Lock()
	resource := e.cfg.CountriesResource
	held := e.countries != nil
	e.mu.Unlock()

	if held || resource == "" || e.loader == nil {
		return nil
	}

	entries, err := e.loader.LoadCountries(ctx, resource)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err != nil {
		e.logLoadError("load_countries", err, logger.Resource(resource))
		return err
	}

	e.setCountriesLocked(entries)
	return nil
}

func (e *Engine) logLoadError(op string, err error, fields ...zap.Field) {
	fields = append(fields, logger.Operation(op), logger.ErrorField(err))
	if errors.Is(err, ErrNotFound) {
		e.log.Warn("address not found", fields...)
		return
	}
	e.log.Error("reference data load failed", fields...)
}

func (e *Engine) setCountriesLocked(entries []domain.CountryEntry) {
	e.countries = entries
	if h := e.reconciler.Handles(); h.Country != nil {
		h.Country.SetItems(entries)
	}
	e.syncCountryLocked()
}

// syncCountryLocked re-applies the held country to the country handle
func (e *Engine) syncCountryLocked() {
	if country := e.reconciler.Record().Country; country != "" {
		e.reconciler.SetCountry(country)
	}
	e.syncSearchModeLocked()
}

func (e *Engine) syncSearchModeLocked() {
	country := e.reconciler.Record().Country
	if country == "" {
		return
	}
	if entry, ok := domain.FindCountry(e.countries, country); ok {
		e.applySearchModeLocked(&entry)
	}
}

// OnConfigChanged reacts to host configuration changes. An address id or
// addresses resource change re-hydrates, a new country list or country value
// is re-applied to the country handle and a new countries resource reloads
// the list.
func (e *Engine) OnConfigChanged(ctx context.Context, old, updated Config) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.cfg = updated

	countriesChanged := !slices.Equal(old.Countries, updated.Countries)
	if countriesChanged && updated.Countries != nil {
		e.setCountriesLocked(updated.Countries)
	}
	if old.Country != updated.Country && updated.Country != "" {
		e.reconciler.SetCountry(updated.Country)
		e.syncSearchModeLocked()
	}
	if old.IsPrimary != updated.IsPrimary {
		e.reconciler.SetPrimary(updated.IsPrimary)
	}

	reloadCountries := old.CountriesResource != updated.CountriesResource && updated.Countries == nil
	if reloadCountries {
		e.countries = nil
	}
	rehydrate := old.AddressID != updated.AddressID || old.AddressesResource != updated.AddressesResource
	e.mu.Unlock()

	var errs []error
	if rehydrate {
		errs = append(errs, e.LoadAddress(ctx))
	}
	if reloadCountries {
		errs = append(errs, e.LoadCountries(ctx))
	}
	return errors.Join(errs...)
}

// OnCountryChanged derives the search mode from the selected country. A
// selection without an ISO alpha-3 code leaves it unchanged.
func (e *Engine) OnCountryChanged(entry *domain.CountryEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry != nil && entry.ID != "" && !entry.Separator {
		e.reconciler.SetCountry(entry.ID)
	}
	e.applySearchModeLocked(entry)
}

func (e *Engine) applySearchModeLocked(entry *domain.CountryEntry) {
	mode, ok := SearchModeFor(entry)
	if !ok {
		return
	}
	e.searchMode = mode
	if hideable, ok := e.reconciler.Handles().StreetSearch.(widget.Hideable); ok {
		hideable.SetHidden(mode == domain.SearchModeBasic)
	}
}

// OnStreetSelected consumes an address search selection
func (e *Engine) OnStreetSelected(item *domain.StreetItem) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reconciler.ApplyStreetSelection(item)
	if item != nil && item.CP4 != "" {
		e.syncSearchModeLocked()
	}
}

// OnPostalCodeSelected consumes a postal-code search selection
func (e *Engine) OnPostalCodeSelected(item *domain.PostalCodeItem) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reconciler.ApplyPostalCodeSelection(item)
}

// HandleKey moves focus for ev and returns the field to focus next. When
// traversal leaves the field set the reached-extreme callback fires.
func (e *Engine) HandleKey(ev widget.KeyEvent) widget.FieldID {
	e.mu.Lock()
	if !e.navigating || e.closed {
		e.mu.Unlock()
		return ""
	}
	next, extreme := e.traversal.FieldTab(ev, e.modes.Fields())
	notify := e.onExtreme
	e.mu.Unlock()

	if extreme && notify != nil {
		position := PositionLast
		if ev.Shift {
			position = PositionFirst
		}
		notify(ReachedExtremeEvent{Position: position, Source: e})
	}
	return next
}

// GetAddressData returns the form's address shaped by mode
func (e *Engine) GetAddressData() domain.AddressPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconciler.Extract()
}

// Validate runs the required-field and cross-field checks. Both always run
// so every offending field gets flagged.
func (e *Engine) Validate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	requiredOK := e.validator.ValidateRequired(e.renderedFieldsLocked())

	h := e.reconciler.Handles()
	if h.Country == nil || h.Postcode == nil {
		return requiredOK
	}
	crossOK := e.validator.ValidateCrossField(h.Country.Items(), domain.CountryID(h.Country.Value()), h.Postcode.Value(), h.Postcode)
	return requiredOK && crossOK
}

func (e *Engine) renderedFieldsLocked() []widget.Field {
	h := e.reconciler.Handles()
	primary := e.reconciler.Record().IsPrimary

	var fields []widget.Field
	for _, id := range e.modes.Fields() {
		handle := handleFor(h, id)
		if handle == nil {
			continue
		}
		fields = append(fields, widget.Field{
			ID:       id,
			Handle:   handle,
			Required: e.modes.Required(id),
			Disabled: e.modes.Disabled(id, primary),
		})
	}
	return fields
}

func handleFor(h Handles, id widget.FieldID) widget.TextInput {
	switch id {
	case widget.FieldName:
		if h.Name != nil {
			return h.Name
		}
	case widget.FieldStreetSearch:
		if h.StreetSearch != nil {
			return h.StreetSearch
		}
	case widget.FieldDetail:
		if h.Detail != nil {
			return h.Detail
		}
	case widget.FieldPostcode:
		if h.Postcode != nil {
			return h.Postcode
		}
	case widget.FieldPostcodeSearch:
		if h.PostcodeSearch != nil {
			return h.PostcodeSearch
		}
	case widget.FieldCity:
		if h.City != nil {
			return h.City
		}
	case widget.FieldCountry:
		if h.Country != nil {
			return h.Country
		}
	}
	return nil
}

// SearchMode returns the data-driven search mode
func (e *Engine) SearchMode() domain.SearchMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searchMode
}

// Mode returns the structural mode
func (e *Engine) Mode() domain.Mode {
	return e.modes.Mode()
}

// LayoutClass returns the presentation class of the engine's mode
func (e *Engine) LayoutClass() string {
	return e.modes.LayoutClass()
}

// Countries returns the held country list
func (e *Engine) Countries() []domain.CountryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countries
}

// Close stops the engine from applying late fetch responses
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.navigating = false
}
