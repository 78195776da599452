package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/engine"
	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/pkg/tracer"
	"github.com/banking/address-service/internal/pkg/validator"
	"github.com/banking/address-service/internal/widget"
)

// Address service errors
var (
	ErrAddressNotFound = errors.New("address not found")
	ErrUpstream        = errors.New("reference service unavailable")
)

// Resources locates the reference resources on the broker
type Resources struct {
	Addresses string
	Countries string
}

// AddressFormService runs headless form sessions. Each call builds one engine
// over in-memory widgets that share the service's loader.
type AddressFormService struct {
	loader        *engine.Loader
	rules         *validator.CustomValidator
	required      widget.RequiredFieldChecker
	resources     Resources
	recordTimeout time.Duration
	log           *logger.Logger
}

// NewAddressFormService creates a new address form service
func NewAddressFormService(
	loader *engine.Loader,
	rules *validator.CustomValidator,
	resources Resources,
	recordTimeout time.Duration,
	log *logger.Logger,
) *AddressFormService {
	if rules == nil {
		rules = validator.New()
	}
	if resources.Addresses == "" {
		resources.Addresses = engine.DefaultAddressesResource
	}
	return &AddressFormService{
		loader:        loader,
		rules:         rules,
		required:      widget.NewRequiredChecker(rules),
		resources:     resources,
		recordTimeout: recordTimeout,
		log:           log.Named("address_form_service"),
	}
}

// session is one engine bound to in-memory widgets
type session struct {
	engine         *engine.Engine
	name           *widget.Input
	streetSearch   *widget.Select
	detail         *widget.Input
	postcode       *widget.Input
	postcodeSearch *widget.Select
	city           *widget.Input
	country        *widget.CountryList
}

func (s *AddressFormService) newSession(ctx context.Context, mode domain.Mode, cfg engine.Config) (*session, error) {
	cfg.AddressesResource = s.resources.Addresses
	cfg.CountriesResource = s.resources.Countries
	sessionCtx := context.WithValue(ctx, logger.SessionKey, uuid.NewString())

	eng := engine.New(engine.Options{
		Mode:            mode,
		Loader:          s.loader,
		RequiredChecker: s.required,
		Rules:           s.rules,
		Logger:          s.log.WithContext(sessionCtx),
		RecordTimeout:   s.recordTimeout,
	}, cfg)

	sess := &session{
		engine:         eng,
		name:           widget.NewInput(""),
		streetSearch:   widget.NewSelect(),
		detail:         widget.NewInput(""),
		postcode:       widget.NewInput(""),
		postcodeSearch: widget.NewSelect(),
		city:           widget.NewInput(""),
		country:        widget.NewCountryList(nil),
	}

	err := eng.Bind(engine.Handles{
		Name:           sess.name,
		StreetSearch:   sess.streetSearch,
		Detail:         sess.detail,
		Postcode:       sess.postcode,
		PostcodeSearch: sess.postcodeSearch,
		City:           sess.city,
		Country:        sess.country,
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func configFromFields(f domain.AddressFields) engine.Config {
	return engine.Config{
		Name:          f.Name,
		AddressDetail: f.AddressDetail,
		Postcode:      f.Postcode,
		City:          f.City,
		Country:       f.Country,
		IsPrimary:     f.IsPrimary,
	}
}

// openForm starts a session seeded with the request fields and initializes it
func (s *AddressFormService) openForm(ctx context.Context, op string, req *domain.FormRequest) (*session, error) {
	mode := req.ParsedMode()
	ctx, span := tracer.Start(ctx, "address_form."+op, tracer.ModeAttr(mode.String()))
	defer span.End()

	sess, err := s.newSession(ctx, mode, configFromFields(req.Fields))
	if err != nil {
		tracer.Fail(span, err, "bind failed")
		return nil, err
	}
	if err := sess.engine.Initialize(ctx); err != nil {
		sess.engine.Close()
		tracer.Fail(span, err, "initialize failed")
		return nil, err
	}
	return sess, nil
}

func (s *session) result() *domain.FormResult {
	return &domain.FormResult{
		Address:    s.engine.GetAddressData(),
		SearchMode: s.engine.SearchMode(),
	}
}

// Countries returns the grouped country list
func (s *AddressFormService) Countries(ctx context.Context) ([]domain.CountryEntry, error) {
	entries, err := s.loader.LoadCountries(ctx, s.resources.Countries)
	if err != nil {
		s.log.WithContext(ctx).Error("failed to load countries",
			logger.Resource(s.resources.Countries), logger.ErrorField(err))
		return nil, ErrUpstream
	}
	return entries, nil
}

// GetAddress hydrates a form of the given mode from an existing address
func (s *AddressFormService) GetAddress(ctx context.Context, mode domain.Mode, addressID string) (*domain.FormResult, error) {
	ctx, span := tracer.Start(ctx, "address_form.get", tracer.ModeAttr(mode.String()))
	defer span.End()

	sess, err := s.newSession(ctx, mode, engine.Config{AddressID: addressID})
	if err != nil {
		return nil, err
	}
	defer sess.engine.Close()

	if err := sess.engine.LoadAddress(ctx); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, ErrAddressNotFound
		}
		tracer.Fail(span, err, "address load failed")
		return nil, ErrUpstream
	}
	_ = sess.engine.LoadCountries(ctx)

	return sess.result(), nil
}

// ApplyStreetSelection applies a street search selection to the submitted form
func (s *AddressFormService) ApplyStreetSelection(ctx context.Context, req *domain.StreetSelectionRequest) (*domain.FormResult, error) {
	sess, err := s.openForm(ctx, "street_selection", &req.FormRequest)
	if err != nil {
		return nil, err
	}
	defer sess.engine.Close()

	sess.engine.OnStreetSelected(req.Item)
	return sess.result(), nil
}

// ApplyPostalCodeSelection applies a postal-code search selection to the submitted form
func (s *AddressFormService) ApplyPostalCodeSelection(ctx context.Context, req *domain.PostalCodeSelectionRequest) (*domain.FormResult, error) {
	sess, err := s.openForm(ctx, "postal_code_selection", &req.FormRequest)
	if err != nil {
		return nil, err
	}
	defer sess.engine.Close()

	sess.engine.OnPostalCodeSelected(req.Item)
	return sess.result(), nil
}

// Validate runs the form checks over the submitted fields
func (s *AddressFormService) Validate(ctx context.Context, req *domain.FormRequest) (*domain.FormResult, error) {
	sess, err := s.openForm(ctx, "validate", req)
	if err != nil {
		return nil, err
	}
	defer sess.engine.Close()

	valid := sess.engine.Validate()
	res := sess.result()
	res.Valid = &valid
	if !valid {
		res.Errors = sess.fieldErrors()
	}
	return res, nil
}

func (s *session) fieldErrors() map[string]string {
	errs := make(map[string]string)
	for id, f := range map[widget.FieldID]widget.Flaggable{
		widget.FieldName:           s.name,
		widget.FieldStreetSearch:   s.streetSearch,
		widget.FieldDetail:         s.detail,
		widget.FieldPostcode:       s.postcode,
		widget.FieldPostcodeSearch: s.postcodeSearch,
		widget.FieldCity:           s.city,
		widget.FieldCountry:        s.country,
	} {
		if f.Invalid() {
			errs[string(id)] = f.ErrorMessage()
		}
	}
	return errs
}
