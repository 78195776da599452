package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/banking/address-service/internal/broker"
	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/widget"
)

// MockFetcher is a mock record-fetch capability
type MockFetcher struct {
	GetFunc func(ctx context.Context, path string, timeout time.Duration) (*broker.Response, error)

	mu    sync.Mutex
	paths []string
}

func (m *MockFetcher) Get(ctx context.Context, path string, timeout time.Duration) (*broker.Response, error) {
	m.mu.Lock()
	m.paths = append(m.paths, path)
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, path, timeout)
	}
	return nil, broker.ErrNotFound
}

// Calls returns how many fetches hit a path with the given prefix
func (m *MockFetcher) Calls(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, p := range m.paths {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

// MockCountryCache is a mock country cache
type MockCountryCache struct {
	GetFunc func(ctx context.Context, resource string) ([]domain.CountryEntry, error)
	SetFunc func(ctx context.Context, resource string, entries []domain.CountryEntry) error
}

func (m *MockCountryCache) Get(ctx context.Context, resource string) ([]domain.CountryEntry, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, resource)
	}
	return nil, errCacheMiss
}

func (m *MockCountryCache) Set(ctx context.Context, resource string, entries []domain.CountryEntry) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, resource, entries)
	}
	return nil
}

var errCacheMiss = errors.New("cache miss")

func dataResponse(t *testing.T, v interface{}) *broker.Response {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &broker.Response{Data: raw}
}

func countryRowsFixture() []domain.CountryRow {
	return []domain.CountryRow{
		{ID: "10", DefaultName: "Espanha", ISOAlpha2: "ES", ISOAlpha3: "ESP", TaxCountryRegion: "UE"},
		{ID: "1", DefaultName: "Portugal", ISOAlpha2: "PT", ISOAlpha3: "PRT", TaxCountryRegion: "PT"},
		{ID: "20", DefaultName: "Brasil", ISOAlpha2: "BR", ISOAlpha3: "BRA", TaxCountryRegion: "NON-UE"},
		{ID: "2", DefaultName: "Portugal - Madeira", ISOAlpha2: "PT", ISOAlpha3: "PRT", TaxCountryRegion: "PT-MA"},
		{ID: "3", DefaultName: "Portugal - Açores", ISOAlpha2: "PT", ISOAlpha3: "PRT", TaxCountryRegion: "PT-AC"},
	}
}

// referenceFetcher serves the fixture countries and the given addresses
func referenceFetcher(t *testing.T, addresses map[string]interface{}) *MockFetcher {
	return &MockFetcher{
		GetFunc: func(ctx context.Context, path string, timeout time.Duration) (*broker.Response, error) {
			if path == "countries" {
				return dataResponse(t, countryRowsFixture()), nil
			}
			if doc, ok := addresses[path]; ok {
				return dataResponse(t, doc), nil
			}
			return nil, broker.ErrNotFound
		},
	}
}

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.FromZap(zap.New(core), false), logs
}

// testForm is an engine bound to in-memory widgets
type testForm struct {
	engine         *Engine
	name           *widget.Input
	streetSearch   *widget.Select
	detail         *widget.Input
	postcode       *widget.Input
	postcodeSearch *widget.Select
	city           *widget.Input
	country        *widget.CountryList
	events         []ReachedExtremeEvent
}

func newTestForm(t *testing.T, mode domain.Mode, fetcher Fetcher, log *logger.Logger, cfg Config) *testForm {
	t.Helper()

	if cfg.CountriesResource == "" {
		cfg.CountriesResource = "countries"
	}

	f := &testForm{
		name:           widget.NewInput(""),
		streetSearch:   widget.NewSelect(),
		detail:         widget.NewInput(""),
		postcode:       widget.NewInput(""),
		postcodeSearch: widget.NewSelect(),
		city:           widget.NewInput(""),
		country:        widget.NewCountryList(nil),
	}

	f.engine = New(Options{
		Mode:             mode,
		Loader:           NewLoader(fetcher, LoaderOptions{Logger: log}),
		Logger:           log,
		OnReachedExtreme: func(ev ReachedExtremeEvent) { f.events = append(f.events, ev) },
	}, cfg)

	err := f.engine.Bind(Handles{
		Name:           f.name,
		StreetSearch:   f.streetSearch,
		Detail:         f.detail,
		Postcode:       f.postcode,
		PostcodeSearch: f.postcodeSearch,
		City:           f.city,
		Country:        f.country,
	})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	return f
}
