package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/banking/address-service/internal/broker"
	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/pkg/tracer"
	"github.com/banking/address-service/internal/resilience"
)

// DefaultRecordTimeout bounds the fetch of an existing address
const DefaultRecordTimeout = 3000 * time.Millisecond

// DefaultAddressesResource is used when the host sets no addresses resource
const DefaultAddressesResource = "addresses"

// sharedFetchLimit bounds a shared fetch that has no timeout of its own. The
// fetch outlives the caller that started it, so it cannot rely on that
// caller's deadline.
const sharedFetchLimit = 30 * time.Second

// Fetcher is the record-fetch capability
type Fetcher interface {
	Get(ctx context.Context, path string, timeout time.Duration) (*broker.Response, error)
}

// CountryCache shares shaped country lists between loaders
type CountryCache interface {
	Get(ctx context.Context, resource string) ([]domain.CountryEntry, error)
	Set(ctx context.Context, resource string, entries []domain.CountryEntry) error
}

// LoaderOptions configures a Loader
type LoaderOptions struct {
	// Cache is optional
	Cache CountryCache
	// IsCacheMiss tells plain misses apart from cache failures
	IsCacheMiss func(error) bool
	// CountryTimeout bounds the country fetch; zero leaves it to the caller's context
	CountryTimeout time.Duration
	Logger         *logger.Logger
}

// Loader fetches and shapes reference data. Concurrent loads of the same
// resource share one fetch.
type Loader struct {
	fetcher        Fetcher
	countries      *resilience.ReadThrough[[]domain.CountryEntry]
	isCacheMiss    func(error) bool
	countryTimeout time.Duration
	group          singleflight.Group
	log            *logger.Logger
}

// NewLoader creates a loader over fetcher
func NewLoader(fetcher Fetcher, opts LoaderOptions) *Loader {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	l := &Loader{
		fetcher:        fetcher,
		isCacheMiss:    opts.IsCacheMiss,
		countryTimeout: opts.CountryTimeout,
		log:            log.Named("reference_loader"),
	}

	var (
		cacheGet   func(ctx context.Context, key string) ([]domain.CountryEntry, error)
		cacheWrite func(ctx context.Context, key string, value []domain.CountryEntry) error
	)
	if opts.Cache != nil {
		cacheGet = opts.Cache.Get
		cacheWrite = opts.Cache.Set
	}
	l.countries = resilience.NewReadThrough(cacheGet, l.fetchCountries, cacheWrite)
	l.countries.OnCacheError(func(key string, err error) {
		l.log.Warn("country cache unavailable", logger.Resource(key), logger.ErrorField(err))
	})

	return l
}

// LoadCountries returns the grouped country list of resource
func (l *Loader) LoadCountries(ctx context.Context, resource string) ([]domain.CountryEntry, error) {
	v, err := l.shared(ctx, "countries:"+resource, func(ctx context.Context) (interface{}, error) {
		entries, hit, err := l.countries.Get(ctx, resource, l.isCacheMiss)
		tracer.SetAttributes(ctx, tracer.ResourceAttr(resource), tracer.CacheHitAttr(hit))
		return entries, err
	})
	if err != nil {
		if callerGaveUp(ctx, err) {
			return nil, &TransportError{Op: "load countries", Resource: resource, Err: err}
		}
		return nil, err
	}
	return v.([]domain.CountryEntry), nil
}

func (l *Loader) fetchCountries(ctx context.Context, resource string) ([]domain.CountryEntry, error) {
	resp, err := l.fetcher.Get(ctx, resource, l.countryTimeout)
	if err != nil {
		return nil, &TransportError{Op: "load countries", Resource: resource, Err: err}
	}

	var rows []domain.CountryRow
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, &TransportError{Op: "load countries", Resource: resource, Err: fmt.Errorf("decode rows: %w", err)}
	}

	return ShapeCountries(rows), nil
}

// LoadAddress fetches the address id from resource with a bounded timeout
func (l *Loader) LoadAddress(ctx context.Context, resource, id string, timeout time.Duration) (*domain.StoredAddress, error) {
	if resource == "" {
		resource = DefaultAddressesResource
	}
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	path := strings.TrimRight(resource, "/") + "/" + id

	v, err := l.shared(ctx, "address:"+path, func(ctx context.Context) (interface{}, error) {
		resp, err := l.fetcher.Get(ctx, path, timeout)
		if err != nil {
			if errors.Is(err, broker.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
			}
			return nil, &TransportError{Op: "load address", Resource: path, Err: err}
		}

		var stored domain.StoredAddress
		if len(resp.Data) == 0 || string(resp.Data) == "null" {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		if err := json.Unmarshal(resp.Data, &stored); err != nil {
			return nil, &TransportError{Op: "load address", Resource: path, Err: fmt.Errorf("decode address: %w", err)}
		}
		return &stored, nil
	})
	if err != nil {
		if callerGaveUp(ctx, err) {
			return nil, &TransportError{Op: "load address", Resource: path, Err: err}
		}
		return nil, err
	}
	return v.(*domain.StoredAddress), nil
}

// shared runs fn once per key for all concurrent callers. fn gets a context
// detached from the caller's cancellation, so one caller giving up does not
// fail the others; each caller still stops waiting when its own ctx is done.
func (l *Loader) shared(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	ch := l.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchLimit)
		defer cancel()
		return fn(fetchCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// callerGaveUp reports whether err is the caller's own cancellation rather
// than a failure of the shared fetch
func callerGaveUp(ctx context.Context, err error) bool {
	ctxErr := ctx.Err()
	return ctxErr != nil && err == ctxErr
}

// ShapeCountries sorts rows and groups them behind separators
func ShapeCountries(rows []domain.CountryRow) []domain.CountryEntry {
	sorted := make([]domain.CountryRow, len(rows))
	copy(sorted, rows)
	SortCountryRows(sorted)
	return GroupCountries(sorted)
}

// SortCountryRows puts domestic rows first, keeping their order, then the
// remaining rows by tax region in descending order.
func SortCountryRows(rows []domain.CountryRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if b.TaxRegionClass() == domain.TaxRegionClassDomestic {
			return false
		}
		if a.TaxRegionClass() == domain.TaxRegionClassDomestic {
			return true
		}
		return a.NormalizedTaxRegion() > b.NormalizedTaxRegion()
	})
}

var separatorLabels = map[domain.TaxRegionClass]string{
	domain.TaxRegionClassDomestic: domain.SeparatorDomestic,
	domain.TaxRegionClassUnion:    domain.SeparatorUnion,
	domain.TaxRegionClassNonUnion: domain.SeparatorNonUnion,
}

// GroupCountries projects sorted rows to entries, inserting one separator
// before the first row of each recognized class.
func GroupCountries(sorted []domain.CountryRow) []domain.CountryEntry {
	out := make([]domain.CountryEntry, 0, len(sorted)+len(separatorLabels))
	seen := make(map[domain.TaxRegionClass]bool, len(separatorLabels))

	for _, row := range sorted {
		class := row.TaxRegionClass()
		if label, ok := separatorLabels[class]; ok && !seen[class] {
			out = append(out, domain.NewSeparator(label))
			seen[class] = true
		}
		out = append(out, row.ToEntry())
	}

	return out
}
