package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/resilience"
)

// Common errors
var (
	ErrCacheMiss = errors.New("cache miss")
)

// Cache keys
const (
	countryListPrefix = "address:countries:"
)

// CountryCache shares shaped country lists between engines, keyed by the
// countries resource they were loaded from.
type CountryCache struct {
	client     *redis.Client
	cb         *resilience.CircuitBreaker
	defaultTTL time.Duration
}

// NewCountryCache creates a new country cache
func NewCountryCache(client *redis.Client, cb *resilience.CircuitBreaker, defaultTTL time.Duration) *CountryCache {
	return &CountryCache{
		client:     client,
		cb:         cb,
		defaultTTL: defaultTTL,
	}
}

// cachedCountries is the stored document
type cachedCountries struct {
	Resource string                `json:"resource"`
	Entries  []domain.CountryEntry `json:"entries"`
	CachedAt time.Time             `json:"cached_at"`
}

// Get retrieves a cached country list
func (c *CountryCache) Get(ctx context.Context, resource string) ([]domain.CountryEntry, error) {
	result, err := c.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return c.get(ctx, resource)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, ErrCacheMiss // Treat circuit open as cache miss
		}
		return nil, err
	}
	entries, ok := result.([]domain.CountryEntry)
	if !ok || entries == nil {
		return nil, ErrCacheMiss
	}
	return entries, nil
}

// get returns a nil list on a miss so misses do not count against the breaker
func (c *CountryCache) get(ctx context.Context, resource string) ([]domain.CountryEntry, error) {
	data, err := c.client.Get(ctx, countryListPrefix+resource).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get countries from cache: %w", err)
	}

	var doc cachedCountries
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached countries: %w", err)
	}

	return doc.Entries, nil
}

// Set caches a shaped country list
func (c *CountryCache) Set(ctx context.Context, resource string, entries []domain.CountryEntry) error {
	_, err := c.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, c.set(ctx, resource, entries)
	})
	return err
}

func (c *CountryCache) set(ctx context.Context, resource string, entries []domain.CountryEntry) error {
	data, err := json.Marshal(cachedCountries{
		Resource: resource,
		Entries:  entries,
		CachedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal countries: %w", err)
	}

	if err := c.client.Set(ctx, countryListPrefix+resource, data, c.defaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to set countries in cache: %w", err)
	}

	return nil
}

// Invalidate removes a cached country list
func (c *CountryCache) Invalidate(ctx context.Context, resource string) error {
	_, err := c.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, c.client.Del(ctx, countryListPrefix+resource).Err()
	})
	return err
}

// Ping checks Redis connectivity
func (c *CountryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
