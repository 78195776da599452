package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrNoSource is returned by a ReadThrough built without a source getter
var ErrNoSource = errors.New("no source available")

// ReadThrough serves values from a cache and falls back to the source on a
// miss or cache failure, repopulating the cache asynchronously.
type ReadThrough[T any] struct {
	cacheGet     func(ctx context.Context, key string) (T, error)
	source       func(ctx context.Context, key string) (T, error)
	cacheWrite   func(ctx context.Context, key string, value T) error
	writeTimeout time.Duration
	onCacheError func(key string, err error)
}

// NewReadThrough creates a read-through strategy. cacheGet and cacheWrite may
// be nil, in which case every read goes to the source.
func NewReadThrough[T any](
	cacheGet func(ctx context.Context, key string) (T, error),
	source func(ctx context.Context, key string) (T, error),
	cacheWrite func(ctx context.Context, key string, value T) error,
) *ReadThrough[T] {
	return &ReadThrough[T]{
		cacheGet:     cacheGet,
		source:       source,
		cacheWrite:   cacheWrite,
		writeTimeout: 1 * time.Second,
	}
}

// OnCacheError sets a callback for failed cache reads and writes
func (r *ReadThrough[T]) OnCacheError(fn func(key string, err error)) {
	r.onCacheError = fn
}

// Get returns the value for key and whether it came from the cache. Read
// errors for which isMiss returns true are not reported.
func (r *ReadThrough[T]) Get(ctx context.Context, key string, isMiss func(error) bool) (T, bool, error) {
	var zero T

	if r.cacheGet != nil {
		value, err := r.cacheGet(ctx, key)
		if err == nil {
			return value, true, nil
		}
		if r.onCacheError != nil && (isMiss == nil || !isMiss(err)) {
			r.onCacheError(key, err)
		}
	}

	if r.source == nil {
		return zero, false, ErrNoSource
	}

	value, err := r.source(ctx, key)
	if err != nil {
		return zero, false, err
	}

	if r.cacheWrite != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
			defer cancel()
			if err := r.cacheWrite(ctx, key, value); err != nil && r.onCacheError != nil {
				r.onCacheError(key, err)
			}
		}()
	}

	return value, false, nil
}
