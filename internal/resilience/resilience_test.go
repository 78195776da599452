package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsOnFailureRatio(t *testing.T) {
	settings := DefaultSettings("test")
	settings.MinRequests = 2

	opened := make(chan string, 1)
	cb := NewCircuitBreaker(settings)
	cb.OnStateChange(func(name string) { opened <- name }, nil)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := cb.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	}

	assert.True(t, cb.IsOpen())
	assert.Equal(t, "test", <-opened)

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_CancelledCallersDoNotTrip(t *testing.T) {
	settings := DefaultSettings("test")
	settings.MinRequests = 1
	cb := NewCircuitBreaker(settings)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	_, err = cb.Execute(func() (interface{}, error) { return nil, context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, cb.IsOpen())
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreakers_Status(t *testing.T) {
	breakers := NewCircuitBreakers("broker", "redis")
	assert.True(t, breakers.AllHealthy())
	assert.Equal(t, map[string]string{"broker": "closed", "redis": "closed"}, breakers.Status())
}

func TestReadThrough_CacheHit(t *testing.T) {
	rt := NewReadThrough(
		func(ctx context.Context, key string) (string, error) { return "cached", nil },
		func(ctx context.Context, key string) (string, error) {
			t.Fatal("source must not be called on a hit")
			return "", nil
		},
		nil,
	)

	v, hit, err := rt.Get(context.Background(), "k", nil)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cached", v)
}

func TestReadThrough_MissFallsBackAndWrites(t *testing.T) {
	miss := errors.New("miss")
	written := make(chan string, 1)
	var reported []error

	rt := NewReadThrough(
		func(ctx context.Context, key string) (string, error) { return "", miss },
		func(ctx context.Context, key string) (string, error) { return "fresh:" + key, nil },
		func(ctx context.Context, key string, value string) error {
			written <- value
			return nil
		},
	)
	rt.OnCacheError(func(key string, err error) { reported = append(reported, err) })

	v, hit, err := rt.Get(context.Background(), "k", func(err error) bool { return errors.Is(err, miss) })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh:k", v)

	select {
	case got := <-written:
		assert.Equal(t, "fresh:k", got)
	case <-time.After(time.Second):
		t.Fatal("cache write did not happen")
	}
	assert.Empty(t, reported)
}

func TestReadThrough_ReportsCacheFailure(t *testing.T) {
	down := errors.New("connection refused")
	reported := make(chan error, 1)

	rt := NewReadThrough(
		func(ctx context.Context, key string) (int, error) { return 0, down },
		func(ctx context.Context, key string) (int, error) { return 7, nil },
		nil,
	)
	rt.OnCacheError(func(key string, err error) { reported <- err })

	v, _, err := rt.Get(context.Background(), "k", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.ErrorIs(t, <-reported, down)
}

func TestReadThrough_SourceError(t *testing.T) {
	failed := errors.New("upstream")
	rt := NewReadThrough[int](nil, func(ctx context.Context, key string) (int, error) { return 0, failed }, nil)

	_, _, err := rt.Get(context.Background(), "k", nil)
	assert.ErrorIs(t, err, failed)

	empty := NewReadThrough[int](nil, nil, nil)
	_, _, err = empty.Get(context.Background(), "k", nil)
	assert.ErrorIs(t, err, ErrNoSource)
}
