package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cb *resilience.CircuitBreaker) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/"}, cb, nil, nil)
}

func TestClient_Get(t *testing.T) {
	var gotPath, gotRequestID string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get(RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"city":"Lisboa"}}`))
	}, nil)

	ctx := context.WithValue(context.Background(), logger.RequestIDKey, "req-1")
	resp, err := client.Get(ctx, "addresses/42", time.Second)
	require.NoError(t, err)

	assert.Equal(t, "/addresses/42", gotPath)
	assert.Equal(t, "req-1", gotRequestID)
	assert.JSONEq(t, `{"city":"Lisboa"}`, string(resp.Data))
}

func TestClient_Get_GeneratesRequestID(t *testing.T) {
	var gotRequestID string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get(RequestIDHeader)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, nil)

	_, err := client.Get(context.Background(), "countries", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, gotRequestID)
}

func TestClient_Get_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		wantErr error
	}{
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			timeout: time.Second,
			wantErr: ErrNotFound,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			timeout: time.Second,
			wantErr: ErrUnexpectedStatus,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			},
			timeout: 20 * time.Millisecond,
			wantErr: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler, nil)
			resp, err := client.Get(context.Background(), "addresses/1", tt.timeout)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_Get_BadDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}, nil)

	_, err := client.Get(context.Background(), "countries", time.Second)
	assert.Error(t, err)
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	settings := resilience.DefaultSettings("broker")
	settings.MinRequests = 1
	cb := resilience.NewCircuitBreaker(settings)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, cb)

	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), "addresses/1", time.Second)
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.False(t, cb.IsOpen())
}

func TestClient_Ping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
	}, nil)
	assert.NoError(t, client.Ping(context.Background()))

	failing := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)
	assert.ErrorIs(t, failing.Ping(context.Background()), ErrUnexpectedStatus)
}
