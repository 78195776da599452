// Package broker implements the record-fetch capability used by address
// engines: GET a resource path with a bounded timeout and return its data.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/pkg/tracer"
	"github.com/banking/address-service/internal/resilience"
)

// Broker errors
var (
	ErrTimeout          = errors.New("broker request timed out")
	ErrNotFound         = errors.New("resource not found")
	ErrUnexpectedStatus = errors.New("unexpected broker status")
)

// RequestIDHeader is propagated on every broker request
const RequestIDHeader = "X-Request-ID"

// maxBodySize bounds a broker response
const maxBodySize = 4 << 20

// Response is a broker reply. Data holds the resource document.
type Response struct {
	Data json.RawMessage `json:"data"`
}

// Config holds broker client configuration
type Config struct {
	BaseURL string
	// HTTPClient is optional; a default client without its own timeout is used otherwise
	HTTPClient *http.Client
}

// Client fetches resources from the broker over HTTP
type Client struct {
	baseURL string
	http    *http.Client
	cb      *resilience.CircuitBreaker
	tracer  *tracer.Tracer
	log     *logger.Logger
}

// NewClient creates a broker client. cb and tr may be nil.
func NewClient(cfg Config, cb *resilience.CircuitBreaker, tr *tracer.Tracer, log *logger.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		cb:      cb,
		tracer:  tr,
		log:     log.Named("broker"),
	}
}

// notFound is returned through the breaker so a missing resource is not
// counted as a broker failure
type notFound struct{}

// Get fetches path. A non-positive timeout leaves the deadline to ctx.
func (c *Client) Get(ctx context.Context, path string, timeout time.Duration) (*Response, error) {
	ctx, span := c.tracer.StartSpan(ctx, "broker.get",
		tracer.ResourceAttr(path),
		tracer.TimeoutAttr(timeout.Milliseconds()),
	)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return c.get(ctx, path)
	})
	if err == nil {
		if _, missing := result.(notFound); missing {
			err = fmt.Errorf("%s: %w", path, ErrNotFound)
		}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s after %s: %w", path, timeout, ErrTimeout)
		}
		tracer.Fail(span, err, "broker get failed")
		c.log.Debug("broker request failed",
			logger.Resource(path),
			logger.Duration(time.Since(start).Milliseconds()),
			logger.ErrorField(err),
		)
		return nil, err
	}

	return result.(*Response), nil
}

func (c *Client) execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if c.cb == nil {
		return fn(ctx)
	}
	return c.cb.ExecuteContext(ctx, fn)
}

func (c *Client) get(ctx context.Context, path string) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+strings.TrimLeft(path, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build broker request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	id := requestID(ctx)
	req.Header.Set(RequestIDHeader, id)
	tracer.SetAttributes(ctx, tracer.RequestIDAttr(id))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker request failed: %w", err)
	}
	defer resp.Body.Close()

	tracer.SetAttributes(ctx, tracer.HTTPStatusAttr(resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		return notFound{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read broker response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode broker response: %w", err)
	}
	return &out, nil
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(logger.RequestIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// Ping checks that the broker answers at all
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}
