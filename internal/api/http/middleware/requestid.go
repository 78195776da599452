package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/banking/address-service/internal/broker"
	"github.com/banking/address-service/internal/pkg/logger"
)

const (
	// RequestIDKey is the context key for request ID, shared with the logger
	// and read by the broker client when it forwards the id upstream
	RequestIDKey = logger.RequestIDKey
	// RequestIDHeader is the header carrying the request ID in both directions
	RequestIDHeader = broker.RequestIDHeader

	maxRequestIDLen = 64
	minRequestIDLen = 16
)

// RequestID accepts a well-formed incoming request ID or mints one, and
// stores it on the request context so broker calls made on behalf of the
// request carry the same id.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(RequestIDHeader)
			if !isValidRequestID(requestID) {
				requestID = uuid.NewString()
			}

			c.Response().Header().Set(RequestIDHeader, requestID)
			ctx := context.WithValue(c.Request().Context(), RequestIDKey, requestID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(string(RequestIDKey), requestID)

			return next(c)
		}
	}
}

// isValidRequestID accepts UUIDs and opaque tracing ids of [A-Za-z0-9_-]
// between 16 and 64 characters. Anything else is replaced to keep log lines clean.
func isValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_') {
			return false
		}
	}
	if _, err := uuid.Parse(id); err == nil {
		return true
	}
	return len(id) >= minRequestIDLen
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRequestIDFromEcho extracts request ID from Echo context
func GetRequestIDFromEcho(c echo.Context) string {
	if id, ok := c.Get(string(RequestIDKey)).(string); ok {
		return id
	}
	return ""
}
