package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/banking/address-service/internal/pkg/logger"
)

// Logging writes one access line per request. Client IPs are hashed and the
// form mode is recorded so slow or failing modes show up in aggregation.
func Logging(log *logger.Logger) echo.MiddlewareFunc {
	access := log.Named("http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.Int("status", status),
				logger.Duration(time.Since(start).Milliseconds()),
				zap.String("remote_ip_hash", hashIP(c.RealIP())),
				zap.Int64("bytes_out", c.Response().Size),
			}
			if mode := c.QueryParam("mode"); mode != "" {
				fields = append(fields, logger.Mode(mode))
			}
			if err != nil {
				fields = append(fields, logger.ErrorField(err))
			}

			entry := access.WithContext(req.Context())
			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("request failed", fields...)
			case status >= http.StatusBadRequest:
				entry.Warn("request rejected", fields...)
			default:
				entry.Info("request completed", fields...)
			}

			return err
		}
	}
}

func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}

// RecoveryLogging turns a panic into a 500 and logs its stack. The stack
// never reaches the client.
func RecoveryLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.WithContext(c.Request().Context()).Error("panic recovered",
						zap.Any("panic", r),
						zap.String("route", c.Path()),
						zap.String("stack_trace", string(debug.Stack())),
					)
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}()
			return next(c)
		}
	}
}
