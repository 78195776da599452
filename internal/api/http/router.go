// Package http exposes the address form service over echo.
package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/banking/address-service/internal/api/http/handlers"
	"github.com/banking/address-service/internal/api/http/middleware"
	"github.com/banking/address-service/internal/config"
	"github.com/banking/address-service/internal/pkg/health"
	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/pkg/validator"
	"github.com/banking/address-service/internal/resilience"
	"github.com/banking/address-service/internal/service"
)

const requestTimeout = 30 * time.Second

// Router owns the echo instance and the server it runs on
type Router struct {
	echo    *echo.Echo
	server  *http.Server
	log     *logger.Logger
	limiter *middleware.RateLimiter
}

// RouterDeps are the dependencies for the router. RedisClient and
// CircuitBreaker may be nil, in which case rate limiting stays in memory.
type RouterDeps struct {
	Config         *config.Config
	Logger         *logger.Logger
	Health         *health.Health
	FormService    *service.AddressFormService
	Validator      *validator.CustomValidator
	RedisClient    *redis.Client
	CircuitBreaker *resilience.CircuitBreaker
}

func NewRouter(deps RouterDeps) *Router {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = deps.Validator

	srv := deps.Config.Server
	r := &Router{
		echo: e,
		server: &http.Server{
			Addr:         net.JoinHostPort(srv.Host, strconv.Itoa(srv.Port)),
			Handler:      e,
			ReadTimeout:  srv.ReadTimeout,
			WriteTimeout: srv.WriteTimeout,
		},
		log: deps.Logger.Named("http"),
		limiter: middleware.NewRateLimiter(deps.RedisClient, deps.CircuitBreaker, middleware.RateLimitConfig{
			PerIPPerMinute:         deps.Config.RateLimit.PerIPPerMinute,
			FormOpsPerMinute:       deps.Config.RateLimit.FormOpsPerMinute,
			EnableInMemoryFallback: deps.Config.RateLimit.EnableInMemoryFallback,
		}, deps.Logger),
	}

	e.Use(globalMiddleware(deps)...)
	r.routes(deps)
	return r
}

// globalMiddleware is ordered: recovery wraps everything, and the request
// id is set before the access log reads it.
func globalMiddleware(deps RouterDeps) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.RecoveryLogging(deps.Logger),
		middleware.RequestID(),
		middleware.Logging(deps.Logger),
		echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
			AllowOrigins:  deps.Config.GetCORSAllowedOrigins(),
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, middleware.RequestIDHeader},
			ExposeHeaders: []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			MaxAge:        3600,
		}),
		echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
			XSSProtection:         "1; mode=block",
			ContentTypeNosniff:    "nosniff",
			XFrameOptions:         "DENY",
			HSTSMaxAge:            31536000,
			ContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none'",
			ReferrerPolicy:        "strict-origin-when-cross-origin",
		}),
		noStore,
		echomiddleware.BodyLimit("64K"),
		echomiddleware.TimeoutWithConfig(echomiddleware.TimeoutConfig{Timeout: requestTimeout}),
	}
}

// noStore keeps typed addresses out of shared caches
func noStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}

func (r *Router) routes(deps RouterDeps) {
	r.echo.GET("/health/live", deps.Health.Live)
	r.echo.GET("/health/ready", deps.Health.Ready)

	v1 := r.echo.Group("/api/v1", r.limiter.RateLimit())

	countries := handlers.NewCountryHandler(deps.FormService, deps.Logger)
	v1.GET("/countries", countries.ListCountries)

	addresses := handlers.NewAddressHandler(deps.FormService, deps.Logger)
	g := v1.Group("/addresses")
	g.GET("/:id", addresses.GetAddress)
	g.POST("/street-selection", addresses.StreetSelection)
	g.POST("/postal-code-selection", addresses.PostalCodeSelection)
	g.POST("/validate", addresses.Validate)
}

// Start blocks serving HTTP until Shutdown
func (r *Router) Start() error {
	r.log.Info("listening", zap.String("addr", r.server.Addr))
	return r.echo.StartServer(r.server)
}

func (r *Router) Shutdown(ctx context.Context) error {
	r.limiter.Stop()
	return r.echo.Shutdown(ctx)
}

// ServeHTTP lets tests drive the full middleware chain without a listener
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.echo.ServeHTTP(w, req)
}
