package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	apihttp "github.com/banking/address-service/internal/api/http"
	"github.com/banking/address-service/internal/broker"
	"github.com/banking/address-service/internal/config"
	"github.com/banking/address-service/internal/engine"
	"github.com/banking/address-service/internal/pkg/health"
	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/pkg/tracer"
	"github.com/banking/address-service/internal/pkg/validator"
	rediscache "github.com/banking/address-service/internal/repository/redis"
	"github.com/banking/address-service/internal/resilience"
	"github.com/banking/address-service/internal/service"
)

// Version is set at build time
var Version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health-check" {
		if err := probeLive("http://localhost:8080/health/live"); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		OutputPath:      cfg.Logging.OutputPath,
		EnablePIIMask:   cfg.Logging.EnablePIIMask,
		EnableRequestID: cfg.Logging.EnableRequestID,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("address-service")
	log.Info("starting", logger.Operation("startup"))

	tr := newTracer(ctx, cfg, log)
	defer func() { _ = tr.Shutdown(context.Background()) }()

	breakers := resilience.NewCircuitBreakers(cfg.Broker.CircuitBreakerName, cfg.Redis.CircuitBreakerName)
	breakers.OnStateChange(
		func(name string) { log.Warn("circuit breaker opened", logger.Component(name)) },
		func(name string) { log.Info("circuit breaker closed", logger.Component(name)) },
	)

	brokerClient := broker.NewClient(broker.Config{BaseURL: cfg.Broker.BaseURL}, breakers.Broker, tr, log)

	checks := health.New(5 * time.Second)
	checks.Register("broker", health.BrokerChecker(brokerClient.Ping))
	checks.Register("circuit_breakers", health.CircuitBreakerChecker(breakers.AllHealthy, breakers.Status))

	loaderOpts := engine.LoaderOptions{CountryTimeout: cfg.Broker.CountryTimeout, Logger: log}
	redisClient := newRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
		cache := rediscache.NewCountryCache(redisClient, breakers.Redis, cfg.Redis.CountryTTL)
		loaderOpts.Cache = cache
		loaderOpts.IsCacheMiss = func(err error) bool { return errors.Is(err, rediscache.ErrCacheMiss) }
		checks.Register("redis", health.RedisChecker(cache.Ping))
	}

	rules := validator.New()
	forms := service.NewAddressFormService(
		engine.NewLoader(brokerClient, loaderOpts),
		rules,
		service.Resources{Addresses: cfg.Resources.Addresses, Countries: cfg.Resources.Countries},
		cfg.Broker.RecordTimeout,
		log,
	)

	router := apihttp.NewRouter(apihttp.RouterDeps{
		Config:         cfg,
		Logger:         log,
		Health:         checks,
		FormService:    forms,
		Validator:      rules,
		RedisClient:    redisClient,
		CircuitBreaker: breakers.Redis,
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- router.Start() }()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", logger.Operation("shutdown"))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

// newTracer falls back to the no-op tracer when the exporter cannot be built
func newTracer(ctx context.Context, cfg *config.Config, log *logger.Logger) *tracer.Tracer {
	tr, err := tracer.New(ctx, tracer.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		Version:      Version,
	})
	if err != nil {
		log.Warn("tracing disabled", logger.ErrorField(err))
		return tracer.Noop()
	}
	return tr
}

// newRedis returns nil when the country cache is disabled
func newRedis(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

func probeLive(url string) error {
	client := http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}
