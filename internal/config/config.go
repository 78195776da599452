// Package config loads service settings from an optional YAML file and
// ADDRESS_SERVICE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "ADDRESS_SERVICE"

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"` // empty = no CORS
}

// BrokerConfig points at the reference data service. A zero CountryTimeout
// lets the country list load without a deadline.
type BrokerConfig struct {
	BaseURL            string        `mapstructure:"base_url" validate:"required,http_url"`
	RecordTimeout      time.Duration `mapstructure:"record_timeout" validate:"gt=0s"`
	CountryTimeout     time.Duration `mapstructure:"country_timeout" validate:"min=0s"`
	CircuitBreakerName string        `mapstructure:"circuit_breaker_name" validate:"required"`
}

// ResourcesConfig locates the resources served by the broker
type ResourcesConfig struct {
	Addresses string `mapstructure:"addresses"`
	Countries string `mapstructure:"countries" validate:"required"`
}

// RedisConfig configures the country list cache
type RedisConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSize           int           `mapstructure:"pool_size"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	CountryTTL         time.Duration `mapstructure:"country_ttl" validate:"required_if=Enabled true,min=0s"`
	CircuitBreakerName string        `mapstructure:"circuit_breaker_name" validate:"required"`
}

type RateLimitConfig struct {
	PerIPPerMinute         int  `mapstructure:"per_ip_per_minute" validate:"min=1,max=10000"`
	FormOpsPerMinute       int  `mapstructure:"form_ops_per_minute" validate:"min=0"`
	EnableInMemoryFallback bool `mapstructure:"enable_inmemory_fallback"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

type LoggingConfig struct {
	Level           string `mapstructure:"level"`
	Format          string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath      string `mapstructure:"output_path"`
	EnablePIIMask   bool   `mapstructure:"enable_pii_mask"`
	EnableRequestID bool   `mapstructure:"enable_request_id"`
}

var defaults = map[string]interface{}{
	"server.host":                 "0.0.0.0",
	"server.port":                 8080,
	"server.read_timeout":         30 * time.Second,
	"server.write_timeout":        30 * time.Second,
	"server.shutdown_timeout":     15 * time.Second,
	"server.cors_allowed_origins": []string{},

	"broker.base_url":             "http://localhost:9000",
	"broker.record_timeout":       3 * time.Second,
	"broker.country_timeout":      time.Duration(0),
	"broker.circuit_breaker_name": "broker",

	"resources.addresses": "addresses",
	"resources.countries": "countries",

	"redis.enabled":              true,
	"redis.host":                 "localhost",
	"redis.port":                 6379,
	"redis.password":             "",
	"redis.db":                   0,
	"redis.pool_size":            10,
	"redis.min_idle_conns":       2,
	"redis.country_ttl":          time.Hour,
	"redis.circuit_breaker_name": "redis",

	"ratelimit.per_ip_per_minute":        300,
	"ratelimit.form_ops_per_minute":      120,
	"ratelimit.enable_inmemory_fallback": true,

	"tracing.enabled":       false,
	"tracing.service_name":  "address-service",
	"tracing.otlp_endpoint": "localhost:4317",
	"tracing.sample_rate":   0.1,

	"logging.level":             "info",
	"logging.format":            "json",
	"logging.output_path":       "stdout",
	"logging.enable_pii_mask":   true,
	"logging.enable_request_id": true,
}

// Load reads config.yaml from the usual locations, if present, then applies
// defaults and environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range []string{"/etc/address-service/", "./configs/", "."} {
		v.AddConfigPath(dir)
	}

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// validate reports the first failing setting by its config key, e.g.
// "broker.record_timeout failed gt=0s"
func validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})

	err := v.Struct(cfg)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		return fmt.Errorf("%s failed %s (got %v)", key, rule, fe.Value())
	}
	return err
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetCORSAllowedOrigins returns the configured CORS allowed origins
func (c *Config) GetCORSAllowedOrigins() []string {
	if len(c.Server.CORSAllowedOrigins) == 0 {
		return []string{}
	}
	return c.Server.CORSAllowedOrigins
}
