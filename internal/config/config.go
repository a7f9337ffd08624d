package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"statsuite/domain/method"
	"statsuite/domain/result"
	"statsuite/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Suite      SuiteConfig
	Provenance ProvenanceConfig
	Server     ServerConfig
	Log        LogConfig
}

// SuiteConfig holds dispatch and comparison settings
type SuiteConfig struct {
	Workers         int           `validate:"gt=0" env:"SUITE_WORKERS"`
	TierCapacity    int64         `env:"SUITE_TIER_CAPACITY"`
	DefaultMetric   result.Metric `validate:"oneof=aic bic log_likelihood r_squared" env:"SUITE_METRIC"`
	MinSeriesLength int           `validate:"gte=0" env:"SUITE_MIN_SERIES_LENGTH"`
	TierTimeouts    map[method.CostTier]time.Duration
	MethodTimeouts  map[string]time.Duration `validate:"dive,gt=0" env:"SUITE_METHOD_TIMEOUTS"`
}

// ProvenanceConfig selects where attempt records are persisted
type ProvenanceConfig struct {
	Driver    string `validate:"oneof=memory sqlite postgres" env:"PROVENANCE_DRIVER"`
	DSN       string `validate:"required_unless=Driver memory" env:"PROVENANCE_DSN"`
	QueueSize int    `validate:"gt=0" env:"PROVENANCE_QUEUE_SIZE"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required,numeric" env:"PORT"`
	GinMode string `validate:"omitempty,oneof=debug release test" env:"GIN_MODE"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string `validate:"omitempty,oneof=json console" env:"LOG_FORMAT"`
}

// Provenance drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	suiteConfig, err := loadSuiteConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load suite configuration")
	}
	config.Suite = *suiteConfig

	config.Provenance = *loadProvenanceConfig()
	config.Server = *loadServerConfig()
	config.Log = *loadLogConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Default returns the configuration used when no environment is set
func Default() *Config {
	return &Config{
		Suite: SuiteConfig{
			Workers:         runtime.NumCPU(),
			TierCapacity:    int64(runtime.NumCPU()) * method.TierSimulation.Weight(),
			DefaultMetric:   result.MetricAIC,
			MinSeriesLength: 8,
			TierTimeouts:    defaultTierTimeouts(),
			MethodTimeouts:  map[string]time.Duration{},
		},
		Provenance: ProvenanceConfig{Driver: DriverMemory, QueueSize: 1024},
		Server:     ServerConfig{Port: "8080", GinMode: "release"},
		Log:        LogConfig{Level: "INFO", Format: "json"},
	}
}

func defaultTierTimeouts() map[method.CostTier]time.Duration {
	return map[method.CostTier]time.Duration{
		method.TierClosedForm: 30 * time.Second,
		method.TierIterative:  2 * time.Minute,
		method.TierSimulation: 30 * time.Minute,
	}
}

func loadSuiteConfig() (*SuiteConfig, error) {
	workers := getEnvIntOrDefault("SUITE_WORKERS", runtime.NumCPU())

	metricName := getEnvOrDefault("SUITE_METRIC", string(result.MetricAIC))
	metric, ok := result.ParseMetric(metricName)
	if !ok {
		return nil, errors.ConfigInvalid(fmt.Sprintf("SUITE_METRIC %q is not one of aic, bic, log_likelihood, r_squared", metricName))
	}

	defaults := defaultTierTimeouts()
	tierTimeouts := map[method.CostTier]time.Duration{
		method.TierClosedForm: getEnvDurationOrDefault("SUITE_TIMEOUT_CLOSED_FORM", defaults[method.TierClosedForm]),
		method.TierIterative:  getEnvDurationOrDefault("SUITE_TIMEOUT_ITERATIVE", defaults[method.TierIterative]),
		method.TierSimulation: getEnvDurationOrDefault("SUITE_TIMEOUT_SIMULATION", defaults[method.TierSimulation]),
	}

	methodTimeouts, err := ParseMethodTimeouts(os.Getenv("SUITE_METHOD_TIMEOUTS"))
	if err != nil {
		return nil, err
	}

	return &SuiteConfig{
		Workers:         workers,
		TierCapacity:    int64(getEnvIntOrDefault("SUITE_TIER_CAPACITY", workers*int(method.TierSimulation.Weight()))),
		DefaultMetric:   metric,
		MinSeriesLength: getEnvIntOrDefault("SUITE_MIN_SERIES_LENGTH", 8),
		TierTimeouts:    tierTimeouts,
		MethodTimeouts:  methodTimeouts,
	}, nil
}

// ParseMethodTimeouts parses "name=duration,name=duration" overrides
func ParseMethodTimeouts(raw string) (map[string]time.Duration, error) {
	out := map[string]time.Duration{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(name) == "" {
			return nil, errors.ConfigInvalid(fmt.Sprintf("SUITE_METHOD_TIMEOUTS entry %q must be name=duration", pair))
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil || d <= 0 {
			return nil, errors.ConfigInvalid(fmt.Sprintf("SUITE_METHOD_TIMEOUTS entry %q has an invalid duration", pair))
		}
		out[strings.TrimSpace(name)] = d
	}
	return out, nil
}

func loadProvenanceConfig() *ProvenanceConfig {
	return &ProvenanceConfig{
		Driver:    strings.ToLower(getEnvOrDefault("PROVENANCE_DRIVER", DriverMemory)),
		DSN:       getEnvOrDefault("PROVENANCE_DSN", os.Getenv("DATABASE_URL")),
		QueueSize: getEnvIntOrDefault("PROVENANCE_QUEUE_SIZE", 1024),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadLogConfig() *LogConfig {
	return &LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

func validateConfig(config *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	if err := v.Struct(config); err != nil {
		var fieldErrs validator.ValidationErrors
		if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return errors.Wrap(err, "configuration could not be validated")
		}
		fe := fieldErrs[0]
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		return errors.ConfigInvalid(fmt.Sprintf("%s fails %s (got %q)", fe.Field(), rule, fmt.Sprint(fe.Value())))
	}
	if config.Suite.TierCapacity < method.TierSimulation.Weight() {
		return errors.ConfigInvalid(fmt.Sprintf("SUITE_TIER_CAPACITY must be at least %d", method.TierSimulation.Weight()))
	}
	return nil
}

// TimeoutFor resolves the per-method timeout: explicit override, then the
// descriptor's own timeout, then the tier default
func (c SuiteConfig) TimeoutFor(name string, tier method.CostTier, declared time.Duration) time.Duration {
	if d, ok := c.MethodTimeouts[name]; ok {
		return d
	}
	if declared > 0 {
		return declared
	}
	if d, ok := c.TierTimeouts[tier]; ok {
		return d
	}
	return defaultTierTimeouts()[method.TierClosedForm]
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
