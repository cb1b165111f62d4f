// Package config loads the mozdata INI configuration. Values come from an
// explicit file, ./mozdata.ini or ~/.mozdata.ini, and can be overridden per
// option with MOZDATA_CFG_<SECTION>_<OPTION> environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

// Sentinel validation errors.
var (
	ErrNoUserAgent      = errors.New("no User-Agent name configured: set [User-Agent] name")
	ErrInvalidWorkers   = errors.New("connection workers must not be negative")
	ErrInvalidTimeout   = errors.New("connection timeout must not be negative")
	ErrInvalidRetries   = errors.New("connection max_retries must not be negative")
	ErrInvalidRateLimit = errors.New("connection rate_limit must not be negative")
	ErrInvalidLogFormat = errors.New("logging format must be text or json")
)

const (
	envPrefix      = "MOZDATA_CFG"
	localFileName  = "mozdata.ini"
	homeFileName   = ".mozdata.ini"
	configType     = "ini"
	logFormatText  = "text"
	logFormatJSON  = "json"
	defaultTimeout = "30s"
)

// Default service endpoints.
const (
	DefaultBugzillaURL       = "https://bugzilla.mozilla.org"
	DefaultSocorroURL        = "https://crash-stats.mozilla.org"
	DefaultMercurialURL      = "https://hg.mozilla.org"
	DefaultProductDetailsURL = "https://product-details.mozilla.org/1.0"
)

// Config holds the whole mozdata configuration.
type Config struct {
	UserAgent      UserAgentConfig    `mapstructure:"user-agent"`
	ForwardedFor   ForwardedForConfig `mapstructure:"x-forwarded-for"`
	Bugzilla       ServiceConfig      `mapstructure:"bugzilla"`
	Socorro        ServiceConfig      `mapstructure:"socorro"`
	Mercurial      ServiceConfig      `mapstructure:"mercurial"`
	ProductDetails ServiceConfig      `mapstructure:"productdetails"`
	Connection     ConnectionConfig   `mapstructure:"connection"`
	Logging        LoggingConfig      `mapstructure:"logging"`
	Telemetry      TelemetryConfig    `mapstructure:"telemetry"`

	// File is the configuration file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// UserAgentConfig is the [User-Agent] section.
type UserAgentConfig struct {
	Name string `mapstructure:"name"`
}

// ForwardedForConfig is the [X-Forwarded-For] section.
type ForwardedForConfig struct {
	Data string `mapstructure:"data"`
}

// ServiceConfig holds the endpoint and optional token of one service.
type ServiceConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// ConnectionConfig tunes the query engine.
type ConnectionConfig struct {
	Workers    int           `mapstructure:"workers"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RateLimit  float64       `mapstructure:"rate_limit"`
}

// LoggingConfig is the [Logging] section.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig is the [Telemetry] section.
type TelemetryConfig struct {
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

// LoadConfig reads configPath, or the first of ./mozdata.ini and
// ~/.mozdata.ini that exists when configPath is empty. A missing file is not
// an error: defaults and environment overrides still apply.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := newViper()

	setDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viperCfg.AutomaticEnv()

	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)

		readErr := viperCfg.ReadInConfig()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	config.File = configPath

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func findConfigFile() string {
	candidates := []string{localFileName}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, homeFileName))
	}

	for _, candidate := range candidates {
		info, statErr := os.Stat(candidate)
		if statErr == nil && !info.IsDir() {
			return candidate
		}
	}

	return ""
}

// setDefaults registers every key so environment overrides reach Unmarshal
// even when no file mentions them.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("user-agent.name", "")
	viperCfg.SetDefault("x-forwarded-for.data", "")

	viperCfg.SetDefault("bugzilla.url", DefaultBugzillaURL)
	viperCfg.SetDefault("bugzilla.token", "")
	viperCfg.SetDefault("socorro.url", DefaultSocorroURL)
	viperCfg.SetDefault("socorro.token", "")
	viperCfg.SetDefault("mercurial.url", DefaultMercurialURL)
	viperCfg.SetDefault("mercurial.token", "")
	viperCfg.SetDefault("productdetails.url", DefaultProductDetailsURL)
	viperCfg.SetDefault("productdetails.token", "")

	viperCfg.SetDefault("connection.workers", 0)
	viperCfg.SetDefault("connection.timeout", defaultTimeout)
	viperCfg.SetDefault("connection.max_retries", query.DefaultMaxAttempts)
	viperCfg.SetDefault("connection.rate_limit", 0.0)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", logFormatText)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.prometheus_addr", "")
}

func validateConfig(config *Config) error {
	if config.Connection.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Connection.Workers)
	}

	if config.Connection.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, config.Connection.Timeout)
	}

	if config.Connection.MaxRetries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetries, config.Connection.MaxRetries)
	}

	if config.Connection.RateLimit < 0 {
		return fmt.Errorf("%w: %g", ErrInvalidRateLimit, config.Connection.RateLimit)
	}

	format := strings.ToLower(config.Logging.Format)
	if format != logFormatText && format != logFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	return nil
}

// QueryOptions converts the configuration into engine options. Outbound
// calls require a User-Agent name, so its absence is an error here rather
// than at load time.
func (c *Config) QueryOptions() ([]query.Option, error) {
	if strings.TrimSpace(c.UserAgent.Name) == "" {
		return nil, ErrNoUserAgent
	}

	policy := query.DefaultRetryPolicy()
	if c.Connection.MaxRetries > 0 {
		policy.MaxAttempts = c.Connection.MaxRetries
	}

	opts := []query.Option{
		query.WithUserAgent(c.UserAgent.Name),
		query.WithWorkers(c.Connection.Workers),
		query.WithTimeout(c.Connection.Timeout),
		query.WithRetryPolicy(policy),
	}

	if c.ForwardedFor.Data != "" {
		opts = append(opts, query.WithForwardedFor(c.ForwardedFor.Data))
	}

	if c.Connection.RateLimit > 0 {
		opts = append(opts, query.WithRateLimit(c.Connection.RateLimit, max(c.Connection.Workers, 1)))
	}

	return opts, nil
}

// Observability converts the [Logging] and [Telemetry] sections.
func (c *Config) Observability(serviceVersion string, mode observability.AppMode) observability.Config {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = serviceVersion
	obs.Mode = mode
	obs.LogLevel = observability.ParseLevel(c.Logging.Level)
	obs.LogJSON = strings.EqualFold(c.Logging.Format, logFormatJSON)
	obs.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	obs.OTLPInsecure = c.Telemetry.OTLPInsecure
	obs.Prometheus = c.Telemetry.PrometheusAddr != ""

	return obs
}
