// Package config loads larvawatch configuration from defaults, an optional YAML
// file and LARVAWATCH_* environment variables using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. LARVAWATCH_DEVICE_BASE_URL.
const EnvPrefix = "LARVAWATCH"

const (
	defaultBaseURL            = "http://127.0.0.1:8000"
	defaultLookupTimeout      = 10 * time.Second
	defaultActionRetries      = 2
	defaultActionRetryDelay   = 500 * time.Millisecond
	defaultStatsPath          = "/ws/camera-stats"
	defaultOrigin             = "http://localhost/"
	defaultDialTimeout        = 10 * time.Second
	defaultReconnectDelay     = 3 * time.Second
	defaultNotificationClear  = 3 * time.Second
	defaultStatusClear        = 5 * time.Second
	defaultViewerListen       = "127.0.0.1:8090"
	defaultStatePushInterval  = 100 * time.Millisecond
	defaultSimulatorHost      = "127.0.0.1"
	defaultSimulatorPort      = 8000
	defaultSimulatorFrameRate = 30 * time.Millisecond
	defaultSimulatorStatsRate = time.Second
)

// Config holds all configuration for the viewer and the device simulator.
type Config struct {
	Device    DeviceConfig    `mapstructure:"device"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Actions   ActionsConfig   `mapstructure:"actions"`
	Presenter PresenterConfig `mapstructure:"presenter"`
	Viewer    ViewerConfig    `mapstructure:"viewer"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// DeviceConfig describes how to reach the sensing device.
type DeviceConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
	// StatsPath is appended to the camera address to build the stats channel URL.
	StatsPath   string        `mapstructure:"stats_path"`
	Origin      string        `mapstructure:"origin"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ChannelsConfig holds channel lifecycle settings.
type ChannelsConfig struct {
	NotificationReconnectDelay time.Duration `mapstructure:"notification_reconnect_delay"`
}

// ActionsConfig controls the delete-all requests. Endpoint lookups are never
// retried; these idempotent DELETEs are.
type ActionsConfig struct {
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// PresenterConfig holds display timing.
type PresenterConfig struct {
	NotificationClearAfter time.Duration `mapstructure:"notification_clear_after"`
	StatusClearAfter       time.Duration `mapstructure:"status_clear_after"`
}

// ViewerConfig holds the local viewer page server settings.
type ViewerConfig struct {
	Listen            string        `mapstructure:"listen"`
	StatePushInterval time.Duration `mapstructure:"state_push_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`  // debug, info, warn, error
	Format    string `mapstructure:"format"` // auto, json, text
	AddSource bool   `mapstructure:"add_source"`
}

// SimulatorConfig configures cmd/device-sim.
type SimulatorConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	FrameInterval time.Duration `mapstructure:"frame_interval"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			BaseURL:       defaultBaseURL,
			LookupTimeout: defaultLookupTimeout,
			StatsPath:     defaultStatsPath,
			Origin:        defaultOrigin,
			DialTimeout:   defaultDialTimeout,
		},
		Channels: ChannelsConfig{
			NotificationReconnectDelay: defaultReconnectDelay,
		},
		Actions: ActionsConfig{
			RetryAttempts: defaultActionRetries,
			RetryDelay:    defaultActionRetryDelay,
		},
		Presenter: PresenterConfig{
			NotificationClearAfter: defaultNotificationClear,
			StatusClearAfter:       defaultStatusClear,
		},
		Viewer: ViewerConfig{
			Listen:            defaultViewerListen,
			StatePushInterval: defaultStatePushInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Simulator: SimulatorConfig{
			Host:          defaultSimulatorHost,
			Port:          defaultSimulatorPort,
			FrameInterval: defaultSimulatorFrameRate,
			StatsInterval: defaultSimulatorStatsRate,
		},
	}
}

// SetDefaults registers every default with v so that env-only keys resolve.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("device.base_url", d.Device.BaseURL)
	v.SetDefault("device.lookup_timeout", d.Device.LookupTimeout)
	v.SetDefault("device.stats_path", d.Device.StatsPath)
	v.SetDefault("device.origin", d.Device.Origin)
	v.SetDefault("device.dial_timeout", d.Device.DialTimeout)

	v.SetDefault("channels.notification_reconnect_delay", d.Channels.NotificationReconnectDelay)

	v.SetDefault("actions.retry_attempts", d.Actions.RetryAttempts)
	v.SetDefault("actions.retry_delay", d.Actions.RetryDelay)

	v.SetDefault("presenter.notification_clear_after", d.Presenter.NotificationClearAfter)
	v.SetDefault("presenter.status_clear_after", d.Presenter.StatusClearAfter)

	v.SetDefault("viewer.listen", d.Viewer.Listen)
	v.SetDefault("viewer.state_push_interval", d.Viewer.StatePushInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.add_source", d.Logging.AddSource)

	v.SetDefault("simulator.host", d.Simulator.Host)
	v.SetDefault("simulator.port", d.Simulator.Port)
	v.SetDefault("simulator.frame_interval", d.Simulator.FrameInterval)
	v.SetDefault("simulator.stats_interval", d.Simulator.StatsInterval)
}

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"device":     "device.base_url",
	"listen":     "viewer.listen",
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"host":       "simulator.host",
	"port":       "simulator.port",
}

// BindFlags binds the flags of fs listed in FlagKeys. Flags that were not
// defined on fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range FlagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads configuration from configPath (or the default search paths when
// empty) and the environment. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags is Load with command line flags taking precedence over the
// file and environment.
func LoadWithFlags(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindFlags(v, fs); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".larvawatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.AddConfigPath("/etc/larvawatch")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the session cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Device.BaseURL)
	if err != nil {
		return fmt.Errorf("device.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("device.base_url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("device.base_url: missing host")
	}
	if !strings.HasPrefix(c.Device.StatsPath, "/") {
		return fmt.Errorf("device.stats_path: must start with /, got %q", c.Device.StatsPath)
	}
	if c.Device.LookupTimeout <= 0 {
		return errors.New("device.lookup_timeout must be positive")
	}
	if c.Channels.NotificationReconnectDelay <= 0 {
		return errors.New("channels.notification_reconnect_delay must be positive")
	}
	if c.Actions.RetryAttempts < 0 {
		return fmt.Errorf("actions.retry_attempts: must not be negative, got %d", c.Actions.RetryAttempts)
	}
	if c.Actions.RetryAttempts > 0 && c.Actions.RetryDelay <= 0 {
		return errors.New("actions.retry_delay must be positive when retries are enabled")
	}
	if c.Presenter.NotificationClearAfter <= 0 {
		return errors.New("presenter.notification_clear_after must be positive")
	}
	if c.Presenter.StatusClearAfter <= 0 {
		return errors.New("presenter.status_clear_after must be positive")
	}
	if c.Viewer.StatePushInterval <= 0 {
		return errors.New("viewer.state_push_interval must be positive")
	}
	switch c.Logging.Format {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Simulator.Port <= 0 || c.Simulator.Port > 65535 {
		return fmt.Errorf("simulator.port: out of range: %d", c.Simulator.Port)
	}
	return nil
}
