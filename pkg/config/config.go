// Package config loads Commy's static configuration: logging, telemetry,
// metrics, and the Manager/Transport/Mesh component settings. Values come
// from the config file, with COMMY_* environment variables overriding keys
// the file sets; fields left unset get defaults. When no config file is
// found, the defaults are used and the environment is not consulted. No
// CLI flags are bound into the configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/commyio/commy/internal/bytesize"
)

// Config is Commy's top-level configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Manager      ManagerConfig      `mapstructure:"manager" yaml:"manager"`
	Transport    TransportConfig    `mapstructure:"transport" yaml:"transport"`
	Mesh         MeshConfig         `mapstructure:"mesh" yaml:"mesh"`
	ControlPlane ControlPlaneConfig `mapstructure:"control_plane" yaml:"control_plane"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// ControlPlaneConfig configures the HTTP API fronting the Mesh
// Coordinator and Shared-File Manager.
type ControlPlaneConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ManagerConfig configures the Shared-File Manager.
type ManagerConfig struct {
	// BaseDir is the directory mapped files are created under.
	BaseDir string `mapstructure:"base_dir" validate:"required" yaml:"base_dir"`

	// MaxFileSize bounds a single mapped file. Supports human-readable
	// sizes like "1GB", "512MB".
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size"`

	// MaxFiles caps the number of concurrently active files. Zero means
	// unbounded.
	MaxFiles int `mapstructure:"max_files" validate:"omitempty,min=0" yaml:"max_files"`

	// CleanupInterval is the background tick that expires idle files.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`

	// DefaultTTL is applied to requests that do not specify one.
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl"`

	// AuthSecret is the HMAC key used to validate bearer tokens. Empty
	// disables authentication (every token is accepted) for local
	// development.
	AuthSecret string `mapstructure:"auth_secret" yaml:"auth_secret,omitempty"`
}

// TransportConfig configures the Transport Router.
type TransportConfig struct {
	DefaultPreference string `mapstructure:"default_preference" validate:"omitempty,oneof=auto_optimize adaptive prefer_local prefer_network require_local require_network local_only network_only" yaml:"default_preference"`

	LargeMessageThresholdBytes int64 `mapstructure:"large_message_threshold_bytes" yaml:"large_message_threshold_bytes"`
	HighConnectionThreshold    int   `mapstructure:"high_connection_threshold" yaml:"high_connection_threshold"`

	Fallback string `mapstructure:"fallback" validate:"omitempty,oneof=fail once retry" yaml:"fallback"`

	Network NetworkTransportConfig `mapstructure:"network" yaml:"network"`
}

// NetworkTransportConfig configures the TCP network transport.
type NetworkTransportConfig struct {
	ListenAddress  string        `mapstructure:"listen_address" yaml:"listen_address"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	TLSEnabled     bool          `mapstructure:"tls_enabled" yaml:"tls_enabled"`
	CABundlePath   string        `mapstructure:"ca_bundle_path" yaml:"ca_bundle_path,omitempty"`
}

// MeshConfig configures the Mesh Coordinator.
type MeshConfig struct {
	Algorithm string `mapstructure:"algorithm" validate:"omitempty,oneof=round_robin least_connections weighted_round_robin performance_based random consistent_hash" yaml:"algorithm"`

	CircuitOpenThreshold  float64       `mapstructure:"circuit_open_threshold" validate:"omitempty,gte=0,lte=1" yaml:"circuit_open_threshold"`
	CircuitCloseThreshold float64       `mapstructure:"circuit_close_threshold" validate:"omitempty,gte=0,lte=1" yaml:"circuit_close_threshold"`
	CircuitReopenThreshold float64      `mapstructure:"circuit_reopen_threshold" validate:"omitempty,gte=0,lte=1" yaml:"circuit_reopen_threshold"`
	CircuitBreakerTimeout time.Duration `mapstructure:"circuit_breaker_timeout" yaml:"circuit_breaker_timeout"`

	ReaperInterval time.Duration `mapstructure:"reaper_interval" yaml:"reaper_interval"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, Validate(cfg)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate applies struct-tag validation rules to cfg.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// SaveConfig writes cfg to path in YAML form with restricted permissions.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("COMMY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "commy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "commy")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
