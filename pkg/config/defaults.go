package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/commyio/commy/internal/bytesize"
)

// DefaultConfig returns Commy's configuration with every field set to its
// documented default.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults,
// leaving explicitly set fields untouched.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}

	if cfg.Manager.BaseDir == "" {
		cfg.Manager.BaseDir = defaultBaseDir()
	}
	if cfg.Manager.MaxFileSize == 0 {
		cfg.Manager.MaxFileSize = bytesize.ByteSize(1 << 30) // 1GiB
	}
	if cfg.Manager.CleanupInterval == 0 {
		cfg.Manager.CleanupInterval = 30 * time.Second
	}
	if cfg.Manager.DefaultTTL == 0 {
		cfg.Manager.DefaultTTL = 5 * time.Minute
	}

	if cfg.Transport.DefaultPreference == "" {
		cfg.Transport.DefaultPreference = "auto_optimize"
	}
	if cfg.Transport.LargeMessageThresholdBytes == 0 {
		cfg.Transport.LargeMessageThresholdBytes = 1 << 20 // 1MiB
	}
	if cfg.Transport.HighConnectionThreshold == 0 {
		cfg.Transport.HighConnectionThreshold = 100
	}
	if cfg.Transport.Fallback == "" {
		cfg.Transport.Fallback = "once"
	}
	if cfg.Transport.Network.ListenAddress == "" {
		cfg.Transport.Network.ListenAddress = ":7777"
	}
	if cfg.Transport.Network.DialTimeout == 0 {
		cfg.Transport.Network.DialTimeout = 5 * time.Second
	}
	if cfg.Transport.Network.RequestTimeout == 0 {
		cfg.Transport.Network.RequestTimeout = 30 * time.Second
	}
	if cfg.Transport.Network.IdleTimeout == 0 {
		cfg.Transport.Network.IdleTimeout = 2 * time.Minute
	}

	if cfg.Mesh.Algorithm == "" {
		cfg.Mesh.Algorithm = "round_robin"
	}
	if cfg.Mesh.CircuitOpenThreshold == 0 {
		cfg.Mesh.CircuitOpenThreshold = 0.5
	}
	if cfg.Mesh.CircuitCloseThreshold == 0 {
		cfg.Mesh.CircuitCloseThreshold = 0.1
	}
	if cfg.Mesh.CircuitReopenThreshold == 0 {
		cfg.Mesh.CircuitReopenThreshold = 0.3
	}
	if cfg.Mesh.CircuitBreakerTimeout == 0 {
		cfg.Mesh.CircuitBreakerTimeout = 30 * time.Second
	}
	if cfg.Mesh.ReaperInterval == 0 {
		cfg.Mesh.ReaperInterval = 30 * time.Second
	}

	if cfg.ControlPlane.Port == 0 {
		cfg.ControlPlane.Port = 8080
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func defaultBaseDir() string {
	if dir := os.Getenv("COMMY_BASE_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "commy")
}
