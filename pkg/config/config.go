// Package config provides the YAML configuration model with environment
// overrides for secrets.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Verification VerificationConfig `yaml:"verification"`
	Anomaly      AnomalyConfig      `yaml:"anomaly"`
}

type ServerConfig struct {
	Interface string `yaml:"interface"`
	Port      int    `yaml:"port"`
}

// StorageConfig carries the server secret that content keys are derived
// from. The secret is overridden from CONSENT_STORAGE_SECRET and never
// persisted by the core.
type StorageConfig struct {
	Secret string `yaml:"secret"`
}

type VerificationConfig struct {
	GateTimeoutSeconds int `yaml:"gate_timeout_seconds"`
}

type AnomalyConfig struct {
	IntervalSeconds      int     `yaml:"interval_seconds"`
	WindowHours          int     `yaml:"window_hours"`
	FrequencyThreshold   int     `yaml:"frequency_threshold"`
	VolumeThreshold      int     `yaml:"volume_threshold"`
	DeniedRatioThreshold float64 `yaml:"denied_ratio_threshold"`
	NormalHoursStart     int     `yaml:"normal_hours_start"`
	NormalHoursEnd       int     `yaml:"normal_hours_end"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Interface: "localhost",
			Port:      1324,
		},
		Storage: StorageConfig{
			Secret: "development-only-secret",
		},
		Verification: VerificationConfig{
			GateTimeoutSeconds: 5,
		},
		Anomaly: AnomalyConfig{
			IntervalSeconds:      300,
			WindowHours:          24,
			FrequencyThreshold:   5,
			VolumeThreshold:      50,
			DeniedRatioThreshold: 0.5,
			NormalHoursStart:     6,
			NormalHoursEnd:       22,
		},
	}
}

// Load reads the YAML file at path (when non-empty) over the defaults and
// then applies environment overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, errors.Wrap(err, "config load")
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, errors.Wrap(err, "config unmarshal")
		}
	}
	applyEnvOverrides(&c)
	return c, nil
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("CONSENT_STORAGE_SECRET"); v != "" {
		c.Storage.Secret = v
	}
	if v := os.Getenv("CONSENT_SERVER_INTERFACE"); v != "" {
		c.Server.Interface = v
	}
	if v := os.Getenv("CONSENT_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("CONSENT_ANOMALY_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Anomaly.IntervalSeconds = n
		}
	}
}

// GateTimeout is the per-gate timeout for external verification calls.
func (c Config) GateTimeout() time.Duration {
	if c.Verification.GateTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Verification.GateTimeoutSeconds) * time.Second
}

// AnomalyInterval is the sweep interval.
func (c Config) AnomalyInterval() time.Duration {
	if c.Anomaly.IntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Anomaly.IntervalSeconds) * time.Second
}

// AnomalyWindow is the trailing window a sweep looks at.
func (c Config) AnomalyWindow() time.Duration {
	if c.Anomaly.WindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Anomaly.WindowHours) * time.Hour
}
