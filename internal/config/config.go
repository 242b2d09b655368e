// Package config loads the operational configuration surface: store
// addressing, classifier thresholds and timeouts, memory bounds, the
// sandbox budget, and the feature flag that disables the model-based router
// in favor of the deterministic fallback.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
	DataDir    string `yaml:"data_dir"`

	Redis      RedisConfig      `yaml:"redis"`
	Model      ModelConfig      `yaml:"model"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Memory     MemoryConfig     `yaml:"memory"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
}

// RedisConfig addresses the shared state store. An empty Addr selects the
// in-process store, which is valid only for single-worker/dev use.
type RedisConfig struct {
	Addr   string        `yaml:"addr"`
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
}

// ModelConfig controls the probabilistic router.
type ModelConfig struct {
	// Enabled is the operational safety valve: false routes every message
	// through the deterministic keyword fallback only.
	Enabled bool          `yaml:"enabled"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
}

// ThresholdsConfig holds the resolver confidence cut-offs.
type ThresholdsConfig struct {
	Accept  float64 `yaml:"accept"`
	Clarify float64 `yaml:"clarify"`
}

// MemoryConfig bounds the conversation memory.
type MemoryConfig struct {
	Window       int `yaml:"window"`
	SummaryEvery int `yaml:"summary_every"`
}

// SandboxConfig bounds sandboxed executions.
type SandboxConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Interpreter string        `yaml:"interpreter"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		DataDir:    ".concierge/data",
		Redis: RedisConfig{
			Prefix: "concierge:",
		},
		Model: ModelConfig{
			Enabled: true,
			Name:    "gemini-2.5-flash",
			Timeout: 4 * time.Second,
		},
		Thresholds: ThresholdsConfig{
			Accept:  0.7,
			Clarify: 0.4,
		},
		Memory: MemoryConfig{
			Window:       12,
			SummaryEvery: 8,
		},
		Sandbox: SandboxConfig{
			Timeout:     30 * time.Second,
			Interpreter: "python3",
		},
	}
}

// Load reads the config file if present, then applies environment
// overrides. A missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects threshold configurations the resolver cannot honor.
func (c Config) Validate() error {
	if c.Thresholds.Clarify < 0 || c.Thresholds.Accept > 1 ||
		c.Thresholds.Clarify >= c.Thresholds.Accept {
		return fmt.Errorf("invalid thresholds: clarify=%g accept=%g",
			c.Thresholds.Clarify, c.Thresholds.Accept)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox timeout must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CONCIERGE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CONCIERGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CONCIERGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CONCIERGE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CONCIERGE_REDIS_PREFIX"); v != "" {
		cfg.Redis.Prefix = v
	}
	if v := os.Getenv("CONCIERGE_MODEL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Model.Enabled = b
		}
	}
	if v := os.Getenv("CONCIERGE_MODEL_NAME"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("CONCIERGE_SANDBOX_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sandbox.Timeout = d
		}
	}
}
