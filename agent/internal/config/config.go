package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/threadwork/pkg/logging"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultThrottlingMethod      = "simulate"
	DefaultCPUSlowdownMultiplier = 4.0
	DefaultGatherMode            = "navigation"
	DefaultP10Ms                 = 2017.0
	DefaultMedianMs              = 4000.0
	DefaultLongTaskThresholdMs   = 50.0
	DefaultShipInterval          = 15 * time.Second
	DefaultShipTimeout           = 10 * time.Second
	DefaultBufferSize            = 100
	DefaultConcurrency           = 4
	DefaultRegressionTolerance   = 0.10
)

// Config is the top-level agent configuration.
// Fields map 1:1 to agent.example.yaml.
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	LongTasks LongTasksConfig `yaml:"long_tasks"`
	Runner    RunnerConfig    `yaml:"runner"`
	Watch     WatchConfig     `yaml:"watch"`
	Ship      ShipConfig      `yaml:"ship"`
	Log       logging.Config  `yaml:"log"`
}

// Settings describe how the artifacts were captured.
type Settings struct {
	// ThrottlingMethod is one of: devtools | simulate | provided.
	ThrottlingMethod string `yaml:"throttling_method"`

	Throttling Throttling `yaml:"throttling"`

	// GatherMode is one of: navigation | timespan | snapshot. An artifacts
	// bundle that records its own gather mode overrides this.
	GatherMode string `yaml:"gather_mode"`
}

// Throttling holds the simulated device parameters.
type Throttling struct {
	// CPUSlowdownMultiplier scales measured main-thread work under simulate.
	CPUSlowdownMultiplier float64 `yaml:"cpu_slowdown_multiplier"`
}

// ScoringConfig holds the log-normal control points in milliseconds.
type ScoringConfig struct {
	P10Ms    float64 `yaml:"p10_ms"`
	MedianMs float64 `yaml:"median_ms"`
}

// LongTasksConfig configures the long-tasks audit.
type LongTasksConfig struct {
	ThresholdMs float64 `yaml:"threshold_ms"`
}

// RunnerConfig bounds audit concurrency.
type RunnerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// WatchConfig configures `threadwork-agent watch`.
type WatchConfig struct {
	// Dir is scanned for artifact bundles (one sub-directory per run).
	Dir string `yaml:"dir"`

	// RegressionTolerance is the fractional growth over a page's baseline
	// total that is logged as a regression.
	RegressionTolerance float64 `yaml:"regression_tolerance"`
}

// ShipConfig configures delivery of reports to threadwork-server.
type ShipConfig struct {
	// ServerEndpoint is the base URL of threadwork-server. Empty disables shipping.
	ServerEndpoint string `yaml:"server_endpoint"`

	// Interval controls how often buffered reports are flushed.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds one delivery attempt.
	Timeout time.Duration `yaml:"timeout"`

	// BufferSize is the maximum number of reports held in memory while the
	// server is unreachable. The oldest report is dropped when full.
	BufferSize int `yaml:"buffer_size"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig specifies how the agent authenticates to the server.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Settings: Settings{
			ThrottlingMethod: DefaultThrottlingMethod,
			Throttling:       Throttling{CPUSlowdownMultiplier: DefaultCPUSlowdownMultiplier},
			GatherMode:       DefaultGatherMode,
		},
		Scoring: ScoringConfig{
			P10Ms:    DefaultP10Ms,
			MedianMs: DefaultMedianMs,
		},
		LongTasks: LongTasksConfig{ThresholdMs: DefaultLongTaskThresholdMs},
		Runner:    RunnerConfig{Concurrency: DefaultConcurrency},
		Watch:     WatchConfig{RegressionTolerance: DefaultRegressionTolerance},
		Ship: ShipConfig{
			Interval:   DefaultShipInterval,
			Timeout:    DefaultShipTimeout,
			BufferSize: DefaultBufferSize,
			Auth:       AuthConfig{Header: "X-API-Key"},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	switch cfg.Settings.ThrottlingMethod {
	case "devtools", "simulate", "provided":
	default:
		return fmt.Errorf("settings.throttling_method: unknown method %q", cfg.Settings.ThrottlingMethod)
	}
	if cfg.Settings.Throttling.CPUSlowdownMultiplier < 1 {
		return fmt.Errorf("settings.throttling.cpu_slowdown_multiplier must be >= 1")
	}
	switch cfg.Settings.GatherMode {
	case "navigation", "timespan", "snapshot":
	default:
		return fmt.Errorf("settings.gather_mode: unknown mode %q", cfg.Settings.GatherMode)
	}
	if cfg.Scoring.P10Ms <= 0 || cfg.Scoring.MedianMs <= 0 {
		return fmt.Errorf("scoring: p10_ms and median_ms must be positive")
	}
	if cfg.Scoring.P10Ms >= cfg.Scoring.MedianMs {
		return fmt.Errorf("scoring: p10_ms must be below median_ms")
	}
	if cfg.LongTasks.ThresholdMs <= 0 {
		return fmt.Errorf("long_tasks.threshold_ms must be positive")
	}
	if cfg.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be positive")
	}
	if cfg.Ship.Interval <= 0 {
		return fmt.Errorf("ship.interval must be positive")
	}
	if cfg.Ship.Timeout <= 0 {
		return fmt.Errorf("ship.timeout must be positive")
	}
	if cfg.Ship.BufferSize <= 0 {
		return fmt.Errorf("ship.buffer_size must be positive")
	}
	switch cfg.Ship.Auth.Mode {
	case "apikey":
		if cfg.Ship.Auth.Header == "" {
			return fmt.Errorf("ship.auth.header is required for apikey mode")
		}
	case "none", "":
	default:
		return fmt.Errorf("ship.auth: unknown mode %q", cfg.Ship.Auth.Mode)
	}
	return cfg.Log.Validate()
}
