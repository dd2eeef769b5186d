package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/threadwork/pkg/logging"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one budget condition evaluated against every report.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "score < 0.5", "total_ms > 4000",
	// "category.scriptEvaluation > 1500", "runtime_error == PAGE_HUNG".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultSnapshotTTL    = time.Hour
	DefaultStorageBackend = "memory"
	DefaultStoragePath    = "threadwork.db"
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultStreamInterval = 5 * time.Second
	DefaultAuthHeader     = "X-API-Key"
)

// Config holds the server configuration. An `agent` section in the same file
// is ignored.
type Config struct {
	Server ServerConfig   `yaml:"server"`
	Log    logging.Config `yaml:"log"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port every HTTP endpoint listens on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates report uploads.
	Auth AuthConfig `yaml:"auth"`

	// Snapshot controls in-memory report retention.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Storage controls report history persistence.
	Storage StorageConfig `yaml:"storage"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`

	// Stream controls the WebSocket broadcast.
	Stream StreamConfig `yaml:"stream"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from.
	// Defaults to "X-API-Key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or DefaultAuthHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// SnapshotConfig controls in-memory report retention.
type SnapshotConfig struct {
	// TTL is how long a page's latest report remains live after it arrived.
	// Default: 1h.
	TTL time.Duration `yaml:"ttl"`
}

// StorageConfig controls where report history is persisted.
type StorageConfig struct {
	// Backend is one of: sqlite | memory.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Used when Backend == "sqlite".
	Path string `yaml:"path"`

	// Retention is how long history rows are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

// StreamConfig controls the WebSocket snapshot broadcast.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Snapshot: SnapshotConfig{TTL: DefaultSnapshotTTL},
			Storage: StorageConfig{
				Backend:   DefaultStorageBackend,
				Path:      DefaultStoragePath,
				Retention: DefaultRetention,
			},
			Stream: StreamConfig{Interval: DefaultStreamInterval},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey":
		if s.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required when mode is apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Snapshot.TTL < 0 {
		return fmt.Errorf("server.snapshot.ttl must not be negative")
	}
	switch s.Storage.Backend {
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the sqlite backend")
		}
	case "memory":
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want sqlite|memory", s.Storage.Backend)
	}
	if s.Storage.Retention < 0 {
		return fmt.Errorf("server.storage.retention must not be negative")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name and condition are required", i)
		}
	}
	return cfg.Log.Validate()
}
