// ABOUTME: Configuration loading and parsing for research-flow
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding a config file path.
const EnvConfigPath = "RESEARCH_FLOW_CONFIG"

// Config represents the complete research-flow configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Workflow  WorkflowConfig  `yaml:"workflow" toml:"workflow"`
	Report    ReportConfig    `yaml:"report" toml:"report"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the research backend's addresses
type ServerConfig struct {
	APIBaseURL string `yaml:"api_base_url" toml:"api_base_url"`
	// WSURL defaults to the API base URL with a ws scheme and /api/ws/progress
	WSURL string `yaml:"ws_url" toml:"ws_url"`
}

// TransportConfig holds progress stream timing
type TransportConfig struct {
	HeartbeatInterval    time.Duration `yaml:"-" toml:"-"`
	ReconnectDelay       time.Duration `yaml:"-" toml:"-"`
	DialTimeout          time.Duration `yaml:"-" toml:"-"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"`

	// Raw string values for unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	ReconnectDelayRaw    string `yaml:"reconnect_delay" toml:"reconnect_delay"`
	DialTimeoutRaw       string `yaml:"dial_timeout" toml:"dial_timeout"`
}

// WorkflowConfig holds the stage hand-off delays and the iteration cap
type WorkflowConfig struct {
	ApproveDelay  time.Duration `yaml:"-" toml:"-"`
	RejectDelay   time.Duration `yaml:"-" toml:"-"`
	MaxIterations int           `yaml:"max_iterations" toml:"max_iterations"`

	ApproveDelayRaw string `yaml:"approve_delay" toml:"approve_delay"`
	RejectDelayRaw  string `yaml:"reject_delay" toml:"reject_delay"`
}

// ReportConfig holds where the final report comes from and goes to
type ReportConfig struct {
	// FallbackURL is read when the terminal event carries no report.
	// Defaults to <api_base_url>/output/synthesis_report.md
	FallbackURL string        `yaml:"fallback_url" toml:"fallback_url"`
	Timeout     time.Duration `yaml:"-" toml:"-"`
	OutputDir   string        `yaml:"output_dir" toml:"output_dir"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			APIBaseURL: "http://localhost:8000",
		},
		Transport: TransportConfig{
			HeartbeatInterval:    25 * time.Second,
			ReconnectDelay:       2 * time.Second,
			DialTimeout:          10 * time.Second,
			MaxReconnectAttempts: 5,
		},
		Workflow: WorkflowConfig{
			ApproveDelay:  time.Second,
			RejectDelay:   2 * time.Second,
			MaxIterations: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
			Path: "/metrics",
		},
	}
}

// Resolve picks the config file path: the flag value, then
// RESEARCH_FLOW_CONFIG, then the XDG default. An empty result means no file
// exists and defaults apply.
func Resolve(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if p := DefaultPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultPath returns $XDG_CONFIG_HOME/research-flow/config.yaml, falling back
// to ~/.config.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "research-flow", "config.yaml")
}

// LoadOrDefault loads path, or returns validated defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.fillDerived()
		return cfg, cfg.Validate()
	}
	return Load(path)
}

// Refresh re-derives the progress and fallback URLs that are empty and
// validates cfg. Used after flags override loaded values.
func Refresh(cfg *Config) error {
	cfg.fillDerived()
	return cfg.Validate()
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// fillDerived derives the progress and fallback URLs from the API base URL
// when they are not set explicitly.
func (c *Config) fillDerived() {
	base := strings.TrimRight(c.Server.APIBaseURL, "/")
	if base == "" {
		return
	}
	if c.Server.WSURL == "" {
		if u, err := url.Parse(base); err == nil {
			switch u.Scheme {
			case "https":
				u.Scheme = "wss"
			default:
				u.Scheme = "ws"
			}
			u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/progress"
			c.Server.WSURL = u.String()
		}
	}
	if c.Report.FallbackURL == "" {
		c.Report.FallbackURL = base + "/output/synthesis_report.md"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.APIBaseURL == "" {
		return errors.New("server.api_base_url is required")
	}
	u, err := url.Parse(c.Server.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.api_base_url must be an http(s) URL, got %q", c.Server.APIBaseURL)
	}
	if c.Server.WSURL != "" {
		u, err := url.Parse(c.Server.WSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("server.ws_url must be a ws(s) URL, got %q", c.Server.WSURL)
		}
	}

	if c.Transport.HeartbeatInterval <= 0 {
		return errors.New("transport.heartbeat_interval must be positive")
	}
	if c.Transport.ReconnectDelay < 0 {
		return errors.New("transport.reconnect_delay must not be negative")
	}
	if c.Transport.MaxReconnectAttempts < 0 {
		return errors.New("transport.max_reconnect_attempts must not be negative")
	}

	if c.Workflow.ApproveDelay < 0 || c.Workflow.RejectDelay < 0 {
		return errors.New("workflow delays must not be negative")
	}
	if c.Workflow.MaxIterations < 1 {
		return errors.New("workflow.max_iterations must be at least 1")
	}

	if c.Report.Timeout < 0 {
		return errors.New("report.timeout must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"transport.heartbeat_interval", cfg.Transport.HeartbeatIntervalRaw, &cfg.Transport.HeartbeatInterval},
		{"transport.reconnect_delay", cfg.Transport.ReconnectDelayRaw, &cfg.Transport.ReconnectDelay},
		{"transport.dial_timeout", cfg.Transport.DialTimeoutRaw, &cfg.Transport.DialTimeout},
		{"workflow.approve_delay", cfg.Workflow.ApproveDelayRaw, &cfg.Workflow.ApproveDelay},
		{"workflow.reject_delay", cfg.Workflow.RejectDelayRaw, &cfg.Workflow.RejectDelay},
		{"report.timeout", cfg.Report.TimeoutRaw, &cfg.Report.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
