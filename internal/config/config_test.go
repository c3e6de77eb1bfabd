// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  api_base_url: "http://research.local:8000"

transport:
  heartbeat_interval: "10s"
  reconnect_delay: "500ms"
  max_reconnect_attempts: 7
  dial_timeout: "3s"

workflow:
  approve_delay: "250ms"
  reject_delay: "1s"
  max_iterations: 4

report:
  timeout: "2m"
  output_dir: "./reports"

logging:
  level: "debug"
  format: "json"
  file: "/tmp/research-flow.log"

metrics:
  enabled: true
  addr: ":9100"
  path: "/prom"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://research.local:8000", cfg.Server.APIBaseURL)
	assert.Equal(t, "ws://research.local:8000/api/ws/progress", cfg.Server.WSURL)
	assert.Equal(t, "http://research.local:8000/output/synthesis_report.md", cfg.Report.FallbackURL)

	assert.Equal(t, 10*time.Second, cfg.Transport.HeartbeatInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.ReconnectDelay)
	assert.Equal(t, 7, cfg.Transport.MaxReconnectAttempts)
	assert.Equal(t, 3*time.Second, cfg.Transport.DialTimeout)

	assert.Equal(t, 250*time.Millisecond, cfg.Workflow.ApproveDelay)
	assert.Equal(t, time.Second, cfg.Workflow.RejectDelay)
	assert.Equal(t, 4, cfg.Workflow.MaxIterations)

	assert.Equal(t, 2*time.Minute, cfg.Report.Timeout)
	assert.Equal(t, "./reports", cfg.Report.OutputDir)

	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json", File: "/tmp/research-flow.log"}, cfg.Logging)
	assert.Equal(t, MetricsConfig{Enabled: true, Addr: ":9100", Path: "/prom"}, cfg.Metrics)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
api_base_url = "https://research.example.com"

[workflow]
approve_delay = "0s"
max_iterations = 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://research.example.com/api/ws/progress", cfg.Server.WSURL)
	assert.Equal(t, time.Duration(0), cfg.Workflow.ApproveDelay)
	assert.Equal(t, 2*time.Second, cfg.Workflow.RejectDelay, "unset values keep defaults")
	assert.Equal(t, 2, cfg.Workflow.MaxIterations)
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", "logging:\n  level: warn\n"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Transport.HeartbeatInterval, cfg.Transport.HeartbeatInterval)
	assert.Equal(t, def.Workflow, cfg.Workflow)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "ws://localhost:8000/api/ws/progress", cfg.Server.WSURL)
}

func TestLoad_ExplicitURLsAreKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", `
server:
  api_base_url: "http://api:8000"
  ws_url: "ws://progress:9000/stream"
report:
  fallback_url: "http://files/report.md"
`))
	require.NoError(t, err)

	assert.Equal(t, "ws://progress:9000/stream", cfg.Server.WSURL)
	assert.Equal(t, "http://files/report.md", cfg.Report.FallbackURL)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("RESEARCH_API", "http://from-env:8000")
	t.Setenv("RESEARCH_LOG_LEVEL", "error")

	cfg, err := Load(writeConfig(t, "config.yaml", `
server:
  api_base_url: "${RESEARCH_API}"
logging:
  level: "${RESEARCH_LOG_LEVEL}"
  file: "${RESEARCH_UNSET_VAR}"
`))
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:8000", cfg.Server.APIBaseURL)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.File)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"bad yaml", "c.yaml", "server: [", "parsing config file"},
		{"bad toml", "c.toml", "[server\n", "parsing config file"},
		{"bad duration", "c.yaml", "transport:\n  heartbeat_interval: soon\n", "transport.heartbeat_interval"},
		{"bad api url", "c.yaml", "server:\n  api_base_url: ftp://x\n", "server.api_base_url"},
		{"bad ws url", "c.yaml", "server:\n  ws_url: http://x\n", "server.ws_url"},
		{"zero heartbeat", "c.yaml", "transport:\n  heartbeat_interval: 0s\n", "heartbeat_interval must be positive"},
		{"negative delay", "c.yaml", "workflow:\n  reject_delay: -1s\n", "workflow delays"},
		{"zero iterations", "c.yaml", "workflow:\n  max_iterations: 0\n", "max_iterations"},
		{"bad level", "c.yaml", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "c.yaml", "logging:\n  format: xml\n", "logging.format"},
		{"metrics without addr", "c.yaml", "metrics:\n  enabled: true\n  addr: \"\"\n", "metrics.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOrDefault_EmptyPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/api/ws/progress", cfg.Server.WSURL)
	assert.Equal(t, 3, cfg.Workflow.MaxIterations)
}

func TestResolve_Priority(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv(EnvConfigPath, "")

	assert.Empty(t, Resolve(""), "no file anywhere")

	defaultPath := filepath.Join(xdg, "research-flow", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(defaultPath), 0755))
	require.NoError(t, os.WriteFile(defaultPath, []byte("{}"), 0644))
	assert.Equal(t, defaultPath, Resolve(""))

	t.Setenv(EnvConfigPath, "/etc/research-flow.yaml")
	assert.Equal(t, "/etc/research-flow.yaml", Resolve(""))

	assert.Equal(t, "./flag.yaml", Resolve("./flag.yaml"))
}

func TestRefresh_RederivesAfterOverride(t *testing.T) {
	cfg := Default()
	require.NoError(t, Refresh(cfg))
	require.Equal(t, "ws://localhost:8000/api/ws/progress", cfg.Server.WSURL)

	cfg.Server.APIBaseURL = "https://lab.example.com/"
	cfg.Server.WSURL = ""
	cfg.Report.FallbackURL = ""
	require.NoError(t, Refresh(cfg))

	assert.Equal(t, "wss://lab.example.com/api/ws/progress", cfg.Server.WSURL)
	assert.Equal(t, "https://lab.example.com/output/synthesis_report.md", cfg.Report.FallbackURL)

	cfg.Server.APIBaseURL = "not a url"
	assert.Error(t, Refresh(cfg))
}
