// Package config handles configuration loading for research-flow.
//
// # Configuration File
//
// The file is chosen in this order:
//
//  1. The --config flag
//  2. Path from the RESEARCH_FLOW_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/research-flow/config.yaml (or ~/.config/...)
//
// With none present the built-in defaults apply. Files ending in .toml are
// read as TOML, anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	server:
//	  api_base_url: "${RESEARCH_API_URL}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	transport:
//	  heartbeat_interval: "25s"
//	  reconnect_delay: "2s"
//	workflow:
//	  approve_delay: "1s"
//	  reject_delay: "2s"
//
// # Derived Values
//
// server.ws_url defaults to the API base URL with a ws(s) scheme and the
// /api/ws/progress path. report.fallback_url defaults to
// <api_base_url>/output/synthesis_report.md.
package config
