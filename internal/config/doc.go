// Package config handles configuration loading for chat-relay.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; every field may be
// omitted, so an empty file is a valid configuration.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHAT_RELAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/chat-relay/config.yaml
//  3. ~/.config/chat-relay/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  url: "${CHAT_BACKEND_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	terminal:
//	  cache_ttl: "5m"
//	relay:
//	  typing_delay: "500ms"
//	  respond_delay: "2.5s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # REST API and WebSocket endpoint
//
// Database:
//
//	database:
//	  path: "/var/lib/chat-relay/relay.db"  # ":memory:" for ephemeral storage
//
// Response-generation service:
//
//	backend:
//	  url: "http://localhost:3001"
//	  chat_timeout: "10s"
//
// Terminal metadata API:
//
//	terminal:
//	  api_url: "https://api.filazero.net"
//	  cache_ttl: "5m"
//
// Agent reply timing:
//
//	relay:
//	  typing_delay: "500ms"
//	  respond_delay: "2.5s"
//
// Fallback responder:
//
//	responder:
//	  rules_path: "/etc/chat-relay/rules.toml"  # empty uses built-in rules
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
