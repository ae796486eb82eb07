// Package config handles configuration loading for chathub.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) with
// environment variable expansion. A .env file in the same directory is loaded
// first; variables already present in the environment win.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	service:
//	  user_token: "${BING_USER_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	chat:
//	  timeout: "120s"
//	  handshake_timeout: "10s"
//	  keepalive_interval: "15s"
//
// # Configuration Sections
//
// Service endpoints and identity:
//
//	service:
//	  host: "https://www.bing.com"
//	  socket_url: "wss://sydney.bing.com/sydney/ChatHub"
//	  user_token: "${BING_USER_TOKEN}"
//	  cookies: ""               # raw cookie header, overrides user_token
//	  proxy: ""                 # http(s) forward proxy for both legs
//	  bootstrap_timeout: "30s"
//
// Conversation cache:
//
//	cache:
//	  backend: "sqlite"         # memory, sqlite, bolt, pebble
//	  path: "./chathub.db"
//	  namespace: "bing"
//	  ttl: "24h"                # memory only
//	  max_entries: 1000         # memory only
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: false
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
//
// # Usage
//
//	cfg, err := config.Load("chathub.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
