// Package main is the entry point for the EmbedOS host server.
//
// The host manages embedded guest browsing sessions for embedder UIs: it
// owns session lifecycle, attachment and ownership transfer between
// embedding elements, zoom persistence, resize negotiation, and permission
// arbitration. Embedders drive it over REST and receive guest events over
// WebSocket.
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional TOML config file (-config), which wins over the environment
//   - Optional YAML permission profiles (-profiles)
//   - CLI flags for common overrides
//
// Usage:
//
//	# Production mode
//	./server -port 8800
//
//	# With a config file and permission profiles
//	./server -config host.toml -profiles permissions.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
