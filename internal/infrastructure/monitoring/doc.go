// Package monitoring provides Prometheus metrics for the host control plane.
//
// Metrics cover the session lifecycle (created/destroyed/active), attachment
// activity (attaches, transfers, eviction conflicts), event routing
// (forwarded vs dropped), permission decisions per kind, resize negotiation,
// websocket fan-out, and the HTTP API via gin middleware.
package monitoring
