// Package types defines the value types shared across the host control plane:
// guest event records, preference snapshots, input events, and viewport sizes.
//
// Everything in this package is a plain value. Entities with identity and
// lifecycle (sessions, elements) live in the domain packages.
package types
