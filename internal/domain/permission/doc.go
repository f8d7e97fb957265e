// Package permission arbitrates security-sensitive requests from guest
// sessions against per-partition handlers.
//
// Handlers are sharded by storage partition. A partition with no registered
// handler denies every request. Handlers receive a one-shot responder and may
// answer synchronously or arbitrarily later; the broker never times a request
// out on its own.
package permission
