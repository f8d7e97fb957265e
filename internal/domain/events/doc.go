// Package events routes guest event streams to owning elements.
//
// The router subscribes exactly once per session and forwards each event to
// whatever element owns the session at delivery time. Events arriving while
// the session is unowned (mid-transfer or detached) are dropped, not queued;
// session-side bookkeeping (history, zoom) is still updated for them.
package events
