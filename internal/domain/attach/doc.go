// Package attach orchestrates the guest-session lifecycle: binding sessions
// to embedding elements, moving live sessions between elements, and reaping
// sessions nothing claims.
//
// All mutations run as atomic steps of a single serialized control loop (one
// mutex inside the Coordinator). An element observes the state machine
// Unattached -> Attaching -> Attached -> Detaching -> Destroyed; ownership
// transfer preserves the session's content handle, navigation history, and
// zoom level, so the move never reloads the guest.
//
// Lifecycle is driven by explicit create/attach/detach/destroy calls rather
// than by any particular UI-tree representation; the host decides when an
// element counts as inserted.
package attach
