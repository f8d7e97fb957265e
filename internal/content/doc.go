// Package content defines the contract between the control plane and the
// guest content engine.
//
// The engine renders and scripts guest documents in its own execution
// contexts. The control plane never calls into guest internals directly: it
// holds an opaque Handle per session, issues non-blocking commands on it, and
// consumes the handle's asynchronous event stream. Handles survive ownership
// transfers between embedding elements untouched, which is what makes a
// transfer reload-free.
package content
