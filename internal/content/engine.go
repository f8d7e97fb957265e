package content

import (
	"context"

	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
)

// Engine creates isolated guest content contexts. One engine instance serves
// one host; contexts in distinct partitions never share storage.
type Engine interface {
	// Create spins up a new content context in the given storage partition
	// with an immutable preference snapshot. The returned handle is live
	// immediately; no navigation has happened yet.
	Create(ctx context.Context, partition string, prefs types.Preferences) (Handle, error)

	// Close releases engine-wide resources. Handles created by the engine
	// must be closed individually before this is called.
	Close() error
}

// ScriptCallback receives the result of an ExecuteScript call. Exactly one of
// result and err is meaningful.
type ScriptCallback func(result interface{}, err error)

// ResizeCallback receives the viewport size the guest actually applied.
type ResizeCallback func(width, height int)

// Handle is the opaque per-session content handle. All commands are
// asynchronous: they return immediately and report completion through the
// event stream or the supplied callback. A handle is not safe for concurrent
// command issue from multiple goroutines; the control loop serializes access.
type Handle interface {
	// ID returns the engine-scoped identity token of this content context.
	// It is stable for the lifetime of the context and is the value the
	// host observes through getContentHandle.
	ID() string

	// Navigate loads a document. An empty referrer falls back to the
	// session's configured httpreferrer.
	Navigate(url, referrer string)

	// Stop cancels the in-flight load, if any.
	Stop()

	// Resize applies a new viewport size and reports the applied size.
	Resize(width, height int, applied ResizeCallback)

	// SetZoomFactor applies a zoom factor to the current document.
	SetZoomFactor(factor float64)

	// ExecuteScript runs a script in the guest context. The callback may be
	// invoked from an engine goroutine.
	ExecuteScript(script string, userGesture bool, done ScriptCallback)

	// DeliverMessage delivers a host IPC message to the guest.
	DeliverMessage(channel string, args []interface{})

	// SendInputEvent injects a synthetic input event.
	SendInputEvent(ev types.InputEvent)

	// FindInPage starts a find request over the current document text.
	FindInPage(requestID int, text string)

	// StopFindInPage ends the active find request. Action is one of
	// clearSelection, keepSelection, activateSelection.
	StopFindInPage(action string)

	OpenDevTools()
	CloseDevTools()
	FocusDevTools()

	// SetDevToolsTarget redirects this context's devtools to inspect the
	// given other context.
	SetDevToolsTarget(other Handle)

	// Events returns the handle's event stream. The channel is closed when
	// the handle is closed. Events are emitted in occurrence order.
	Events() <-chan types.Event

	// Close tears the content context down and closes the event stream.
	Close()
}
