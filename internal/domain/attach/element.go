package attach

import (
	"sync"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/guest"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/id"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
)

// State is an element's position in the attachment state machine.
type State string

const (
	StateUnattached State = "unattached"
	StateAttaching  State = "attaching"
	StateAttached   State = "attached"
	StateDetaching  State = "detaching"
	StateDestroyed  State = "destroyed" // terminal
)

// Element is a host-side handle for one embedding slot. It never owns its
// guest session; it holds at most a binding that the coordinator maintains.
// All lifecycle mutations go through the coordinator's control loop.
type Element struct {
	id     id.ElementID
	coord  *Coordinator
	window *Window

	mu              sync.RWMutex
	state           State
	attrs           Attributes
	bound           guest.InstanceID
	inserted        bool
	visible         bool
	partitionLocked bool
	findSeq         int

	listenerMu   sync.RWMutex
	listeners    map[int]func(types.Event)
	nextListener int
}

func newElement(coord *Coordinator, window *Window, attrs Attributes) *Element {
	return &Element{
		id:        id.NewElementID(),
		coord:     coord,
		window:    window,
		state:     StateUnattached,
		attrs:     attrs,
		visible:   true,
		listeners: make(map[int]func(types.Event)),
	}
}

// ID returns the element's ID.
func (e *Element) ID() id.ElementID { return e.id }

// Window returns the host window the element lives in.
func (e *Element) Window() *Window { return e.window }

// State returns the element's current lifecycle state.
func (e *Element) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Attributes returns a copy of the element's attributes.
func (e *Element) Attributes() Attributes {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attrs
}

// BoundInstance returns the bound guest InstanceID, or 0 when unbound.
func (e *Element) BoundInstance() guest.InstanceID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bound
}

// Visible reports host-side visibility. Toggling visibility never touches
// the binding or the guest; it is pure host state.
func (e *Element) Visible() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.visible
}

// Show marks the element visible.
func (e *Element) Show() {
	e.mu.Lock()
	e.visible = true
	e.mu.Unlock()
}

// Hide marks the element hidden.
func (e *Element) Hide() {
	e.mu.Lock()
	e.visible = false
	e.mu.Unlock()
}

// Subscribe registers an event listener and returns its unsubscribe
// function. Listeners run on router goroutines and must not block.
func (e *Element) Subscribe(fn func(types.Event)) func() {
	e.listenerMu.Lock()
	e.nextListener++
	key := e.nextListener
	e.listeners[key] = fn
	e.listenerMu.Unlock()

	return func() {
		e.listenerMu.Lock()
		delete(e.listeners, key)
		e.listenerMu.Unlock()
	}
}

// OwnerID implements guest.Owner.
func (e *Element) OwnerID() string { return e.id.String() }

// Deliver implements guest.Owner: fan an event out to listeners.
func (e *Element) Deliver(ev types.Event) {
	e.listenerMu.RLock()
	fns := make([]func(types.Event), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// --- host lifecycle requests, delegated to the coordinator ---

// Insert marks the element inserted and attaches per its attributes.
func (e *Element) Insert() error { return e.coord.Attach(e) }

// Remove marks the element removed; its session is reaped on the next tick
// unless another element claims it first.
func (e *Element) Remove() { e.coord.Detach(e) }

// SetAttribute applies one attribute change by name. Attribute changes on a
// live element follow the lifecycle rules: setting guestinstance attaches or
// transfers, clearing it destroys, and partition is immutable after first
// attach (a late change is ignored).
func (e *Element) SetAttribute(name, value string) error {
	return e.coord.SetAttribute(e, name, value)
}

// --- content-scoped methods ---

// Reload reloads the current document.
func (e *Element) Reload() error { return e.coord.Reload(e) }

// Stop cancels any in-flight load.
func (e *Element) Stop() error { return e.coord.Stop(e) }

// GoBack navigates back in the session history.
func (e *Element) GoBack() error { return e.coord.GoBack(e) }

// GoForward navigates forward in the session history.
func (e *Element) GoForward() error { return e.coord.GoForward(e) }

// CanGoBack reports whether a back entry exists. False when unattached.
func (e *Element) CanGoBack() bool { return e.coord.CanGoBack(e) }

// CanGoForward reports whether a forward entry exists. False when unattached.
func (e *Element) CanGoForward() bool { return e.coord.CanGoForward(e) }

// ClearHistory drops the session's navigation history.
func (e *Element) ClearHistory() error { return e.coord.ClearHistory(e) }

// Navigate loads a URL, updating the src attribute.
func (e *Element) Navigate(url string) error { return e.coord.Navigate(e, url) }

// ExecuteJavaScript runs a script in the guest. The callback is optional.
func (e *Element) ExecuteJavaScript(script string, userGesture bool, done content.ScriptCallback) error {
	return e.coord.ExecuteJavaScript(e, script, userGesture, done)
}

// Send delivers an IPC message to the guest.
func (e *Element) Send(channel string, args ...interface{}) error {
	return e.coord.Send(e, channel, args)
}

// SendInputEvent injects a synthetic input event into the guest.
func (e *Element) SendInputEvent(ev types.InputEvent) error {
	return e.coord.SendInputEvent(e, ev)
}

// FindInPage starts a find request and returns its request ID.
func (e *Element) FindInPage(text string) (int, error) {
	return e.coord.FindInPage(e, text)
}

// StopFindInPage ends the active find request.
func (e *Element) StopFindInPage(action string) error {
	return e.coord.StopFindInPage(e, action)
}

// OpenDevTools opens devtools for the guest.
func (e *Element) OpenDevTools() error { return e.coord.OpenDevTools(e) }

// CloseDevTools closes devtools for the guest.
func (e *Element) CloseDevTools() error { return e.coord.CloseDevTools(e) }

// FocusDevTools focuses the guest's devtools window.
func (e *Element) FocusDevTools() error { return e.coord.FocusDevTools(e) }

// SetDevToolsTarget redirects this guest's devtools to inspect another
// element's guest.
func (e *Element) SetDevToolsTarget(other *Element) error {
	return e.coord.SetDevToolsTarget(e, other)
}

// ContentHandle returns the opaque content handle. Fails when unattached.
func (e *Element) ContentHandle() (content.Handle, error) {
	return e.coord.ContentHandle(e)
}

// ZoomLevel returns the session's zoom level. Fails when unattached.
func (e *Element) ZoomLevel() (float64, error) { return e.coord.ZoomLevel(e) }

// SetZoomLevel applies and persists a zoom level for the current origin.
func (e *Element) SetZoomLevel(level float64) error { return e.coord.SetZoomLevel(e, level) }

// NotifyResize reports a layout-box size change to the negotiator.
func (e *Element) NotifyResize(width, height int) { e.coord.ElementResized(e, width, height) }

// ResizeGuest resizes the guest viewport on explicit request.
func (e *Element) ResizeGuest(width, height int) error {
	return e.coord.ManualResize(e, width, height)
}

// --- internal state helpers; callers hold the control-loop lock ---

func (e *Element) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Element) setBinding(instance guest.InstanceID) {
	e.mu.Lock()
	e.bound = instance
	e.attrs.GuestInstance = instance
	if instance != 0 {
		e.partitionLocked = true
	}
	e.mu.Unlock()
}

func (e *Element) nextFindRequest() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.findSeq++
	return e.findSeq
}
