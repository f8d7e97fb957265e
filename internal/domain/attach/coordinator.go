package attach

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/events"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/guest"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/resize"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/zoom"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/id"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
	"go.uber.org/zap"
)

// Coordinator drives attach, detach, and ownership transfer. One mutex
// serializes every mutation: each public operation is a single atomic step
// of the control loop, so an in-flight attach can never observe a session
// mid-transfer.
type Coordinator struct {
	mu sync.Mutex

	registry   *guest.Registry
	router     *events.Router
	zoom       *zoom.Coordinator
	negotiator *resize.Negotiator

	elements map[id.ElementID]*Element
	windows  map[id.WindowID]*Window
	tick     uint64

	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewCoordinator wires the control plane together.
func NewCoordinator(registry *guest.Registry, router *events.Router, zoomCoord *zoom.Coordinator, negotiator *resize.Negotiator, log *logging.Logger) *Coordinator {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Coordinator{
		registry:   registry,
		router:     router,
		zoom:       zoomCoord,
		negotiator: negotiator,
		elements:   make(map[id.ElementID]*Element),
		windows:    make(map[id.WindowID]*Window),
		log:        log.Named("attach"),
	}
}

// WithMetrics adds metrics tracking to the coordinator.
func (c *Coordinator) WithMetrics(m *monitoring.Metrics) *Coordinator {
	c.metrics = m
	return c
}

// Registry returns the backing instance registry.
func (c *Coordinator) Registry() *guest.Registry { return c.registry }

// CreateWindow registers a host window with the given zoom factor.
func (c *Coordinator) CreateWindow(zoomFactor float64) *Window {
	w := NewWindow(zoomFactor)
	c.mu.Lock()
	c.windows[w.ID()] = w
	c.mu.Unlock()
	return w
}

// Window looks a window up by ID.
func (c *Coordinator) Window(wid id.WindowID) (*Window, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[wid]
	return w, ok
}

// CreateElement creates an embedding element in the given window. The
// element starts Unattached; call Insert (or Attach) to bind a guest.
func (c *Coordinator) CreateElement(window *Window, attrs Attributes) *Element {
	el := newElement(c, window, attrs)
	c.mu.Lock()
	c.elements[el.ID()] = el
	c.mu.Unlock()
	return el
}

// Element looks an element up by ID.
func (c *Coordinator) Element(eid id.ElementID) (*Element, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elements[eid]
	return el, ok
}

// Elements returns all known elements.
func (c *Coordinator) Elements() []*Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Element, 0, len(c.elements))
	for _, el := range c.elements {
		out = append(out, el)
	}
	return out
}

// Attach binds the element per its attributes: a set guestinstance requests
// a transfer of that session, otherwise a fresh session is created. Setting
// guestinstance to an id with no live session is an ignored no-op.
func (c *Coordinator) Attach(el *Element) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachLocked(el)
}

func (c *Coordinator) attachLocked(el *Element) error {
	if el.State() == StateDestroyed {
		return ErrElementDestroyed
	}

	el.mu.Lock()
	el.inserted = true
	target := el.attrs.GuestInstance
	bound := el.bound
	el.mu.Unlock()

	if bound != 0 && (target == 0 || target == bound) {
		// Re-insert of a still-bound element (e.g. after hide/show): the
		// binding and content handle stay untouched.
		if sess, ok := c.registry.Get(bound); ok && sess.Alive() && ownedBy(sess, el) {
			el.setState(StateAttached)
			return nil
		}
	}

	if target != 0 {
		sess, ok := c.registry.Get(target)
		if !ok || !sess.Alive() {
			c.log.Warn("ignoring attach to unknown guest instance",
				zap.Int64("instance", int64(target)),
				zap.String("element", el.ID().String()))
			return nil
		}
		c.releaseBindingLocked(el)
		el.setState(StateAttaching)
		c.transferLocked(sess, el)
		return nil
	}

	el.setState(StateAttaching)
	attrs := el.Attributes()
	sess, err := c.registry.Create(context.Background(), attrs.Partition, attrs.Preferences())
	if err != nil {
		el.setState(StateUnattached)
		return fmt.Errorf("attach %s: %w", el.ID(), err)
	}
	c.router.Bind(sess)

	if !sess.BindOwner(nil, el) {
		// A fresh session with an owner means registry state is corrupt.
		panic(fmt.Sprintf("attach: double-bind of freshly created session %d", sess.ID()))
	}
	c.bindLocked(sess, el, true)
	return nil
}

// transferLocked moves session ownership to target, evicting the current
// owner if any. The session's content handle, history, and zoom level are
// untouched; no reload is issued.
func (c *Coordinator) transferLocked(sess *guest.Session, target *Element) {
	if prev := sess.Owner(); prev != nil {
		if prev.OwnerID() == target.OwnerID() {
			target.setState(StateAttached)
			return
		}
		loser := prev.(*Element)
		loser.setBinding(0)
		loser.setState(StateUnattached)
		sess.ClearOwner(c.tick)
		loser.Deliver(types.NewEvent(types.EventDestroyed, nil))
		if c.metrics != nil {
			c.metrics.TransferConflicts.Inc()
		}
		c.log.Info("evicted element during transfer",
			zap.Int64("instance", int64(sess.ID())),
			zap.String("loser", loser.ID().String()),
			zap.String("winner", target.ID().String()))
	}

	if !sess.BindOwner(nil, target) {
		panic(fmt.Sprintf("attach: session %d rebound outside the control loop", sess.ID()))
	}
	c.bindLocked(sess, target, false)
	if c.metrics != nil {
		c.metrics.Transfers.Inc()
	}
}

// bindLocked performs the common bind tail. For a fresh session it derives
// the initial zoom level and issues the first navigation.
func (c *Coordinator) bindLocked(sess *guest.Session, el *Element, fresh bool) {
	sess.SetParentZoomFactor(el.window.ZoomFactor())
	el.setBinding(sess.ID())
	el.setState(StateAttached)

	attrs := el.Attributes()
	if fresh {
		level := c.zoom.InitialLevel(zoom.OriginOf(attrs.Src), sess.Partition(), el.window.ZoomFactor())
		sess.SetZoomLevel(level)
		sess.Handle().SetZoomFactor(zoom.LevelToFactor(level))
	}

	el.Deliver(types.NewEvent(types.EventDidAttach, map[string]interface{}{
		"guestInstanceId": int64(sess.ID()),
	}))
	if c.metrics != nil {
		c.metrics.Attaches.Inc()
	}
	c.log.Info("element attached",
		zap.String("element", el.ID().String()),
		zap.Int64("instance", int64(sess.ID())),
		zap.Bool("fresh", fresh))

	if fresh && attrs.Src != "" {
		sess.Handle().Navigate(attrs.Src, attrs.HTTPReferrer)
	}
}

// Detach unbinds the element's session without destroying it immediately.
// Unless another element claims the session before the next tick, the
// registry sweep reaps it and the element settles in Destroyed.
func (c *Coordinator) Detach(el *Element) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el.mu.Lock()
	el.inserted = false
	state := el.state
	el.mu.Unlock()

	if state != StateAttached && state != StateAttaching {
		return
	}
	el.setState(StateDetaching)
	c.releaseBindingLocked(el)
	if c.metrics != nil {
		c.metrics.Detaches.Inc()
	}
	c.log.Debug("element detaching", zap.String("element", el.ID().String()))
}

// releaseBindingLocked drops the element's binding and orphans its session
// if the element is the current owner.
func (c *Coordinator) releaseBindingLocked(el *Element) {
	bound := el.BoundInstance()
	if bound == 0 {
		return
	}
	if sess, ok := c.registry.Get(bound); ok && ownedBy(sess, el) {
		sess.ClearOwner(c.tick)
	}
	el.setBinding(0)
}

// DestroyGuest destroys the element's session immediately and moves the
// element to its terminal state. This is the guestinstance-removal path.
func (c *Coordinator) DestroyGuest(el *Element) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyGuestLocked(el)
}

func (c *Coordinator) destroyGuestLocked(el *Element) {
	if el.State() == StateDestroyed {
		return
	}
	if bound := el.BoundInstance(); bound != 0 {
		el.setBinding(0)
		c.registry.Destroy(bound)
	}
	el.setState(StateDestroyed)
	c.negotiator.Forget(el.ID().String())
	el.Deliver(types.NewEvent(types.EventDestroyed, nil))
}

// DestroyElement destroys the element's guest and forgets the element.
func (c *Coordinator) DestroyElement(el *Element) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyGuestLocked(el)
	delete(c.elements, el.ID())
}

// Tick advances the control loop by one tick: sessions orphaned before this
// tick are destroyed and detaching elements settle in Destroyed.
func (c *Coordinator) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	c.registry.Sweep(c.tick)

	for _, el := range c.elements {
		if el.State() == StateDetaching {
			el.setState(StateDestroyed)
			c.negotiator.Forget(el.ID().String())
			el.Deliver(types.NewEvent(types.EventDestroyed, nil))
		}
	}
}

// StartTicker drives Tick on the given interval until the returned stop
// function is called.
func (c *Coordinator) StartTicker(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				c.Tick()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// SetAttribute applies one named attribute change under the control loop.
func (c *Coordinator) SetAttribute(el *Element, name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch name {
	case AttrGuestInstance:
		return c.setGuestInstanceLocked(el, value)

	case AttrPartition:
		el.mu.Lock()
		locked := el.partitionLocked && el.attrs.Partition != value
		if !locked {
			el.attrs.Partition = value
		}
		el.mu.Unlock()
		if locked {
			// Partition is immutable after first attach; a late change is
			// ignored, not surfaced as a fault.
			c.log.Warn("ignoring partition change after attach",
				zap.String("element", el.ID().String()),
				zap.String("partition", value))
		}
		return nil

	case AttrSrc:
		el.mu.Lock()
		el.attrs.Src = value
		el.mu.Unlock()
		if value != "" && el.State() == StateAttached {
			if sess, ok := c.registry.Get(el.BoundInstance()); ok && sess.Alive() {
				sess.Handle().Navigate(value, el.Attributes().HTTPReferrer)
			}
		}
		return nil

	case AttrPreload:
		el.mu.Lock()
		el.attrs.Preload = value
		el.mu.Unlock()
	case AttrUserAgent:
		el.mu.Lock()
		el.attrs.UserAgent = value
		el.mu.Unlock()
	case AttrHTTPReferrer:
		el.mu.Lock()
		el.attrs.HTTPReferrer = value
		el.mu.Unlock()
	case AttrWebPreferences:
		el.mu.Lock()
		el.attrs.WebPreferences = value
		el.mu.Unlock()
	case AttrNodeIntegration:
		el.mu.Lock()
		el.attrs.NodeIntegration = parseBoolAttr(value)
		el.mu.Unlock()
	case AttrAllowPopups:
		el.mu.Lock()
		el.attrs.AllowPopups = parseBoolAttr(value)
		el.mu.Unlock()
	case AttrDisableWebSecurity:
		el.mu.Lock()
		el.attrs.DisableWebSecurity = parseBoolAttr(value)
		el.mu.Unlock()
	case AttrDisableGuestResize:
		el.mu.Lock()
		el.attrs.DisableGuestResize = parseBoolAttr(value)
		el.mu.Unlock()

	default:
		c.log.Warn("ignoring unknown attribute",
			zap.String("element", el.ID().String()),
			zap.String("attribute", name))
	}
	return nil
}

func (c *Coordinator) setGuestInstanceLocked(el *Element, value string) error {
	// Destroyed is terminal: a dead element cannot claim a session.
	if el.State() == StateDestroyed {
		return ErrElementDestroyed
	}

	if value == "" {
		// Removing the attribute destroys the session immediately.
		el.mu.Lock()
		had := el.attrs.GuestInstance != 0 || el.bound != 0
		el.attrs.GuestInstance = 0
		el.mu.Unlock()
		if had {
			c.destroyGuestLocked(el)
		}
		return nil
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("guestinstance: %w", err)
	}
	target := guest.InstanceID(n)

	sess, ok := c.registry.Get(target)
	if !ok || !sess.Alive() {
		// No live session behind the id: ignored, element keeps its state.
		c.log.Warn("ignoring guestinstance with no live session",
			zap.Int64("instance", n),
			zap.String("element", el.ID().String()))
		return nil
	}

	el.mu.Lock()
	el.attrs.GuestInstance = target
	same := el.bound == target
	el.mu.Unlock()
	if same {
		return nil
	}

	c.releaseBindingLocked(el)
	el.setState(StateAttaching)
	c.transferLocked(sess, el)
	return nil
}

// --- content-scoped operations ---

// sessionOf resolves the attached session or fails with a NotAttachedError
// naming the method. Callers hold the control-loop lock.
func (c *Coordinator) sessionOf(el *Element, method string) (*guest.Session, error) {
	if el.State() != StateAttached {
		return nil, &NotAttachedError{Method: method}
	}
	sess, ok := c.registry.Get(el.BoundInstance())
	if !ok || !sess.Alive() {
		return nil, &NotAttachedError{Method: method}
	}
	return sess, nil
}

func (c *Coordinator) withSession(el *Element, method string, fn func(*guest.Session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, err := c.sessionOf(el, method)
	if err != nil {
		return err
	}
	return fn(sess)
}

// Navigate loads a URL in the element's guest and records it as src.
func (c *Coordinator) Navigate(el *Element, url string) error {
	return c.withSession(el, "navigate", func(sess *guest.Session) error {
		el.mu.Lock()
		el.attrs.Src = url
		referrer := el.attrs.HTTPReferrer
		el.mu.Unlock()
		sess.Handle().Navigate(url, referrer)
		return nil
	})
}

// Reload reloads the current document without pushing a history entry.
func (c *Coordinator) Reload(el *Element) error {
	return c.withSession(el, "reload", func(sess *guest.Session) error {
		url := sess.History().Current()
		if url == "" {
			url = el.Attributes().Src
		}
		if url == "" {
			return nil
		}
		sess.MarkNoRecord()
		sess.Handle().Navigate(url, el.Attributes().HTTPReferrer)
		return nil
	})
}

// Stop cancels any in-flight load.
func (c *Coordinator) Stop(el *Element) error {
	return c.withSession(el, "stop", func(sess *guest.Session) error {
		sess.Handle().Stop()
		return nil
	})
}

// GoBack navigates one entry back; a no-op at the start of history.
func (c *Coordinator) GoBack(el *Element) error {
	return c.withSession(el, "goBack", func(sess *guest.Session) error {
		if url, ok := sess.History().Back(); ok {
			sess.MarkNoRecord()
			sess.Handle().Navigate(url, el.Attributes().HTTPReferrer)
		}
		return nil
	})
}

// GoForward navigates one entry forward; a no-op at the end of history.
func (c *Coordinator) GoForward(el *Element) error {
	return c.withSession(el, "goForward", func(sess *guest.Session) error {
		if url, ok := sess.History().Forward(); ok {
			sess.MarkNoRecord()
			sess.Handle().Navigate(url, el.Attributes().HTTPReferrer)
		}
		return nil
	})
}

// CanGoBack reports whether the session can navigate back.
func (c *Coordinator) CanGoBack(el *Element) bool {
	var ok bool
	_ = c.withSession(el, "canGoBack", func(sess *guest.Session) error {
		ok = sess.History().CanGoBack()
		return nil
	})
	return ok
}

// CanGoForward reports whether the session can navigate forward.
func (c *Coordinator) CanGoForward(el *Element) bool {
	var ok bool
	_ = c.withSession(el, "canGoForward", func(sess *guest.Session) error {
		ok = sess.History().CanGoForward()
		return nil
	})
	return ok
}

// ClearHistory drops all history entries except the current document.
func (c *Coordinator) ClearHistory(el *Element) error {
	return c.withSession(el, "clearHistory", func(sess *guest.Session) error {
		current := sess.History().Current()
		sess.History().Clear()
		if current != "" {
			sess.History().Visit(current)
		}
		return nil
	})
}

// ExecuteJavaScript runs a script in the guest context.
func (c *Coordinator) ExecuteJavaScript(el *Element, script string, userGesture bool, done content.ScriptCallback) error {
	return c.withSession(el, "executeJavaScript", func(sess *guest.Session) error {
		sess.Handle().ExecuteScript(script, userGesture, done)
		return nil
	})
}

// Send delivers an IPC message to the guest.
func (c *Coordinator) Send(el *Element, channel string, args []interface{}) error {
	return c.withSession(el, "send", func(sess *guest.Session) error {
		sess.Handle().DeliverMessage(channel, args)
		return nil
	})
}

// SendInputEvent injects a synthetic input event.
func (c *Coordinator) SendInputEvent(el *Element, ev types.InputEvent) error {
	return c.withSession(el, "sendInputEvent", func(sess *guest.Session) error {
		sess.Handle().SendInputEvent(ev)
		return nil
	})
}

// FindInPage starts a find request and returns its request ID.
func (c *Coordinator) FindInPage(el *Element, text string) (int, error) {
	var req int
	err := c.withSession(el, "findInPage", func(sess *guest.Session) error {
		req = el.nextFindRequest()
		sess.Handle().FindInPage(req, text)
		return nil
	})
	return req, err
}

// StopFindInPage ends the active find request.
func (c *Coordinator) StopFindInPage(el *Element, action string) error {
	return c.withSession(el, "stopFindInPage", func(sess *guest.Session) error {
		sess.Handle().StopFindInPage(action)
		return nil
	})
}

// OpenDevTools opens devtools for the guest.
func (c *Coordinator) OpenDevTools(el *Element) error {
	return c.withSession(el, "openDevTools", func(sess *guest.Session) error {
		sess.Handle().OpenDevTools()
		return nil
	})
}

// CloseDevTools closes devtools for the guest.
func (c *Coordinator) CloseDevTools(el *Element) error {
	return c.withSession(el, "closeDevTools", func(sess *guest.Session) error {
		sess.Handle().CloseDevTools()
		return nil
	})
}

// FocusDevTools focuses the guest's devtools window.
func (c *Coordinator) FocusDevTools(el *Element) error {
	return c.withSession(el, "focusDevTools", func(sess *guest.Session) error {
		sess.Handle().FocusDevTools()
		return nil
	})
}

// SetDevToolsTarget points el's devtools at other's guest.
func (c *Coordinator) SetDevToolsTarget(el, other *Element) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, err := c.sessionOf(el, "setDevToolsTarget")
	if err != nil {
		return err
	}
	otherSess, err := c.sessionOf(other, "setDevToolsTarget")
	if err != nil {
		return err
	}
	sess.Handle().SetDevToolsTarget(otherSess.Handle())
	return nil
}

// ContentHandle returns the element's opaque content handle.
func (c *Coordinator) ContentHandle(el *Element) (content.Handle, error) {
	var handle content.Handle
	err := c.withSession(el, "getContentHandle", func(sess *guest.Session) error {
		handle = sess.Handle()
		return nil
	})
	return handle, err
}

// ZoomLevel returns the session's current zoom level.
func (c *Coordinator) ZoomLevel(el *Element) (float64, error) {
	var level float64
	err := c.withSession(el, "getZoomLevel", func(sess *guest.Session) error {
		level = sess.ZoomLevel()
		return nil
	})
	return level, err
}

// SetZoomLevel applies a zoom level and persists it for the current origin
// and partition.
func (c *Coordinator) SetZoomLevel(el *Element, level float64) error {
	return c.withSession(el, "setZoomLevel", func(sess *guest.Session) error {
		sess.SetZoomLevel(level)
		origin := zoom.OriginOf(sess.History().Current())
		if origin == "" {
			origin = zoom.OriginOf(el.Attributes().Src)
		}
		c.zoom.Persist(origin, sess.Partition(), level)
		sess.Handle().SetZoomFactor(zoom.LevelToFactor(level))
		return nil
	})
}

// ElementResized reports a layout-box size change. The element-resize event
// fires regardless of attachment; the guest follows only while attached and
// guest resize is not disabled.
func (c *Coordinator) ElementResized(el *Element, width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.sessionOf(el, "resize")
	if err != nil {
		el.Deliver(types.NewEvent(types.EventElementResize, map[string]interface{}{
			"newWidth":  width,
			"newHeight": height,
		}))
		return
	}
	c.negotiator.ElementResized(el.ID().String(), el, sess.Handle(), width, height, el.Attributes().DisableGuestResize)
}

// ManualResize resizes the guest viewport on explicit request, bypassing the
// disableguestresize flag.
func (c *Coordinator) ManualResize(el *Element, width, height int) error {
	return c.withSession(el, "resize", func(sess *guest.Session) error {
		c.negotiator.ManualResize(el.ID().String(), el, sess.Handle(), width, height)
		return nil
	})
}

// Stats summarizes control-plane state.
func (c *Coordinator) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	byState := make(map[State]int)
	for _, el := range c.elements {
		byState[el.State()]++
	}
	return map[string]interface{}{
		"tick":         c.tick,
		"elements":     len(c.elements),
		"windows":      len(c.windows),
		"sessions":     c.registry.Count(),
		"state_counts": byState,
	}
}

// Close destroys all sessions and waits for event routing to drain.
func (c *Coordinator) Close() {
	c.registry.Close()
	c.router.Wait()
}

func ownedBy(sess *guest.Session, el *Element) bool {
	owner := sess.Owner()
	return owner != nil && owner.OwnerID() == el.OwnerID()
}
