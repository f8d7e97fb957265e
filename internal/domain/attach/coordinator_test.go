package attach

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/events"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/guest"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/resize"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/zoom"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
)

// fakeHandle implements content.Handle with recorded commands and a
// test-driven event stream.
type fakeHandle struct {
	id string

	mu       sync.Mutex
	navs     []string
	zooms    []float64
	finds    []int
	messages []string
	focuses  int
	closed   bool
	events   chan types.Event
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{id: id, events: make(chan types.Event, 32)}
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Navigate(url, referrer string) {
	h.mu.Lock()
	h.navs = append(h.navs, url)
	h.mu.Unlock()
}

func (h *fakeHandle) Stop() {}

func (h *fakeHandle) Resize(w, hgt int, applied content.ResizeCallback) { applied(w, hgt) }

func (h *fakeHandle) SetZoomFactor(f float64) {
	h.mu.Lock()
	h.zooms = append(h.zooms, f)
	h.mu.Unlock()
}

func (h *fakeHandle) ExecuteScript(script string, userGesture bool, done content.ScriptCallback) {
	if done != nil {
		done("ok", nil)
	}
}

func (h *fakeHandle) DeliverMessage(channel string, args []interface{}) {
	h.mu.Lock()
	h.messages = append(h.messages, channel)
	h.mu.Unlock()
}

func (h *fakeHandle) SendInputEvent(ev types.InputEvent) {}

func (h *fakeHandle) FindInPage(requestID int, text string) {
	h.mu.Lock()
	h.finds = append(h.finds, requestID)
	h.mu.Unlock()
}

func (h *fakeHandle) StopFindInPage(action string) {}
func (h *fakeHandle) OpenDevTools()                {}
func (h *fakeHandle) CloseDevTools()               {}

func (h *fakeHandle) FocusDevTools() {
	h.mu.Lock()
	h.focuses++
	h.mu.Unlock()
}

func (h *fakeHandle) SetDevToolsTarget(other content.Handle) {}
func (h *fakeHandle) Events() <-chan types.Event             { return h.events }

func (h *fakeHandle) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
	h.mu.Unlock()
}

func (h *fakeHandle) emit(ev types.Event) { h.events <- ev }

func (h *fakeHandle) navCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.navs)
}

func (h *fakeHandle) lastNav() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.navs) == 0 {
		return ""
	}
	return h.navs[len(h.navs)-1]
}

func (h *fakeHandle) lastZoom() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.zooms) == 0 {
		return 0
	}
	return h.zooms[len(h.zooms)-1]
}

type fakeEngine struct {
	mu      sync.Mutex
	handles []*fakeHandle
}

func (e *fakeEngine) Create(ctx context.Context, partition string, prefs types.Preferences) (content.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := newFakeHandle(fmt.Sprintf("ctx-%d", len(e.handles)+1))
	e.handles = append(e.handles, h)
	return h, nil
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

func (e *fakeEngine) handle(i int) *fakeHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles[i]
}

// recorder collects events an element delivers.
type recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recorder) record(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(t types.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeEngine, *zoom.Coordinator) {
	t.Helper()
	log := logging.NewNop()
	eng := &fakeEngine{}
	reg := guest.NewRegistry(eng, log)
	zc := zoom.NewCoordinator()
	router := events.NewRouter(zc, log)
	c := NewCoordinator(reg, router, zc, resize.NewNegotiator(), log)
	t.Cleanup(c.Close)
	return c, eng, zc
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInsertCreatesSessionAndNavigates(t *testing.T) {
	c, eng, _ := newTestCoordinator(t)
	win := c.CreateWindow(1.0)
	el := c.CreateElement(win, Attributes{Src: "https://example.com/", Partition: "persist:a"})

	rec := &recorder{}
	el.Subscribe(rec.record)

	if err := el.Insert(); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if el.State() != StateAttached {
		t.Fatalf("state = %s, want attached", el.State())
	}
	if eng.created() != 1 {
		t.Fatalf("engine contexts = %d, want 1", eng.created())
	}
	if got := eng.handle(0).lastNav(); got != "https://example.com/" {
		t.Errorf("navigated to %q, want src", got)
	}
	if rec.count(types.EventDidAttach) != 1 {
		t.Error("did-attach not delivered")
	}
	if el.BoundInstance() == 0 {
		t.Error("element has no binding after attach")
	}
}

func TestContentMethodsRequireAttach(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{})

	err := el.Stop()
	if !IsNotAttached(err) {
		t.Fatalf("err = %v, want NotAttachedError", err)
	}
	if !strings.Contains(err.Error(), "stop") {
		t.Errorf("error does not name the method: %q", err.Error())
	}
	if el.CanGoBack() || el.CanGoForward() {
		t.Error("history queries must report false when unattached")
	}
	if _, err := el.ContentHandle(); !IsNotAttached(err) {
		t.Errorf("getContentHandle err = %v, want NotAttachedError", err)
	}
}

func TestTransferEvictsPreviousOwner(t *testing.T) {
	c, eng, _ := newTestCoordinator(t)
	win := c.CreateWindow(1.0)

	a := c.CreateElement(win, Attributes{Src: "https://example.com/"})
	recA := &recorder{}
	a.Subscribe(recA.record)
	if err := a.Insert(); err != nil {
		t.Fatal(err)
	}
	instance := a.BoundInstance()
	navsBefore := eng.handle(0).navCount()

	b := c.CreateElement(win, Attributes{GuestInstance: instance})
	recB := &recorder{}
	b.Subscribe(recB.record)
	if err := b.Insert(); err != nil {
		t.Fatal(err)
	}

	if b.State() != StateAttached || b.BoundInstance() != instance {
		t.Fatalf("b state=%s binding=%d, want attached to %d", b.State(), b.BoundInstance(), instance)
	}
	if a.State() != StateUnattached || a.BoundInstance() != 0 {
		t.Errorf("evicted a state=%s binding=%d, want unattached/0", a.State(), a.BoundInstance())
	}
	if recA.count(types.EventDestroyed) != 1 {
		t.Error("evicted element must observe destroyed")
	}
	if recB.count(types.EventDidAttach) != 1 {
		t.Error("winner must observe did-attach")
	}

	// The session moved without a reload.
	if eng.handle(0).navCount() != navsBefore {
		t.Error("transfer must not navigate")
	}
	sess, ok := c.Registry().Get(instance)
	if !ok || !sess.Alive() {
		t.Fatal("session must survive the transfer")
	}
	if sess.Owner() == nil || sess.Owner().OwnerID() != b.OwnerID() {
		t.Error("session owner is not the winning element")
	}
}

func TestTransferPreservesHistory(t *testing.T) {
	c, eng, _ := newTestCoordinator(t)
	win := c.CreateWindow(1.0)

	a := c.CreateElement(win, Attributes{Src: "https://example.com/one"})
	if err := a.Insert(); err != nil {
		t.Fatal(err)
	}
	instance := a.BoundInstance()
	h := eng.handle(0)

	h.emit(types.NewEvent(types.EventDidNavigate, map[string]interface{}{"url": "https://example.com/one"}))
	h.emit(types.NewEvent(types.EventDidNavigate, map[string]interface{}{"url": "https://example.com/two"}))
	sess, _ := c.Registry().Get(instance)
	waitFor(t, "history to record both navigations", func() bool { return sess.History().Len() == 2 })

	b := c.CreateElement(win, Attributes{GuestInstance: instance})
	if err := b.Insert(); err != nil {
		t.Fatal(err)
	}

	if !b.CanGoBack() {
		t.Fatal("history must move with the session")
	}
	navsBefore := h.navCount()
	if err := b.GoBack(); err != nil {
		t.Fatal(err)
	}
	if h.navCount() != navsBefore+1 || h.lastNav() != "https://example.com/one" {
		t.Errorf("goBack navigated to %q", h.lastNav())
	}
	// The traversal must not grow history once the engine reports it.
	h.emit(types.NewEvent(types.EventDidNavigate, map[string]interface{}{"url": "https://example.com/one"}))
	waitFor(t, "traversal to land", func() bool { return sess.History().Current() == "https://example.com/one" })
	if sess.History().Len() != 2 {
		t.Errorf("history len = %d after back traversal, want 2", sess.History().Len())
	}
}

func TestDetachReapsOnNextTick(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{Src: "https://example.com/"})
	rec := &recorder{}
	el.Subscribe(rec.record)
	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}
	instance := el.BoundInstance()

	el.Remove()
	if el.State() != StateDetaching {
		t.Fatalf("state = %s, want detaching", el.State())
	}
	if sess, ok := c.Registry().Get(instance); !ok || !sess.Alive() {
		t.Fatal("session must survive until the next tick")
	}

	c.Tick()

	if _, ok := c.Registry().Get(instance); ok {
		t.Error("orphaned session must be reaped at the tick")
	}
	if el.State() != StateDestroyed {
		t.Errorf("state = %s, want destroyed", el.State())
	}
	if rec.count(types.EventDestroyed) != 1 {
		t.Error("destroyed not delivered")
	}
	if err := el.Insert(); err != ErrElementDestroyed {
		t.Errorf("insert after destroy: %v, want ErrElementDestroyed", err)
	}
}

func TestReclaimBeforeTickKeepsSession(t *testing.T) {
	c, eng, _ := newTestCoordinator(t)
	win := c.CreateWindow(1.0)

	a := c.CreateElement(win, Attributes{Src: "https://example.com/"})
	if err := a.Insert(); err != nil {
		t.Fatal(err)
	}
	instance := a.BoundInstance()
	a.Remove()

	b := c.CreateElement(win, Attributes{})
	if err := b.SetAttribute(AttrGuestInstance, strconv.FormatInt(int64(instance), 10)); err != nil {
		t.Fatal(err)
	}

	c.Tick()

	sess, ok := c.Registry().Get(instance)
	if !ok || !sess.Alive() {
		t.Fatal("claimed session must survive the tick")
	}
	if b.State() != StateAttached || b.BoundInstance() != instance {
		t.Errorf("b state=%s binding=%d", b.State(), b.BoundInstance())
	}
	if a.State() != StateDestroyed {
		t.Errorf("a state = %s, want destroyed", a.State())
	}
	if eng.handle(0).navCount() != 1 {
		t.Error("reclaim must not reload")
	}
}

func TestGuestInstanceRemovalDestroysImmediately(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{Src: "https://example.com/"})
	rec := &recorder{}
	el.Subscribe(rec.record)
	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}
	instance := el.BoundInstance()

	if err := el.SetAttribute(AttrGuestInstance, ""); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Registry().Get(instance); ok {
		t.Error("session must be destroyed immediately, not on the next tick")
	}
	if el.State() != StateDestroyed {
		t.Errorf("state = %s, want destroyed", el.State())
	}
	if rec.count(types.EventDestroyed) != 1 {
		t.Error("destroyed not delivered")
	}
}

func TestDestroyedElementCannotClaimSession(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	win := c.CreateWindow(1.0)

	a := c.CreateElement(win, Attributes{Src: "https://example.com/"})
	if err := a.Insert(); err != nil {
		t.Fatal(err)
	}
	instance := a.BoundInstance()

	b := c.CreateElement(win, Attributes{Src: "https://example.com/other"})
	if err := b.Insert(); err != nil {
		t.Fatal(err)
	}
	if err := b.SetAttribute(AttrGuestInstance, ""); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateDestroyed {
		t.Fatalf("b state = %s, want destroyed", b.State())
	}

	err := b.SetAttribute(AttrGuestInstance, strconv.FormatInt(int64(instance), 10))
	if err != ErrElementDestroyed {
		t.Fatalf("err = %v, want ErrElementDestroyed", err)
	}
	if b.State() != StateDestroyed || b.BoundInstance() != 0 {
		t.Errorf("b state=%s binding=%d, destroyed is terminal", b.State(), b.BoundInstance())
	}
	if a.State() != StateAttached || a.BoundInstance() != instance {
		t.Errorf("a state=%s binding=%d, live owner must keep its session", a.State(), a.BoundInstance())
	}
	sess, ok := c.Registry().Get(instance)
	if !ok || sess.Owner() == nil || sess.Owner().OwnerID() != a.OwnerID() {
		t.Error("session owner changed on a rejected claim")
	}
}

func TestDanglingGuestInstanceIgnored(t *testing.T) {
	c, eng, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{GuestInstance: 999})

	if err := el.Insert(); err != nil {
		t.Fatalf("dangling guestinstance must be a no-op, got %v", err)
	}
	if el.State() != StateUnattached {
		t.Errorf("state = %s, want unattached", el.State())
	}
	if eng.created() != 0 {
		t.Error("no session may be created for a dangling id")
	}
}

func TestPartitionImmutableAfterAttach(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{Partition: "persist:a"})
	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}

	if err := el.SetAttribute(AttrPartition, "persist:b"); err != nil {
		t.Fatalf("late partition change must be ignored, got %v", err)
	}
	if got := el.Attributes().Partition; got != "persist:a" {
		t.Errorf("partition = %q, want persist:a", got)
	}
}

func TestHideShowKeepsBinding(t *testing.T) {
	c, eng, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{Src: "https://example.com/"})
	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}
	instance := el.BoundInstance()

	el.Hide()
	el.Show()
	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}

	if el.BoundInstance() != instance || el.State() != StateAttached {
		t.Error("visibility and re-insert must not disturb the binding")
	}
	if eng.created() != 1 || eng.handle(0).navCount() != 1 {
		t.Error("no new session or reload may result from hide/show")
	}
}

func TestFreshSessionInheritsWindowZoom(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.2), Attributes{Src: "https://example.com/"})
	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}

	level, err := el.ZoomLevel()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(level-1) > 1e-9 {
		t.Errorf("level = %v, want 1 for window factor 1.2", level)
	}
}

func TestSetZoomLevelPersistsPerOriginAndPartition(t *testing.T) {
	c, eng, zc := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{Src: "https://example.com/page", Partition: "persist:a"})
	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}

	if err := el.SetZoomLevel(2); err != nil {
		t.Fatal(err)
	}

	if level, ok := zc.Persisted("https://example.com", "persist:a"); !ok || level != 2 {
		t.Errorf("persisted = %v,%v, want 2,true", level, ok)
	}
	if _, ok := zc.Persisted("https://example.com", "persist:b"); ok {
		t.Error("zoom record must not leak across partitions")
	}
	if got := eng.handle(0).lastZoom(); math.Abs(got-1.44) > 1e-9 {
		t.Errorf("applied factor = %v, want 1.44", got)
	}
}

func TestResizeEvents(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{Src: "https://example.com/"})
	rec := &recorder{}
	el.Subscribe(rec.record)

	// Unattached: the element-resize event still fires, nothing else.
	el.NotifyResize(100, 100)
	if rec.count(types.EventElementResize) != 1 || rec.count(types.EventGuestResize) != 0 {
		t.Fatal("unattached resize must fire element-resize only")
	}

	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}
	el.NotifyResize(200, 200)
	if rec.count(types.EventElementResize) != 2 {
		t.Error("element-resize must fire while attached")
	}
	if rec.count(types.EventGuestResize) != 1 || rec.count(types.EventResize) != 1 {
		t.Error("guest viewport must follow while attached")
	}
}

func TestFocusDevToolsReachesGuest(t *testing.T) {
	c, eng, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{Src: "https://example.com/"})

	err := el.FocusDevTools()
	if !IsNotAttached(err) {
		t.Fatalf("err = %v, want NotAttachedError", err)
	}
	if !strings.Contains(err.Error(), "focusDevTools") {
		t.Errorf("error does not name the method: %q", err.Error())
	}

	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}
	if err := el.FocusDevTools(); err != nil {
		t.Fatal(err)
	}
	h := eng.handle(0)
	h.mu.Lock()
	focuses := h.focuses
	h.mu.Unlock()
	if focuses != 1 {
		t.Errorf("focus calls = %d, want 1", focuses)
	}
}

func TestFindInPageSequencing(t *testing.T) {
	c, eng, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{Src: "https://example.com/"})
	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}

	r1, err := el.FindInPage("needle")
	if err != nil {
		t.Fatal(err)
	}
	r2, err := el.FindInPage("needle")
	if err != nil {
		t.Fatal(err)
	}
	if r2 != r1+1 {
		t.Errorf("request ids %d,%d are not sequential", r1, r2)
	}
	h := eng.handle(0)
	h.mu.Lock()
	finds := append([]int(nil), h.finds...)
	h.mu.Unlock()
	if len(finds) != 2 || finds[0] != r1 || finds[1] != r2 {
		t.Errorf("handle saw finds %v", finds)
	}
}

func TestConcurrentTransfersSettleOnOneOwner(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	win := c.CreateWindow(1.0)

	a := c.CreateElement(win, Attributes{Src: "https://example.com/"})
	if err := a.Insert(); err != nil {
		t.Fatal(err)
	}
	instance := strconv.FormatInt(int64(a.BoundInstance()), 10)

	b := c.CreateElement(win, Attributes{})
	d := c.CreateElement(win, Attributes{})

	var wg sync.WaitGroup
	for _, el := range []*Element{b, d} {
		wg.Add(1)
		go func(el *Element) {
			defer wg.Done()
			_ = el.SetAttribute(AttrGuestInstance, instance)
		}(el)
	}
	wg.Wait()

	attached := 0
	for _, el := range []*Element{a, b, d} {
		if el.State() == StateAttached {
			attached++
			sess, ok := c.Registry().Get(el.BoundInstance())
			if !ok || sess.Owner() == nil || sess.Owner().OwnerID() != el.OwnerID() {
				t.Error("attached element does not own its session")
			}
		}
	}
	if attached != 1 {
		t.Fatalf("attached elements = %d, want exactly 1", attached)
	}
}

func TestReloadDoesNotGrowHistory(t *testing.T) {
	c, eng, _ := newTestCoordinator(t)
	el := c.CreateElement(c.CreateWindow(1.0), Attributes{Src: "https://example.com/"})
	if err := el.Insert(); err != nil {
		t.Fatal(err)
	}
	h := eng.handle(0)
	sess, _ := c.Registry().Get(el.BoundInstance())

	h.emit(types.NewEvent(types.EventDidNavigate, map[string]interface{}{"url": "https://example.com/"}))
	waitFor(t, "first navigation", func() bool { return sess.History().Len() == 1 })

	if err := el.Reload(); err != nil {
		t.Fatal(err)
	}
	h.emit(types.NewEvent(types.EventDidNavigate, map[string]interface{}{"url": "https://example.com/"}))
	waitFor(t, "reload to land", func() bool { return h.navCount() >= 2 })

	time.Sleep(20 * time.Millisecond)
	if sess.History().Len() != 1 {
		t.Errorf("history len = %d after reload, want 1", sess.History().Len())
	}
}
