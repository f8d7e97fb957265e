package events

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/guest"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/zoom"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
)

type pumpHandle struct {
	events chan types.Event

	mu       sync.Mutex
	closed   bool
	lastZoom float64
}

func newPumpHandle() *pumpHandle {
	return &pumpHandle{events: make(chan types.Event, 16)}
}

func (h *pumpHandle) ID() string                                                  { return "pump" }
func (h *pumpHandle) Navigate(url, referrer string)                               {}
func (h *pumpHandle) Stop()                                                       {}
func (h *pumpHandle) Resize(width, height int, applied content.ResizeCallback)    {}
func (h *pumpHandle) ExecuteScript(s string, g bool, done content.ScriptCallback) {}
func (h *pumpHandle) DeliverMessage(channel string, args []interface{})           {}
func (h *pumpHandle) SendInputEvent(ev types.InputEvent)                          {}
func (h *pumpHandle) FindInPage(requestID int, text string)                       {}
func (h *pumpHandle) StopFindInPage(action string)                                {}
func (h *pumpHandle) OpenDevTools()                                               {}
func (h *pumpHandle) CloseDevTools()                                              {}
func (h *pumpHandle) FocusDevTools()                                              {}
func (h *pumpHandle) SetDevToolsTarget(other content.Handle)                      {}
func (h *pumpHandle) Events() <-chan types.Event                                  { return h.events }

func (h *pumpHandle) SetZoomFactor(factor float64) {
	h.mu.Lock()
	h.lastZoom = factor
	h.mu.Unlock()
}

func (h *pumpHandle) zoomFactor() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastZoom
}

func (h *pumpHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
}

type pumpEngine struct {
	mu      sync.Mutex
	handles []*pumpHandle
}

func (e *pumpEngine) Create(ctx context.Context, partition string, prefs types.Preferences) (content.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := newPumpHandle()
	e.handles = append(e.handles, h)
	return h, nil
}

func (e *pumpEngine) Close() error { return nil }

type sinkOwner struct {
	mu     sync.Mutex
	events []types.Event
}

func (o *sinkOwner) OwnerID() string { return "sink" }

func (o *sinkOwner) Deliver(ev types.Event) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *sinkOwner) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

func (o *sinkOwner) first() types.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[0]
}

func setup(t *testing.T) (*Router, *guest.Session, *pumpHandle, *zoom.Coordinator) {
	t.Helper()
	engine := &pumpEngine{}
	registry := guest.NewRegistry(engine, logging.NewNop())
	zoomCoord := zoom.NewCoordinator()
	router := NewRouter(zoomCoord, logging.NewNop())

	sess, err := registry.Create(context.Background(), "persist:test", types.Preferences{})
	if err != nil {
		t.Fatal(err)
	}
	router.Bind(sess)

	t.Cleanup(func() {
		registry.Close()
		router.Wait()
	})
	return router, sess, engine.handles[0], zoomCoord
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func navEvent(url string) types.Event {
	return types.NewEvent(types.EventDidNavigate, map[string]interface{}{"url": url})
}

func TestForwardsToOwner(t *testing.T) {
	_, sess, handle, _ := setup(t)
	owner := &sinkOwner{}
	sess.BindOwner(nil, owner)

	handle.events <- types.NewEvent(types.EventPageTitleSet, map[string]interface{}{"title": "t"})
	waitFor(t, func() bool { return owner.count() == 1 })
}

func TestDropsWhenUnowned(t *testing.T) {
	_, sess, handle, _ := setup(t)

	handle.events <- navEvent("https://a.test/")
	waitFor(t, func() bool { return sess.History().Len() == 1 })

	// The event was observed but had nowhere to go; a later owner sees
	// nothing of it.
	owner := &sinkOwner{}
	sess.BindOwner(nil, owner)
	handle.events <- navEvent("https://b.test/")
	waitFor(t, func() bool { return owner.count() == 1 })

	if owner.first().Payload["url"] != "https://b.test/" {
		t.Error("owner must only see events delivered while bound")
	}
}

func TestNavigationRecordsHistory(t *testing.T) {
	_, sess, handle, _ := setup(t)

	handle.events <- navEvent("https://a.test/")
	handle.events <- navEvent("https://a.test/page")
	waitFor(t, func() bool { return sess.History().Len() == 2 })

	if sess.History().Current() != "https://a.test/page" {
		t.Errorf("current = %q", sess.History().Current())
	}
}

func TestNoRecordNavigationSkipsHistory(t *testing.T) {
	_, sess, handle, _ := setup(t)

	handle.events <- navEvent("https://a.test/")
	waitFor(t, func() bool { return sess.History().Len() == 1 })

	sess.MarkNoRecord()
	handle.events <- navEvent("https://a.test/")
	waitFor(t, func() bool { return sess.History().Current() == "https://a.test/" })

	time.Sleep(20 * time.Millisecond)
	if sess.History().Len() != 1 {
		t.Errorf("history len = %d, reload must not add an entry", sess.History().Len())
	}
}

func TestCrossOriginNavigationResetsZoom(t *testing.T) {
	_, sess, handle, _ := setup(t)

	handle.events <- navEvent("https://a.test/")
	waitFor(t, func() bool { return sess.History().Len() == 1 })
	time.Sleep(20 * time.Millisecond)
	sess.SetZoomLevel(3)

	handle.events <- navEvent("https://b.test/")
	waitFor(t, func() bool { return sess.ZoomLevel() == 0 })

	waitFor(t, func() bool { return handle.zoomFactor() != 0 })
	if f := handle.zoomFactor(); math.Abs(f-1) > 1e-9 {
		t.Errorf("zoom factor = %v, want reset to 1", f)
	}
}

func TestPersistedZoomWinsOnNavigation(t *testing.T) {
	_, sess, handle, zoomCoord := setup(t)
	zoomCoord.Persist("https://b.test", "persist:test", 2)

	handle.events <- navEvent("https://a.test/")
	handle.events <- navEvent("https://b.test/")
	waitFor(t, func() bool { return sess.ZoomLevel() == 2 })

	want := zoom.LevelToFactor(2)
	waitFor(t, func() bool { return math.Abs(handle.zoomFactor()-want) < 1e-9 })
}

func TestInPageNavigationKeepsZoom(t *testing.T) {
	_, sess, handle, _ := setup(t)

	handle.events <- navEvent("https://a.test/")
	waitFor(t, func() bool { return sess.History().Len() == 1 })
	time.Sleep(20 * time.Millisecond)
	sess.SetZoomLevel(1.5)

	handle.events <- types.NewEvent(types.EventDidNavigateInPage, map[string]interface{}{
		"url": "https://a.test/#section",
	})
	waitFor(t, func() bool { return sess.History().Len() == 2 })

	if sess.ZoomLevel() != 1.5 {
		t.Errorf("zoom level = %v, in-page navigation must preserve it", sess.ZoomLevel())
	}
}

func TestWaitReturnsAfterClose(t *testing.T) {
	router, _, handle, _ := setup(t)
	handle.Close()

	done := make(chan struct{})
	go func() {
		router.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("router must drain once the event stream closes")
	}
}
