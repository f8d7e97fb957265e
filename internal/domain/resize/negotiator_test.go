package resize

import (
	"testing"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
)

type eventSink struct {
	events []types.Event
}

func (s *eventSink) Deliver(ev types.Event) { s.events = append(s.events, ev) }

func (s *eventSink) ofType(t types.EventType) []types.Event {
	var out []types.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// resizeHandle records resize requests and lets tests fire the callbacks in
// any order.
type resizeHandle struct {
	content.Handle // nil embed; only Resize is exercised
	pending        []func()
	sync           bool
}

func (h *resizeHandle) Resize(w, hgt int, applied content.ResizeCallback) {
	fire := func() { applied(w, hgt) }
	if h.sync {
		fire()
		return
	}
	h.pending = append(h.pending, fire)
}

func TestElementResizeFollowsGuest(t *testing.T) {
	n := NewNegotiator()
	sink := &eventSink{}
	h := &resizeHandle{sync: true}

	n.ElementResized("el", sink, h, 300, 300, false)

	el := sink.ofType(types.EventElementResize)
	if len(el) != 1 || el[0].Payload["newWidth"] != 300 || el[0].Payload["newHeight"] != 300 {
		t.Fatalf("expected element-resize(300,300), got %v", el)
	}
	gr := sink.ofType(types.EventGuestResize)
	if len(gr) != 1 || gr[0].Payload["newWidth"] != 300 {
		t.Fatalf("expected guest-resize(300,300), got %v", gr)
	}
}

func TestDisabledGuestResize(t *testing.T) {
	n := NewNegotiator()
	sink := &eventSink{}
	h := &resizeHandle{sync: true}

	n.ElementResized("el", sink, h, 300, 300, true)

	if len(sink.ofType(types.EventElementResize)) != 1 {
		t.Error("element-resize should still fire when guest resize is disabled")
	}
	if len(sink.ofType(types.EventGuestResize)) != 0 {
		t.Error("guest viewport must be left unchanged when disabled")
	}

	// Explicit manual resize still reaches the guest.
	n.ManualResize("el", sink, h, 10, 20)
	gr := sink.ofType(types.EventGuestResize)
	if len(gr) != 1 || gr[0].Payload["newWidth"] != 10 || gr[0].Payload["newHeight"] != 20 {
		t.Fatalf("expected guest-resize(10,20), got %v", gr)
	}
	if len(sink.ofType(types.EventElementResize)) != 1 {
		t.Error("manual resize must not fire element-resize")
	}
}

func TestStaleResizeDiscarded(t *testing.T) {
	n := NewNegotiator()
	sink := &eventSink{}
	h := &resizeHandle{}

	n.ElementResized("el", sink, h, 100, 100, false)
	n.ElementResized("el", sink, h, 200, 200, false)

	if len(h.pending) != 2 {
		t.Fatalf("expected 2 pending applies, got %d", len(h.pending))
	}

	// The newer apply lands first; the older must then be discarded.
	h.pending[1]()
	h.pending[0]()

	gr := sink.ofType(types.EventGuestResize)
	if len(gr) != 1 {
		t.Fatalf("expected exactly one guest-resize, got %d", len(gr))
	}
	if gr[0].Payload["newWidth"] != 200 {
		t.Errorf("stale size overwrote newer one: %v", gr[0].Payload)
	}
}

func TestOrderingIsPerElement(t *testing.T) {
	n := NewNegotiator()
	sinkA, sinkB := &eventSink{}, &eventSink{}
	h := &resizeHandle{sync: true}

	n.ElementResized("a", sinkA, h, 100, 100, false)
	n.ElementResized("b", sinkB, h, 50, 50, false)

	if len(sinkA.ofType(types.EventGuestResize)) != 1 || len(sinkB.ofType(types.EventGuestResize)) != 1 {
		t.Error("elements negotiate independently")
	}
}
