package resize

import (
	"sync"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
)

// Sink receives the events the negotiator emits for an element.
type Sink interface {
	Deliver(ev types.Event)
}

// Negotiator tracks per-element resize ordering.
type Negotiator struct {
	mu      sync.Mutex
	issued  map[string]uint64 // element ID -> last sequence issued
	applied map[string]uint64 // element ID -> last sequence applied
	metrics *monitoring.Metrics
}

// NewNegotiator creates an empty negotiator.
func NewNegotiator() *Negotiator {
	return &Negotiator{
		issued:  make(map[string]uint64),
		applied: make(map[string]uint64),
	}
}

// WithMetrics adds metrics tracking to the negotiator.
func (n *Negotiator) WithMetrics(m *monitoring.Metrics) *Negotiator {
	n.metrics = m
	return n
}

// ElementResized handles a layout-box size change. The element-resize event
// always fires; the guest viewport follows only while guest resize is not
// disabled for the element.
func (n *Negotiator) ElementResized(elementID string, sink Sink, handle content.Handle, width, height int, guestResizeDisabled bool) {
	sink.Deliver(types.NewEvent(types.EventElementResize, map[string]interface{}{
		"newWidth":  width,
		"newHeight": height,
	}))

	if guestResizeDisabled {
		return
	}
	n.resizeGuest(elementID, sink, handle, width, height)
}

// ManualResize resizes the guest viewport on explicit request, independent of
// layout. Fires guest-resize with the applied size; element-resize does not
// fire because the layout box did not change.
func (n *Negotiator) ManualResize(elementID string, sink Sink, handle content.Handle, width, height int) {
	n.resizeGuest(elementID, sink, handle, width, height)
}

func (n *Negotiator) resizeGuest(elementID string, sink Sink, handle content.Handle, width, height int) {
	n.mu.Lock()
	n.issued[elementID]++
	seq := n.issued[elementID]
	n.mu.Unlock()

	handle.Resize(width, height, func(appliedW, appliedH int) {
		n.mu.Lock()
		stale := seq <= n.applied[elementID]
		if !stale {
			n.applied[elementID] = seq
		}
		n.mu.Unlock()

		if stale {
			// A newer size already landed; this result must not regress it.
			if n.metrics != nil {
				n.metrics.StaleResizes.Inc()
			}
			return
		}
		if n.metrics != nil {
			n.metrics.GuestResizes.Inc()
		}
		payload := map[string]interface{}{
			"newWidth":  appliedW,
			"newHeight": appliedH,
		}
		sink.Deliver(types.NewEvent(types.EventGuestResize, payload))
		sink.Deliver(types.NewEvent(types.EventResize, payload))
	})
}

// Forget drops the ordering state for an element. Called when the element is
// destroyed.
func (n *Negotiator) Forget(elementID string) {
	n.mu.Lock()
	delete(n.issued, elementID)
	delete(n.applied, elementID)
	n.mu.Unlock()
}
