package events

import (
	"sync"

	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/guest"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/zoom"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
	"go.uber.org/zap"
)

// Router forwards session event streams and maintains per-session navigation
// bookkeeping (history, zoom policy) as events flow through.
type Router struct {
	zoom    *zoom.Coordinator
	log     *logging.Logger
	metrics *monitoring.Metrics
	wg      sync.WaitGroup
}

// NewRouter creates a router that applies the given zoom policy.
func NewRouter(zoomCoord *zoom.Coordinator, log *logging.Logger) *Router {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Router{
		zoom: zoomCoord,
		log:  log.Named("router"),
	}
}

// WithMetrics adds metrics tracking to the router.
func (r *Router) WithMetrics(m *monitoring.Metrics) *Router {
	r.metrics = m
	return r
}

// Bind subscribes to a session's event stream. Call exactly once per
// session, at creation. The subscription ends when the session's content
// handle closes its stream.
func (r *Router) Bind(sess *guest.Session) {
	r.wg.Add(1)
	go r.pump(sess)
}

// Wait blocks until all session subscriptions have drained. Used on
// shutdown after every session has been destroyed.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) pump(sess *guest.Session) {
	defer r.wg.Done()
	for ev := range sess.Handle().Events() {
		r.observe(sess, ev)

		owner := sess.Owner()
		if owner == nil {
			// Unowned window: drop rather than queue.
			if r.metrics != nil {
				r.metrics.EventsDropped.Inc()
			}
			r.log.Debug("dropping event for unowned session",
				zap.Int64("instance", int64(sess.ID())),
				zap.String("type", string(ev.Type)))
			continue
		}
		owner.Deliver(ev)
		if r.metrics != nil {
			r.metrics.EventsForwarded.WithLabelValues(string(ev.Type)).Inc()
		}
	}
}

// observe updates session state that must track the guest regardless of
// ownership: navigation history and the zoom policy.
func (r *Router) observe(sess *guest.Session, ev types.Event) {
	switch ev.Type {
	case types.EventDidNavigate:
		r.recordNavigation(sess, ev, false)
	case types.EventDidNavigateInPage:
		r.recordNavigation(sess, ev, true)
	}
}

func (r *Router) recordNavigation(sess *guest.Session, ev types.Event, inPage bool) {
	url, _ := ev.Payload["url"].(string)
	if url == "" {
		return
	}

	oldURL := sess.History().Current()
	if !sess.TakeNoRecord() {
		sess.History().Visit(url)
	}

	level := r.zoom.OnNavigate(sess.ZoomLevel(), oldURL, url, sess.Partition(), sess.ParentZoomFactor(), inPage)
	if level != sess.ZoomLevel() {
		sess.SetZoomLevel(level)
		sess.Handle().SetZoomFactor(zoom.LevelToFactor(level))
	}
}
