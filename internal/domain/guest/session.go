package guest

import (
	"sync"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
)

// InstanceID identifies one guest session. IDs are issued monotonically by
// the registry and are never reused within a host instance. Zero means "no
// session".
type InstanceID int64

// Owner is the back-reference a session keeps to the embedding element
// currently bound to it. It is a delivery target, not an ownership edge: the
// registry owns the session.
type Owner interface {
	OwnerID() string
	Deliver(ev types.Event)
}

// Session wraps one isolated content context. Identity, process handle,
// navigation history, and zoom level all live here so that an ownership
// transfer moves them wholesale without touching the content context.
type Session struct {
	id        InstanceID
	partition string
	prefs     types.Preferences
	handle    content.Handle
	history   *History

	mu           sync.RWMutex
	owner        Owner
	zoomLevel    float64
	parentZoom   float64 // zoom factor of the owning element's host window
	alive        bool
	orphanedTick uint64 // control-loop tick at which the owner was cleared
	skipRecords  int    // pending engine navigations that must not push history
}

func newSession(id InstanceID, partition string, prefs types.Preferences, handle content.Handle) *Session {
	return &Session{
		id:        id,
		partition: partition,
		prefs:     prefs,
		handle:    handle,
		history:   NewHistory(),
		alive:     true,
	}
}

// ID returns the session's instance ID.
func (s *Session) ID() InstanceID { return s.id }

// Partition returns the session's storage partition. Immutable.
func (s *Session) Partition() string { return s.partition }

// Preferences returns the session's preference snapshot. Immutable.
func (s *Session) Preferences() types.Preferences { return s.prefs }

// Handle returns the opaque content handle.
func (s *Session) Handle() content.Handle { return s.handle }

// History returns the navigation history. Mutate only from the control loop.
func (s *Session) History() *History { return s.history }

// Alive reports whether the session has not been destroyed.
func (s *Session) Alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alive
}

// Owner returns the currently bound element, or nil while unowned.
func (s *Session) Owner() Owner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// BindOwner installs a new owner if the expected current owner matches.
// This is the single-writer compare-and-assign the transfer algorithm relies
// on; callers hold the control-loop lock, the session lock only guards
// concurrent reads from router goroutines.
func (s *Session) BindOwner(expect, next Owner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != expect {
		return false
	}
	s.owner = next
	return true
}

// ClearOwner drops the back-reference and records the orphaning tick.
func (s *Session) ClearOwner(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = nil
	s.orphanedTick = tick
}

// OrphanedSince returns the orphaning tick; meaningful only while unowned.
func (s *Session) OrphanedSince() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orphanedTick
}

// ZoomLevel returns the current zoom level.
func (s *Session) ZoomLevel() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoomLevel
}

// SetZoomLevel records a new zoom level.
func (s *Session) SetZoomLevel(level float64) {
	s.mu.Lock()
	s.zoomLevel = level
	s.mu.Unlock()
}

// ParentZoomFactor returns the zoom factor inherited from the owning
// element's host window, or 0 when none was recorded.
func (s *Session) ParentZoomFactor() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parentZoom
}

// SetParentZoomFactor records the inherited window zoom factor at bind time.
func (s *Session) SetParentZoomFactor(factor float64) {
	s.mu.Lock()
	s.parentZoom = factor
	s.mu.Unlock()
}

// MarkNoRecord flags the next engine-reported navigation as history-neutral.
// Used for back/forward/reload traversals where the cursor already moved.
func (s *Session) MarkNoRecord() {
	s.mu.Lock()
	s.skipRecords++
	s.mu.Unlock()
}

// TakeNoRecord consumes one pending history-neutral flag.
func (s *Session) TakeNoRecord() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipRecords > 0 {
		s.skipRecords--
		return true
	}
	return false
}

func (s *Session) kill() {
	s.mu.Lock()
	s.alive = false
	s.owner = nil
	s.mu.Unlock()
	s.handle.Close()
}
