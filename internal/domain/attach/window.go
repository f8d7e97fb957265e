package attach

import (
	"sync"

	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/id"
)

// Window represents one host window. Its zoom factor is what freshly created
// guests inherit; elements in different windows may host the same session
// over time via ownership transfer.
type Window struct {
	id id.WindowID

	mu         sync.RWMutex
	zoomFactor float64
}

// NewWindow creates a window with the given zoom factor. A factor of 0 means
// "unzoomed" and is treated as 1.0 for inheritance.
func NewWindow(zoomFactor float64) *Window {
	return &Window{id: id.NewWindowID(), zoomFactor: zoomFactor}
}

// ID returns the window's ID.
func (w *Window) ID() id.WindowID { return w.id }

// ZoomFactor returns the window's zoom factor.
func (w *Window) ZoomFactor() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.zoomFactor
}

// SetZoomFactor updates the window's zoom factor. Affects only guests
// created or re-deriving zoom after the change.
func (w *Window) SetZoomFactor(factor float64) {
	w.mu.Lock()
	w.zoomFactor = factor
	w.mu.Unlock()
}
