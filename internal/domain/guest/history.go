package guest

import "sync"

// History is a session's navigation history: a list of visited URLs and a
// cursor. The control loop and the session's router goroutine both touch it,
// so it synchronizes itself.
type History struct {
	mu      sync.RWMutex
	entries []string
	index   int // -1 when empty
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{index: -1}
}

// Visit records a new entry, truncating any forward entries.
func (h *History) Visit(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], url)
	h.index = len(h.entries) - 1
}

// Replace overwrites the current entry, or visits when empty.
func (h *History) Replace(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index < 0 {
		h.entries = append(h.entries, url)
		h.index = 0
		return
	}
	h.entries[h.index] = url
}

// Current returns the current entry, or "" when empty.
func (h *History) Current() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.index < 0 {
		return ""
	}
	return h.entries[h.index]
}

// Back moves the cursor back and returns the new current entry.
func (h *History) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index <= 0 {
		return "", false
	}
	h.index--
	return h.entries[h.index], true
}

// Forward moves the cursor forward and returns the new current entry.
func (h *History) Forward() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index < 0 || h.index >= len(h.entries)-1 {
		return "", false
	}
	h.index++
	return h.entries[h.index], true
}

// CanGoBack reports whether a back entry exists.
func (h *History) CanGoBack() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index > 0
}

// CanGoForward reports whether a forward entry exists.
func (h *History) CanGoForward() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index >= 0 && h.index < len(h.entries)-1
}

// Clear drops all entries.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	h.index = -1
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
