package zoom

import (
	"math"
	"net/url"
	"sync"
)

// Ratio is the factor multiplier per zoom-level unit step.
const Ratio = 1.2

// LevelToFactor converts a zoom level to a zoom factor.
func LevelToFactor(level float64) float64 {
	return math.Pow(Ratio, level)
}

// FactorToLevel converts a zoom factor to a zoom level.
func FactorToLevel(factor float64) float64 {
	if factor <= 0 {
		return 0
	}
	return math.Log(factor) / math.Log(Ratio)
}

// OriginOf reduces a URL to its origin (scheme://host[:port]). Unparseable
// URLs map to the empty origin, which never matches a persisted record.
func OriginOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

type key struct {
	origin    string
	partition string
}

// Coordinator stores persisted zoom levels and applies the navigation policy.
// Safe for concurrent use.
type Coordinator struct {
	mu    sync.RWMutex
	store map[key]float64
}

// NewCoordinator creates an empty zoom coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{store: make(map[key]float64)}
}

// Persist records a zoom level for (origin, partition).
func (c *Coordinator) Persist(origin, partition string, level float64) {
	if origin == "" {
		return
	}
	c.mu.Lock()
	c.store[key{origin, partition}] = level
	c.mu.Unlock()
}

// Persisted looks up the recorded level for (origin, partition).
func (c *Coordinator) Persisted(origin, partition string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	level, ok := c.store[key{origin, partition}]
	return level, ok
}

// InitialLevel derives the level for a freshly created session: a persisted
// record for the origin wins, then the parent window's factor, then level 0.
func (c *Coordinator) InitialLevel(origin, partition string, parentFactor float64) float64 {
	if level, ok := c.Persisted(origin, partition); ok {
		return level
	}
	if parentFactor > 0 {
		return FactorToLevel(parentFactor)
	}
	return 0
}

// OnNavigate returns the level a session should carry after navigating from
// oldURL to newURL. Same-document navigations preserve the current level
// unconditionally. Cross-document same-origin navigations restore the
// persisted level if one exists, else keep the current level. Cross-origin
// navigations reset to the inherited parent-window level unless the exact
// new origin has a persisted record, which takes precedence.
func (c *Coordinator) OnNavigate(current float64, oldURL, newURL, partition string, parentFactor float64, sameDocument bool) float64 {
	if sameDocument {
		return current
	}

	newOrigin := OriginOf(newURL)
	if level, ok := c.Persisted(newOrigin, partition); ok {
		return level
	}
	if newOrigin == OriginOf(oldURL) && newOrigin != "" {
		return current
	}
	if parentFactor > 0 {
		return FactorToLevel(parentFactor)
	}
	return 0
}
