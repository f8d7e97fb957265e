// Package id provides ULID generation for host-side handles.
//
// Element, window, and connection identifiers are prefixed ULIDs (elem_*,
// win_*, conn_*): lexicographically sortable, unique, and readable in logs.
// Guest InstanceIDs are deliberately not ULIDs; they are monotonic integers
// issued by the instance registry so that transfer requests can reference
// them as plain attribute values.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ElementID identifies an embedding element.
type ElementID string

// WindowID identifies a host window.
type WindowID string

// ConnID identifies a websocket event-stream connection.
type ConnID string

const (
	ElementPrefix = "elem"
	WindowPrefix  = "win"
	ConnPrefix    = "conn"
)

// Generator generates ULIDs from a guarded entropy source.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator with the given entropy source. Tests may
// pass a deterministic reader.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewElementID generates a new embedding-element ID.
func NewElementID() ElementID {
	return ElementID(Default().GenerateWithPrefix(ElementPrefix))
}

// NewWindowID generates a new host-window ID.
func NewWindowID() WindowID {
	return WindowID(Default().GenerateWithPrefix(WindowPrefix))
}

// NewConnID generates a new connection ID.
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(ConnPrefix))
}

func (id ElementID) String() string { return string(id) }
func (id WindowID) String() string  { return string(id) }
func (id ConnID) String() string    { return string(id) }
