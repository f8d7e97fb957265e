// Package script executes guest JavaScript in sandboxed goja runtimes.
// Runtimes are pooled and carry no page state between executions; every run
// binds a fresh environment describing the document and the host bridges
// the session's preferences allow.
package script

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Config bounds one runtime.
type Config struct {
	// Timeout interrupts scripts that run too long.
	Timeout time.Duration
	// MaxCallStack bounds recursion depth.
	MaxCallStack int
}

// DefaultConfig returns the limits used for guest page scripts.
func DefaultConfig() Config {
	return Config{
		Timeout:      5 * time.Second,
		MaxCallStack: 1024,
	}
}

// Message is one queued host-to-guest IPC message.
type Message struct {
	Channel string
	Args    []interface{}
}

// Env is the per-execution binding surface. Callbacks are invoked
// synchronously from the executing goroutine; nil callbacks disable the
// corresponding global.
type Env struct {
	// Doc backs the document global. A nil Doc yields an empty document.
	Doc *goquery.Document
	// PageURL backs window.location.href.
	PageURL string
	// Messages is the queue of host IPC messages delivered since the last
	// navigation, readable by scripts as host.messages.
	Messages []Message

	// NodeIntegration exposes the extended host surface to the script.
	NodeIntegration bool
	// AllowPopups lets window.open through; otherwise it is a silent no-op.
	AllowPopups bool

	OnConsole    func(level, message string)
	OnSend       func(channel string, args []interface{})
	OnOpenWindow func(url string)
	OnFullscreen func()
	OnClose      func()
}

// Result is the outcome of one execution.
type Result struct {
	Value    interface{}
	Duration time.Duration
}
