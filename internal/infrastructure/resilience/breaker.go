// Package resilience provides a circuit breaker guarding outbound fetches.
// A tripped breaker fails page loads fast instead of stacking timed-out
// requests behind an unreachable network.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrOpen is returned while the breaker rejects all requests.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrProbeLimit is returned in half-open state once the probe quota is used.
	ErrProbeLimit = errors.New("circuit breaker probe limit reached")
)

// State is the breaker's position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Counts accumulates request outcomes within the current generation.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Settings tunes one breaker.
type Settings struct {
	// Probes is how many trial requests half-open admits before deciding.
	Probes uint32
	// Window is how long closed-state counts accumulate before resetting.
	Window time.Duration
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
	// Trip decides, on each failure while closed, whether to open.
	Trip func(Counts) bool
	// OnStateChange observes transitions, for logging.
	OnStateChange func(name string, from, to State)
}

// Breaker is a mutex-guarded circuit breaker. Generations tick on every
// state change and window reset; an outcome reported against a stale
// generation is discarded.
type Breaker struct {
	name     string
	settings Settings

	mu     sync.Mutex
	state  State
	gen    uint64
	counts Counts
	until  time.Time
}

// New creates a breaker. Zero settings get conservative defaults.
func New(name string, settings Settings) *Breaker {
	if settings.Probes == 0 {
		settings.Probes = 1
	}
	if settings.Window == 0 {
		settings.Window = time.Minute
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = time.Minute
	}
	if settings.Trip == nil {
		settings.Trip = func(c Counts) bool { return c.ConsecutiveFailures > 5 }
	}
	return &Breaker{
		name:     name,
		settings: settings,
		until:    time.Now().Add(settings.Window),
	}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, advancing open -> half-open on expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, _ := b.advance(time.Now())
	return s
}

// Counts returns a copy of the current generation's counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute runs fn if the breaker admits it and records the outcome. A panic
// in fn counts as a failure and is re-raised.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	gen, err := b.admit()
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			b.settle(gen, false)
			panic(r)
		}
	}()

	result, err := fn()
	b.settle(gen, err == nil)
	return result, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, gen := b.advance(time.Now())
	switch {
	case state == StateOpen:
		return gen, ErrOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.Probes:
		return gen, ErrProbeLimit
	}
	b.counts.Requests++
	return gen, nil
}

func (b *Breaker) settle(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.advance(now)
	if current != gen {
		return
	}

	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.Probes {
			b.shift(StateClosed, now)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.settings.Trip(b.counts) {
			b.shift(StateOpen, now)
		}
	case StateHalfOpen:
		b.shift(StateOpen, now)
	}
}

// advance applies time-based transitions and returns state and generation.
// Callers hold the lock.
func (b *Breaker) advance(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.until.IsZero() && b.until.Before(now) {
			b.gen++
			b.counts = Counts{}
			b.until = now.Add(b.settings.Window)
		}
	case StateOpen:
		if b.until.Before(now) {
			b.shift(StateHalfOpen, now)
		}
	}
	return b.state, b.gen
}

func (b *Breaker) shift(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.gen++
	b.counts = Counts{}

	switch state {
	case StateClosed:
		b.until = now.Add(b.settings.Window)
	case StateOpen:
		b.until = now.Add(b.settings.Cooldown)
	case StateHalfOpen:
		b.until = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
