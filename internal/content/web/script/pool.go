package script

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPoolClosed = errors.New("script pool is closed")
	ErrTimeout    = errors.New("script runtime acquisition timeout")
)

// Pool manages reusable runtimes so concurrent guests don't each pay VM
// construction cost per script.
type Pool struct {
	config   Config
	runtimes chan *Runtime
	size     int

	mu     sync.RWMutex
	closed bool
}

// NewPool pre-creates size runtimes.
func NewPool(config Config, size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}
	p := &Pool{
		config:   config,
		runtimes: make(chan *Runtime, size),
		size:     size,
	}
	for i := 0; i < size; i++ {
		rt, err := New(config)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.runtimes <- rt
	}
	return p, nil
}

// Acquire checks a runtime out of the pool.
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	select {
	case rt := <-p.runtimes:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, ErrTimeout
	}
}

// Release resets the runtime and returns it to the pool. A runtime that
// fails to reset is replaced.
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		if fresh, ferr := New(p.config); ferr == nil {
			p.runtimes <- fresh
		}
		return err
	}

	select {
	case p.runtimes <- rt:
		return nil
	default:
		return rt.Close()
	}
}

// Execute runs source on a pooled runtime.
func (p *Pool) Execute(ctx context.Context, source string, env Env) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)
	return rt.Execute(ctx, source, env)
}

// Close shuts the pool down and closes all pooled runtimes.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.runtimes)
	for rt := range p.runtimes {
		rt.Close()
	}
	return nil
}

// Stats reports pool occupancy.
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return map[string]interface{}{
		"size":      p.size,
		"available": len(p.runtimes),
		"in_use":    p.size - len(p.runtimes),
		"closed":    p.closed,
	}
}
