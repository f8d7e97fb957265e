// Package web implements the content engine over plain HTTP: it fetches
// documents, parses them server-side, and runs guest scripts in sandboxed
// JavaScript runtimes. One engine context stands in for one guest "window";
// partitions map to isolated cookie jars.
package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/content/web/script"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
	"github.com/google/uuid"
)

// Config tunes the engine.
type Config struct {
	UserAgent     string
	FetchTimeout  time.Duration
	ScriptTimeout time.Duration
	PoolSize      int
	// FetchRatePerSec caps outbound requests per partition. Zero means
	// unlimited.
	FetchRatePerSec float64
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		UserAgent:     "Mozilla/5.0 (EmbedOS Host/1.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		FetchTimeout:  30 * time.Second,
		ScriptTimeout: 5 * time.Second,
		PoolSize:      4,
	}
}

// Engine implements content.Engine.
type Engine struct {
	cfg  Config
	log  *logging.Logger
	pool *script.Pool

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// NewEngine creates a web content engine.
func NewEngine(cfg Config, log *logging.Logger) (*Engine, error) {
	if log == nil {
		log = logging.NewDefault()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if cfg.ScriptTimeout == 0 {
		cfg.ScriptTimeout = DefaultConfig().ScriptTimeout
	}

	pool, err := script.NewPool(script.Config{
		Timeout:      cfg.ScriptTimeout,
		MaxCallStack: 1024,
	}, cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("script pool: %w", err)
	}

	return &Engine{
		cfg:     cfg,
		log:     log.Named("web"),
		pool:    pool,
		clients: make(map[string]*Client),
	}, nil
}

// Create implements content.Engine.
func (e *Engine) Create(ctx context.Context, partition string, prefs types.Preferences) (content.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}

	client, ok := e.clients[partition]
	if !ok {
		ua := e.cfg.UserAgent
		if prefs.UserAgent != "" {
			ua = prefs.UserAgent
		}
		client = newClient(partition, ua, e.cfg.FetchTimeout)
		client.SetRateLimit(e.cfg.FetchRatePerSec)
		e.clients[partition] = client
	}

	h := newHandle(fmt.Sprintf("web:%s:%s", partition, uuid.NewString()), client, e.pool, prefs, e.log)
	return h, nil
}

// Close implements content.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return e.pool.Close()
}
