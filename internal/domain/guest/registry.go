package guest

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
	"go.uber.org/zap"
)

// Registry is the authoritative InstanceID -> Session map. It is an explicit
// object with host-instance lifetime so independent hosts can coexist under
// test; there is no package-level registry state.
type Registry struct {
	mu       sync.RWMutex
	next     InstanceID
	sessions map[InstanceID]*Session
	engine   content.Engine
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewRegistry creates a registry backed by the given content engine.
func NewRegistry(engine content.Engine, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Registry{
		sessions: make(map[InstanceID]*Session),
		engine:   engine,
		log:      log.Named("registry"),
	}
}

// WithMetrics adds metrics tracking to the registry.
func (r *Registry) WithMetrics(m *monitoring.Metrics) *Registry {
	r.metrics = m
	return r
}

// Create allocates the next InstanceID and spins up a content context for it.
func (r *Registry) Create(ctx context.Context, partition string, prefs types.Preferences) (*Session, error) {
	handle, err := r.engine.Create(ctx, partition, prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to create content context: %w", err)
	}

	r.mu.Lock()
	r.next++
	sess := newSession(r.next, partition, prefs, handle)
	r.sessions[sess.id] = sess
	r.mu.Unlock()

	r.log.Info("session created",
		zap.Int64("instance", int64(sess.id)),
		zap.String("partition", partition),
		zap.String("handle", handle.ID()))
	if r.metrics != nil {
		r.metrics.SessionCreated()
	}
	return sess, nil
}

// Get looks a session up by ID.
func (r *Registry) Get(id InstanceID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Destroy tears a session down and removes it from the registry. It is a
// no-op for unknown IDs.
func (r *Registry) Destroy(id InstanceID) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	sess.kill()
	r.log.Info("session destroyed", zap.Int64("instance", int64(id)))
	if r.metrics != nil {
		r.metrics.SessionDestroyed()
	}
}

// Sweep destroys every session that has been unowned since before the given
// tick and returns the destroyed sessions. Called once per control-loop tick.
func (r *Registry) Sweep(tick uint64) []*Session {
	r.mu.RLock()
	var doomed []*Session
	for _, sess := range r.sessions {
		if sess.Owner() == nil && sess.OrphanedSince() < tick {
			doomed = append(doomed, sess)
		}
	}
	r.mu.RUnlock()

	for _, sess := range doomed {
		r.log.Debug("reaping orphaned session", zap.Int64("instance", int64(sess.ID())))
		r.Destroy(sess.ID())
	}
	return doomed
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close destroys every remaining session.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]InstanceID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Destroy(id)
	}
}
