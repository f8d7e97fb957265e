package permission

import (
	"sync"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Kind names a permission capability.
type Kind string

const (
	KindMedia         Kind = "media"
	KindMIDI          Kind = "midi"
	KindMIDISysex     Kind = "midiSysex"
	KindGeolocation   Kind = "geolocation"
	KindNotifications Kind = "notifications"
	KindPointerLock   Kind = "pointerLock"
	KindFullscreen    Kind = "fullscreen"
	KindOpenExternal  Kind = "openExternal"
)

// Responder is the one-shot callback capability a handler must eventually
// invoke. Invoking it more than once is a no-op.
type Responder func(grant bool)

// Handler decides one permission request. It may call respond synchronously
// or hold on to it and answer later.
type Handler func(handle content.Handle, kind Kind, respond Responder)

// Broker routes permission requests to per-partition handlers.
type Broker struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewBroker creates an empty broker.
func NewBroker(log *logging.Logger) *Broker {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Broker{
		handlers: make(map[string]Handler),
		log:      log.Named("permission"),
	}
}

// WithMetrics adds metrics tracking to the broker.
func (b *Broker) WithMetrics(m *monitoring.Metrics) *Broker {
	b.metrics = m
	return b
}

// SetHandler installs the handler for a partition, replacing any previous
// one. A nil handler removes the registration (restoring default-deny).
func (b *Broker) SetHandler(partition string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h == nil {
		delete(b.handlers, partition)
		return
	}
	b.handlers[partition] = h
}

// Request arbitrates one permission request for a session in the given
// partition. With no handler registered the request is denied immediately.
// The respond callback fires exactly once.
func (b *Broker) Request(partition string, handle content.Handle, kind Kind, respond Responder) {
	b.mu.RLock()
	handler, ok := b.handlers[partition]
	b.mu.RUnlock()

	wrapped := b.oneShot(partition, kind, respond)
	if !ok {
		b.log.Debug("no handler registered, denying",
			zap.String("partition", partition),
			zap.String("kind", string(kind)))
		wrapped(false)
		return
	}
	handler(handle, kind, wrapped)
}

// RequestMIDI arbitrates a media-device MIDI request. A SysEx-capable request
// decomposes into two independent sub-requests, plain midi first and then
// midiSysex; the combined grant is the logical AND of both. The midiSysex
// sub-request is issued even when the midi one was denied.
func (b *Broker) RequestMIDI(partition string, handle content.Handle, sysex bool, respond Responder) {
	if !sysex {
		b.Request(partition, handle, KindMIDI, respond)
		return
	}

	var (
		mu      sync.Mutex
		pending = 2
		granted = true
		done    = respond
	)
	collect := func(grant bool) {
		mu.Lock()
		if !grant {
			granted = false
		}
		pending--
		finished := pending == 0
		result := granted
		mu.Unlock()
		if finished && done != nil {
			done(result)
		}
	}

	b.Request(partition, handle, KindMIDI, collect)
	b.Request(partition, handle, KindMIDISysex, collect)
}

// oneShot guards a responder against double invocation and records metrics.
func (b *Broker) oneShot(partition string, kind Kind, respond Responder) Responder {
	var once sync.Once
	return func(grant bool) {
		once.Do(func() {
			if b.metrics != nil {
				outcome := "denied"
				if grant {
					outcome = "granted"
				}
				b.metrics.PermissionDecisions.WithLabelValues(string(kind), outcome).Inc()
			}
			b.log.Debug("permission decided",
				zap.String("partition", partition),
				zap.String("kind", string(kind)),
				zap.Bool("grant", grant))
			if respond != nil {
				respond(grant)
			}
		})
	}
}
