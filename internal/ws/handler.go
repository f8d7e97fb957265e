package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/attach"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/id"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS layer
	},
}

// outboundBuffer bounds per-connection queued events. A client that cannot
// keep up loses events rather than stalling router goroutines.
const outboundBuffer = 256

// clientMessage is the inbound protocol envelope.
type clientMessage struct {
	Type    string `json:"type"`
	Element string `json:"element,omitempty"`
}

// Handler manages WebSocket event-stream connections.
type Handler struct {
	coord   *attach.Coordinator
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewHandler creates the WebSocket handler.
func NewHandler(coord *attach.Coordinator, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Handler{
		coord:   coord,
		metrics: metrics,
		log:     log.Named("ws"),
	}
}

// HandleConnection upgrades the request and runs the subscription loop.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := id.NewConnID()
	cl := &client{
		id:      connID,
		conn:    conn,
		handler: h,
		out:     make(chan []byte, outboundBuffer),
		done:    make(chan struct{}),
		subs:    make(map[id.ElementID]func()),
	}

	h.metrics.WSConnections.Inc()
	h.log.Info("websocket connected", zap.String("conn", connID.String()))

	go cl.writeLoop()
	cl.sendJSON(map[string]interface{}{
		"type":    "system",
		"message": "connected to EmbedOS host event stream",
		"conn":    connID,
	})
	cl.readLoop()
	cl.close()

	h.metrics.WSConnections.Dec()
	h.log.Info("websocket disconnected", zap.String("conn", connID.String()))
}

// client is one live connection with its element subscriptions.
type client struct {
	id      id.ConnID
	conn    *websocket.Conn
	handler *Handler

	out  chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
	subs   map[id.ElementID]func()
}

func (cl *client) readLoop() {
	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			cl.sendError("malformed message")
			continue
		}

		switch msg.Type {
		case "subscribe":
			cl.subscribe(id.ElementID(msg.Element))
		case "unsubscribe":
			cl.unsubscribe(id.ElementID(msg.Element))
		case "ping":
			cl.sendJSON(map[string]interface{}{"type": "pong"})
		default:
			cl.sendError("unknown message type")
		}
	}
}

// writeLoop serializes all writes so router goroutines never touch the
// connection directly.
func (cl *client) writeLoop() {
	defer cl.conn.Close()
	for {
		select {
		case data, ok := <-cl.out:
			if !ok {
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			cl.handler.metrics.WSMessages.Inc()
		case <-cl.done:
			return
		}
	}
}

func (cl *client) subscribe(eid id.ElementID) {
	el, ok := cl.handler.coord.Element(eid)
	if !ok {
		cl.sendError("unknown element")
		return
	}

	cl.mu.Lock()
	if _, dup := cl.subs[eid]; dup {
		cl.mu.Unlock()
		cl.sendJSON(map[string]interface{}{"type": "subscribed", "element": eid})
		return
	}
	unsubscribe := el.Subscribe(func(ev types.Event) {
		cl.pushEvent(eid, ev)
	})
	cl.subs[eid] = unsubscribe
	cl.mu.Unlock()

	cl.sendJSON(map[string]interface{}{"type": "subscribed", "element": eid})
}

func (cl *client) unsubscribe(eid id.ElementID) {
	cl.mu.Lock()
	if cancel, ok := cl.subs[eid]; ok {
		cancel()
		delete(cl.subs, eid)
	}
	cl.mu.Unlock()

	cl.sendJSON(map[string]interface{}{"type": "unsubscribed", "element": eid})
}

// pushEvent runs on a router goroutine and must not block.
func (cl *client) pushEvent(eid id.ElementID, ev types.Event) {
	data, err := sonic.Marshal(map[string]interface{}{
		"type":      "event",
		"element":   eid,
		"event":     ev.Type,
		"payload":   ev.Payload,
		"timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	select {
	case cl.out <- data:
	case <-cl.done:
	default:
		cl.handler.log.Warn("slow websocket client, dropping event",
			zap.String("conn", cl.id.String()),
			zap.String("event", string(ev.Type)))
	}
}

func (cl *client) sendJSON(v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	select {
	case cl.out <- data:
	case <-cl.done:
	default:
	}
}

func (cl *client) sendError(msg string) {
	cl.sendJSON(map[string]interface{}{"type": "error", "message": msg})
}

func (cl *client) close() {
	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		return
	}
	cl.closed = true
	for eid, cancel := range cl.subs {
		cancel()
		delete(cl.subs, eid)
	}
	cl.mu.Unlock()
	close(cl.done)
}
