// Package wsprogress streams live Item progress to connected operators over
// a WebSocket, using github.com/coder/websocket on the server side. An
// Orchestrator's OnProgress hook feeds [Hub.Publish]; every connected
// client receives a JSON line per phase transition.
package wsprogress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/autoclipper/pipeline/internal/domain"
)

// Event is one progress update broadcast to connected clients.
type Event struct {
	ItemID       string `json:"item_id"`
	Phase        string `json:"phase"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// EventFromItem builds an Event from an Item's current state.
func EventFromItem(item domain.Item) Event {
	return Event{
		ItemID:       item.ID,
		Phase:        string(item.Phase),
		Progress:     item.Progress,
		ErrorMessage: item.ErrorMessage,
	}
}

// writeTimeout bounds each write to a client in ServeHTTP; a write that
// does not finish in time disconnects that client. Publish itself never
// waits: it drops a client whose send buffer is full.
const writeTimeout = 5 * time.Second

// Hub fans out Events to every connected WebSocket client. The zero value
// is not usable; construct with [NewHub].
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub creates an empty Hub. A nil logger falls back to slog.Default().
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: make(map[*client]struct{})}
}

// Publish broadcasts event to every connected client. Non-blocking: a
// client whose send buffer is full is disconnected rather than allowed to
// stall the broadcast.
func (h *Hub) Publish(item domain.Item) {
	event := EventFromItem(item)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			h.log.Warn("wsprogress: client send buffer full, dropping connection")
			go c.conn.Close(websocket.StatusPolicyViolation, "send buffer full")
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams Events to it
// until the client disconnects or ctx is canceled. Register it on an
// operator-facing mux, e.g. mux.Handle("/progress", hub).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error("wsprogress: accept failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Event, 32)}
	h.register(c)
	defer h.unregister(c)

	ctx := conn.CloseRead(r.Context())
	defer conn.CloseNow()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := h.writeEvent(ctx, conn, event); err != nil {
				h.log.Debug("wsprogress: write failed, disconnecting", "error", err)
				return
			}
		}
	}
}

func (h *Hub) writeEvent(ctx context.Context, conn *websocket.Conn, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	close(c.send)
}

// ClientCount returns the number of currently connected clients, for tests
// and operator diagnostics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
