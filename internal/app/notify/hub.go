package notify

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/workmesh/workledger/pkg/logger"
)

const clientBuffer = 16

// Hub pushes events to connected websocket clients. Each client has a
// bounded outbound queue; events are dropped for slow clients rather than
// blocking the emitting service.
type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

type hubClient struct {
	userID string
	conn   *websocket.Conn
	send   chan Event
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("notify-hub")
	}
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:  make(map[*hubClient]struct{}),
	}
}

var _ Notifier = (*Hub)(nil)

// Notify queues the event for every connected recipient. Events addressed to
// no connected client are discarded silently.
func (h *Hub) Notify(event Event) {
	recipients := make(map[string]bool, len(event.Recipients))
	for _, r := range event.Recipients {
		recipients[r] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if len(recipients) > 0 && !recipients[client.userID] {
			continue
		}
		select {
		case client.send <- event:
		default:
			h.log.WithField("user_id", client.userID).Warn("dropping event for slow client")
		}
	}
}

// ServeHTTP upgrades the request and streams events for the given user until
// the connection closes. The user ID must already be authenticated by the
// caller.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &hubClient{userID: userID, conn: conn, send: make(chan Event, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(client)
	go h.readLoop(client)
}

func (h *Hub) writeLoop(client *hubClient) {
	defer client.conn.Close()

	for event := range client.send {
		if err := client.conn.WriteJSON(event); err != nil {
			h.remove(client)
			return
		}
	}
}

// readLoop discards inbound frames so peer-initiated close and ping frames
// are processed, and unregisters the client as soon as the peer disconnects.
func (h *Hub) readLoop(client *hubClient) {
	for {
		if _, _, err := client.conn.NextReader(); err != nil {
			h.remove(client)
			return
		}
	}
}

// remove unregisters the client exactly once; closing the send channel ends
// its write loop.
func (h *Hub) remove(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Close disconnects all clients and rejects future registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount reports connected clients, for health and tests.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
