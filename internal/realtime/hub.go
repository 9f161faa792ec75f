package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Notification is the payload pushed to customer-facing WebSocket
// clients when an order reaches a terminal state.
type Notification struct {
	OrderID string    `json:"orderId"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Hub manages WebSocket clients and broadcasts order notifications to
// them.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	Register    chan *websocket.Conn
	Unregister  chan *websocket.Conn
	Broadcast   chan Notification
	stop        chan struct{}
	logf        func(string, ...any)
	mu          sync.Mutex
}

// NewHub constructs a Hub. logf may be nil.
func NewHub(logf func(string, ...any)) *Hub {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		Register:    make(chan *websocket.Conn),
		Unregister:  make(chan *websocket.Conn),
		Broadcast:   make(chan Notification, 64),
		stop:        make(chan struct{}),
		logf:        logf,
	}
}

// Notify adapts the hub to the coordinator's notifier hook. It never
// blocks order processing: if the broadcast buffer is full the
// notification is dropped.
func (h *Hub) Notify(orderID, message string) {
	n := Notification{OrderID: orderID, Message: message, At: time.Now()}
	select {
	case h.Broadcast <- n:
	default:
		h.logf("hub: broadcast buffer full, dropping notification for order %s", orderID)
	}
}

// Run processes register/unregister/broadcast events until Stop is
// called.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.Register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.Unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			h.mu.Unlock()
			conn.Close()
		case n := <-h.Broadcast:
			h.broadcast(n)
		case <-h.stop:
			h.mu.Lock()
			for conn := range h.connections {
				conn.Close()
				delete(h.connections, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and closes every connected client.
func (h *Hub) Stop() {
	close(h.stop)
}

func (h *Hub) broadcast(n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logf("hub: marshal notification: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.connections, conn)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades incoming requests and registers the connection with
// the hub. Clients are read from only to detect disconnects.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logf("hub: upgrade: %v", err)
			return
		}
		h.Register <- conn
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.Unregister <- conn
					return
				}
			}
		}()
	})
}
