package stub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/alexbotov/gaming-billing/pkg/billing/verify"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// requests are authenticated by signature, not origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is a transaction state change
type Event struct {
	Kind   string                    `json:"kind"`
	UUID   uuid.UUID                 `json:"uuid"`
	Status billing.TransactionStatus `json:"status"`
	At     time.Time                 `json:"at"`
}

// EventMessage is the envelope of every frame on the events feed
type EventMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	// kinds is empty when the subscriber wants every family
	kinds map[string]bool
}

// Hub fans ledger events out to websocket subscribers
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates a hub with no subscribers
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Publish queues e for every interested subscriber. Slow subscribers miss events.
func (h *Hub) Publish(e Event) {
	msg, err := encodeMessage("transaction", e)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if len(s.kinds) > 0 && !s.kinds[e.Kind] {
			continue
		}
		select {
		case s.send <- msg:
		default:
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}

func encodeMessage(msgType string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(EventMessage{Type: msgType, Payload: b})
}

// HandleEvents handles GET events/, streaming transaction events over a websocket.
// The kind filter narrows the feed to some families.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	kinds := make(map[string]bool)
	if set, ok := f.values["kind"]; ok {
		for _, k := range set.ToSlice() {
			kinds[k] = true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, 256), kinds: kinds}
	service, _ := verify.ServiceFromContext(r.Context())
	hello, _ := encodeMessage("connected", map[string]string{"service": service})
	sub.send <- hello
	s.hub.add(sub)

	go sub.writePump()
	go s.readPump(sub)
}

// writePump sends queued messages and keeps the connection alive with pings
func (c *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump answers ping messages and unsubscribes when the peer goes away
func (s *Server) readPump(c *subscriber) {
	defer func() {
		s.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket closed", "error", err)
			}
			return
		}

		var msg EventMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "ping" {
			continue
		}
		pong, _ := encodeMessage("pong", map[string]int64{"timestamp": time.Now().Unix()})
		s.hub.mu.Lock()
		if _, ok := s.hub.subs[c]; ok {
			select {
			case c.send <- pong:
			default:
			}
		}
		s.hub.mu.Unlock()
	}
}
