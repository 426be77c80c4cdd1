package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Push is one message on the live stream of a session.
type Push struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id"`
	Timestamp time.Time    `json:"timestamp"`
	Document  dom.Snapshot `json:"document"`
}

// Push types
const (
	PushDocument = "document"
	PushClosed   = "closed"
)

// HubConfig tunes the live stream.
type HubConfig struct {
	WriteTimeout time.Duration
	PingPeriod   time.Duration
	SendBuffer   int
}

type client struct {
	id        string
	sessionID string
	send      chan []byte
}

// Hub fans document snapshots out to the websocket clients of each session.
type Hub struct {
	cfg    HubConfig
	logger *logger.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{} // session id -> clients
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig, log *logger.Logger) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 50 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	return &Hub{
		cfg:     cfg,
		logger:  log.WithComponent("ws-hub"),
		clients: make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.sessionID] == nil {
		h.clients[c.sessionID] = make(map[*client]struct{})
	}
	h.clients[c.sessionID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subscribers, ok := h.clients[c.sessionID]
	if !ok {
		return
	}
	if _, ok := subscribers[c]; !ok {
		return
	}
	delete(subscribers, c)
	if len(subscribers) == 0 {
		delete(h.clients, c.sessionID)
	}
	close(c.send)
}

// Publish sends the document of a session to its clients. A client whose
// buffer is full misses the message; the next one carries the whole document.
func (h *Hub) Publish(sessionID string, snap dom.Snapshot) {
	h.send(Push{Type: PushDocument, SessionID: sessionID, Timestamp: time.Now().UTC(), Document: snap})
}

// CloseSession tells the clients of a session it is gone and disconnects them.
func (h *Hub) CloseSession(sessionID string) {
	h.send(Push{Type: PushClosed, SessionID: sessionID, Timestamp: time.Now().UTC()})

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[sessionID] {
		close(c.send)
	}
	delete(h.clients, sessionID)
}

func (h *Hub) send(p Push) {
	data, err := json.Marshal(p)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to marshal push")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[p.SessionID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Str("client_id", c.id).Str("session_id", p.SessionID).Msg("client buffer full, push skipped")
		}
	}
}

// ClientCount returns the number of clients watching a session.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Serve upgrades the request and streams the session until either side closes.
// initial is sent first so the client starts from the current document.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, sessionID string, initial dom.Snapshot) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{id: uuid.New().String(), sessionID: sessionID, send: make(chan []byte, h.cfg.SendBuffer)}
	h.register(c)
	h.logger.Debug().Str("client_id", c.id).Str("session_id", sessionID).Msg("client connected")
	h.Publish(sessionID, initial)

	go h.writePump(c, conn)
	go h.readPump(c, conn)
	return nil
}

// readPump drains the connection so pongs and close frames are processed.
func (h *Hub) readPump(c *client, conn *websocket.Conn) {
	defer func() {
		h.unregister(c)
		conn.Close()
		h.logger.Debug().Str("client_id", c.id).Str("session_id", c.sessionID).Msg("client disconnected")
	}()

	wait := 2 * h.cfg.PingPeriod
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client, conn *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
