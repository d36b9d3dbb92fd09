package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"verdant-vault/vault-portal-backend/internal/ledger"
)

// Message is one event notification pushed to a connected UI client
type Message struct {
	Type       string       `json:"type"`
	CampaignID uint64       `json:"campaign_id,omitempty"`
	Event      ledger.Event `json:"event"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Manager handles WebSocket connections and fans ledger events out to them
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           string
	Identity     string
	Conn         *websocket.Conn
	Send         chan Message
	LastActivity time.Time
}

// Hub manages the broadcast of messages to connections
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan Message
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
}

// NewManager creates a new WebSocket manager
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Message, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
		},
	}
}

// HandleConnection upgrades an HTTP request and registers the client
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, identity string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		Identity:     identity,
		Conn:         conn,
		Send:         make(chan Message, 256),
		LastActivity: time.Now(),
	}

	m.hub.register <- connection

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// Relay forwards a ledger event to every connected client
func (m *Manager) Relay(e ledger.Event) {
	msg := Message{
		Type:       string(e.Name),
		CampaignID: e.CampaignID,
		Event:      e,
		Timestamp:  time.Now(),
	}
	select {
	case m.hub.broadcast <- msg:
	default:
		m.logger.Warn("websocket broadcast buffer full, dropping event",
			zap.String("event", string(e.Name)))
	}
}

// ConnectionCount returns the number of registered clients
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Stop shuts down the hub and closes all client connections
func (m *Manager) Stop() {
	close(m.hub.stop)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, conn := range m.connections {
		conn.Conn.Close()
		delete(m.connections, id)
	}
}

// readPump drains client frames and detects disconnects
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.hub.unregister <- conn
		conn.Conn.Close()
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.LastActivity = time.Now()
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("websocket read error", zap.String("connection", conn.ID), zap.Error(err))
			}
			return
		}
	}
}

// writePump pushes hub messages and pings to the client
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// run routes hub traffic until stopped
func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}
		case msg := <-h.broadcast:
			for conn := range h.connections {
				select {
				case conn.Send <- msg:
				default:
					// Slow consumer: drop it rather than block the hub
					delete(h.connections, conn)
					close(conn.Send)
				}
			}
		case <-h.stop:
			return
		}
	}
}
