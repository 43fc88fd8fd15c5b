package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"chitchat/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// MaxConnsPerUser caps sockets per account.
	MaxConnsPerUser = 5
	// MaxTotalConns caps sockets per process.
	MaxTotalConns = 10000
)

var (
	ErrUserConnLimit   = errors.New("user connection limit reached")
	ErrServerConnLimit = errors.New("server connection limit reached")
)

// Hub maps userID to the set of that user's open clients.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	maxPerUser int
	maxTotal   int

	shutdownOnce sync.Once
}

// NewHub creates a Hub with the default connection caps.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[uint]map[*Client]struct{}),
		maxPerUser: MaxConnsPerUser,
		maxTotal:   MaxTotalConns,
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "notification hub" }

// Register adds a connection for userID, enforcing both caps.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= h.maxTotal {
		return nil, ErrServerConnLimit
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= h.maxPerUser {
		return nil, ErrUserConnLimit
	}

	client := newClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnections.Inc()
	return client, nil
}

// UnregisterClient removes client and closes its send buffer. Calling it
// twice is harmless.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	close(client.Send)
	h.totalConns--
	observability.WebSocketConnections.Dec()
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
}

// Broadcast sends message to all connections for userID.
func (h *Hub) Broadcast(userID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.conns[userID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// Connections returns how many sockets userID has open.
func (h *Hub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Total returns the number of open sockets.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// StartWiring connects n to this hub. With Redis it subscribes to every user
// channel and forwards payloads to local sockets; without Redis the notifier
// delivers to the hub directly.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	if !n.Distributed() {
		n.deliverLocally(h.Broadcast)
		return nil
	}
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		userID, ok := ParseUserChannel(channel)
		if !ok {
			observability.Logger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		h.Broadcast(userID, payload)
	})
}

// Shutdown closes every client's send buffer; each write pump then sends a
// going-away frame and closes its socket.
func (h *Hub) Shutdown(_ context.Context) error {
	h.shutdownOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, clients := range h.conns {
			for client := range clients {
				close(client.Send)
				observability.WebSocketConnections.Dec()
			}
		}
		h.conns = make(map[uint]map[*Client]struct{})
		h.totalConns = 0
	})
	return nil
}
