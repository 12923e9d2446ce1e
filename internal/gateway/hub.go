// Package gateway is the WebSocket Gateway (spec.md §4.4): connection
// handshake, room membership, client event dispatch, and cross-node
// fan-out via cachebus pub/sub. Built on the Hub/Client pattern, kept
// faithful to the teacher's broadcast-worker shape but generalized
// from a single global broadcast channel to per-room subscriptions.
package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

const (
	maxMessageSize  = 65536
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	sendBuffer      = 256
	shutdownDrain   = 5 * time.Second
)

// Hub tracks every live connection on this node and the chat rooms
// they belong to, so events relayed from cachebus pub/sub can be
// delivered to the right local sockets.
type Hub struct {
	mu sync.RWMutex

	clients    map[string]*Client            // socketID -> client
	byUser     map[domain.UserID]map[string]*Client
	chatRooms  map[domain.ChatID]map[string]*Client

	register   chan *Client
	unregister chan *Client

	activeConnections int64
	maxConnections     int64

	logger *logrus.Logger
}

func NewHub(maxConnections int64, logger *logrus.Logger) *Hub {
	return &Hub{
		clients:        make(map[string]*Client),
		byUser:         make(map[domain.UserID]map[string]*Client),
		chatRooms:      make(map[domain.ChatID]map[string]*Client),
		register:       make(chan *Client, 128),
		unregister:     make(chan *Client, 128),
		maxConnections: maxConnections,
		logger:         logger,
	}
}

// Admit reports whether another connection is allowed under the
// configured cap (spec.md §5 connection budget).
func (h *Hub) Admit() bool {
	return atomic.LoadInt64(&h.activeConnections) < h.maxConnections
}

// Run processes register/unregister events until stopped; call it
// from its own goroutine alongside the gateway's accept loop.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.socketID] = c
	if h.byUser[c.userID] == nil {
		h.byUser[c.userID] = make(map[string]*Client)
	}
	h.byUser[c.userID][c.socketID] = c
	atomic.AddInt64(&h.activeConnections, 1)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.socketID]; !ok {
		return
	}
	delete(h.clients, c.socketID)
	delete(h.byUser[c.userID], c.socketID)
	if len(h.byUser[c.userID]) == 0 {
		delete(h.byUser, c.userID)
	}
	for chatID, members := range h.chatRooms {
		delete(members, c.socketID)
		if len(members) == 0 {
			delete(h.chatRooms, chatID)
		}
	}
	atomic.AddInt64(&h.activeConnections, -1)
	close(c.send)
}

// JoinRoom adds a socket to a chat room (spec.md §4.4: one room per
// active participation, joined at connect time).
func (h *Hub) JoinRoom(chatID domain.ChatID, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.chatRooms[chatID] == nil {
		h.chatRooms[chatID] = make(map[string]*Client)
	}
	h.chatRooms[chatID][c.socketID] = c
}

func (h *Hub) LeaveRoom(chatID domain.ChatID, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.chatRooms[chatID], c.socketID)
}

// LocalBroadcastToChat delivers payload to every socket on this node
// that has joined chatID's room, without a cachebus publish — used by
// the cachebus subscription relay to hand events received on the
// chat's pub/sub topic to this node's sockets.
func (h *Hub) LocalBroadcastToChat(chatID domain.ChatID, data []byte) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.chatRooms[chatID]))
	for _, c := range h.chatRooms[chatID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(data)
	}
}

// LocalBroadcastToUser delivers payload to every socket this node
// holds for userID (multi-device fan-out).
func (h *Hub) LocalBroadcastToUser(userID domain.UserID, data []byte) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(data)
	}
}

// Shutdown broadcasts a server-shutdown notice to every local client
// and gives writers shutdownDrain to flush before closing (spec.md
// §5 graceful shutdown).
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	notice := []byte(`{"event":"server-shutdown"}`)
	for _, c := range clients {
		c.enqueue(notice)
	}
	time.Sleep(shutdownDrain)
	for _, c := range clients {
		_ = c.conn.Close()
	}
}
