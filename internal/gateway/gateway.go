package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/cachebus"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/chatservice"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/config"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/delivery"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/presence"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/session"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/store"
)

const typingAutoStop = 10 * time.Second

// Gateway is the WebSocket entry point: it upgrades HTTP connections,
// authenticates them against the SessionRegistry, joins the caller to
// every chat room they actively participate in, and relays cachebus
// fan-out into local sockets (spec.md §4.4).
type Gateway struct {
	hub      *Hub
	sessions *session.Registry
	chats    *chatservice.Service
	presence *presence.Tracker
	delivery *delivery.Engine
	bus      *cachebus.Bus
	store    store.Store
	logger   *logrus.Logger

	cfg      config.WebSocketConfig
	rateCfg  config.RateLimitConfig

	upgrader websocket.Upgrader

	mu           sync.Mutex
	chatRefs     map[domain.ChatID]int
	chatSub      map[domain.ChatID]*cachebus.Subscription
	userSub      map[domain.UserID]*cachebus.Subscription
	globalSub    *cachebus.Subscription
}

func New(
	sessions *session.Registry,
	chats *chatservice.Service,
	tracker *presence.Tracker,
	eng *delivery.Engine,
	bus *cachebus.Bus,
	st store.Store,
	cfg config.WebSocketConfig,
	rateCfg config.RateLimitConfig,
	logger *logrus.Logger,
) *Gateway {
	g := &Gateway{
		hub:      NewHub(cfg.MaxConnections, logger),
		sessions: sessions,
		chats:    chats,
		presence: tracker,
		delivery: eng,
		bus:      bus,
		store:    st,
		logger:   logger,
		cfg:      cfg,
		rateCfg:  rateCfg,
		chatRefs: make(map[domain.ChatID]int),
		chatSub:  make(map[domain.ChatID]*cachebus.Subscription),
		userSub:  make(map[domain.UserID]*cachebus.Subscription),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(g.cfg.AllowedOrigins) == 0 {
		return false
	}
	for _, o := range g.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Run starts the hub's register/unregister loop and the global
// presence relay; it blocks until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	stop := make(chan struct{})
	go g.hub.Run(stop)

	g.globalSub = g.bus.SubscribeGlobalStatus(ctx)
	go func() {
		for env := range g.globalSub.C {
			data, _ := json.Marshal(env)
			g.hub.mu.RLock()
			clients := make([]*Client, 0, len(g.hub.clients))
			for _, c := range g.hub.clients {
				clients = append(clients, c)
			}
			g.hub.mu.RUnlock()
			for _, c := range clients {
				c.enqueue(data)
			}
		}
	}()

	<-ctx.Done()
	close(stop)
	_ = g.globalSub.Close()
	g.hub.Shutdown()
}

// ServeWS is the gin handler mounted at /ws. It expects an access
// token in the "token" query parameter (browsers cannot set
// Authorization headers on the WebSocket handshake).
func (g *Gateway) ServeWS(c *gin.Context) {
	if !g.hub.Admit() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "connection limit reached"})
		return
	}

	tokenString := c.Query("token")
	sessionID, userID, err := g.sessions.VerifyAccessToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	handshakeCtx, cancel := context.WithTimeout(c.Request.Context(), g.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.WithError(err).Warn("gateway: upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	socketID := uuid.New().String()
	client := newClient(socketID, userID, conn, g.rateCfg.SendPerSecond)

	if err := g.sessions.AttachSocket(handshakeCtx, sessionID, socketID); err != nil {
		g.logger.WithError(err).Warn("gateway: attach socket failed")
	}

	g.hub.register <- client
	g.subscribeUser(c.Request.Context(), userID)
	g.joinActiveChats(handshakeCtx, client, userID)

	if err := g.presence.OnConnect(handshakeCtx, userID); err != nil {
		g.logger.WithError(err).Warn("gateway: presence on-connect failed")
	}
	if err := g.delivery.RedeliverOnReconnect(handshakeCtx, userID); err != nil {
		g.logger.WithError(err).Warn("gateway: redeliver on reconnect failed")
	}

	go client.writePump()
	go g.readPump(client, sessionID)
}

func (g *Gateway) joinActiveChats(ctx context.Context, client *Client, userID domain.UserID) {
	summaries, err := g.store.ListUserChats(ctx, userID)
	if err != nil {
		g.logger.WithError(err).Warn("gateway: list user chats for room join failed")
		return
	}
	for _, cs := range summaries {
		g.hub.JoinRoom(cs.Chat.ID, client)
		g.subscribeChat(ctx, cs.Chat.ID)
	}
}

func (g *Gateway) subscribeChat(ctx context.Context, chatID domain.ChatID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chatRefs[chatID]++
	if g.chatRefs[chatID] > 1 {
		return
	}
	sub := g.bus.SubscribeChat(ctx, chatID)
	g.chatSub[chatID] = sub
	go func() {
		for env := range sub.C {
			data, _ := json.Marshal(env)
			g.hub.LocalBroadcastToChat(chatID, data)
		}
	}()
}

func (g *Gateway) unsubscribeChat(chatID domain.ChatID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chatRefs[chatID]--
	if g.chatRefs[chatID] > 0 {
		return
	}
	if sub, ok := g.chatSub[chatID]; ok {
		_ = sub.Close()
		delete(g.chatSub, chatID)
	}
	delete(g.chatRefs, chatID)
}

func (g *Gateway) subscribeUser(ctx context.Context, userID domain.UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.userSub[userID]; ok {
		return
	}
	sub := g.bus.SubscribeUser(ctx, userID)
	g.userSub[userID] = sub
	go func() {
		for env := range sub.C {
			data, _ := json.Marshal(env)
			g.hub.LocalBroadcastToUser(userID, data)
		}
	}()
}

func apperrStatus(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput, apperr.KindTooLarge:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
