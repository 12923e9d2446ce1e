package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// Client is one live WebSocket connection, rate-limited and
// FIFO-ordered per socket (spec.md §5 "per-socket FIFO ordering").
type Client struct {
	socketID string
	userID   domain.UserID

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu       sync.Mutex
	lastSeen time.Time

	typingStop map[domain.ChatID]*time.Timer
}

func newClient(socketID string, userID domain.UserID, conn *websocket.Conn, sendPerSecond int) *Client {
	return &Client{
		socketID:   socketID,
		userID:     userID,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		limiter:    rate.NewLimiter(rate.Limit(sendPerSecond), sendPerSecond*2),
		lastSeen:   time.Now(),
		typingStop: make(map[domain.ChatID]*time.Timer),
	}
}

// enqueue drops the message rather than blocking when a slow reader's
// buffer is full, so one stalled client can't back-pressure the hub.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// writePump drains c.send to the socket, batching queued messages
// into one frame the way the teacher's pump does, and pings on an
// idle ticker to keep intermediaries from closing the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			n := len(c.send)
			for i := 0; i < n && i < 10; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
