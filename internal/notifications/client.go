package notifications

import (
	"context"
	"sync"
	"time"

	"academy/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Socket timings. The ping interval must stay under the pong window so an
// idle but healthy peer is never read-timed out.
const (
	frameWriteTimeout = 10 * time.Second
	pongWindow        = time.Minute
	pingInterval      = pongWindow * 9 / 10
	maxInboundFrame   = 16 << 10
	sendBufferSize    = 256
)

// WSHub is implemented by hubs that own clients.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	// ID identifies this connection. Presence compares it on disconnect.
	ID       string
	UserID   uint
	Username string

	Conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan []byte

	// IncomingHandler runs on the read goroutine, one frame at a time.
	IncomingHandler func(*Client, []byte)

	hub       WSHub
	limiter   *rate.Limiter
	closeOnce sync.Once
	// written is closed when WritePump has stopped touching Conn.
	written chan struct{}
}

// NewClient creates a client for conn. messagesPerSecond bounds inbound
// frames; zero disables the limit.
func NewClient(hub WSHub, conn *websocket.Conn, userID uint, messagesPerSecond int) *Client {
	c := &Client{
		ID:      uuid.NewString(),
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		hub:     hub,
		written: make(chan struct{}),
	}
	if messagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(messagesPerSecond), messagesPerSecond*2)
	}
	return c
}

// Allow reports whether another inbound frame fits the rate limit.
func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// ReadPump feeds inbound frames to IncomingHandler until the peer goes away,
// then unregisters the client. Frames over the rate limit are answered with an
// error frame and dropped.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	extend := func() error { return c.Conn.SetReadDeadline(time.Now().Add(pongWindow)) }
	c.Conn.SetReadLimit(maxInboundFrame)
	_ = extend()
	c.Conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				chatLog.EventFailed(context.Background(), c.UserID, "read", err)
			}
			return
		}
		switch {
		case !c.Allow():
			observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "rate_limited").Inc()
			c.TrySend(ErrorFrame("Rate limit exceeded. Please slow down.", "RATE_LIMITED"))
		case c.IncomingHandler != nil:
			c.IncomingHandler(c, frame)
		}
	}
}

// WritePump drains Send onto the connection and pings on an interval. It
// exits when Send is closed or a write fails.
func (c *Client) WritePump() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.Conn.Close()
		close(c.written)
	}()

	for {
		var kind int
		var payload []byte
		select {
		case frame, ok := <-c.Send:
			if !ok {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			kind, payload = websocket.TextMessage, frame
		case <-ping.C:
			kind = websocket.PingMessage
		}
		if err := c.write(kind, payload); err != nil {
			return
		}
	}
}

// WaitWriter blocks until WritePump has returned. The socket handler must not
// return before this, because the connection is recycled once it does.
func (c *Client) WaitWriter() {
	<-c.written
}

func (c *Client) write(kind int, payload []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	return c.Conn.WriteMessage(kind, payload)
}

// TrySend queues a frame without blocking. A full buffer drops the frame and
// tells the client so it can re-fetch.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "full").Inc()
		select {
		case c.Send <- droppedNotice:
		default:
		}
	}
}

// close releases the outbound channel. Safe to call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}
