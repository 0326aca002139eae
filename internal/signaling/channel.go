// Package signaling implements the persistent control channel between the
// broadcaster and the platform gateway. It carries session events and
// media-negotiation payloads; the media transport itself is separate.
package signaling

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	writeWait     = 10 * time.Second
	readLimit     = 65536
	sendQueueSize = 256
)

// DialOptions parameterize the gateway connection. Purpose discriminates
// traffic classes on a multiplexed gateway (chat, stream control, ...).
type DialOptions struct {
	URL     string
	Token   string
	Purpose string
}

// Channel is one open signaling connection. Incoming messages are delivered
// in arrival order by a single read loop; per-viewer ordering follows from
// that. Channel failures are logged and close the channel, but never end the
// session on their own.
type Channel struct {
	conn   *websocket.Conn
	send   chan Message
	done   chan struct{}
	logger *zap.Logger
	once   sync.Once
}

// Dial opens the gateway connection, authenticated by the bearer token and
// purpose query parameters, and starts the write pump.
func Dial(ctx context.Context, opts DialOptions, logger *zap.Logger) (*Channel, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", opts.Token)
	purpose := opts.Purpose
	if purpose == "" {
		purpose = "stream"
	}
	q.Set("purpose", purpose)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		conn:   conn,
		send:   make(chan Message, sendQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writePump()
	return c, nil
}

// Run reads messages and hands each to handler until the channel closes.
// It blocks; callers run it on its own goroutine.
func (c *Channel) Run(handler func(Message)) {
	defer c.Close()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("signaling read failed", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		handler(msg)
	}
}

// Send queues a message for delivery. It fails once the channel is closed
// and drops the message when the send queue is full.
func (c *Channel) Send(msg Message) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("signaling send queue full, dropping message", zap.String("type", string(msg.Type)))
		return nil
	}
}

// Close shuts the connection down. Idempotent.
func (c *Channel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("signaling write failed", zap.Error(err))
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
