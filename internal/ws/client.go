package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

// Client is one live websocket connection bound to a resolved identity.
// Outbound frames go through a buffered queue drained by WritePump, so a
// stalled peer never blocks a fan-out to other connections.
type Client struct {
	conn *websocket.Conn
	info ConnInfo

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		conn: conn,
		info: info,
		send: make(chan []byte, sendBuffer),
	}
}

// Info returns the connection metadata captured at accept time.
func (c *Client) Info() ConnInfo {
	return c.info
}

// Enqueue queues a frame for delivery. It never blocks; it reports false when
// the queue is full or the client is already closed.
func (c *Client) Enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump drains the send queue onto the wire. A write failure closes the
// underlying connection, which terminates the read loop and triggers the
// session gate's cleanup.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logrus.WithFields(logrus.Fields{
				"conn_id": c.info.ConnID,
				"user_id": c.info.UserID,
			}).WithError(err).Warn("websocket write failed")
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
