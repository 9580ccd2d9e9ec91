package stream

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/khuongdo/mindmux/internal/common/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024 // 1MB
	sendBuffer     = 16
)

// Client is one viewer's WebSocket connection, tailing exactly one
// session's pane for its lifetime.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	sessionName string
	log         *logger.Logger
	outbound    chan Frame
}

// NewClient wraps conn as a Client of hub, tailing sessionName.
func NewClient(hub *Hub, conn *websocket.Conn, sessionName string, log *logger.Logger) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		sessionName: sessionName,
		log:         log.WithComponent("stream"),
		outbound:    make(chan Frame, sendBuffer),
	}
}

// send queues frame for delivery, dropping it if the client is too slow
// to keep up rather than blocking the broadcaster.
func (c *Client) send(frame Frame) bool {
	select {
	case c.outbound <- frame:
		return true
	default:
		return false
	}
}

// Run starts the client's read and write pumps and blocks until the
// connection closes. It subscribes to the hub on entry and unsubscribes
// on exit.
func (c *Client) Run() {
	c.hub.Subscribe(c, c.sessionName)
	defer c.hub.Unsubscribe(c, c.sessionName)

	done := make(chan struct{})
	go c.readPump(done)
	c.writePump(done)
}

// readPump drains control frames (pong/close) from the connection; the
// protocol is push-only, so any data frame the client sends is ignored.
func (c *Client) readPump(done chan struct{}) {
	defer close(done)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("stream read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case frame := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
