package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the server.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the server.
	pongWait = 60 * time.Second

	// Send pings to the server with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from the server.
	maxMessageSize = 1 << 16
)

// wsConn wraps a single websocket connection to the hub. The owning Client
// replaces it wholesale on every reconnect.
type wsConn struct {
	conn      *websocket.Conn
	out       chan *Packet
	done      chan struct{}
	closeOnce sync.Once
	client    *Client
	ticker    *time.Ticker
	logger    *slog.Logger
}

func newWSConn(conn *websocket.Conn, client *Client, logger *slog.Logger) *wsConn {
	return &wsConn{
		conn:   conn,
		out:    make(chan *Packet, 16),
		done:   make(chan struct{}),
		client: client,
		ticker: time.NewTicker(pingPeriod),
		logger: logger,
	}
}

// close initiates a graceful shutdown of the connection. Safe to call more
// than once.
func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// send hands a packet to the write loop. It never blocks past the context or
// the connection's lifetime.
func (c *wsConn) send(ctx context.Context, p *Packet) error {
	select {
	case c.out <- p:
		return nil
	case <-c.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wsConn) readLoop() {
	defer func() {
		c.conn.Close()
		c.client.connLost(c)
		c.logger.Debug("exited read loop")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		mt, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		packet, err := decodePacket(mt, r)
		if err != nil {
			c.logger.Error(fmt.Sprintf("DecodePacket: %v", err))
			continue
		}

		c.client.receive(packet)
	}
}

func (c *wsConn) writeLoop() {
	defer func() {
		c.ticker.Stop()
		c.conn.Close()
		c.logger.Debug("exited write loop")
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case packet := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := encodePacket(c.conn.NextWriter, packet); err != nil {
				c.logger.Error(fmt.Sprintf("EncodePacket: %v", err))
			}
		case <-c.ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("WritePing: %v", err))
				return
			}
		}
	}
}
