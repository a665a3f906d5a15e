package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// wsConn is the transport endpoint handed to the engine. Frames queue on
// a buffered channel drained by the write pump; a full queue drops the
// frame rather than blocking the fan-out.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan core.Frame, buffer),
	}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
