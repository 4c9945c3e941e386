package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a gorilla websocket connection behind a single
// writer goroutine: gorilla permits at most one concurrent writer, and
// the session, the room registry and the liveness loops all produce
// outbound frames.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection starts the writer goroutine. sendBuffer bounds how many
// frames may be in flight before WriteJSON starts waiting.
func NewConnection(conn *websocket.Conn, sendBuffer int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// ReadMessage blocks for the next inbound text frame. Called from the
// session's single read loop only.
func (c *Connection) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage {
			return data, nil
		}
		// Binary frames are not part of the protocol; skip them.
	}
}

// WriteJSON marshals and enqueues one outbound frame.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// CloseWithCode sends a close frame carrying an application close code,
// then tears the connection down.
func (c *Connection) CloseWithCode(code int, reason string) error {
	// Let the writer drain frames queued just before the close, so the
	// final error frame reaches the client ahead of the close frame.
	drainDeadline := time.Now().Add(c.writeTimeout)
	for len(c.writeCh) > 0 && time.Now().Before(drainDeadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)

	deadline := time.Now().Add(c.writeTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	return c.Close()
}

// Close cancels the writer goroutine and closes the transport. Safe to
// call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
