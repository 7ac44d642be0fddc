package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection wraps one websocket with a server-assigned socket id and a
// single writer goroutine. All writes are serialized through writeCh; the
// gorilla connection itself is not safe for concurrent writes.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	userAgent string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.RWMutex
	sessionID string
	role      string
	username  string
}

// NewConnection wraps conn and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, userAgent string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:        uuid.New().String(),
		conn:      conn,
		writeCh:   make(chan []byte, 100),
		userAgent: userAgent,
		ctx:       ctx,
		cancel:    cancel,
	}

	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
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

// ID returns the server-assigned socket id recorded on roster entries.
func (c *Connection) ID() string {
	return c.id
}

// UserAgent returns the handshake User-Agent header.
func (c *Connection) UserAgent() string {
	return c.userAgent
}

// WriteJSON queues one frame for delivery. Safe for concurrent use.
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
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Done is closed when the connection shuts down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close severs the connection. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SetSessionAffiliation records which session (and as what role/name) this
// socket joined. Cleared on explicit leave.
func (c *Connection) SetSessionAffiliation(sessionID, role, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.role = role
	c.username = username
}

// ClearSessionAffiliation drops the stored session affiliation.
func (c *Connection) ClearSessionAffiliation() {
	c.SetSessionAffiliation("", "", "")
}

// SessionAffiliation returns the stored session id, role and username.
func (c *Connection) SessionAffiliation() (sessionID, role, username string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID, c.role, c.username
}
