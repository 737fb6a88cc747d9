package connection

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrCleanClose marks a read error caused by an intentional close. Transport
// implementations (and test fakes) return it so the manager can tell a clean
// shutdown from a dropped connection.
var ErrCleanClose = errors.New("connection closed cleanly")

// Conn is a single established push-channel transport.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the connection dies.
	ReadMessage() ([]byte, error)
	// WriteMessage transmits one frame, bounded by a write deadline.
	WriteMessage(data []byte) error
	// WriteClose initiates a clean close handshake.
	WriteClose() error
	// Close tears the connection down immediately.
	Close() error
}

// Dialer establishes push-channel transports. The manager owns exactly one
// live Conn at a time.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketURL derives the push-channel URL from the HTTP base URL of the
// backend, upgrading the scheme to its websocket counterpart (https gets the
// secure variant).
func WebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in server url", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// wsDialer is the production Dialer backed by gorilla/websocket.
type wsDialer struct {
	writeTimeout time.Duration
}

// NewWebsocketDialer returns a gorilla/websocket-backed dialer. Writes on the
// resulting connections are bounded by writeTimeout.
func NewWebsocketDialer(writeTimeout time.Duration) Dialer {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &wsDialer{writeTimeout: writeTimeout}
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{conn: conn, writeTimeout: d.writeTimeout}, nil
}

// wsConn wraps a gorilla connection. gorilla allows one concurrent writer,
// so writes are serialized with a mutex.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("%w: %w", ErrCleanClose, err)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return data, nil
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *wsConn) WriteClose() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(c.writeTimeout)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		return fmt.Errorf("write close frame: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
