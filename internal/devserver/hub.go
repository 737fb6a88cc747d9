package devserver

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	conn *websocket.Conn
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	conn *websocket.Conn
}

func (cmdUnregister) hubCmd() {}

type cmdSend struct {
	conn *websocket.Conn
	data []byte
}

func (cmdSend) hubCmd() {}

type cmdBroadcast struct {
	data []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdCount struct {
	replyCh chan int
}

func (cmdCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			cw.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	cw.conn.Close()
}

// --- Hub ---

// Hub serializes all writes to connected dashboard clients through a single
// actor loop, so personal replies and broadcasts never interleave on a
// connection.
type Hub struct {
	cmdCh   chan hubCmd
	clients map[*websocket.Conn]*clientWriter
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	hub := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clients: make(map[*websocket.Conn]*clientWriter),
		logger:  logger,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.clients[c.conn] = newClientWriter(c.conn)
			h.logger.Debug("websocket client registered", "clients", len(h.clients))
		case cmdUnregister:
			if cw, ok := h.clients[c.conn]; ok {
				cw.stop()
				delete(h.clients, c.conn)
				h.logger.Debug("websocket client unregistered", "clients", len(h.clients))
			}
		case cmdSend:
			if cw, ok := h.clients[c.conn]; ok {
				h.deliver(cw, c.conn, c.data)
			}
		case cmdBroadcast:
			for conn, cw := range h.clients {
				h.deliver(cw, conn, c.data)
			}
		case cmdCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			for conn, cw := range h.clients {
				cw.stop()
				delete(h.clients, conn)
			}
			return
		}
	}
}

// deliver enqueues without blocking; a client that cannot keep up is
// disconnected rather than stalling the loop.
func (h *Hub) deliver(cw *clientWriter, conn *websocket.Conn, data []byte) {
	select {
	case cw.sendCh <- data:
	default:
		h.logger.Warn("dropping slow websocket client")
		cw.stop()
		delete(h.clients, conn)
	}
}

func (h *Hub) Register(conn *websocket.Conn)   { h.cmdCh <- cmdRegister{conn: conn} }
func (h *Hub) Unregister(conn *websocket.Conn) { h.cmdCh <- cmdUnregister{conn: conn} }

// Send queues a personal message for one client.
func (h *Hub) Send(conn *websocket.Conn, data []byte) {
	h.cmdCh <- cmdSend{conn: conn, data: data}
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(data []byte) {
	h.cmdCh <- cmdBroadcast{data: data}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdCount{replyCh: replyCh}
	return <-replyCh
}

// Stop disconnects all clients and terminates the hub loop.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}
}
