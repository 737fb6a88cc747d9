// Package connection owns the push-channel lifecycle: a single websocket
// connection, its state machine, and the bounded-backoff reconnection policy.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/reviewpulse/internal/domain"
	"github.com/pscheid92/reviewpulse/internal/events"
	"github.com/pscheid92/reviewpulse/internal/metrics"
)

// ErrReconnectExhausted is the payload of the error event emitted once all
// automatic reconnect attempts are used up. Recovery then requires an
// explicit Connect call.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// Config controls one Manager instance.
type Config struct {
	// URL is the push-channel endpoint (see WebsocketURL).
	URL string

	// MaxAttempts bounds automatic reconnects after an abnormal close.
	MaxAttempts int

	// BaseDelay is the delay before the first reconnect; each further
	// attempt doubles it, capped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultConfig returns the reference reconnection policy.
func DefaultConfig(url string) Config {
	return Config{
		URL:         url,
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Manager maintains the push channel and announces its lifecycle on the
// event bus: Connected, Disconnected, Error, plus Message and one
// envelope-type-specific event per inbound frame.
//
// The connection state is mutated exclusively here; everything else reads it
// through State().
type Manager struct {
	cfg    Config
	bus    *events.Bus
	dialer Dialer
	clock  clockwork.Clock
	logger *slog.Logger

	mu             sync.Mutex
	state          domain.ConnectionState
	conn           Conn
	attempt        int
	closing        bool
	reconnectTimer clockwork.Timer

	// connGen invalidates callbacks of superseded connections: dial results
	// and read-loop exits compare their generation before touching state.
	connGen uint64
}

func NewManager(cfg Config, bus *events.Bus, dialer Dialer, clock clockwork.Clock, logger *slog.Logger) *Manager {
	if dialer == nil {
		dialer = NewWebsocketDialer(5 * time.Second)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 30 * time.Second
	}

	return &Manager{
		cfg:    cfg,
		bus:    bus,
		dialer: dialer,
		clock:  clock,
		logger: logger,
		state:  domain.StateClosed,
	}
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the push channel. It is idempotent while a connection is
// already being established or open. Calling it after the reconnect budget
// was exhausted restarts with a fresh budget.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == domain.StateConnecting || m.state == domain.StateOpen {
		m.mu.Unlock()
		return
	}
	m.stopReconnectTimerLocked()
	if m.state == domain.StateError {
		m.attempt = 0
	}
	m.closing = false
	m.setStateLocked(domain.StateConnecting)
	m.connGen++
	gen := m.connGen
	m.mu.Unlock()

	go m.dial(gen)
}

func (m *Manager) dial(gen uint64) {
	conn, err := m.dialer.Dial(context.Background(), m.cfg.URL)

	m.mu.Lock()
	if gen != m.connGen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		m.setStateLocked(domain.StateError)
		m.mu.Unlock()
		m.logger.Warn("push channel dial failed", "url", m.cfg.URL, "error", err)
		m.bus.Emit(events.Error, err)
		m.handleClose(gen, false)
		return
	}

	m.conn = conn
	m.attempt = 0
	m.setStateLocked(domain.StateOpen)
	m.mu.Unlock()

	m.logger.Info("push channel open", "url", m.cfg.URL)
	m.bus.Emit(events.Connected, nil)

	go m.readLoop(gen, conn)
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(gen, err)
			return
		}
		m.handleFrame(data)
	}
}

func (m *Manager) handleReadError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.connGen {
		m.mu.Unlock()
		return
	}
	clean := m.closing || errors.Is(err, ErrCleanClose)
	if !clean {
		m.setStateLocked(domain.StateError)
	}
	m.mu.Unlock()

	if !clean {
		m.logger.Warn("push channel read failed", "error", err)
		m.bus.Emit(events.Error, err)
	}
	m.handleClose(gen, clean)
}

// handleClose transitions to CLOSED, emits Disconnected, and decides whether
// an automatic reconnect gets scheduled.
func (m *Manager) handleClose(gen uint64, clean bool) {
	m.mu.Lock()
	if gen != m.connGen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.setStateLocked(domain.StateClosed)

	wasClosing := m.closing
	m.closing = false

	exhausted := false
	if !clean && !wasClosing {
		if m.attempt < m.cfg.MaxAttempts {
			delay := m.reconnectDelayLocked()
			m.attempt++
			metrics.ReconnectAttempts.Inc()
			m.logger.Info("scheduling reconnect", "attempt", m.attempt, "delay", delay)
			m.reconnectTimer = m.clock.AfterFunc(delay, m.reconnect)
		} else {
			exhausted = true
			m.setStateLocked(domain.StateError)
		}
	}
	m.mu.Unlock()

	m.bus.Emit(events.Disconnected, nil)
	if exhausted {
		m.logger.Error("reconnect attempts exhausted", "attempts", m.cfg.MaxAttempts)
		m.bus.Emit(events.Error, ErrReconnectExhausted)
	}
}

// reconnectDelayLocked computes min(BaseDelay * 2^attempt, MaxDelay).
func (m *Manager) reconnectDelayLocked() time.Duration {
	delay := m.cfg.BaseDelay
	for i := 0; i < m.attempt; i++ {
		delay *= 2
		if delay >= m.cfg.MaxDelay {
			return m.cfg.MaxDelay
		}
	}
	return delay
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.state != domain.StateClosed || m.closing {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(domain.StateConnecting)
	m.connGen++
	gen := m.connGen
	m.mu.Unlock()

	m.dial(gen)
}

// Send serializes {type, data} and transmits it. It returns false without
// blocking when the channel is not open or the write fails.
func (m *Manager) Send(msgType string, data any) bool {
	m.mu.Lock()
	conn := m.conn
	open := m.state == domain.StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		metrics.SendsFailed.Inc()
		return false
	}

	payload, err := json.Marshal(data)
	if err != nil {
		m.logger.Error("marshal envelope data failed", "type", msgType, "error", err)
		metrics.SendsFailed.Inc()
		return false
	}
	raw, err := json.Marshal(domain.Envelope{Type: msgType, Data: payload})
	if err != nil {
		m.logger.Error("marshal envelope failed", "type", msgType, "error", err)
		metrics.SendsFailed.Inc()
		return false
	}

	if err := conn.WriteMessage(raw); err != nil {
		m.logger.Warn("push channel write failed", "type", msgType, "error", err)
		metrics.SendsFailed.Inc()
		return false
	}
	return true
}

// Close initiates a clean close and suppresses auto-reconnect for it.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopReconnectTimerLocked()

	switch m.state {
	case domain.StateOpen:
		m.closing = true
		conn := m.conn
		m.mu.Unlock()
		if conn != nil {
			if err := conn.WriteClose(); err != nil {
				conn.Close()
			}
		}
	case domain.StateConnecting:
		// Discard the in-flight dial; its result compares generations and
		// closes any late connection itself.
		m.closing = true
		m.connGen++
		m.setStateLocked(domain.StateClosed)
		m.mu.Unlock()
		m.bus.Emit(events.Disconnected, nil)
	default:
		m.mu.Unlock()
	}
}

func (m *Manager) handleFrame(data []byte) {
	var envelope domain.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
		// Malformed frames are local, non-fatal: drop and keep reading.
		m.logger.Debug("dropping malformed frame", "error", err)
		metrics.FramesDropped.Inc()
		return
	}

	metrics.FramesReceived.WithLabelValues(envelope.Type).Inc()
	m.bus.Emit(events.Message, envelope)
	m.bus.Emit(events.Type(envelope.Type), envelope.Data)
}

func (m *Manager) setStateLocked(state domain.ConnectionState) {
	m.state = state
	metrics.ConnectionState.Set(float64(state))
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}
