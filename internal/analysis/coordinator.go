// Package analysis decides, per analysis request, between the push channel
// and the fallback boundary, coalesces high-frequency realtime input, and
// guards against overlapping manual submissions.
package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/reviewpulse/internal/debounce"
	"github.com/pscheid92/reviewpulse/internal/domain"
	"github.com/pscheid92/reviewpulse/internal/events"
	"github.com/pscheid92/reviewpulse/internal/metrics"
	"github.com/pscheid92/reviewpulse/internal/platform/correlation"
	platformerrors "github.com/pscheid92/reviewpulse/internal/platform/errors"
)

// Channel is the push-channel surface the coordinator needs. The connection
// state is read here, never mutated.
type Channel interface {
	State() domain.ConnectionState
	Send(msgType string, data any) bool
}

// Fallback is the discrete request/response boundary.
type Fallback interface {
	AnalyzeText(ctx context.Context, text string, saveToDB bool) (*domain.AnalysisResult, error)
	Analytics(ctx context.Context) (*domain.AnalyticsSummary, error)
}

// Sink is the rendering boundary. Implementations must tolerate duplicate
// results; delivery is at-least-once.
type Sink interface {
	Result(result domain.AnalysisResult)
	Analytics(summary domain.AnalyticsSummary)
	NewAnalysis(analysis domain.NewAnalysisData)
	Busy(busy bool)
	Failure(err error)
}

// Config controls one Coordinator instance.
type Config struct {
	// DebounceWindow is the realtime quiet period.
	DebounceWindow time.Duration
	// MinRealtimeChars gates realtime submissions: shorter trimmed input
	// only clears the busy signal.
	MinRealtimeChars int
	// ResultTimeout bounds the wait for a push-channel analysis result.
	ResultTimeout time.Duration
	// PushEnabled routes requests over the push channel when it is open.
	// When false the fallback boundary is the sole path.
	PushEnabled bool
	// SaveToDB is forwarded on fallback requests.
	SaveToDB bool
}

// DefaultConfig returns the reference behavior.
func DefaultConfig() Config {
	return Config{
		DebounceWindow:   1500 * time.Millisecond,
		MinRealtimeChars: 10,
		ResultTimeout:    10 * time.Second,
		PushEnabled:      true,
		SaveToDB:         true,
	}
}

type pendingRequest struct {
	id    string
	mode  domain.Mode
	timer clockwork.Timer
}

// Coordinator produces at most one outstanding manual analysis attempt and
// rate-limits realtime attempts through the debouncer.
type Coordinator struct {
	cfg       Config
	channel   Channel
	fallback  Fallback
	sink      Sink
	bus       *events.Bus
	debouncer *debounce.Debouncer
	clock     clockwork.Clock
	logger    *slog.Logger

	mu             sync.Mutex
	manualInFlight bool
	pending        []*pendingRequest

	subs []*events.Subscription
}

func NewCoordinator(cfg Config, channel Channel, fallback Fallback, sink Sink, bus *events.Bus, clock clockwork.Clock, logger *slog.Logger) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 1500 * time.Millisecond
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = 10 * time.Second
	}

	c := &Coordinator{
		cfg:       cfg,
		channel:   channel,
		fallback:  fallback,
		sink:      sink,
		bus:       bus,
		debouncer: debounce.New(clock),
		clock:     clock,
		logger:    logger,
	}

	c.subs = append(c.subs,
		events.OnPayload[json.RawMessage](bus, events.Type(domain.MsgAnalysisResult), c.handleAnalysisResult),
		events.OnPayload[json.RawMessage](bus, events.Type(domain.MsgAnalyticsUpdate), c.handleAnalytics),
		events.OnPayload[json.RawMessage](bus, events.Type(domain.MsgInitialData), c.handleAnalytics),
		events.OnPayload[json.RawMessage](bus, events.Type(domain.MsgNewAnalysis), c.handleNewAnalysis),
	)

	return c
}

// Submit routes one analysis request. Empty-after-trim input is a no-op.
func (c *Coordinator) Submit(text string, mode domain.Mode) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	switch mode {
	case domain.ModeRealtime:
		c.debouncer.Schedule(func() { c.realtimeFire(trimmed) }, c.cfg.DebounceWindow)
	case domain.ModeManual:
		c.submitManual(trimmed)
	default:
		c.logger.Warn("ignoring submit with unknown mode", "mode", string(mode))
	}
}

func (c *Coordinator) realtimeFire(text string) {
	if len([]rune(text)) <= c.cfg.MinRealtimeChars {
		// Too short to analyze: only reset the busy signal.
		c.sink.Busy(false)
		return
	}
	c.attempt(text, domain.ModeRealtime)
}

func (c *Coordinator) submitManual(text string) {
	c.mu.Lock()
	if c.manualInFlight {
		c.mu.Unlock()
		return
	}
	c.manualInFlight = true
	c.mu.Unlock()

	c.sink.Busy(true)
	c.attempt(text, domain.ModeManual)
}

// attempt issues exactly one analysis attempt: the push channel when enabled
// and open, the fallback boundary otherwise.
func (c *Coordinator) attempt(text string, mode domain.Mode) {
	if c.cfg.PushEnabled && c.channel.State() == domain.StateOpen {
		id := uuid.NewString()
		c.registerPending(id, mode)
		if c.channel.Send(domain.MsgAnalyzeText, domain.AnalyzeTextData{Text: text, RequestID: id}) {
			metrics.AnalysisRequests.WithLabelValues(string(mode), "push").Inc()
			return
		}
		c.removePending(id)
	}

	metrics.AnalysisRequests.WithLabelValues(string(mode), "fallback").Inc()
	go c.fallbackAttempt(text, mode)
}

func (c *Coordinator) fallbackAttempt(text string, mode domain.Mode) {
	defer func() {
		r := recover()
		c.finishManual(mode)
		if r != nil {
			c.logger.Error("fallback attempt panicked", "panic", r)
		}
	}()

	ctx := correlation.WithID(context.Background(), correlation.NewID())
	result, err := c.fallback.AnalyzeText(ctx, text, c.cfg.SaveToDB)
	if err != nil {
		metrics.AnalysisFailures.WithLabelValues("fallback").Inc()
		c.logger.WarnContext(ctx, "fallback analysis failed", "mode", string(mode), "error", err)
		c.sink.Failure(err)
		return
	}
	c.sink.Result(*result)
}

// RequestAnalytics asks for a fresh analytics summary, preferring the push
// channel. Push-channel responses arrive later as an analytics_update event.
func (c *Coordinator) RequestAnalytics() {
	if c.cfg.PushEnabled && c.channel.State() == domain.StateOpen {
		if c.channel.Send(domain.MsgGetAnalytics, struct{}{}) {
			return
		}
	}

	go func() {
		ctx := correlation.WithID(context.Background(), correlation.NewID())
		summary, err := c.fallback.Analytics(ctx)
		if err != nil {
			c.logger.WarnContext(ctx, "analytics fetch failed", "error", err)
			c.sink.Failure(err)
			return
		}
		c.sink.Analytics(*summary)
	}()
}

// Close cancels pending debounced work and detaches from the bus. In-flight
// network operations are not cancelable; late results are simply dropped by
// the bus once unsubscribed.
func (c *Coordinator) Close() {
	c.debouncer.Cancel()
	for _, sub := range c.subs {
		c.bus.Off(sub)
	}

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, entry := range pending {
		entry.timer.Stop()
	}
}

func (c *Coordinator) registerPending(id string, mode domain.Mode) {
	entry := &pendingRequest{id: id, mode: mode}
	entry.timer = c.clock.AfterFunc(c.cfg.ResultTimeout, func() { c.expirePending(id) })

	c.mu.Lock()
	c.pending = append(c.pending, entry)
	c.mu.Unlock()
}

func (c *Coordinator) removePending(id string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.pending {
		if entry.id == id {
			c.pending = append(c.pending[:i:i], c.pending[i+1:]...)
			return entry
		}
	}
	return nil
}

// resolvePending matches a result to its pending request by correlation ID.
// Backends that do not echo the ID resolve the oldest pending request.
func (c *Coordinator) resolvePending(id string) *pendingRequest {
	if id != "" {
		return c.removePending(id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	entry := c.pending[0]
	c.pending = c.pending[1:]
	return entry
}

func (c *Coordinator) expirePending(id string) {
	entry := c.removePending(id)
	if entry == nil {
		return
	}

	metrics.AnalysisFailures.WithLabelValues("push_timeout").Inc()
	c.logger.Warn("push channel analysis timed out", "request_id", id, "mode", string(entry.mode))
	c.sink.Failure(platformerrors.TimeoutError("no analysis result received"))
	c.finishManual(entry.mode)
}

// finishManual clears the reentrancy guard and the busy signal. It runs on
// every exit path of a manual attempt.
func (c *Coordinator) finishManual(mode domain.Mode) {
	if mode != domain.ModeManual {
		return
	}

	c.mu.Lock()
	c.manualInFlight = false
	c.mu.Unlock()
	c.sink.Busy(false)
}

func (c *Coordinator) handleAnalysisResult(data json.RawMessage) {
	var result domain.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("malformed analysis result", "error", err)
		return
	}

	if entry := c.resolvePending(result.RequestID); entry != nil {
		entry.timer.Stop()
		c.finishManual(entry.mode)
	}

	// Results are forwarded even without a matching pending entry: duplicate
	// or late results are displayed idempotently.
	c.sink.Result(result)
}

func (c *Coordinator) handleAnalytics(data json.RawMessage) {
	var summary domain.AnalyticsSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		c.logger.Warn("malformed analytics payload", "error", err)
		return
	}
	c.sink.Analytics(summary)
}

func (c *Coordinator) handleNewAnalysis(data json.RawMessage) {
	var analysis domain.NewAnalysisData
	if err := json.Unmarshal(data, &analysis); err != nil {
		c.logger.Warn("malformed new analysis payload", "error", err)
		return
	}
	c.sink.NewAnalysis(analysis)
}
