package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/reviewpulse/internal/domain"
	"github.com/pscheid92/reviewpulse/internal/events"
	platformerrors "github.com/pscheid92/reviewpulse/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type sentMsg struct {
	msgType string
	data    any
}

type mockChannel struct {
	mu     sync.Mutex
	state  domain.ConnectionState
	sendOK bool
	sends  []sentMsg
}

func (m *mockChannel) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockChannel) Send(msgType string, data any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sendOK {
		return false
	}
	m.sends = append(m.sends, sentMsg{msgType: msgType, data: data})
	return true
}

func (m *mockChannel) sent() []sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMsg(nil), m.sends...)
}

type mockFallback struct {
	mu        sync.Mutex
	texts     []string
	result    *domain.AnalysisResult
	err       error
	analytics *domain.AnalyticsSummary
}

func (m *mockFallback) AnalyzeText(_ context.Context, text string, _ bool) (*domain.AnalysisResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.AnalysisResult{Sentiment: "neutral"}, nil
}

func (m *mockFallback) Analytics(context.Context) (*domain.AnalyticsSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.analytics != nil {
		return m.analytics, nil
	}
	return &domain.AnalyticsSummary{}, nil
}

func (m *mockFallback) analyzed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

type mockSink struct {
	mu        sync.Mutex
	results   []domain.AnalysisResult
	analytics []domain.AnalyticsSummary
	newOnes   []domain.NewAnalysisData
	busy      []bool
	failures  []error
}

func (m *mockSink) Result(result domain.AnalysisResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *mockSink) Analytics(summary domain.AnalyticsSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analytics = append(m.analytics, summary)
}

func (m *mockSink) NewAnalysis(analysis domain.NewAnalysisData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newOnes = append(m.newOnes, analysis)
}

func (m *mockSink) Busy(busy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = append(m.busy, busy)
}

func (m *mockSink) Failure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, err)
}

func (m *mockSink) resultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

func (m *mockSink) failureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.failures)
}

func (m *mockSink) busySignals() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.busy...)
}

// --- Fixture ---

type fixture struct {
	coordinator *Coordinator
	channel     *mockChannel
	fallback    *mockFallback
	sink        *mockSink
	bus         *events.Bus
	clock       *clockwork.FakeClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		channel:  &mockChannel{state: domain.StateOpen, sendOK: true},
		fallback: &mockFallback{},
		sink:     &mockSink{},
		bus:      events.NewBus(nil),
		clock:    clockwork.NewFakeClock(),
	}
	f.coordinator = NewCoordinator(cfg, f.channel, f.fallback, f.sink, f.bus, f.clock, nil)
	t.Cleanup(f.coordinator.Close)
	return f
}

func defaultTestConfig() Config {
	return Config{
		DebounceWindow:   100 * time.Millisecond,
		MinRealtimeChars: 10,
		ResultTimeout:    5 * time.Second,
		PushEnabled:      true,
		SaveToDB:         true,
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

// --- Tests ---

func TestCoordinator_ManualUsesPushChannelWhenOpen(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.Submit("this product is wonderful", domain.ModeManual)

	sends := f.channel.sent()
	require.Len(t, sends, 1)
	assert.Equal(t, domain.MsgAnalyzeText, sends[0].msgType)

	payload := sends[0].data.(domain.AnalyzeTextData)
	assert.Equal(t, "this product is wonderful", payload.Text)
	assert.NotEmpty(t, payload.RequestID)

	// No fallback round trip happens on the push path.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.fallback.analyzed())
	assert.Equal(t, []bool{true}, f.sink.busySignals())
}

func TestCoordinator_ManualFallsBackWhenChannelNotOpen(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	f.channel.state = domain.StateClosed
	f.fallback.result = &domain.AnalysisResult{Sentiment: "positive", Confidence: 0.9}

	f.coordinator.Submit("this product is wonderful", domain.ModeManual)

	eventually(t, func() bool { return f.sink.resultCount() == 1 }, "result never delivered")
	assert.Equal(t, []string{"this product is wonderful"}, f.fallback.analyzed())
	assert.Empty(t, f.channel.sent())
	eventually(t, func() bool {
		signals := f.sink.busySignals()
		return len(signals) == 2 && signals[0] && !signals[1]
	}, "busy signal not cleared")
}

func TestCoordinator_ManualFallsBackWhenPushDisabled(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.PushEnabled = false
	f := newFixture(t, cfg)

	f.coordinator.Submit("this product is wonderful", domain.ModeManual)

	eventually(t, func() bool { return len(f.fallback.analyzed()) == 1 }, "fallback not used")
	assert.Empty(t, f.channel.sent())
}

func TestCoordinator_SecondManualWhileOutstandingIsDropped(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.Submit("first submission of text", domain.ModeManual)
	f.coordinator.Submit("second submission of text", domain.ModeManual)

	assert.Len(t, f.channel.sent(), 1)
	assert.Equal(t, []bool{true}, f.sink.busySignals())
}

func TestCoordinator_EmptySubmitIsNoop(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.Submit("", domain.ModeManual)
	f.coordinator.Submit("   \t\n", domain.ModeManual)
	f.coordinator.Submit("   ", domain.ModeRealtime)

	f.clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.channel.sent())
	assert.Empty(t, f.fallback.analyzed())
	assert.Empty(t, f.sink.busySignals())
}

func TestCoordinator_ShortRealtimeInputOnlyClearsBusy(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.Submit("ok", domain.ModeRealtime)
	f.clock.Advance(100 * time.Millisecond)

	eventually(t, func() bool {
		signals := f.sink.busySignals()
		return len(signals) == 1 && !signals[0]
	}, "busy not cleared for short input")
	assert.Empty(t, f.channel.sent())
	assert.Empty(t, f.fallback.analyzed())
}

func TestCoordinator_RealtimeInputIsDebouncedToLastText(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.Submit("the first partial input", domain.ModeRealtime)
	f.clock.Advance(50 * time.Millisecond)
	f.coordinator.Submit("the second partial input", domain.ModeRealtime)
	f.clock.Advance(50 * time.Millisecond)
	f.coordinator.Submit("the final complete input", domain.ModeRealtime)

	f.clock.Advance(100 * time.Millisecond)

	eventually(t, func() bool { return len(f.channel.sent()) == 1 }, "debounced attempt never fired")
	payload := f.channel.sent()[0].data.(domain.AnalyzeTextData)
	assert.Equal(t, "the final complete input", payload.Text)
}

func TestCoordinator_PushResultResolvesPendingAndUnblocksManual(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.Submit("first submission of text", domain.ModeManual)
	sends := f.channel.sent()
	require.Len(t, sends, 1)
	requestID := sends[0].data.(domain.AnalyzeTextData).RequestID

	result := domain.AnalysisResult{Sentiment: "positive", RequestID: requestID}
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	f.bus.Emit(events.Type(domain.MsgAnalysisResult), json.RawMessage(raw))

	assert.Equal(t, 1, f.sink.resultCount())
	assert.Equal(t, []bool{true, false}, f.sink.busySignals())

	// The guard is released, so the next manual submission goes out.
	f.coordinator.Submit("second submission of text", domain.ModeManual)
	assert.Len(t, f.channel.sent(), 2)
}

func TestCoordinator_ResultWithoutRequestIDResolvesOldestPending(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.Submit("a realtime line that is long enough", domain.ModeRealtime)
	f.clock.Advance(100 * time.Millisecond)
	eventually(t, func() bool { return len(f.channel.sent()) == 1 }, "realtime attempt never fired")

	f.bus.Emit(events.Type(domain.MsgAnalysisResult), json.RawMessage(`{"sentiment":"negative"}`))

	assert.Equal(t, 1, f.sink.resultCount())

	// The pending entry is consumed, so the timeout never fires.
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.sink.failureCount())
}

func TestCoordinator_LateResultIsStillDisplayed(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.bus.Emit(events.Type(domain.MsgAnalysisResult), json.RawMessage(`{"sentiment":"positive"}`))

	assert.Equal(t, 1, f.sink.resultCount())
	assert.Empty(t, f.sink.busySignals())
}

func TestCoordinator_PushTimeoutReportsFailureAndClearsBusy(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.Submit("first submission of text", domain.ModeManual)
	require.Len(t, f.channel.sent(), 1)

	f.clock.Advance(5 * time.Second)

	eventually(t, func() bool { return f.sink.failureCount() == 1 }, "timeout failure never surfaced")
	f.sink.mu.Lock()
	failure := f.sink.failures[0]
	f.sink.mu.Unlock()
	assert.Equal(t, platformerrors.TypeTimeout, platformerrors.TypeOf(failure))
	eventually(t, func() bool {
		signals := f.sink.busySignals()
		return len(signals) == 2 && !signals[1]
	}, "busy not cleared after timeout")

	// The guard is released again.
	f.coordinator.Submit("second submission of text", domain.ModeManual)
	assert.Len(t, f.channel.sent(), 2)
}

func TestCoordinator_FallbackErrorSurfacesFailure(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	f.channel.state = domain.StateError
	f.fallback.err = errors.New("backend unavailable")

	f.coordinator.Submit("this product is wonderful", domain.ModeManual)

	eventually(t, func() bool { return f.sink.failureCount() == 1 }, "failure never surfaced")
	assert.Zero(t, f.sink.resultCount())
	eventually(t, func() bool {
		signals := f.sink.busySignals()
		return len(signals) == 2 && !signals[1]
	}, "busy not cleared after failure")
}

func TestCoordinator_FailedSendFallsBackImmediately(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	f.channel.sendOK = false

	f.coordinator.Submit("this product is wonderful", domain.ModeManual)

	eventually(t, func() bool { return len(f.fallback.analyzed()) == 1 }, "fallback not used after failed send")

	// The stale pending entry is rolled back, so no timeout failure follows.
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.sink.failureCount())
}

func TestCoordinator_RequestAnalyticsPrefersPushChannel(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.RequestAnalytics()

	sends := f.channel.sent()
	require.Len(t, sends, 1)
	assert.Equal(t, domain.MsgGetAnalytics, sends[0].msgType)
}

func TestCoordinator_RequestAnalyticsFallsBack(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	f.channel.state = domain.StateClosed
	f.fallback.analytics = &domain.AnalyticsSummary{TotalReviews: 7}

	f.coordinator.RequestAnalytics()

	eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return len(f.sink.analytics) == 1 && f.sink.analytics[0].TotalReviews == 7
	}, "analytics never delivered")
}

func TestCoordinator_AnalyticsUpdateEventReachesSink(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.bus.Emit(events.Type(domain.MsgAnalyticsUpdate), json.RawMessage(`{"total_reviews":3}`))

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.analytics, 1)
	assert.Equal(t, 3, f.sink.analytics[0].TotalReviews)
}

func TestCoordinator_NewAnalysisEventReachesSink(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.bus.Emit(events.Type(domain.MsgNewAnalysis), json.RawMessage(`{"sentiment":"positive","text_preview":"lovely"}`))

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.newOnes, 1)
	assert.Equal(t, "lovely", f.sink.newOnes[0].TextPreview)
}

func TestCoordinator_CloseDetachesFromBus(t *testing.T) {
	f := newFixture(t, defaultTestConfig())

	f.coordinator.Close()
	f.bus.Emit(events.Type(domain.MsgAnalysisResult), json.RawMessage(`{"sentiment":"positive"}`))

	assert.Zero(t, f.sink.resultCount())
}
