package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
)

// fakeStream is a scripted stream connection. Frames pushed by the test
// are handed to the worker's read loop one per Read call.
type fakeStream struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	authed   bool
	appKey   string
	session  string
	subCfg   *domain.MarketConfig
	authErr  error
	subErr   error
	readErr  error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeStream) push(frame string) {
	f.frames <- []byte(frame + "\r\n")
}

func (f *fakeStream) Authenticate(appKey, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return f.authErr
	}
	f.authed = true
	f.appKey = appKey
	f.session = session
	return nil
}

func (f *fakeStream) Subscribe(cfg domain.MarketConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subCfg = &cfg
	return nil
}

func (f *fakeStream) Read(p []byte) (int, error) {
	if f.readErr != nil {
		select {
		case frame := <-f.frames:
			return copy(p, frame), nil
		default:
			return 0, f.readErr
		}
	}
	select {
	case frame := <-f.frames:
		return copy(p, frame), nil
	case <-f.closed:
		return 0, io.EOF
	}
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// fakePlacer records submissions and signals each one on a channel.
type fakePlacer struct {
	mu      sync.Mutex
	calls   []domain.OrderIntent
	markets []string
	err     error
	placed  chan domain.OrderIntent
}

func newFakePlacer() *fakePlacer {
	return &fakePlacer{placed: make(chan domain.OrderIntent, 16)}
}

func (p *fakePlacer) PlaceLimitOrder(_ context.Context, marketID string, intent domain.OrderIntent, _ decimal.Decimal, _ string) (json.RawMessage, error) {
	p.mu.Lock()
	p.calls = append(p.calls, intent)
	p.markets = append(p.markets, marketID)
	err := p.err
	p.mu.Unlock()
	p.placed <- intent
	if err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"SUCCESS"}`), nil
}

func (p *fakePlacer) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// fakeClock is a test-controlled time source shared with the worker.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type workerHarness struct {
	worker *Worker
	stream *fakeStream
	placer *fakePlacer
	events chan WorkerEvent
	clock  *fakeClock
}

func newHarness(t *testing.T, up, down float64) *workerHarness {
	t.Helper()
	stream := newFakeStream()
	placer := newFakePlacer()
	events := make(chan WorkerEvent, 64)
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}

	cfg := domain.NewMarketConfig("1.234", decimal.NewFromInt(2), up, down)
	dial := func(context.Context) (MarketStream, error) { return stream, nil }
	w := NewWorker(cfg, Credentials{AppKey: "key", Session: func() string { return "tok" }}, dial, placer, nil, events)
	w.now = clock.now
	w.handshakeTimeout = 2 * time.Second

	return &workerHarness{worker: w, stream: stream, placer: placer, events: events, clock: clock}
}

// start pushes the handshake frames and runs Start to completion.
func (h *workerHarness) start(t *testing.T) {
	t.Helper()
	h.stream.push(`{"op":"connection","connectionId":"100-001"}`)
	h.stream.push(`{"op":"status","id":2,"statusCode":"SUCCESS"}`)
	if err := h.worker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// waitEvent blocks until an event of the given kind arrives.
func (h *workerHarness) waitEvent(t *testing.T, kind EventKind) WorkerEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestWorker_HandshakeSuccess(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.start(t)
	defer h.worker.Stop()

	h.stream.mu.Lock()
	authed, appKey := h.stream.authed, h.stream.appKey
	subCfg := h.stream.subCfg
	h.stream.mu.Unlock()

	if !authed || appKey != "key" {
		t.Error("authentication frame not sent before subscription")
	}
	if subCfg == nil || subCfg.MarketID != "1.234" {
		t.Errorf("subscription config = %+v, want market 1.234", subCfg)
	}

	ev := h.waitEvent(t, EventConnected)
	if ev.ConnectionID != "100-001" {
		t.Errorf("connection id = %q, want 100-001", ev.ConnectionID)
	}
	h.waitEvent(t, EventSubscribed)

	st := h.worker.Status()
	if !st.Running || st.ConnectionID != "100-001" {
		t.Errorf("status = %+v, want running with connection id", st)
	}
}

func TestWorker_HandshakeFailureStatus(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.stream.push(`{"op":"status","id":2,"statusCode":"FAILURE","errorCode":"INVALID_SESSION_INFORMATION","errorMessage":"session expired"}`)

	err := h.worker.Start(context.Background())
	var subErr *domain.SubscriptionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Start error = %v, want SubscriptionError", err)
	}
	if subErr.Code != "INVALID_SESSION_INFORMATION" {
		t.Errorf("code = %q", subErr.Code)
	}
	select {
	case <-h.stream.closed:
	default:
		t.Error("failed handshake must destroy the socket")
	}
}

func TestWorker_HandshakeTimeout(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.worker.handshakeTimeout = 50 * time.Millisecond

	err := h.worker.Start(context.Background())
	if !errors.Is(err, domain.ErrHandshakeTimeout) {
		t.Fatalf("Start error = %v, want ErrHandshakeTimeout", err)
	}
}

func TestWorker_BallCountFromStatusTransitions(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.start(t)
	defer h.worker.Stop()

	// One suspension cycle: a delivery completes; no prices, so no order.
	h.stream.push(`{"op":"mcm","id":2,"pt":1,"mc":[{"id":"1.234","marketDefinition":{"status":"SUSPENDED"}}]}`)
	h.stream.push(`{"op":"mcm","id":2,"pt":2,"mc":[{"id":"1.234","marketDefinition":{"status":"OPEN"}}]}`)
	ev := h.waitEvent(t, EventPriceUpdate)
	for ev.Update.BallCount != 1 {
		ev = h.waitEvent(t, EventPriceUpdate)
	}

	if got := h.placer.callCount(); got != 0 {
		t.Errorf("status-only frames must not trigger orders, got %d", got)
	}
	if st := h.worker.Status(); st.BallCount != 1 {
		t.Errorf("ball count = %d, want 1", st.BallCount)
	}
}

// pushPrices sends one runner-change frame and waits until the worker has
// processed it, so the clock can be advanced safely between frames.
func (h *workerHarness) pushPrices(t *testing.T, frame string) {
	t.Helper()
	h.stream.push(frame)
	h.waitEvent(t, EventPriceUpdate)
}

func TestWorker_MomentumTriggersBackOrder(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.start(t)
	defer h.worker.Stop()

	h.pushPrices(t, `{"op":"mcm","id":2,"pt":1,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,2.0,50]],"batl":[[0,3.0,50]]}]}]}`)
	h.clock.advance(70 * time.Second)
	h.pushPrices(t, `{"op":"mcm","id":2,"pt":2,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,4.0,50]],"batl":[[0,5.0,50]]}]}]}`)
	h.clock.advance(10 * time.Second)
	// +6 move over 80s, trailing 15s not flat, spread 1.0.
	h.pushPrices(t, `{"op":"mcm","id":2,"pt":3,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,8.0,50]],"batl":[[0,9.0,50]]}]}]}`)

	select {
	case intent := <-h.placer.placed:
		if intent.Side != domain.SideBack {
			t.Errorf("side = %s, want BACK", intent.Side)
		}
		if intent.Price != 8.0 {
			t.Errorf("price = %.2f, want current best back 8.0", intent.Price)
		}
		if intent.SelectionID != 101 {
			t.Errorf("selection = %d, want 101", intent.SelectionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an order submission")
	}

	h.worker.waitSubmissions()
	if got := h.worker.guard.InFlightCount(); got != 0 {
		t.Errorf("in-flight count after settle = %d, want 0", got)
	}
}

func TestWorker_CooldownSuppressesSecondOrder(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.start(t)
	defer h.worker.Stop()

	h.pushPrices(t, `{"op":"mcm","id":2,"pt":1,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,2.0,50]],"batl":[[0,3.0,50]]}]}]}`)
	h.clock.advance(70 * time.Second)
	h.pushPrices(t, `{"op":"mcm","id":2,"pt":2,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,4.0,50]],"batl":[[0,5.0,50]]}]}]}`)
	h.clock.advance(10 * time.Second)
	h.pushPrices(t, `{"op":"mcm","id":2,"pt":3,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,8.0,50]],"batl":[[0,9.0,50]]}]}]}`)
	<-h.placer.placed
	h.worker.waitSubmissions()

	// 5s later: still deep in the cooldown, a new qualifying price at a
	// different level must be suppressed.
	h.clock.advance(5 * time.Second)
	h.pushPrices(t, `{"op":"mcm","id":2,"pt":4,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,9.0,50]],"batl":[[0,10.0,50]]}]}]}`)

	if got := h.placer.callCount(); got != 1 {
		t.Errorf("orders placed = %d, want 1 (cooldown must suppress the second)", got)
	}
}

func TestWorker_SpreadVetoesOrder(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.start(t)
	defer h.worker.Stop()

	h.pushPrices(t, `{"op":"mcm","id":2,"pt":1,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,2.0,50]],"batl":[[0,2.5,50]]}]}]}`)
	h.clock.advance(70 * time.Second)
	// Movement +6 but spread 0.5.
	h.pushPrices(t, `{"op":"mcm","id":2,"pt":2,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,8.0,50]],"batl":[[0,8.5,50]]}]}]}`)

	if got := h.placer.callCount(); got != 0 {
		t.Errorf("orders placed = %d, want 0 (spread must veto)", got)
	}
}

func TestWorker_FailedSubmissionDoesNotKillWorker(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.placer.err = errors.New("rpc: all retries exhausted")
	h.start(t)
	defer h.worker.Stop()

	h.pushPrices(t, `{"op":"mcm","id":2,"pt":1,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,2.0,50]],"batl":[[0,3.0,50]]}]}]}`)
	h.clock.advance(70 * time.Second)
	h.pushPrices(t, `{"op":"mcm","id":2,"pt":2,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,4.0,50]],"batl":[[0,5.0,50]]}]}]}`)
	h.clock.advance(10 * time.Second)
	h.pushPrices(t, `{"op":"mcm","id":2,"pt":3,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,8.0,50]],"batl":[[0,9.0,50]]}]}]}`)
	<-h.placer.placed
	h.worker.waitSubmissions()

	if !h.worker.running.Load() {
		t.Error("a failed submission must not terminate the worker")
	}
	if got := h.worker.guard.InFlightCount(); got != 0 {
		t.Errorf("failed submission must still release its key, in-flight = %d", got)
	}
}

func TestWorker_MarketClosedTerminates(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.start(t)

	// The frame carries another change block after the close; it must be
	// discarded, never processed.
	h.stream.push(`{"op":"mcm","id":2,"pt":1,"mc":[{"id":"1.234","marketDefinition":{"status":"CLOSED"}},{"id":"1.234","rc":[{"id":101,"batb":[[0,2.0,50]],"batl":[[0,3.0,50]]}]}]}`)

	h.waitEvent(t, EventMarketClosed)
	if h.worker.running.Load() {
		t.Error("worker must stop on market close")
	}
	if got := h.placer.callCount(); got != 0 {
		t.Errorf("blocks after CLOSED must be discarded, got %d orders", got)
	}
	select {
	case <-h.stream.closed:
	default:
		t.Error("socket must be destroyed on market close")
	}
	// Stop after close is a no-op.
	h.worker.Stop()
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.start(t)

	h.worker.Stop()
	h.waitEvent(t, EventStopped)
	h.worker.Stop()

	if h.worker.running.Load() {
		t.Error("worker still running after Stop")
	}
}

func TestWorker_ReadErrorEmitsErrorEvent(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.start(t)

	h.stream.readErr = errors.New("connection reset")
	// Wake the read loop out of its blocking select.
	h.stream.Close()

	ev := h.waitEvent(t, EventError)
	if ev.Err == nil {
		t.Error("error event must carry the read failure")
	}
}

func TestWorker_MalformedFrameIsDropped(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.start(t)
	defer h.worker.Stop()

	h.stream.push(`{"op":"mcm","pt":1,"mc":[{`) // truncated JSON, but CRLF-complete
	h.pushPrices(t, `{"op":"mcm","id":2,"pt":2,"mc":[{"id":"1.234","rc":[{"id":101,"batb":[[0,2.0,50]],"batl":[[0,3.0,50]]}]}]}`)

	// The stream recovered: the well-formed frame after the bad one was
	// processed normally.
	if st := h.worker.Status(); !st.Running {
		t.Error("malformed frame must not terminate the worker")
	}
}
