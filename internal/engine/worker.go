package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/infra"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/infra/betfair"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/strategy"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	submitTimeout           = 10 * time.Second
	readBufferSize          = 8192
)

// MarketStream is the stream connection a worker drives. Satisfied by
// *betfair.StreamConn; tests substitute a scripted fake.
type MarketStream interface {
	Authenticate(appKey, session string) error
	Subscribe(cfg domain.MarketConfig) error
	Read(p []byte) (int, error)
	Close() error
}

// StreamDialer opens a new stream connection.
type StreamDialer func(ctx context.Context) (MarketStream, error)

// Credentials authenticate the stream connection. Session is a getter so
// workers started after a re-login pick up the fresh token.
type Credentials struct {
	AppKey  string
	Session func() string
}

// EventKind classifies worker lifecycle notifications.
type EventKind string

const (
	EventConnected         EventKind = "connected"
	EventSubscribed        EventKind = "subscribed"
	EventSubscriptionError EventKind = "subscriptionError"
	EventPriceUpdate       EventKind = "priceUpdate"
	EventMarketClosed      EventKind = "marketClosed"
	EventError             EventKind = "error"
	EventStopped           EventKind = "stopped"
)

// terminal reports whether this event ends the worker's lifecycle.
func (k EventKind) terminal() bool {
	switch k {
	case EventMarketClosed, EventError, EventStopped:
		return true
	}
	return false
}

// WorkerEvent is a coarse lifecycle or price notification sent upward to
// the supervisor. Instance identifies the exact worker so stale events
// from a replaced worker cannot remove its successor's record.
type WorkerEvent struct {
	MarketID     string
	Instance     string
	Kind         EventKind
	Err          error
	ConnectionID string
	Update       *domain.PriceUpdate
}

// Worker owns one market's stream socket and all trading state derived
// from it: the ball tracker, per-runner price windows, the decision
// engine and the concurrency guard. The socket read path is the sole
// driver of state mutation; order submission is the only work that
// leaves it, and never blocks it.
type Worker struct {
	cfg      domain.MarketConfig
	instance string
	creds    Credentials
	dial     StreamDialer
	placer   domain.OrderPlacer
	audit    domain.AuditSink // may be nil
	events   chan<- WorkerEvent

	momentum *strategy.Momentum
	guard    *Guard
	windows  map[int64]*strategy.PriceWindow

	running atomic.Bool
	stream  MarketStream
	decoder betfair.FrameDecoder

	mu           sync.Mutex // guards ball, connectionID, lastStatus
	ball         domain.BallTracker
	connectionID string
	lastStatus   domain.MarketStatus

	handshake        chan error
	handshakeOnce    sync.Once
	handshakeTimeout time.Duration

	subs   sync.WaitGroup // outstanding order submissions
	now    func() time.Time
	logger *slog.Logger
}

// NewWorker creates a worker for one market. Nothing is connected until
// Start is called.
func NewWorker(cfg domain.MarketConfig, creds Credentials, dial StreamDialer, placer domain.OrderPlacer, audit domain.AuditSink, events chan<- WorkerEvent) *Worker {
	instance := uuid.NewString()
	return &Worker{
		cfg:              cfg,
		instance:         instance,
		creds:            creds,
		dial:             dial,
		placer:           placer,
		audit:            audit,
		events:           events,
		momentum:         strategy.NewMomentum(cfg.UpThreshold, cfg.DownThreshold),
		guard:            NewGuard(),
		windows:          make(map[int64]*strategy.PriceWindow),
		lastStatus:       domain.StatusUnknown,
		handshake:        make(chan error, 1),
		handshakeTimeout: defaultHandshakeTimeout,
		now:              time.Now,
		logger: slog.Default().With(
			slog.String("module", "market_worker"),
			slog.String("market_id", cfg.MarketID),
			slog.String("instance", instance),
		),
	}
}

// Instance returns the unique identity of this worker.
func (w *Worker) Instance() string { return w.instance }

// Start dials the stream, sends the authentication and subscription
// frames, and waits for the handshake acknowledgement. On timeout or a
// reported failure the partially-started worker is torn down and an
// error returned; the worker must not be registered.
func (w *Worker) Start(ctx context.Context) error {
	stream, err := w.dial(ctx)
	if err != nil {
		return err
	}
	w.stream = stream

	if err := stream.Authenticate(w.creds.AppKey, w.creds.Session()); err != nil {
		stream.Close()
		return err
	}
	if err := stream.Subscribe(w.cfg); err != nil {
		stream.Close()
		return err
	}

	w.running.Store(true)
	go w.readLoop()

	select {
	case err := <-w.handshake:
		if err != nil {
			w.teardown()
			return err
		}
		infra.GlobalMetrics.IncrementWorkers()
		w.logger.Info("worker started")
		return nil
	case <-time.After(w.handshakeTimeout):
		w.teardown()
		return domain.ErrHandshakeTimeout
	case <-ctx.Done():
		w.teardown()
		return ctx.Err()
	}
}

// Stop cooperatively terminates the worker: the running flag is cleared
// and the socket destroyed. A submission already in flight completes or
// fails on its own and still clears its in-flight key.
func (w *Worker) Stop() {
	if !w.running.Swap(false) {
		return
	}
	if w.stream != nil {
		w.stream.Close()
	}
	infra.GlobalMetrics.DecrementWorkers()
	w.logger.Info("worker stopped")
	w.emit(WorkerEvent{Kind: EventStopped})
}

func (w *Worker) teardown() {
	w.running.Store(false)
	if w.stream != nil {
		w.stream.Close()
	}
}

// Status reports the control-surface view of this worker.
func (w *Worker) Status() domain.WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return domain.WorkerStatus{
		MarketID:     w.cfg.MarketID,
		Running:      w.running.Load(),
		Instance:     w.instance,
		ConnectionID: w.connectionID,
		BallCount:    w.ball.BallCount(),
		Config:       w.cfg,
	}
}

// readLoop is the sole driver of trading state. It must never block on
// anything but the socket itself.
func (w *Worker) readLoop() {
	buf := make([]byte, readBufferSize)
	for w.running.Load() {
		n, err := w.stream.Read(buf)
		if err != nil {
			if w.running.Swap(false) {
				// Unsolicited socket failure: terminal for this worker.
				w.stream.Close()
				infra.GlobalMetrics.DecrementWorkers()
				infra.GlobalMetrics.RecordError()
				w.logger.Error("stream read failed", slog.Any("error", err))
				w.resolveHandshake(err)
				w.emit(WorkerEvent{Kind: EventError, Err: err})
			}
			return
		}
		for _, frame := range w.decoder.Push(buf[:n]) {
			// A stop request must take effect even when more frames are
			// already queued from this read.
			if !w.running.Load() {
				return
			}
			w.handleFrame(frame)
		}
	}
}

func (w *Worker) handleFrame(frame []byte) {
	var hdr betfair.FrameHeader
	if err := json.Unmarshal(frame, &hdr); err != nil {
		// Malformed fragments are dropped silently; the stream emits a
		// fresh complete frame next heartbeat so this self-heals.
		infra.GlobalMetrics.RecordDecodeDrop()
		w.logger.Debug("dropped undecodable frame", slog.Int("len", len(frame)))
		return
	}
	infra.GlobalMetrics.RecordFrame()

	switch hdr.Op {
	case betfair.OpConnection:
		var msg betfair.ConnectionMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			infra.GlobalMetrics.RecordDecodeDrop()
			return
		}
		w.mu.Lock()
		w.connectionID = msg.ConnectionID
		w.mu.Unlock()
		w.emit(WorkerEvent{Kind: EventConnected, ConnectionID: msg.ConnectionID})

	case betfair.OpStatus:
		var msg betfair.StatusMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			infra.GlobalMetrics.RecordDecodeDrop()
			return
		}
		w.handleStatus(&msg)

	case betfair.OpMarketChange:
		var msg betfair.MarketChangeMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			infra.GlobalMetrics.RecordDecodeDrop()
			return
		}
		w.handleMarketChange(&msg)

	default:
		w.logger.Debug("unknown stream op", slog.String("op", hdr.Op))
	}
}

func (w *Worker) handleStatus(msg *betfair.StatusMessage) {
	if msg.IsFailure() {
		subErr := &domain.SubscriptionError{Code: msg.ErrorCode, Message: msg.ErrorMessage}
		// Resolves the handshake if it is still pending; afterwards the
		// worker keeps running and just reports the condition upward.
		w.resolveHandshake(subErr)
		w.logger.Warn("subscription status error",
			slog.String("code", msg.ErrorCode),
			slog.String("message", msg.ErrorMessage),
		)
		w.emit(WorkerEvent{Kind: EventSubscriptionError, Err: subErr})
		return
	}
	if msg.ID == betfair.SubscribeRequestID {
		w.resolveHandshake(nil)
		w.emit(WorkerEvent{Kind: EventSubscribed})
	}
}

func (w *Worker) handleMarketChange(msg *betfair.MarketChangeMessage) {
	if len(msg.MC) == 0 {
		return // heartbeat
	}
	now := w.now()
	update := domain.PriceUpdate{MarketID: w.cfg.MarketID, At: now}

	for _, mc := range msg.MC {
		if !w.running.Load() {
			return
		}
		if mc.MarketDefinition != nil {
			status := domain.ParseMarketStatus(mc.MarketDefinition.Status)
			if status == domain.StatusClosed {
				// Terminal: notify, clean up, discard any further blocks
				// in this frame.
				w.markClosed()
				return
			}
			w.mu.Lock()
			w.ball.Observe(status)
			w.lastStatus = status
			w.mu.Unlock()
		}
		for _, rc := range mc.RC {
			if !w.running.Load() {
				return
			}
			w.handleRunnerChange(rc, now, &update)
		}
	}

	w.mu.Lock()
	update.Status = w.lastStatus
	update.BallCount = w.ball.BallCount()
	w.mu.Unlock()

	// Informational only; dropped if nobody is keeping up.
	w.emitBestEffort(WorkerEvent{Kind: EventPriceUpdate, Update: &update})
}

func (w *Worker) handleRunnerChange(rc betfair.RunnerChange, now time.Time, update *domain.PriceUpdate) {
	back, hasBack := rc.BestBack()
	lay, hasLay := rc.BestLay()
	if !hasBack && !hasLay && rc.LTP == nil {
		return
	}

	win := w.window(rc.ID)
	if hasBack || hasLay {
		sample := domain.PriceSample{At: now, SelectionID: rc.ID}
		if hasBack {
			b := back
			sample.Back = &b
		}
		if hasLay {
			l := lay
			sample.Lay = &l
		}
		win.Add(sample)
	}

	rp := domain.RunnerPrices{SelectionID: rc.ID, LastTraded: rc.LTP}
	if hasBack {
		b := back
		rp.Back = &b
	}
	if hasLay {
		l := lay
		rp.Lay = &l
	}
	update.Runners = append(update.Runners, rp)

	if !hasBack || !hasLay {
		return
	}

	intent := w.momentum.Evaluate(win, rc.ID, back, lay, w.guard.LastBet(), now)
	if intent == nil {
		return
	}
	key, ok := w.guard.Acquire(*intent, now)
	if !ok {
		return
	}
	// The key and cooldown are already recorded; the submission may now
	// leave the read path.
	w.subs.Add(1)
	go w.submit(key, *intent)
}

// submit runs outside the read path. A failed order never terminates
// the worker; it settles as "no result" and the key is cleared.
func (w *Worker) submit(key string, intent domain.OrderIntent) {
	defer w.subs.Done()
	defer w.guard.Release(key)

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	status := domain.OrderStatusPlaced
	_, err := w.placer.PlaceLimitOrder(ctx, w.cfg.MarketID, intent, w.cfg.Size, w.cfg.PersistenceType)
	if err != nil {
		status = domain.OrderStatusFailed
		w.logger.Error("order submission failed",
			slog.Int64("selection_id", intent.SelectionID),
			slog.String("side", string(intent.Side)),
			slog.Float64("price", intent.Price),
			slog.Any("error", err),
		)
	} else {
		w.logger.Info("order submitted",
			slog.Int64("selection_id", intent.SelectionID),
			slog.String("side", string(intent.Side)),
			slog.Float64("price", intent.Price),
			slog.String("reason", intent.Reason),
		)
	}

	if w.audit != nil {
		rec := domain.OrderRecord{
			MarketID:    w.cfg.MarketID,
			SelectionID: intent.SelectionID,
			Side:        string(intent.Side),
			Price:       intent.Price,
			Size:        w.cfg.Size.String(),
			Status:      status,
			Reason:      intent.Reason,
		}
		if aerr := w.audit.RecordOrder(rec); aerr != nil {
			w.logger.Warn("audit write failed", slog.Any("error", aerr))
		}
	}
}

func (w *Worker) markClosed() {
	if !w.running.Swap(false) {
		return
	}
	w.stream.Close()
	infra.GlobalMetrics.DecrementWorkers()
	w.logger.Info("market closed, worker shutting down")
	w.emit(WorkerEvent{Kind: EventMarketClosed})
}

func (w *Worker) window(selectionID int64) *strategy.PriceWindow {
	win, ok := w.windows[selectionID]
	if !ok {
		win = strategy.NewPriceWindow()
		w.windows[selectionID] = win
	}
	return win
}

func (w *Worker) resolveHandshake(err error) {
	w.handshakeOnce.Do(func() {
		w.handshake <- err
	})
}

func (w *Worker) emit(ev WorkerEvent) {
	ev.MarketID = w.cfg.MarketID
	ev.Instance = w.instance
	select {
	case w.events <- ev:
	default:
		w.logger.Warn("event channel full, dropping lifecycle event", slog.String("kind", string(ev.Kind)))
	}
}

func (w *Worker) emitBestEffort(ev WorkerEvent) {
	ev.MarketID = w.cfg.MarketID
	ev.Instance = w.instance
	select {
	case w.events <- ev:
	default:
	}
}

// waitSubmissions blocks until every outstanding submission settles.
// Test hook.
func (w *Worker) waitSubmissions() {
	w.subs.Wait()
}
