package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
)

const eventBuffer = 256

// record pairs a running worker with its request metadata.
type record struct {
	worker *Worker
	meta   map[string]string
}

// Supervisor owns the set of market workers: at most one per market,
// keyed by market id. Worker lifecycle events arrive on a shared channel
// and are consumed by Run.
type Supervisor struct {
	creds  Credentials
	dial   StreamDialer
	placer domain.OrderPlacer
	audit  domain.AuditSink // may be nil

	mu       sync.Mutex
	records  map[string]*record
	starting map[string]string // marketID -> instance of the in-progress start

	events           chan WorkerEvent
	onPrice          func(*domain.PriceUpdate) // optional fan-out hook
	handshakeTimeout time.Duration

	logger *slog.Logger
}

// NewSupervisor creates a supervisor with no workers.
func NewSupervisor(creds Credentials, dial StreamDialer, placer domain.OrderPlacer, audit domain.AuditSink) *Supervisor {
	return &Supervisor{
		creds:    creds,
		dial:     dial,
		placer:   placer,
		audit:    audit,
		records:  make(map[string]*record),
		starting: make(map[string]string),
		events:   make(chan WorkerEvent, eventBuffer),
		logger:   slog.Default().With(slog.String("module", "supervisor")),
	}
}

// OnPrice installs a hook invoked for every price update any worker
// emits. Must be set before Run.
func (s *Supervisor) OnPrice(fn func(*domain.PriceUpdate)) {
	s.onPrice = fn
}

// SetHandshakeTimeout overrides the handshake wait for workers started
// after the call.
func (s *Supervisor) SetHandshakeTimeout(d time.Duration) {
	if d > 0 {
		s.handshakeTimeout = d
	}
}

// Start launches a worker for the market, replacing any existing one.
// The old worker is stopped before the new one connects, and the new
// worker is registered only after its handshake succeeds. The handshake
// wait happens outside the lock so a slow market cannot stall the rest.
func (s *Supervisor) Start(ctx context.Context, cfg domain.MarketConfig, meta map[string]string) (*Worker, error) {
	w := NewWorker(cfg, s.creds, s.dial, s.placer, s.audit, s.events)
	if s.handshakeTimeout > 0 {
		w.handshakeTimeout = s.handshakeTimeout
	}

	s.mu.Lock()
	if old, ok := s.records[cfg.MarketID]; ok {
		delete(s.records, cfg.MarketID)
		// Best-effort: the old worker's terminal event is ignored because
		// its record is already gone.
		go old.worker.Stop()
	}
	s.starting[cfg.MarketID] = w.instance
	s.mu.Unlock()

	if err := w.Start(ctx); err != nil {
		s.mu.Lock()
		if s.starting[cfg.MarketID] == w.instance {
			delete(s.starting, cfg.MarketID)
		}
		s.mu.Unlock()
		s.logger.Warn("worker start failed",
			slog.String("market_id", cfg.MarketID),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.starting[cfg.MarketID] != w.instance {
		// A newer Start raced us while the handshake was in flight; the
		// newer worker wins.
		go w.Stop()
		return nil, domain.ErrWorkerStopped
	}
	delete(s.starting, cfg.MarketID)
	s.records[cfg.MarketID] = &record{worker: w, meta: meta}
	s.logger.Info("worker registered",
		slog.String("market_id", cfg.MarketID),
		slog.String("instance", w.instance),
	)
	return w, nil
}

// StartMarket launches a worker and returns its status view. Control
// surface entry point.
func (s *Supervisor) StartMarket(ctx context.Context, cfg domain.MarketConfig, meta map[string]string) (domain.WorkerStatus, error) {
	w, err := s.Start(ctx, cfg, meta)
	if err != nil {
		return domain.WorkerStatus{}, err
	}
	st := w.Status()
	st.Meta = meta
	return st, nil
}

// Stop terminates the worker for a market. Returns ErrWorkerNotFound if
// no worker is registered for it.
func (s *Supervisor) Stop(marketID string) error {
	s.mu.Lock()
	rec, ok := s.records[marketID]
	if ok {
		delete(s.records, marketID)
	}
	s.mu.Unlock()
	if !ok {
		return domain.ErrWorkerNotFound
	}
	rec.worker.Stop()
	return nil
}

// Status returns the control-surface view of one market's worker.
func (s *Supervisor) Status(marketID string) (domain.WorkerStatus, error) {
	s.mu.Lock()
	rec, ok := s.records[marketID]
	s.mu.Unlock()
	if !ok {
		return domain.WorkerStatus{}, domain.ErrWorkerNotFound
	}
	st := rec.worker.Status()
	st.Meta = rec.meta
	return st, nil
}

// List returns the status of every registered worker.
func (s *Supervisor) List() []domain.WorkerStatus {
	s.mu.Lock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	out := make([]domain.WorkerStatus, 0, len(recs))
	for _, rec := range recs {
		st := rec.worker.Status()
		st.Meta = rec.meta
		out = append(out, st)
	}
	return out
}

// Run consumes worker lifecycle events until ctx is cancelled, then
// stops every remaining worker. Terminal events remove the worker's
// record, but only if the event's instance still matches the registered
// worker: a stale event from a replaced worker must not evict its
// successor.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

func (s *Supervisor) handleEvent(ev WorkerEvent) {
	switch ev.Kind {
	case EventPriceUpdate:
		if s.onPrice != nil && ev.Update != nil {
			s.onPrice(ev.Update)
		}
		return
	case EventConnected, EventSubscribed:
		return
	case EventSubscriptionError:
		s.logger.Warn("subscription error",
			slog.String("market_id", ev.MarketID),
			slog.Any("error", ev.Err),
		)
		return
	}

	if !ev.Kind.terminal() {
		return
	}

	s.mu.Lock()
	rec, ok := s.records[ev.MarketID]
	if ok && rec.worker.instance == ev.Instance {
		delete(s.records, ev.MarketID)
	} else {
		ok = false
	}
	s.mu.Unlock()

	if ok {
		s.logger.Info("worker removed",
			slog.String("market_id", ev.MarketID),
			slog.String("kind", string(ev.Kind)),
		)
		if s.audit != nil {
			errText := ""
			if ev.Err != nil {
				errText = ev.Err.Error()
			}
			rec := domain.WorkerEventRecord{
				MarketID: ev.MarketID,
				Instance: ev.Instance,
				Event:    string(ev.Kind),
				Detail:   errText,
			}
			if aerr := s.audit.RecordWorkerEvent(rec); aerr != nil {
				s.logger.Warn("audit write failed", slog.Any("error", aerr))
			}
		}
	}
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	recs := s.records
	s.records = make(map[string]*record)
	s.mu.Unlock()

	for id, rec := range recs {
		rec.worker.Stop()
		s.logger.Info("worker stopped on shutdown", slog.String("market_id", id))
	}
}
