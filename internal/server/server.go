package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Defaults are the trading parameters applied when a start request omits
// them.
type Defaults struct {
	Size            decimal.Decimal
	UpThreshold     float64
	DownThreshold   float64
	PersistenceType string
}

// Deps aggregates everything the control surface serves. Exchange,
// audit, snapshots and sim are optional; their endpoints degrade to
// explicit "not configured" responses.
type Deps struct {
	Workers   WorkerController
	Exchange  ExchangeAPI
	Audit     AuditReader
	Snapshots SnapshotReader
	Hub       *Hub
	Sim       http.Handler // mounted under /api/sim/ when non-nil
	Mode      string
	Defaults  Defaults
}

// Server is the HTTP + WebSocket control surface. It never sits on the
// trading path; every endpoint reads state or asks the supervisor to
// change the worker set.
type Server struct {
	httpServer *http.Server
	workers    WorkerController
	exchange   ExchangeAPI
	audit      AuditReader
	snapshots  SnapshotReader
	mode       string
	defaults   Defaults
	logger     *slog.Logger
}

// NewServer registers all routes and returns a server ready to Start.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		workers:   deps.Workers,
		exchange:  deps.Exchange,
		audit:     deps.Audit,
		snapshots: deps.Snapshots,
		mode:      deps.Mode,
		defaults:  deps.Defaults,
		logger:    slog.Default().With(slog.String("module", "http_server")),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/workers", s.handleStartWorker)
	mux.HandleFunc("GET /api/workers", s.handleListWorkers)
	mux.HandleFunc("GET /api/workers/{marketID}", s.handleWorkerStatus)
	mux.HandleFunc("DELETE /api/workers/{marketID}", s.handleStopWorker)

	mux.HandleFunc("POST /api/session", s.handleLogin)
	mux.HandleFunc("GET /api/markets", s.handleListMarkets)
	mux.HandleFunc("GET /api/orders/settled", s.handleSettledOrders)

	mux.HandleFunc("GET /api/audit/orders", s.handleAuditOrders)
	mux.HandleFunc("GET /api/audit/events", s.handleAuditEvents)

	mux.HandleFunc("GET /api/prices", s.handleSnapshots)

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}
	if deps.Sim != nil {
		mux.Handle("/api/sim/", deps.Sim)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      logging(s.logger)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("control surface listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("control surface shutting down")
	return s.httpServer.Shutdown(ctx)
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logging records one line per request.
func logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// WebSocket upgrades hijack the connection; the recorder
			// would break that.
			if r.URL.Path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
