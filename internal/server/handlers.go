package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/infra"
)

// WorkerController is what the control surface needs from the worker
// supervisor.
type WorkerController interface {
	StartMarket(ctx context.Context, cfg domain.MarketConfig, meta map[string]string) (domain.WorkerStatus, error)
	Stop(marketID string) error
	Status(marketID string) (domain.WorkerStatus, error)
	List() []domain.WorkerStatus
}

// ExchangeAPI is the slice of the exchange client the proxy endpoints
// use.
type ExchangeAPI interface {
	Login(ctx context.Context, username, password string) (string, error)
	ListMarketCatalogue(ctx context.Context, textQuery, eventTypeID string, maxResults int) (json.RawMessage, error)
	ListClearedOrders(ctx context.Context, fromRecord, recordCount int) (json.RawMessage, error)
}

// AuditReader exposes the journal to the inspection endpoints.
type AuditReader interface {
	RecentOrders(limit, offset int) ([]domain.OrderRecord, error)
	RecentWorkerEvents(limit int) ([]domain.WorkerEventRecord, error)
}

// SnapshotReader exposes the latest per-market prices.
type SnapshotReader interface {
	Latest(marketID string) *domain.PriceUpdate
	All() []*domain.PriceUpdate
}

// writeJSON marshals v and writes it with the given status. Falls back
// to a plain 500 if marshaling fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// startWorkerRequest is the body of POST /api/workers.
type startWorkerRequest struct {
	MarketID      string            `json:"market_id"`
	Size          string            `json:"size"`
	UpThreshold   *float64          `json:"up_threshold,omitempty"`
	DownThreshold *float64          `json:"down_threshold,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
}

// handleStartWorker launches a worker for a market, replacing any
// existing one.
// POST /api/workers
func (s *Server) handleStartWorker(w http.ResponseWriter, r *http.Request) {
	var req startWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.MarketID == "" {
		writeError(w, http.StatusBadRequest, "market_id is required")
		return
	}

	size := s.defaults.Size
	if req.Size != "" {
		parsed, err := decimal.NewFromString(req.Size)
		if err != nil || parsed.IsNegative() || parsed.IsZero() {
			writeError(w, http.StatusBadRequest, "size must be a positive decimal")
			return
		}
		size = parsed
	}
	up := s.defaults.UpThreshold
	if req.UpThreshold != nil {
		up = *req.UpThreshold
	}
	down := s.defaults.DownThreshold
	if req.DownThreshold != nil {
		down = *req.DownThreshold
	}
	if up <= 0 || down <= 0 {
		writeError(w, http.StatusBadRequest, "thresholds must be positive")
		return
	}

	cfg := domain.NewMarketConfig(req.MarketID, size, up, down)
	cfg.PersistenceType = s.defaults.PersistenceType

	st, err := s.workers.StartMarket(r.Context(), cfg, req.Meta)
	if err != nil {
		s.logger.Warn("worker start rejected",
			slog.String("market_id", req.MarketID),
			slog.Any("error", err),
		)
		if errors.Is(err, domain.ErrHandshakeTimeout) {
			writeError(w, http.StatusGatewayTimeout, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// handleStopWorker stops a market's worker.
// DELETE /api/workers/{marketID}
func (s *Server) handleStopWorker(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("marketID")
	if err := s.workers.Stop(marketID); err != nil {
		if errors.Is(err, domain.ErrWorkerNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"market_id": marketID, "status": "stopped"})
}

// handleListWorkers lists every running worker.
// GET /api/workers
func (s *Server) handleListWorkers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workers": s.workers.List()})
}

// handleWorkerStatus reports one worker, including its latest price
// snapshot when available.
// GET /api/workers/{marketID}
func (s *Server) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("marketID")
	st, err := s.workers.Status(marketID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkerNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"worker": st}
	if s.snapshots != nil {
		if latest := s.snapshots.Latest(marketID); latest != nil {
			resp["latest_prices"] = latest
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports liveness plus a metrics snapshot.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"mode":    s.mode,
		"metrics": infra.GlobalMetrics.Snapshot(),
	})
}

// loginRequest is the body of POST /api/session.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin exchanges credentials for a fresh session token.
// POST /api/session
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.exchange == nil {
		writeError(w, http.StatusServiceUnavailable, "exchange API not configured")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if _, err := s.exchange.Login(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "SUCCESS"})
}

// handleListMarkets proxies the market catalogue.
// GET /api/markets?q=&event_type=&max=
func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	if s.exchange == nil {
		writeError(w, http.StatusServiceUnavailable, "exchange API not configured")
		return
	}
	q := r.URL.Query()
	result, err := s.exchange.ListMarketCatalogue(r.Context(), q.Get("q"), q.Get("event_type"), queryInt(r, "max", 25))
	if err != nil {
		s.writeExchangeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}

// handleSettledOrders proxies a page of the settled-order summary.
// GET /api/orders/settled?from=&count=
func (s *Server) handleSettledOrders(w http.ResponseWriter, r *http.Request) {
	if s.exchange == nil {
		writeError(w, http.StatusServiceUnavailable, "exchange API not configured")
		return
	}
	result, err := s.exchange.ListClearedOrders(r.Context(), queryInt(r, "from", 0), queryInt(r, "count", 50))
	if err != nil {
		s.writeExchangeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}

func (s *Server) writeExchangeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNoSession) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		writeError(w, http.StatusUnprocessableEntity, apiErr.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

// handleAuditOrders lists recent journal entries.
// GET /api/audit/orders?limit=&offset=
func (s *Server) handleAuditOrders(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit journal not enabled")
		return
	}
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	recs, err := s.audit.RecentOrders(limit, queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": recs})
}

// handleAuditEvents lists recent worker lifecycle events.
// GET /api/audit/events?limit=
func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit journal not enabled")
		return
	}
	recs, err := s.audit.RecentWorkerEvents(queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": recs})
}

// handleSnapshots returns the latest prices for every tracked market.
// GET /api/prices
func (s *Server) handleSnapshots(w http.ResponseWriter, _ *http.Request) {
	if s.snapshots == nil {
		writeJSON(w, http.StatusOK, map[string]any{"markets": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": s.snapshots.All()})
}
