package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus is the trading status reported in a market definition.
type MarketStatus string

const (
	StatusOpen      MarketStatus = "OPEN"
	StatusSuspended MarketStatus = "SUSPENDED"
	StatusClosed    MarketStatus = "CLOSED"
	StatusUnknown   MarketStatus = "UNKNOWN"
)

// ParseMarketStatus maps a raw wire status onto the known set.
// Anything unrecognised becomes StatusUnknown, which the ball tracker
// treats as a no-op.
func ParseMarketStatus(raw string) MarketStatus {
	switch MarketStatus(raw) {
	case StatusOpen, StatusSuspended, StatusClosed:
		return MarketStatus(raw)
	default:
		return StatusUnknown
	}
}

// BallTracker derives a delivery counter from market status transitions.
// A suspension marks a ball in progress; reopening while one is in
// progress completes it. Repeated SUSPENDED or repeated OPEN transitions
// are no-ops, as is any unrecognised status.
//
// This assumes exactly one suspension cycle per delivery. Markets that
// suspend for other reasons (rain delays, line changes) will over-count;
// that matches the behaviour this was modelled on and is left as-is.
type BallTracker struct {
	inProgress bool
	count      int
}

// Observe feeds one status transition into the tracker.
func (b *BallTracker) Observe(status MarketStatus) {
	switch status {
	case StatusSuspended:
		b.inProgress = true
	case StatusOpen:
		if b.inProgress {
			b.count++
			b.inProgress = false
		}
	}
}

// BallCount returns the number of completed deliveries seen so far.
func (b *BallTracker) BallCount() int { return b.count }

// BallInProgress reports whether the market is currently suspended
// mid-delivery.
func (b *BallTracker) BallInProgress() bool { return b.inProgress }

// PriceSample is one best-price observation for a runner.
type PriceSample struct {
	At          time.Time
	SelectionID int64
	Back        *float64
	Lay         *float64
}

// Price returns the sample's reference price: the back price when
// present, otherwise the lay price. The back-over-lay precedence is a
// documented rule, not an accident of field ordering.
func (s PriceSample) Price() (float64, bool) {
	if s.Back != nil {
		return *s.Back, true
	}
	if s.Lay != nil {
		return *s.Lay, true
	}
	return 0, false
}

// DefaultDataFields are the stream market-data fields every worker
// subscribes to.
var DefaultDataFields = []string{"EX_BEST_OFFERS", "EX_LTP", "EX_TRADED_VOL", "EX_MARKET_DEF"}

// MarketConfig is the immutable per-worker configuration. It is created
// when a worker starts and never mutated afterwards.
type MarketConfig struct {
	MarketID        string          `json:"market_id"`
	Size            decimal.Decimal `json:"size"`
	UpThreshold     float64         `json:"up_threshold"`
	DownThreshold   float64         `json:"down_threshold"`
	LadderLevels    int             `json:"ladder_levels"`
	Fields          []string        `json:"fields"`
	HeartbeatMS     int             `json:"heartbeat_ms"`
	PersistenceType string          `json:"persistence_type"`
}

// NewMarketConfig builds a config with the fixed best-of-1 ladder depth
// and the standard data fields.
func NewMarketConfig(marketID string, size decimal.Decimal, up, down float64) MarketConfig {
	return MarketConfig{
		MarketID:        marketID,
		Size:            size,
		UpThreshold:     up,
		DownThreshold:   down,
		LadderLevels:    1,
		Fields:          DefaultDataFields,
		HeartbeatMS:     1000,
		PersistenceType: PersistenceLapse,
	}
}

// RunnerPrices is the best-offer snapshot for one runner inside a price
// update notification.
type RunnerPrices struct {
	SelectionID int64    `json:"selection_id"`
	Back        *float64 `json:"back,omitempty"`
	Lay         *float64 `json:"lay,omitempty"`
	LastTraded  *float64 `json:"last_traded,omitempty"`
}

// PriceUpdate is the best-effort notification a worker forwards upward
// after processing a market change frame. Informational only.
type PriceUpdate struct {
	MarketID  string         `json:"market_id"`
	Status    MarketStatus   `json:"status"`
	BallCount int            `json:"ball_count"`
	Runners   []RunnerPrices `json:"runners"`
	At        time.Time      `json:"at"`
}

// WorkerStatus is the control-surface view of one market worker.
type WorkerStatus struct {
	MarketID     string            `json:"market_id"`
	Running      bool              `json:"running"`
	Instance     string            `json:"instance"`
	ConnectionID string            `json:"connection_id,omitempty"`
	BallCount    int               `json:"ball_count"`
	Config       MarketConfig      `json:"config"`
	Meta         map[string]string `json:"meta,omitempty"`
}
