package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/infra"
)

// PaperFill is one simulated execution.
type PaperFill struct {
	BetID       string          `json:"bet_id"`
	MarketID    string          `json:"market_id"`
	SelectionID int64           `json:"selection_id"`
	Side        domain.Side     `json:"side"`
	Price       float64         `json:"price"`
	Size        decimal.Decimal `json:"size"`
	Reason      string          `json:"reason"`
	At          time.Time       `json:"at"`
}

// PaperPlacer accepts every order instantly at the requested price and
// keeps the fills in memory. It exercises the exact same submission path
// as the live client so strategy behaviour is identical across modes.
type PaperPlacer struct {
	mu     sync.Mutex
	fills  []PaperFill
	now    func() time.Time
	logger *slog.Logger
}

// NewPaperPlacer creates an empty paper book.
func NewPaperPlacer() *PaperPlacer {
	return &PaperPlacer{
		now:    time.Now,
		logger: slog.Default().With(slog.String("module", "paper_placer")),
	}
}

// PlaceLimitOrder fills the order immediately and records it.
func (p *PaperPlacer) PlaceLimitOrder(ctx context.Context, marketID string, intent domain.OrderIntent, size decimal.Decimal, persistence string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fill := PaperFill{
		BetID:       uuid.NewString(),
		MarketID:    marketID,
		SelectionID: intent.SelectionID,
		Side:        intent.Side,
		Price:       intent.Price,
		Size:        size,
		Reason:      intent.Reason,
		At:          p.now(),
	}

	p.mu.Lock()
	p.fills = append(p.fills, fill)
	count := len(p.fills)
	p.mu.Unlock()

	infra.GlobalMetrics.RecordOrderPlaced()
	p.logger.Info("paper fill",
		slog.String("market_id", marketID),
		slog.Int64("selection_id", intent.SelectionID),
		slog.String("side", string(intent.Side)),
		slog.Float64("price", intent.Price),
		slog.Int("book_size", count),
	)

	return json.Marshal(map[string]any{
		"status": "SUCCESS",
		"instructionReports": []map[string]any{{
			"status":      "SUCCESS",
			"betId":       fill.BetID,
			"sizeMatched": size,
			"orderStatus": "EXECUTION_COMPLETE",
		}},
	})
}

// Fills returns a copy of the recorded fills, oldest first.
func (p *PaperPlacer) Fills() []PaperFill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PaperFill, len(p.fills))
	copy(out, p.fills)
	return out
}

// Reset clears the book.
func (p *PaperPlacer) Reset() {
	p.mu.Lock()
	p.fills = nil
	p.mu.Unlock()
}

// String summarises the book for logs.
func (p *PaperPlacer) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("paper book: %d fills", len(p.fills))
}
