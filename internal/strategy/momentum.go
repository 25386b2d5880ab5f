package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
)

// cooldown is the minimum spacing between accepted orders per worker.
const cooldown = 15 * time.Second

// LastBet is the cooldown state the guard exposes to the decision
// engine: when and at what price the previous intent was accepted.
type LastBet struct {
	At    time.Time
	Price float64
	Set   bool
}

// Momentum is the price-movement decision engine. It is a pure
// evaluation over current prices, window state and cooldown state; all
// mutation happens in the window and the guard.
//
// Every check below is necessary and none is sufficient alone; the first
// failing check vetoes the order.
type Momentum struct {
	up   float64
	down float64
}

// NewMomentum creates an engine with the given up/down movement
// thresholds (both expressed as positive magnitudes).
func NewMomentum(up, down float64) *Momentum {
	return &Momentum{up: up, down: down}
}

// Evaluate returns an order intent, or nil for "no action". Ball state
// is deliberately not consulted: movement is evaluated continuously
// regardless of ball phase.
func (m *Momentum) Evaluate(w *PriceWindow, selectionID int64, back, lay float64, last LastBet, now time.Time) *domain.OrderIntent {
	// 1. Spread must be within 0.01 of exactly 1.0.
	if math.Abs(math.Abs(lay-back)-1.0) > domain.PriceEpsilon {
		return nil
	}

	// 2. Cooldown is a hard veto independent of price.
	if last.Set && now.Sub(last.At) < cooldown {
		return nil
	}

	// 3. Movement must be computable over the trailing 90s.
	delta, oldest, newest, ok := w.Movement(now)
	if !ok {
		return nil
	}

	// 4. Threshold-driven side and price.
	var (
		side      domain.Side
		price     float64
		threshold float64
	)
	switch {
	case delta >= m.up:
		side, price, threshold = domain.SideBack, back, m.up
	case delta <= -m.down:
		side, price, threshold = domain.SideLay, lay, m.down
	default:
		return nil
	}

	// 5. Never fire repeatedly at an unchanged level.
	if last.Set && domain.SamePrice(price, last.Price) {
		return nil
	}

	// 6. Flat trailing 15s means the movement came from stale data.
	if w.Unchanged(now) {
		return nil
	}

	return &domain.OrderIntent{
		SelectionID: selectionID,
		Side:        side,
		Price:       price,
		Reason: fmt.Sprintf("%s: movement %.2f over 90s breached threshold %.2f (ref %.2f -> %.2f)",
			side, delta, threshold, oldest, newest),
		OldPrice: oldest,
		NewPrice: newest,
	}
}
