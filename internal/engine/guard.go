package engine

import (
	"sync"
	"time"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/strategy"
)

// Guard is the per-worker in-flight and cooldown bookkeeping. It ensures
// at most one outstanding submission per (selection, price) and records
// the cooldown state synchronously, before the asynchronous submission
// is allowed to start. That ordering is what keeps two near-simultaneous
// price updates from both submitting while neither has completed.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
	last     strategy.LastBet
}

// NewGuard creates an empty guard. Lifecycle is tied to the owning
// worker so tests can construct fresh instances per case.
func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]struct{})}
}

// LastBet returns the cooldown state for the decision engine.
func (g *Guard) LastBet() strategy.LastBet {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Acquire accepts or discards an intent. On acceptance it inserts the
// composite key into the in-flight set and updates the cooldown state,
// in that order, before returning; the caller may only then start the
// asynchronous submission.
func (g *Guard) Acquire(intent domain.OrderIntent, now time.Time) (string, bool) {
	key := domain.PriceKey(intent.SelectionID, intent.Price)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[key]; busy {
		return "", false
	}
	if g.last.Set && domain.SamePrice(intent.Price, g.last.Price) {
		return "", false
	}

	g.inFlight[key] = struct{}{}
	g.last = strategy.LastBet{At: now, Price: intent.Price, Set: true}
	return key, true
}

// Release removes the key once the submission settles, success or
// failure. Idempotent: safe to call after the owning worker is gone.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}

// InFlightCount returns the number of outstanding submissions.
func (g *Guard) InFlightCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}
