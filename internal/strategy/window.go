package strategy

import (
	"time"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
)

const (
	// retentionWindow bounds memory and query cost; samples older than
	// this are pruned on every insert.
	retentionWindow = 120 * time.Second

	// movementWindow is the span over which price movement is measured.
	movementWindow = 90 * time.Second

	// flatWindow is the span over which "price unchanged" is checked.
	flatWindow = 15 * time.Second
)

// PriceWindow is a bounded time-series of best-price samples for one
// runner. Owned by a single worker; not safe for concurrent use.
type PriceWindow struct {
	samples []domain.PriceSample
}

// NewPriceWindow creates an empty window.
func NewPriceWindow() *PriceWindow {
	return &PriceWindow{}
}

// Add appends a sample and prunes everything older than the retention
// window relative to the new sample. The compaction is O(window size),
// which stays small because the window is time-bounded.
func (w *PriceWindow) Add(s domain.PriceSample) {
	w.samples = append(w.samples, s)

	cutoff := s.At.Add(-retentionWindow)
	keep := w.samples[:0]
	for _, old := range w.samples {
		if !old.At.Before(cutoff) {
			keep = append(keep, old)
		}
	}
	w.samples = keep
}

// Len returns the number of retained samples.
func (w *PriceWindow) Len() int { return len(w.samples) }

// Movement returns newest−oldest over the trailing 90 seconds, along
// with the two reference prices. ok is false with fewer than 2
// qualifying samples ("insufficient data").
func (w *PriceWindow) Movement(now time.Time) (delta, oldest, newest float64, ok bool) {
	cutoff := now.Add(-movementWindow)

	first := true
	count := 0
	for _, s := range w.samples {
		if s.At.Before(cutoff) {
			continue
		}
		p, has := s.Price()
		if !has {
			continue
		}
		count++
		if first {
			oldest = p
			first = false
		}
		newest = p
	}
	if count < 2 {
		return 0, 0, 0, false
	}
	return newest - oldest, oldest, newest, true
}

// Unchanged reports whether the price has been flat over the trailing 15
// seconds: at least 2 qualifying samples, every one within 0.01 of the
// first. With fewer than 2 samples there is nothing to call flat.
func (w *PriceWindow) Unchanged(now time.Time) bool {
	cutoff := now.Add(-flatWindow)

	var ref float64
	count := 0
	for _, s := range w.samples {
		if s.At.Before(cutoff) {
			continue
		}
		p, has := s.Price()
		if !has {
			continue
		}
		count++
		if count == 1 {
			ref = p
			continue
		}
		if !domain.SamePrice(p, ref) {
			return false
		}
	}
	return count >= 2
}
