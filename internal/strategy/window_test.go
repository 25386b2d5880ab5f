package strategy_test

import (
	"testing"
	"time"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/strategy"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func backSample(at time.Time, back float64) domain.PriceSample {
	return domain.PriceSample{At: at, Back: &back}
}

func laySample(at time.Time, lay float64) domain.PriceSample {
	return domain.PriceSample{At: at, Lay: &lay}
}

func TestPriceWindow_PrunesBeyondRetention(t *testing.T) {
	w := strategy.NewPriceWindow()
	w.Add(backSample(epoch, 2.0))
	w.Add(backSample(epoch.Add(60*time.Second), 2.2))
	if w.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", w.Len())
	}

	// 130s after the first sample: the first must be compacted away.
	w.Add(backSample(epoch.Add(130*time.Second), 2.4))
	if w.Len() != 2 {
		t.Errorf("expected the 130s-old sample pruned, got %d samples", w.Len())
	}
}

func TestPriceWindow_MovementInsufficientData(t *testing.T) {
	w := strategy.NewPriceWindow()
	if _, _, _, ok := w.Movement(epoch); ok {
		t.Error("empty window must report insufficient data")
	}

	w.Add(backSample(epoch, 2.0))
	if _, _, _, ok := w.Movement(epoch); ok {
		t.Error("single sample must report insufficient data")
	}

	// A second sample outside the 90s query window does not qualify.
	w.Add(backSample(epoch.Add(100*time.Second), 2.5))
	if _, _, _, ok := w.Movement(epoch.Add(100 * time.Second)); ok {
		t.Error("only one sample qualifies inside 90s; must report insufficient data")
	}
}

func TestPriceWindow_MovementNewestMinusOldest(t *testing.T) {
	w := strategy.NewPriceWindow()
	w.Add(backSample(epoch, 4.0))
	w.Add(backSample(epoch.Add(30*time.Second), 7.5))
	w.Add(backSample(epoch.Add(80*time.Second), 10.0))

	now := epoch.Add(80 * time.Second)
	delta, oldest, newest, ok := w.Movement(now)
	if !ok {
		t.Fatal("expected movement to be computable")
	}
	if delta != 6.0 || oldest != 4.0 || newest != 10.0 {
		t.Errorf("movement = %.2f (%.2f -> %.2f), want 6.00 (4.00 -> 10.00)", delta, oldest, newest)
	}
}

func TestPriceWindow_MovementBackOverLayPrecedence(t *testing.T) {
	w := strategy.NewPriceWindow()
	// First sample has only a lay price; second has both, so its back
	// price is the reference.
	w.Add(laySample(epoch, 3.0))
	both := backSample(epoch.Add(10*time.Second), 5.0)
	lay := 6.0
	both.Lay = &lay
	w.Add(both)

	delta, oldest, newest, ok := w.Movement(epoch.Add(10 * time.Second))
	if !ok {
		t.Fatal("expected movement to be computable")
	}
	if oldest != 3.0 || newest != 5.0 || delta != 2.0 {
		t.Errorf("movement = %.2f (%.2f -> %.2f), want 2.00 (3.00 -> 5.00)", delta, oldest, newest)
	}
}

func TestPriceWindow_OldSamplesExcludedFromQueries(t *testing.T) {
	w := strategy.NewPriceWindow()
	w.Add(backSample(epoch, 1.0))
	w.Add(backSample(epoch.Add(100*time.Second), 2.0))
	w.Add(backSample(epoch.Add(110*time.Second), 3.0))

	// At t=110s the t=0 sample is outside the 90s movement window.
	delta, oldest, _, ok := w.Movement(epoch.Add(110 * time.Second))
	if !ok {
		t.Fatal("expected movement to be computable")
	}
	if oldest != 2.0 || delta != 1.0 {
		t.Errorf("old sample leaked into movement query: delta=%.2f oldest=%.2f", delta, oldest)
	}
}

func TestPriceWindow_Unchanged(t *testing.T) {
	now := epoch.Add(20 * time.Second)

	t.Run("flat within tolerance", func(t *testing.T) {
		w := strategy.NewPriceWindow()
		w.Add(backSample(epoch.Add(6*time.Second), 2.0))
		w.Add(backSample(epoch.Add(12*time.Second), 2.01))
		w.Add(backSample(epoch.Add(18*time.Second), 2.0))
		if !w.Unchanged(now) {
			t.Error("samples within 0.01 of the first must be flat")
		}
	})

	t.Run("moving price is not flat", func(t *testing.T) {
		w := strategy.NewPriceWindow()
		w.Add(backSample(epoch.Add(6*time.Second), 2.0))
		w.Add(backSample(epoch.Add(18*time.Second), 2.5))
		if w.Unchanged(now) {
			t.Error("a 0.5 move must not be flat")
		}
	})

	t.Run("fewer than two qualifying samples", func(t *testing.T) {
		w := strategy.NewPriceWindow()
		w.Add(backSample(epoch, 2.0)) // 20s old, outside the 15s window
		w.Add(backSample(epoch.Add(18*time.Second), 2.0))
		if w.Unchanged(now) {
			t.Error("one qualifying sample cannot establish flatness")
		}
	})

	t.Run("samples older than 15s are ignored", func(t *testing.T) {
		w := strategy.NewPriceWindow()
		w.Add(backSample(epoch, 9.0)) // outside window; would break flatness
		w.Add(backSample(epoch.Add(8*time.Second), 2.0))
		w.Add(backSample(epoch.Add(16*time.Second), 2.0))
		if !w.Unchanged(now) {
			t.Error("sample outside the 15s window must not affect the check")
		}
	})
}
