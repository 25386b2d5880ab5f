package strategy_test

import (
	"strings"
	"testing"
	"time"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/strategy"
)

// risingWindow returns a window whose price moved +6 over 90s, sampled
// so the trailing 15s is not flat. now is the timestamp of the newest
// sample.
func risingWindow() (*strategy.PriceWindow, time.Time) {
	w := strategy.NewPriceWindow()
	now := epoch.Add(90 * time.Second)
	w.Add(backSample(epoch, 2.0))
	w.Add(backSample(now.Add(-10*time.Second), 7.0))
	w.Add(backSample(now, 8.0))
	return w, now
}

func TestMomentum_EmitsBackOnUpMove(t *testing.T) {
	m := strategy.NewMomentum(5, 5)
	w, now := risingWindow()

	intent := m.Evaluate(w, 101, 2.0, 3.0, strategy.LastBet{}, now)
	if intent == nil {
		t.Fatal("expected a BACK intent")
	}
	if intent.Side != domain.SideBack {
		t.Errorf("side = %s, want BACK", intent.Side)
	}
	if intent.Price != 2.0 {
		t.Errorf("price = %.2f, want current best back 2.0", intent.Price)
	}
	if intent.SelectionID != 101 {
		t.Errorf("selection = %d, want 101", intent.SelectionID)
	}
	if !strings.Contains(intent.Reason, "6.00") || !strings.Contains(intent.Reason, "5.00") {
		t.Errorf("reason must embed movement and threshold, got %q", intent.Reason)
	}
	if intent.OldPrice != 2.0 || intent.NewPrice != 8.0 {
		t.Errorf("reference prices = %.2f -> %.2f, want 2.00 -> 8.00", intent.OldPrice, intent.NewPrice)
	}
}

func TestMomentum_EmitsLayOnDownMove(t *testing.T) {
	m := strategy.NewMomentum(5, 5)
	w := strategy.NewPriceWindow()
	now := epoch.Add(90 * time.Second)
	w.Add(backSample(epoch, 9.0))
	w.Add(backSample(now.Add(-10*time.Second), 4.0))
	w.Add(backSample(now, 3.0))

	intent := m.Evaluate(w, 101, 3.0, 4.0, strategy.LastBet{}, now)
	if intent == nil {
		t.Fatal("expected a LAY intent")
	}
	if intent.Side != domain.SideLay {
		t.Errorf("side = %s, want LAY", intent.Side)
	}
	if intent.Price != 4.0 {
		t.Errorf("price = %.2f, want current best lay 4.0", intent.Price)
	}
}

func TestMomentum_SpreadVeto(t *testing.T) {
	m := strategy.NewMomentum(5, 5)
	w, now := risingWindow()

	// Spread 0.5: no intent regardless of movement.
	if intent := m.Evaluate(w, 101, 2.0, 2.5, strategy.LastBet{}, now); intent != nil {
		t.Errorf("spread 0.5 must veto, got %+v", intent)
	}
	// Spread 2.0: also vetoed.
	if intent := m.Evaluate(w, 101, 2.0, 4.0, strategy.LastBet{}, now); intent != nil {
		t.Errorf("spread 2.0 must veto, got %+v", intent)
	}
	// Spread 1.01 is within tolerance.
	if intent := m.Evaluate(w, 101, 2.0, 3.01, strategy.LastBet{}, now); intent == nil {
		t.Error("spread 1.01 is within tolerance and must pass")
	}
}

func TestMomentum_CooldownVeto(t *testing.T) {
	m := strategy.NewMomentum(5, 5)
	w, now := risingWindow()

	last := strategy.LastBet{At: now.Add(-5 * time.Second), Price: 9.9, Set: true}
	if intent := m.Evaluate(w, 101, 2.0, 3.0, last, now); intent != nil {
		t.Errorf("order accepted 5s ago must veto regardless of price, got %+v", intent)
	}

	// 16s ago: cooldown has elapsed.
	last = strategy.LastBet{At: now.Add(-16 * time.Second), Price: 9.9, Set: true}
	if intent := m.Evaluate(w, 101, 2.0, 3.0, last, now); intent == nil {
		t.Error("cooldown elapsed, expected an intent")
	}
}

func TestMomentum_InsufficientDataVeto(t *testing.T) {
	m := strategy.NewMomentum(5, 5)
	w := strategy.NewPriceWindow()
	now := epoch
	w.Add(backSample(now, 2.0))

	if intent := m.Evaluate(w, 101, 2.0, 3.0, strategy.LastBet{}, now); intent != nil {
		t.Errorf("one sample must veto, got %+v", intent)
	}
}

func TestMomentum_BelowThresholdNoAction(t *testing.T) {
	m := strategy.NewMomentum(10, 10)
	w, now := risingWindow() // +6 move

	if intent := m.Evaluate(w, 101, 2.0, 3.0, strategy.LastBet{}, now); intent != nil {
		t.Errorf("movement below threshold must yield no action, got %+v", intent)
	}
}

func TestMomentum_RepeatPriceVeto(t *testing.T) {
	m := strategy.NewMomentum(5, 5)
	w, now := risingWindow()

	// Last accepted price equals the proposed BACK price (within 0.01).
	last := strategy.LastBet{At: now.Add(-20 * time.Second), Price: 2.005, Set: true}
	if intent := m.Evaluate(w, 101, 2.0, 3.0, last, now); intent != nil {
		t.Errorf("proposed price matching the last accepted price must veto, got %+v", intent)
	}
}

func TestMomentum_FlatWindowVeto(t *testing.T) {
	m := strategy.NewMomentum(5, 5)
	w := strategy.NewPriceWindow()
	now := epoch.Add(90 * time.Second)
	// Big move 90s ago, then flat for the whole trailing 15s.
	w.Add(backSample(epoch, 2.0))
	w.Add(backSample(now.Add(-12*time.Second), 8.0))
	w.Add(backSample(now.Add(-6*time.Second), 8.0))
	w.Add(backSample(now, 8.0))

	if intent := m.Evaluate(w, 101, 2.0, 3.0, strategy.LastBet{}, now); intent != nil {
		t.Errorf("flat trailing 15s must veto a threshold computed from stale data, got %+v", intent)
	}
}
