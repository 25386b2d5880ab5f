// Package sim provides a deterministic cricket-market simulator for
// exercising the control surface and client UIs without a live exchange
// session. It models the suspend/reopen rhythm of in-play markets: every
// delivery suspends the market, drifts the odds, then reopens it.
package sim

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"sync"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
)

const (
	ballsPerOver = 6
	minOdds      = 1.01
	maxOdds      = 20.0

	// Rule evaluator parameters: drift measured over the last 3 balls,
	// moves under 0.1 treated as noise.
	suggestWindow = 3
	suggestBand   = 0.1
)

// Delivery is one simulated ball: the status transitions the market went
// through and the odds after it completed.
type Delivery struct {
	Ball       int                   `json:"ball"`
	Over       string                `json:"over"`
	Statuses   []domain.MarketStatus `json:"statuses"`
	Back       float64               `json:"back"`
	Lay        float64               `json:"lay"`
	BallCount  int                   `json:"ball_count"`
	Suggestion Suggestion            `json:"suggestion"`
}

// Suggestion is the toy rule evaluator's read of the recent deliveries.
// Demo output only; the trading engine never consumes it.
type Suggestion struct {
	Side string `json:"side"` // BACK, LAY or NONE
	Rule string `json:"rule"`
}

// suggestFrom applies a simple drift rule to the last few deliveries:
// odds shortening over the window favour the runner (BACK), drifting
// odds count against it (LAY), anything inside the noise band is NONE.
func suggestFrom(history []float64, current float64) Suggestion {
	if len(history) < suggestWindow {
		return Suggestion{Side: "NONE", Rule: "insufficient history"}
	}
	drift := current - history[len(history)-suggestWindow]
	switch {
	case drift <= -suggestBand:
		return Suggestion{Side: "BACK", Rule: "odds shortening over last 3 balls"}
	case drift >= suggestBand:
		return Suggestion{Side: "LAY", Rule: "odds drifting over last 3 balls"}
	default:
		return Suggestion{Side: "NONE", Rule: "drift within noise band"}
	}
}

// Simulator produces a reproducible sequence of deliveries. The same
// seed always yields the same match.
type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	seed    int64
	ball    int
	tracker domain.BallTracker
	back    float64
	history []float64
}

// NewSimulator creates a simulator starting at even money.
func NewSimulator(seed int64) *Simulator {
	s := &Simulator{}
	s.reset(seed)
	return s
}

func (s *Simulator) reset(seed int64) {
	s.seed = seed
	s.rng = rand.New(rand.NewSource(seed))
	s.ball = 0
	s.tracker = domain.BallTracker{}
	s.back = 2.0
	s.history = nil
}

// Reset rewinds the match to the start with a new seed.
func (s *Simulator) Reset(seed int64) {
	s.mu.Lock()
	s.reset(seed)
	s.mu.Unlock()
}

// Next advances one delivery and returns it.
func (s *Simulator) Next() Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ball++
	statuses := []domain.MarketStatus{domain.StatusSuspended, domain.StatusOpen}
	for _, st := range statuses {
		s.tracker.Observe(st)
	}

	// A wicket is a large jump, a boundary a medium one, a dot ball a
	// small drift toward the favourite.
	roll := s.rng.Float64()
	switch {
	case roll < 0.05: // wicket
		s.back *= 1 + s.rng.Float64()*0.8
	case roll < 0.25: // boundary
		s.back *= 1 - s.rng.Float64()*0.15
	default:
		s.back *= 1 + (s.rng.Float64()-0.55)*0.05
	}
	if s.back < minOdds {
		s.back = minOdds
	}
	if s.back > maxOdds {
		s.back = maxOdds
	}

	back := roundTick(s.back)
	suggestion := suggestFrom(s.history, back)
	s.history = append(s.history, back)

	return Delivery{
		Ball:       s.ball,
		Over:       overNotation(s.ball),
		Statuses:   statuses,
		Back:       back,
		Lay:        roundTick(back + 0.02),
		BallCount:  s.tracker.BallCount(),
		Suggestion: suggestion,
	}
}

func roundTick(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// overNotation renders ball 7 as "1.1", ball 12 as "1.6".
func overNotation(ball int) string {
	over := (ball - 1) / ballsPerOver
	inOver := (ball-1)%ballsPerOver + 1
	return strconv.Itoa(over) + "." + strconv.Itoa(inOver)
}

// Handler mounts the simulator's HTTP endpoints:
//
//	POST /api/sim/reset?seed=N
//	GET  /api/sim/next
func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sim/reset", func(w http.ResponseWriter, r *http.Request) {
		seed := s.seed
		if v := r.URL.Query().Get("seed"); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeSimError(w, http.StatusBadRequest, "seed must be an integer")
				return
			}
			seed = parsed
		}
		s.Reset(seed)
		writeSimJSON(w, http.StatusOK, map[string]any{"status": "reset", "seed": seed})
	})

	mux.HandleFunc("GET /api/sim/next", func(w http.ResponseWriter, _ *http.Request) {
		writeSimJSON(w, http.StatusOK, s.Next())
	})

	return mux
}

func writeSimJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeSimError(w http.ResponseWriter, status int, msg string) {
	writeSimJSON(w, status, map[string]string{"error": msg})
}
