package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	framesDecoded atomic.Uint64
	decodeDrops   atomic.Uint64
	ordersPlaced  atomic.Uint64
	ordersFailed  atomic.Uint64
	errorsTotal   atomic.Uint64

	// Gauges
	activeWorkers atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordFrame records a successfully decoded stream frame.
func (m *Metrics) RecordFrame() {
	m.framesDecoded.Add(1)
}

// RecordDecodeDrop records a fragment that failed to parse and was dropped.
func (m *Metrics) RecordDecodeDrop() {
	m.decodeDrops.Add(1)
}

// RecordOrderPlaced records a successfully submitted order.
func (m *Metrics) RecordOrderPlaced() {
	m.ordersPlaced.Add(1)
}

// RecordOrderFailed records an order whose retries were exhausted.
func (m *Metrics) RecordOrderFailed() {
	m.ordersFailed.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementWorkers increments the active worker count by 1.
func (m *Metrics) IncrementWorkers() {
	m.activeWorkers.Add(1)
}

// DecrementWorkers decrements the active worker count by 1.
func (m *Metrics) DecrementWorkers() {
	m.activeWorkers.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	FramesDecoded uint64    `json:"frames_decoded"`
	DecodeDrops   uint64    `json:"decode_drops"`
	OrdersPlaced  uint64    `json:"orders_placed"`
	OrdersFailed  uint64    `json:"orders_failed"`
	ErrorsTotal   uint64    `json:"errors_total"`
	ActiveWorkers int32     `json:"active_workers"`
	Timestamp     time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FramesDecoded: m.framesDecoded.Load(),
		DecodeDrops:   m.decodeDrops.Load(),
		OrdersPlaced:  m.ordersPlaced.Load(),
		OrdersFailed:  m.ordersFailed.Load(),
		ErrorsTotal:   m.errorsTotal.Load(),
		ActiveWorkers: m.activeWorkers.Load(),
		Timestamp:     time.Now(),
	}
}
