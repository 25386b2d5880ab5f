package domain

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// OrderPlacer submits one limit order to the exchange (or a paper book).
// Implementations own their retry policy; a nil RawMessage with a non-nil
// error means the submission settled as a failure. Callers must treat
// failures as "no result", never as fatal.
type OrderPlacer interface {
	PlaceLimitOrder(ctx context.Context, marketID string, intent OrderIntent, size decimal.Decimal, persistence string) (json.RawMessage, error)
}

// AuditSink records order attempts and worker lifecycle events to the
// append-only journal. Implementations must never block trading paths on
// failure; errors are for the caller to log and drop.
type AuditSink interface {
	RecordOrder(rec OrderRecord) error
	RecordWorkerEvent(rec WorkerEventRecord) error
}
