package domain

import "time"

// OrderRecord is one row in the order audit journal. Written after a
// submission settles; never read back into trading state.
type OrderRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MarketID    string    `gorm:"index" json:"market_id"`
	SelectionID int64     `json:"selection_id"`
	Side        string    `json:"side"`
	Price       float64   `json:"price"`
	Size        string    `json:"size"`
	Status      string    `gorm:"index" json:"status"` // PLACED / FAILED
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkerEventRecord is one row in the worker lifecycle journal.
type WorkerEventRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MarketID  string    `gorm:"index" json:"market_id"`
	Instance  string    `json:"instance"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	OrderStatusPlaced = "PLACED"
	OrderStatusFailed = "FAILED"
)
