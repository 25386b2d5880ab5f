package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
)

// AuditLog is the append-only trading journal. Trading code only ever
// writes to it; the read methods exist for the control surface and
// offline inspection, never for trading decisions.
type AuditLog struct {
	db *gorm.DB
}

// NewAuditLog opens (or creates) the journal at path.
func NewAuditLog(path string) (*AuditLog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := db.AutoMigrate(&domain.OrderRecord{}, &domain.WorkerEventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}

	return &AuditLog{db: db}, nil
}

// RecordOrder appends one settled order attempt.
func (a *AuditLog) RecordOrder(rec domain.OrderRecord) error {
	return a.db.Create(&rec).Error
}

// RecordWorkerEvent appends one worker lifecycle event.
func (a *AuditLog) RecordWorkerEvent(rec domain.WorkerEventRecord) error {
	return a.db.Create(&rec).Error
}

// RecentOrders returns order records newest first.
func (a *AuditLog) RecentOrders(limit, offset int) ([]domain.OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []domain.OrderRecord
	err := a.db.Order("id DESC").Limit(limit).Offset(offset).Find(&recs).Error
	return recs, err
}

// OrdersForMarket returns a market's order records newest first.
func (a *AuditLog) OrdersForMarket(marketID string, limit int) ([]domain.OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []domain.OrderRecord
	err := a.db.Where("market_id = ?", marketID).Order("id DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// RecentWorkerEvents returns lifecycle events newest first.
func (a *AuditLog) RecentWorkerEvents(limit int) ([]domain.WorkerEventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []domain.WorkerEventRecord
	err := a.db.Order("id DESC").Limit(limit).Find(&recs).Error
	return recs, err
}
