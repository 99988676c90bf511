// Package sqlite persists the trade ledger with gorm. The engine performs the
// dedup check synchronously before mutating in-memory state; the insert itself
// may be retried because the unique (exec_id, account) index makes it
// idempotent.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tmatic/internal/store/model"
)

// Store is the gorm-backed trade ledger.
type Store struct {
	db *gorm.DB
}

// Open creates the database file (and parent directory) if needed and runs
// migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB wraps an existing gorm handle; tests use it with an in-memory
// database.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("nil gorm handle")
	}
	if err := db.AutoMigrate(&model.TradeModel{}); err != nil {
		return nil, fmt.Errorf("migrating trade ledger: %w", err)
	}
	return &Store{db: db}, nil
}

// HasExecution reports whether the execution id is already booked for the
// account.
func (s *Store) HasExecution(ctx context.Context, execID string, account int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.TradeModel{}).
		Where("exec_id = ? AND account = ?", execID, account).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertTrade appends one ledger row. A duplicate (exec_id, account) pair is
// silently skipped so a retried append cannot double-book.
func (s *Store) InsertTrade(ctx context.Context, rec *model.TradeModel) error {
	if rec == nil {
		return errors.New("trade record cannot be nil")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "exec_id"}, {Name: "account"}},
		DoNothing: true,
	}).Create(rec).Error
}

// NetQty sums the signed quantity booked under one strategy id, funding rows
// excluded. Delivery uses it to verify the residual against persisted
// history.
func (s *Store) NetQty(ctx context.Context, emi, market string, account int64) (float64, error) {
	var sum *float64
	err := s.db.WithContext(ctx).Model(&model.TradeModel{}).
		Select("SUM(qty)").
		Where("emi = ? AND market = ? AND account = ? AND side <> ?", emi, market, account, model.SideFund).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// RecentTrades lists ledger rows newest first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]model.TradeModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.TradeModel
	err := s.db.WithContext(ctx).
		Order("transact_time DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// LoadPositions reconstructs per-strategy positions from history at boot.
// Funding rows are excluded entirely: they carry no position and their
// commission column holds the funding payment, not a fee.
func (s *Store) LoadPositions(ctx context.Context, market string, account int64) ([]model.PositionRow, error) {
	var rows []model.PositionRow
	err := s.db.WithContext(ctx).Model(&model.TradeModel{}).
		Select("emi, symbol, market, SUM(qty) AS position, SUM(ABS(qty)) AS volume, SUM(sumreal) AS sumreal, SUM(commission) AS commission").
		Where("market = ? AND account = ? AND side <> ?", market, account, model.SideFund).
		Group("emi, symbol, market").
		Scan(&rows).Error
	return rows, err
}
