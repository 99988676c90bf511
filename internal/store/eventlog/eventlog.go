// Package eventlog keeps an append-only log of reconciliation messages for
// operator review. It uses a plain database/sql handle over the pure-Go
// sqlite driver so the log survives restarts independently of the gorm trade
// ledger.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one reconciliation message.
type Record struct {
	ID        int64     `json:"id"`
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"ts"`
	Market    string    `json:"market"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

// Store appends and lists reconciliation log records.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("event log path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating event log directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS recon_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_id TEXT,
		ts INTEGER NOT NULL,
		market TEXT,
		strategy TEXT,
		symbol TEXT,
		severity TEXT,
		message TEXT
	)`)
	if err != nil {
		return fmt.Errorf("migrating event log: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recon_log (trace_id, ts, market, strategy, symbol, severity, message) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, ts.UnixMicro(), rec.Market, rec.Strategy, rec.Symbol, rec.Severity, rec.Message)
	return err
}

// List returns the newest records first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, ts, market, strategy, symbol, severity, message FROM recon_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.TraceID, &ts, &rec.Market, &rec.Strategy, &rec.Symbol, &rec.Severity, &rec.Message); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMicro(ts).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
