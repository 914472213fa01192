package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"trading-profilev1/internal/model"
)

// SignalRow is a journaled signal with its symbol and write time.
type SignalRow struct {
	Symbol     string       `json:"symbol"`
	Signal     model.Signal `json:"signal"`
	RecordedAt int64        `json:"recorded_at"` // epoch ms
}

// PivotRow is a journaled pivot with its symbol and write time.
type PivotRow struct {
	Symbol     string      `json:"symbol"`
	Pivot      model.Pivot `json:"pivot"`
	RecordedAt int64       `json:"recorded_at"` // epoch ms
}

// Reader provides read-only queries over the journal for the HTTP API.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	return &Reader{db: db}, nil
}

// RecentSignals returns up to limit signals for symbol, newest first.
func (r *Reader) RecentSignals(ctx context.Context, symbol string, limit int) ([]SignalRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, action, price, bar_ts, net, policy, recorded_at
		FROM signals
		WHERE symbol = ?
		ORDER BY id DESC
		LIMIT ?
	`, symbol, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	out := make([]SignalRow, 0)
	for rows.Next() {
		var row SignalRow
		var action string
		s := &row.Signal
		if err := rows.Scan(&row.Symbol, &action, &s.Price, &s.BarTime, &s.Net, &s.Policy, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan signals: %w", err)
		}
		s.Action = model.Action(action)
		out = append(out, row)
	}
	return out, rows.Err()
}

// RecentPivots returns up to limit pivots for symbol, newest first.
func (r *Reader) RecentPivots(ctx context.Context, symbol string, limit int) ([]PivotRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, kind, ts, open, high, low, close, volume, recorded_at
		FROM pivots
		WHERE symbol = ?
		ORDER BY id DESC
		LIMIT ?
	`, symbol, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite query pivots: %w", err)
	}
	defer rows.Close()

	out := make([]PivotRow, 0)
	for rows.Next() {
		var row PivotRow
		var kind string
		b := &row.Pivot.Bar
		if err := rows.Scan(&row.Symbol, &kind, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan pivots: %w", err)
		}
		row.Pivot.Kind = model.PivotKind(kind)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountBars returns the number of journaled bars for symbol.
func (r *Reader) CountBars(ctx context.Context, symbol string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bars WHERE symbol = ?`, symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite count bars: %w", err)
	}
	return n, nil
}

// Ping checks the database for health reporting.
func (r *Reader) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
