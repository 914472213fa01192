// Package sqlite keeps an append-only audit trail of closed bars, confirmed
// pivots and signals. The engine never reads it back to restore state.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trading-profilev1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// RecordKind selects the table a record goes to.
type RecordKind int

const (
	RecordBar RecordKind = iota + 1
	RecordPivot
	RecordSignal
)

// Record is one journal entry. Only the field matching Kind is used.
type Record struct {
	Kind       RecordKind
	Symbol     string
	Bar        model.Bar
	Pivot      model.Pivot
	Signal     model.Signal
	RecordedAt time.Time
}

// BarRecord journals a closed bar.
func BarRecord(symbol string, b model.Bar) Record {
	return Record{Kind: RecordBar, Symbol: symbol, Bar: b, RecordedAt: time.Now()}
}

// PivotRecord journals a confirmed pivot.
func PivotRecord(symbol string, p model.Pivot) Record {
	return Record{Kind: RecordPivot, Symbol: symbol, Pivot: p, RecordedAt: time.Now()}
}

// SignalRecord journals a signal.
func SignalRecord(symbol string, s model.Signal) Record {
	return Record{Kind: RecordSignal, Symbol: symbol, Signal: s, RecordedAt: time.Now()}
}

// Config configures the journal.
type Config struct {
	DBPath     string // e.g. "data/profile.db"
	BatchSize  int
	FlushDelay time.Duration
}

// Journal is a single-goroutine SQLite writer with transaction batching.
type Journal struct {
	db  *sql.DB
	cfg Config

	// OnCommit is called after each committed batch.
	OnCommit func(records int, took time.Duration)
	// OnError is called when a batch fails; the batch is discarded.
	OnError func(err error)
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Journal, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = defaultFlushDelay
	}

	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("journal opened", "component", "sqlite", "path", cfg.DBPath)
	return &Journal{db: db, cfg: cfg}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", path, err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS pivots (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			kind        TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			volume      REAL    NOT NULL,
			recorded_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS signals (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			action      TEXT    NOT NULL,
			price       REAL    NOT NULL,
			bar_ts      INTEGER NOT NULL,
			net         INTEGER NOT NULL,
			policy      TEXT    NOT NULL,
			recorded_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pivots_symbol ON pivots (symbol, id);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals (symbol, id);
	`)
	return err
}

// Run reads records and inserts them in batched transactions.
// Flushes every BatchSize records or every FlushDelay, whichever first.
// Blocks until ctx is cancelled or recCh is closed, flushing what is left.
func (j *Journal) Run(ctx context.Context, recCh <-chan Record) {
	batch := make([]Record, 0, j.cfg.BatchSize)
	timer := time.NewTimer(j.cfg.FlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := j.Write(batch); err != nil {
			slog.Error("journal batch failed", "component", "sqlite", "records", len(batch), "error", err)
			if j.OnError != nil {
				j.OnError(err)
			}
		} else if j.OnCommit != nil {
			j.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case rec, ok := <-recCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= j.cfg.BatchSize {
				flush()
				timer.Reset(j.cfg.FlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(j.cfg.FlushDelay)
		}
	}
}

// Write inserts records in a single transaction.
func (j *Journal) Write(records []Record) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	for _, r := range records {
		if err := insert(tx, r); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func insert(tx *sql.Tx, r Record) error {
	at := r.RecordedAt.UnixMilli()
	var err error
	switch r.Kind {
	case RecordBar:
		b := r.Bar
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.Symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
	case RecordPivot:
		b := r.Pivot.Bar
		_, err = tx.Exec(`
			INSERT INTO pivots (symbol, kind, ts, open, high, low, close, volume, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Symbol, string(r.Pivot.Kind), b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume, at)
	case RecordSignal:
		s := r.Signal
		_, err = tx.Exec(`
			INSERT INTO signals (symbol, action, price, bar_ts, net, policy, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.Symbol, string(s.Action), s.Price, s.BarTime, s.Net, s.Policy, at)
	default:
		return fmt.Errorf("unknown record kind %d", r.Kind)
	}
	if err != nil {
		return fmt.Errorf("insert kind %d: %w", r.Kind, err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
