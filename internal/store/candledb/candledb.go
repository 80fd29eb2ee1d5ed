// Package candledb is the durable truth for finalized 1-minute candles.
// Conflicts resolve by row-level upsert with last-writer-wins on
// (symbol, minute_ts_ms).
package candledb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"marketfuse/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS candles_1m (
	symbol       TEXT    NOT NULL,
	minute_ts_ms INTEGER NOT NULL,
	open         REAL    NOT NULL,
	high         REAL    NOT NULL,
	low          REAL    NOT NULL,
	close        REAL    NOT NULL,
	volume       REAL    NOT NULL,
	finalized_at TIMESTAMP NOT NULL,
	PRIMARY KEY (symbol, minute_ts_ms)
);

CREATE INDEX IF NOT EXISTS idx_candles_1m_symbol_time
ON candles_1m(symbol, minute_ts_ms DESC);
`

// DB wraps the candles_1m table.
type DB struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path with WAL mode and a single
// writer, and ensures the schema exists.
func Open(path string) (*DB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("candledb open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("candledb schema: %w", err)
	}

	slog.Info("candledb opened", "path", path)
	return &DB{db: db}, nil
}

// DB returns the underlying sqlx.DB for health checks.
func (d *DB) DB() *sqlx.DB { return d.db }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

type candleRow struct {
	Symbol      string    `db:"symbol"`
	MinuteTSMS  int64     `db:"minute_ts_ms"`
	Open        float64   `db:"open"`
	High        float64   `db:"high"`
	Low         float64   `db:"low"`
	Close       float64   `db:"close"`
	Volume      float64   `db:"volume"`
	FinalizedAt time.Time `db:"finalized_at"`
}

func (r candleRow) candle() model.Candle {
	return model.Candle{
		EventType:   model.KindCandle1m,
		Symbol:      r.Symbol,
		MinuteTSMS:  r.MinuteTSMS,
		Open:        r.Open,
		High:        r.High,
		Low:         r.Low,
		Close:       r.Close,
		Volume:      r.Volume,
		FinalizedAt: r.FinalizedAt,
	}
}

// UpsertCandle inserts or replaces the row for (symbol, minute_ts_ms).
func (d *DB) UpsertCandle(ctx context.Context, c model.Candle) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO candles_1m (symbol, minute_ts_ms, open, high, low, close, volume, finalized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, minute_ts_ms) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			finalized_at = excluded.finalized_at
	`, c.Symbol, c.MinuteTSMS, c.Open, c.High, c.Low, c.Close, c.Volume, c.FinalizedAt.UTC())
	if err != nil {
		return fmt.Errorf("candledb upsert %s: %w", c.Key(), err)
	}
	return nil
}

// RecentCandles returns up to limit most-recent candles for a symbol in
// chronological order (oldest first).
func (d *DB) RecentCandles(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	var rows []candleRow
	err := d.db.SelectContext(ctx, &rows, `
		SELECT symbol, minute_ts_ms, open, high, low, close, volume, finalized_at
		FROM candles_1m
		WHERE symbol = ?
		ORDER BY minute_ts_ms DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("candledb recent %s: %w", symbol, err)
	}

	out := make([]model.Candle, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.candle() // reverse to chronological
	}
	return out, nil
}

// CandlesInRange returns candles for symbol with minute_ts_ms in
// [fromMS, toMS], chronological order.
func (d *DB) CandlesInRange(ctx context.Context, symbol string, fromMS, toMS int64) ([]model.Candle, error) {
	var rows []candleRow
	err := d.db.SelectContext(ctx, &rows, `
		SELECT symbol, minute_ts_ms, open, high, low, close, volume, finalized_at
		FROM candles_1m
		WHERE symbol = ? AND minute_ts_ms BETWEEN ? AND ?
		ORDER BY minute_ts_ms ASC
	`, symbol, fromMS, toMS)
	if err != nil {
		return nil, fmt.Errorf("candledb range %s: %w", symbol, err)
	}

	out := make([]model.Candle, len(rows))
	for i, r := range rows {
		out[i] = r.candle()
	}
	return out, nil
}
