package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"ohlcchart/internal/model"
)

// Reader provides read-only access to stored candles.
type Reader struct {
	db *sqlx.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: sqlx.NewDb(db, "sqlite3")}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db.DB }

type candleRow struct {
	Time  int64   `db:"ts"`
	Open  float64 `db:"open"`
	High  float64 `db:"high"`
	Low   float64 `db:"low"`
	Close float64 `db:"close"`
}

// ReadCandles returns candles for symbol with from <= time < to, ascending.
// to <= 0 leaves the upper end open.
func (r *Reader) ReadCandles(ctx context.Context, symbol string, from, to int64) ([]model.Candle, error) {
	q := `SELECT ts, open, high, low, close FROM candles WHERE symbol = ? AND ts >= ?`
	args := []any{symbol, from}
	if to > 0 {
		q += ` AND ts < ?`
		args = append(args, to)
	}
	q += ` ORDER BY ts ASC`

	var rows []candleRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	candles := make([]model.Candle, len(rows))
	for i, row := range rows {
		candles[i] = model.Candle(row)
	}
	return candles, nil
}

// Symbols lists the distinct symbols with stored candles.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	if err := r.db.SelectContext(ctx, &out, `SELECT DISTINCT symbol FROM candles ORDER BY symbol`); err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	return out, nil
}

// LastTime returns the newest stored candle time for symbol, or 0.
func (r *Reader) LastTime(ctx context.Context, symbol string) (int64, error) {
	return lastTime(ctx, r.db.DB, symbol)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

var (
	_ model.CandleWriter = (*Writer)(nil)
	_ model.CandleReader = (*Reader)(nil)
)
