package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"marketdata_backend/models"
	"marketdata_backend/services/quotes"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3"
)

// Archive is the local long-horizon price history store, backed by SQLite.
// It serves history queries that reach beyond the rolling 24h time-series
// window and is rebuilt by the periodic historical reload job.
type Archive struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if necessary) the archive database at path.
func Open(path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping archive: %w", err)
	}

	a := &Archive{db: db}
	if err := a.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create archive tables: %w", err)
	}

	log.Printf("History archive initialized at %s", path)
	return a, nil
}

// Close closes the archive database.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Archive) createTables() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS history_bars (
			symbol  TEXT NOT NULL,
			bar_time INTEGER NOT NULL,
			open    TEXT,
			high    TEXT,
			low     TEXT,
			close   TEXT NOT NULL,
			volume  INTEGER,
			PRIMARY KEY (symbol, bar_time)
		)`)
	return err
}

// AppendQuote records one committed quote as a history bar.
func (a *Archive) AppendQuote(ctx context.Context, quote models.Quote) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO history_bars (symbol, bar_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		quote.Symbol, quote.Timestamp.UnixMilli(),
		quote.Open.String(), quote.High.String(), quote.Low.String(), quote.Close.String(),
		quote.Volume,
	)
	if err != nil {
		return fmt.Errorf("archive append %s: %w", quote.Symbol, err)
	}
	return nil
}

// ReplaceSymbol drops a symbol's bars and loads the given set in one
// transaction. Used by the historical reload job.
func (a *Archive) ReplaceSymbol(ctx context.Context, symbol string, bars []quotes.Bar) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive replace %s: %w", symbol, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_bars WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("archive clear %s: %w", symbol, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO history_bars (symbol, bar_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("archive replace %s: %w", symbol, err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx,
			symbol, bar.Date.UnixMilli(),
			bar.Open.String(), bar.High.String(), bar.Low.String(), bar.Close.String(),
			bar.Volume,
		); err != nil {
			return fmt.Errorf("archive insert %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive commit %s: %w", symbol, err)
	}
	return nil
}

// Range returns bars for a symbol with timestamp in [from, to], ascending.
func (a *Archive) Range(ctx context.Context, symbol string, from, to time.Time) ([]quotes.Bar, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.QueryContext(ctx, `
		SELECT symbol, bar_time, open, high, low, close, volume
		FROM history_bars
		WHERE symbol = ? AND bar_time >= ? AND bar_time <= ?
		ORDER BY bar_time ASC`,
		symbol, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("archive range %s: %w", symbol, err)
	}
	defer rows.Close()

	bars := make([]quotes.Bar, 0)
	for rows.Next() {
		var (
			bar     quotes.Bar
			barTime int64
			open    string
			high    string
			low     string
			closeS  string
		)
		if err := rows.Scan(&bar.Symbol, &barTime, &open, &high, &low, &closeS, &bar.Volume); err != nil {
			return nil, fmt.Errorf("archive scan %s: %w", symbol, err)
		}
		bar.Date = time.UnixMilli(barTime).UTC()
		bar.Open = parseDecimal(open)
		bar.High = parseDecimal(high)
		bar.Low = parseDecimal(low)
		bar.Close = parseDecimal(closeS)
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// Count returns the number of stored bars for a symbol.
func (a *Archive) Count(ctx context.Context, symbol string) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var count int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history_bars WHERE symbol = ?`, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("archive count %s: %w", symbol, err)
	}
	return count, nil
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}
