package universe

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"StockScreener/internal/logger"
	"StockScreener/internal/model"
)

// SQLiteStore keeps the reference universe in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logrus.Entry
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so API reads don't block a reseed.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: logger.Component("universe")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.WithField("path", dbPath).Info("universe store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS universe (
			symbol_id    TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			market_cap   REAL NOT NULL,
			exchange     TEXT NOT NULL,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_universe_cap ON universe(market_cap)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Upsert inserts or replaces entries in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, entries []model.UniverseEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO universe
		(symbol_id, display_name, market_cap, exchange, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(symbol_id) DO UPDATE SET
			display_name = excluded.display_name,
			market_cap   = excluded.market_cap,
			exchange     = excluded.exchange,
			updated_at   = excluded.updated_at`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.SymbolID, e.DisplayName, e.MarketCap, e.Exchange, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s: %w", e.SymbolID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context, minMarketCap float64) ([]model.UniverseEntry, error) {
	if err := checkCap(minMarketCap); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT symbol_id, display_name, market_cap, exchange
		FROM universe WHERE market_cap > ?
		ORDER BY market_cap DESC, symbol_id ASC`, minMarketCap)
	if err != nil {
		return nil, fmt.Errorf("query universe: %w", err)
	}
	defer rows.Close()

	var out []model.UniverseEntry
	for rows.Next() {
		var e model.UniverseEntry
		if err := rows.Scan(&e.SymbolID, &e.DisplayName, &e.MarketCap, &e.Exchange); err != nil {
			return nil, fmt.Errorf("scan universe row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM universe`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	s.log.Info("closing universe store")
	return s.db.Close()
}

// Seed copies every entry from the metadata file into the store.
func Seed(ctx context.Context, store *SQLiteStore, src *FileProvider) (int, error) {
	entries, err := src.All()
	if err != nil {
		return 0, err
	}
	if err := store.Upsert(ctx, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
