package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

// SQLite persists positions, closed trades and portfolio snapshots to a
// SQLite database.
type SQLite struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(dbPath string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLite{db: db, log: logger.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id              TEXT PRIMARY KEY,
			symbol          TEXT NOT NULL,
			entry_price     REAL,
			quantity        REAL,
			entry_cost      REAL,
			stop_loss_pct   REAL,
			take_profit_pct REAL,
			open_time       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(open_time)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT NOT NULL,
			entry_price  REAL,
			exit_price   REAL,
			quantity     REAL,
			entry_cost   REAL,
			net_proceeds REAL,
			realized_pnl REAL,
			pnl_percent  REAL,
			open_time    INTEGER NOT NULL,
			close_time   INTEGER NOT NULL,
			duration_sec INTEGER,
			exit_reason  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_close ON trades(close_time)`,

		`CREATE TABLE IF NOT EXISTS snapshots (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp       INTEGER NOT NULL,
			portfolio_value REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(s), err)
		}
	}
	return nil
}

func (r *SQLite) RecordOpen(position *models.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR REPLACE INTO positions
		(id, symbol, entry_price, quantity, entry_cost, stop_loss_pct, take_profit_pct, open_time)
		VALUES (?,?,?,?,?,?,?,?)`,
		position.ID, position.Symbol, position.EntryPrice, position.Quantity,
		position.EntryCost, position.StopLossPct, position.TakeProfitPct,
		position.OpenTime.Unix(),
	)
	return err
}

func (r *SQLite) RecordClose(trade *models.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO trades
		(symbol, entry_price, exit_price, quantity, entry_cost, net_proceeds,
		 realized_pnl, pnl_percent, open_time, close_time, duration_sec, exit_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		trade.Symbol, trade.EntryPrice, trade.ExitPrice, trade.Quantity,
		trade.EntryCost, trade.NetProceeds, trade.RealizedPnL, trade.PnLPercent,
		trade.OpenTime.Unix(), trade.CloseTime.Unix(),
		int64(trade.Duration.Seconds()), string(trade.ExitReason),
	)
	return err
}

func (r *SQLite) RecordSnapshot(at time.Time, portfolioValue float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO snapshots (timestamp, portfolio_value) VALUES (?,?)`,
		at.Unix(), portfolioValue)
	return err
}

func (r *SQLite) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
