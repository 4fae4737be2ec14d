package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/persistence"
)

// Options tune a Store
type Options struct {
	Timeout  time.Duration
	Location *time.Location
	Clock    func() time.Time
}

// Store implements persistence.Ledger over SQLite or PostgreSQL
type Store struct {
	db      *sqlx.DB
	driver  string
	timeout time.Duration
	loc     *time.Location
	clock   func() time.Time

	// serialises guarded sections within this process
	guard sync.Mutex
}

var _ persistence.Ledger = (*Store)(nil)

// New creates a ledger store; db.DriverName selects the SQL dialect
func New(db *sqlx.DB, opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		db:      db,
		driver:  db.DriverName(),
		timeout: opts.Timeout,
		loc:     opts.Location,
		clock:   opts.Clock,
	}
}

// Now returns the ledger clock in the configured timezone
func (s *Store) Now() time.Time {
	return s.clock().In(s.loc)
}

func (s *Store) stamp() string {
	return s.Now().Format(persistence.TimestampLayout)
}

// Init creates tables and seeds missing default config values
func (s *Store) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stmts, err := schema(s.driver)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	seed := tx.Rebind(`INSERT INTO config (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`)
	for key, value := range persistence.DefaultConfig() {
		if _, err := tx.ExecContext(ctx, seed, key, value); err != nil {
			return fmt.Errorf("failed to seed config %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// GetConfig reads one config value
func (s *Store) GetConfig(ctx context.Context, key string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var value float64
	err := s.db.GetContext(ctx, &value, s.db.Rebind(`SELECT value FROM config WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", persistence.ErrConfigMissing, key)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read config %s: %w", key, err)
	}
	return value, nil
}

// UpdateConfig upserts one config value
func (s *Store) UpdateConfig(ctx context.Context, key string, value float64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := s.db.Rebind(`INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to update config %s: %w", key, err)
	}
	return nil
}

// ListConfig returns every config entry ordered by key
func (s *Store) ListConfig(ctx context.Context) ([]persistence.ConfigEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var entries []persistence.ConfigEntry
	if err := s.db.SelectContext(ctx, &entries, `SELECT key, value FROM config ORDER BY key`); err != nil {
		return nil, fmt.Errorf("failed to list config: %w", err)
	}
	return entries, nil
}

// LogSignal appends a signal with the weights serialised as JSON
func (s *Store) LogSignal(ctx context.Context, targetDuration float64, weights domain.WeightVector) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}

	query := s.db.Rebind(`INSERT INTO signals (ts, target_duration, weights) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, s.stamp(), targetDuration, string(raw)); err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// LatestSignal returns the most recent signal or nil
func (s *Store) LatestSignal(ctx context.Context) (*persistence.Signal, error) {
	signals, err := s.ListSignals(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, nil
	}
	return &signals[0], nil
}

// ListSignals returns the newest signals first
func (s *Store) ListSignals(ctx context.Context, limit int) ([]persistence.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var signals []persistence.Signal
	query := s.db.Rebind(`SELECT id, ts, target_duration, weights FROM signals ORDER BY id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &signals, query, normLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	for i := range signals {
		if err := json.Unmarshal([]byte(signals[i].WeightsJSON), &signals[i].Weights); err != nil {
			return nil, fmt.Errorf("failed to decode weights of signal %d: %w", signals[i].ID, err)
		}
	}
	return signals, nil
}

// LogEvent appends one log line
func (s *Store) LogEvent(ctx context.Context, level domain.LogLevel, message string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := s.db.Rebind(`INSERT INTO logs (ts, level, message) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, s.stamp(), string(level), message); err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}

// ListLogs returns the newest log lines first, optionally for one level
func (s *Store) ListLogs(ctx context.Context, limit int, level string) ([]persistence.LogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var entries []persistence.LogEntry
	var err error
	if level == "" {
		query := s.db.Rebind(`SELECT id, ts, level, message FROM logs ORDER BY id DESC LIMIT ?`)
		err = s.db.SelectContext(ctx, &entries, query, normLimit(limit))
	} else {
		query := s.db.Rebind(`SELECT id, ts, level, message FROM logs WHERE level = ? ORDER BY id DESC LIMIT ?`)
		err = s.db.SelectContext(ctx, &entries, query, level, normLimit(limit))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	return entries, nil
}

// AppendTrade stamps and inserts a trade
func (s *Store) AppendTrade(ctx context.Context, trade persistence.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.appendTrade(ctx, s.db, trade)
}

// SumTradeValueForDay sums the traded notional of the given calendar day
func (s *Store) SumTradeValueForDay(ctx context.Context, day time.Time) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sumTradeValueForDay(ctx, s.db, day)
}

func (s *Store) appendTrade(ctx context.Context, q sqlx.ExtContext, trade persistence.Trade) error {
	if trade.Ticker == "" {
		return fmt.Errorf("invalid trade: empty ticker")
	}
	if trade.Qty <= 0 {
		return fmt.Errorf("invalid trade %s: qty must be positive, got %v", trade.Ticker, trade.Qty)
	}
	if trade.Side != string(domain.SideBuy) && trade.Side != string(domain.SideSell) {
		return fmt.Errorf("invalid trade %s: side %q", trade.Ticker, trade.Side)
	}
	if trade.Timestamp == "" {
		trade.Timestamp = s.stamp()
	}
	if trade.Status == "" {
		trade.Status = domain.TradeStatusFilled
	}

	query := q.Rebind(`INSERT INTO trades (ts, ticker, qty, price, side, trade_value, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query,
		trade.Timestamp, trade.Ticker, trade.Qty, trade.Price,
		trade.Side, trade.TradeValue, trade.Status)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate trade: %w", err)
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func (s *Store) sumTradeValueForDay(ctx context.Context, q sqlx.ExtContext, day time.Time) (float64, error) {
	prefix := day.In(s.loc).Format(persistence.DayLayout) + "%"

	var total float64
	query := q.Rebind(`SELECT COALESCE(SUM(trade_value), 0) FROM trades WHERE ts LIKE ?`)
	if err := sqlx.GetContext(ctx, q, &total, query, prefix); err != nil {
		return 0, fmt.Errorf("failed to sum trade value: %w", err)
	}
	return total, nil
}

// CurrentHoldings nets signed quantities per ticker and drops dust
func (s *Store) CurrentHoldings(ctx context.Context) (domain.Holdings, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := s.db.Rebind(`
		SELECT ticker, SUM(CASE WHEN side = 'BUY' THEN qty ELSE -qty END) AS net
		FROM trades
		GROUP BY ticker
		HAVING SUM(CASE WHEN side = 'BUY' THEN qty ELSE -qty END) > ?
		ORDER BY ticker`)

	rows, err := s.db.QueryxContext(ctx, query, domain.DustShares)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := make(domain.Holdings)
	for rows.Next() {
		var ticker string
		var net float64
		if err := rows.Scan(&ticker, &net); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings[ticker] = net
	}
	return holdings, rows.Err()
}

// ListTrades returns the newest trades first
func (s *Store) ListTrades(ctx context.Context, limit int) ([]persistence.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var trades []persistence.Trade
	query := s.db.Rebind(`SELECT id, ts, ticker, qty, price, side, trade_value, status
		FROM trades ORDER BY id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &trades, query, normLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return trades, nil
}

// ListTradesForDay returns one calendar day's trades in execution order
func (s *Store) ListTradesForDay(ctx context.Context, day time.Time) ([]persistence.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var trades []persistence.Trade
	query := s.db.Rebind(`SELECT id, ts, ticker, qty, price, side, trade_value, status
		FROM trades WHERE ts LIKE ? ORDER BY id`)
	prefix := day.In(s.loc).Format(persistence.DayLayout) + "%"
	if err := s.db.SelectContext(ctx, &trades, query, prefix); err != nil {
		return nil, fmt.Errorf("failed to query trades for day: %w", err)
	}
	return trades, nil
}

// TotalsBySide sums all-time trade value per side
func (s *Store) TotalsBySide(ctx context.Context) (persistence.SideTotals, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var totals persistence.SideTotals
	query := `SELECT
		COALESCE(SUM(CASE WHEN side = 'BUY' THEN trade_value ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN side = 'SELL' THEN trade_value ELSE 0 END), 0)
		FROM trades`
	if err := s.db.QueryRowxContext(ctx, query).Scan(&totals.Buy, &totals.Sell); err != nil {
		return totals, fmt.Errorf("failed to sum trades by side: %w", err)
	}
	return totals, nil
}

// Guarded runs fn in one transaction while holding the process guard and,
// on PostgreSQL, a table lock that blocks concurrent trade writers
func (s *Store) Guarded(ctx context.Context, fn func(ctx context.Context, tx persistence.TradeWriter) error) error {
	s.guard.Lock()
	defer s.guard.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.driver == DriverPostgres {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE trades IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("failed to lock trades: %w", err)
		}
	}

	if err := fn(ctx, &txWriter{store: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type txWriter struct {
	store *Store
	tx    *sqlx.Tx
}

func (w *txWriter) AppendTrade(ctx context.Context, trade persistence.Trade) error {
	return w.store.appendTrade(ctx, w.tx, trade)
}

func (w *txWriter) SumTradeValueForDay(ctx context.Context, day time.Time) (float64, error) {
	return w.store.sumTradeValueForDay(ctx, w.tx, day)
}

func normLimit(limit int) int {
	if limit <= 0 || limit > 10000 {
		return 100
	}
	return limit
}
