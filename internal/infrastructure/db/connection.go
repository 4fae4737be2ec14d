package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/sawpanic/fisr/internal/persistence"
	"github.com/sawpanic/fisr/internal/persistence/sqlstore"
)

// Config holds ledger connection configuration
type Config struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	Timezone        string        `yaml:"timezone"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns a local SQLite ledger
func DefaultConfig() Config {
	return Config{
		Driver:          sqlstore.DriverSQLite,
		DSN:             "fisr.db",
		Timezone:        "Local",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// Location resolves the configured timezone
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Manager owns the ledger connection and the store built on it
type Manager struct {
	db     *sqlx.DB
	config Config
	store  *sqlstore.Store
	health *healthChecker
}

// NewManager opens, configures and pings the ledger database
func NewManager(config Config) (*Manager, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	dsn := config.DSN
	switch config.Driver {
	case sqlstore.DriverSQLite:
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
		// one writer at a time; BEGIN IMMEDIATE takes the write lock up front
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
	case sqlstore.DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := sqlx.Open(config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := NewManagerWithDB(db, config)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// NewManagerWithDB wraps an already open connection
func NewManagerWithDB(db *sqlx.DB, config Config) (*Manager, error) {
	loc, err := config.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", config.Timezone, err)
	}
	timeout := config.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().QueryTimeout
	}

	return &Manager{
		db:     db,
		config: config,
		store:  sqlstore.New(db, sqlstore.Options{Timeout: timeout, Location: loc}),
		health: &healthChecker{db: db, timeout: timeout},
	}, nil
}

// sqliteDSN creates the parent directory of a file DSN and forces immediate transactions
func sqliteDSN(dsn string) (string, error) {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path != "" && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("failed to create ledger directory %s: %w", dir, err)
			}
		}
	}

	if strings.Contains(dsn, "_txlock=") {
		return dsn, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_txlock=immediate&_busy_timeout=5000", nil
}

// Ledger returns the store
func (m *Manager) Ledger() persistence.Ledger {
	return m.store
}

// Health returns the health checker interface
func (m *Manager) Health() persistence.RepositoryHealth {
	return m.health
}

// DB returns the underlying database connection
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// Driver returns the configured driver name
func (m *Manager) Driver() string {
	return m.config.Driver
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// healthChecker implements persistence.RepositoryHealth
type healthChecker struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Health returns current ledger health status
func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	start := time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var errs []string
	healthy := true
	if err := h.db.PingContext(pingCtx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	return persistence.HealthCheck{
		Healthy: healthy,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"max_open":   stats.MaxOpenConnections,
			"open":       stats.OpenConnections,
			"in_use":     stats.InUse,
			"idle":       stats.Idle,
			"wait_count": int(stats.WaitCount),
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

// Ping tests basic connectivity to the database
func (h *healthChecker) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}

// Stats returns connection pool statistics
func (h *healthChecker) Stats(ctx context.Context) map[string]interface{} {
	stats := h.db.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}
