package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/fisr/internal/archive"
	"github.com/sawpanic/fisr/internal/domain/allocation"
	"github.com/sawpanic/fisr/internal/domain/rebalance"
	"github.com/sawpanic/fisr/internal/domain/risk"
	"github.com/sawpanic/fisr/internal/domain/sizing"
	"github.com/sawpanic/fisr/internal/domain/universe"
	"github.com/sawpanic/fisr/internal/infrastructure/db"
	httpapi "github.com/sawpanic/fisr/internal/interfaces/http"
	applog "github.com/sawpanic/fisr/internal/log"
	"github.com/sawpanic/fisr/internal/marketdata"
	"github.com/sawpanic/fisr/internal/persistence/sqlstore"
	"github.com/sawpanic/fisr/internal/scheduler"
)

// DefaultReferenceEquity is the constant capital orders are sized against
const DefaultReferenceEquity = 100000.0

// Config is the whole application configuration
type Config struct {
	App        AppConfig               `yaml:"app"`
	Database   db.Config               `yaml:"database"`
	MarketData marketdata.Config       `yaml:"marketdata"`
	Cache      marketdata.CacheConfig  `yaml:"cache"`
	Universe   UniverseConfig          `yaml:"universe"`
	Allocation allocation.AnchorPolicy `yaml:"allocation"`
	Rebalance  RebalanceConfig         `yaml:"rebalance"`
	Risk       RiskConfig              `yaml:"risk"`
	Scheduler  scheduler.Config        `yaml:"scheduler"`
	Server     httpapi.ServerConfig    `yaml:"server"`
	Archive    archive.Config          `yaml:"archive"`
	Logging    applog.Config           `yaml:"logging"`
}

// AppConfig names the deployment
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// UniverseConfig holds the candidate table and the liquidity screen
type UniverseConfig struct {
	Candidates      map[string]float64    `yaml:"candidates"` // ticker -> effective duration (years)
	LiquidityFloor  *float64              `yaml:"liquidity_floor"`
	DurationRefresh universe.ScrapeConfig `yaml:"duration_refresh"`
}

// Floor returns the configured liquidity floor; an explicit 0 disables the screen
func (u UniverseConfig) Floor() float64 {
	if u.LiquidityFloor == nil {
		return universe.DefaultLiquidityFloor
	}
	return *u.LiquidityFloor
}

// RebalanceConfig tunes the drift gate and the trade sizer
type RebalanceConfig struct {
	DriftThreshold float64 `yaml:"drift_threshold"`
	MinTradeShares float64 `yaml:"min_trade_shares"`
}

// RiskConfig holds reference equity and the gatekeeper limits
type RiskConfig struct {
	ReferenceEquity float64 `yaml:"reference_equity"`
	risk.Limits     `yaml:",inline"`
}

// Load reads the YAML file at path (optional), loads .env, applies environment
// overrides and defaults, and validates the result
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FISR_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FISR_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("FISR_TIMEZONE"); v != "" {
		cfg.Database.Timezone = v
	}
	if v := os.Getenv("FISR_MARKETDATA_PROVIDER"); v != "" {
		cfg.MarketData.Provider = v
	}
	if v := os.Getenv("FISR_MARKETDATA_URL"); v != "" {
		cfg.MarketData.REST.BaseURL = v
	}
	if v := os.Getenv("FISR_MARKETDATA_API_KEY"); v != "" {
		cfg.MarketData.REST.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FISR_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Archive.S3.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Archive.S3.SecretAccessKey = v
	}
	if v := os.Getenv("FISR_REFERENCE_EQUITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.ReferenceEquity = f
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "fisr"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "paper"
	}

	dbDef := db.DefaultConfig()
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = dbDef.Driver
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == sqlstore.DriverSQLite {
		cfg.Database.DSN = dbDef.DSN
	}
	if cfg.Database.Timezone == "" {
		cfg.Database.Timezone = dbDef.Timezone
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = dbDef.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = dbDef.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = dbDef.ConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = dbDef.ConnMaxIdleTime
	}
	if cfg.Database.QueryTimeout == 0 {
		cfg.Database.QueryTimeout = dbDef.QueryTimeout
	}

	if cfg.MarketData.Provider == "" {
		cfg.MarketData.Provider = "yahoo"
	}
	if cfg.MarketData.Lookback == 0 {
		cfg.MarketData.Lookback = marketdata.DefaultLookback
	}
	if cfg.MarketData.Interval == "" {
		cfg.MarketData.Interval = marketdata.DefaultInterval
	}
	if cfg.MarketData.RPS == 0 {
		cfg.MarketData.RPS = 2
	}
	if cfg.MarketData.Burst == 0 {
		cfg.MarketData.Burst = 4
	}
	if cfg.MarketData.Breaker == (marketdata.BreakerConfig{}) {
		cfg.MarketData.Breaker = marketdata.DefaultBreakerConfig()
	}
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = 5 * time.Minute
	}
	if cfg.MarketData.CacheTTL == 0 {
		cfg.MarketData.CacheTTL = cfg.Cache.DefaultTTL
	}

	if len(cfg.Universe.Candidates) == 0 {
		cfg.Universe.Candidates = universe.DefaultCandidates()
	}
	if cfg.Universe.DurationRefresh.Timeout == 0 {
		cfg.Universe.DurationRefresh.Timeout = 10 * time.Second
	}

	anchor := allocation.DefaultAnchorPolicy()
	if cfg.Allocation.Threshold == 0 {
		cfg.Allocation.Threshold = anchor.Threshold
	}
	if cfg.Allocation.MinWeight == 0 {
		cfg.Allocation.MinWeight = anchor.MinWeight
	}

	if cfg.Rebalance.DriftThreshold == 0 {
		cfg.Rebalance.DriftThreshold = rebalance.DefaultDriftThreshold
	}
	if cfg.Rebalance.MinTradeShares == 0 {
		cfg.Rebalance.MinTradeShares = sizing.DefaultMinDelta
	}

	// fat_finger_limit is left alone: it must be configured
	if cfg.Risk.ReferenceEquity == 0 {
		cfg.Risk.ReferenceEquity = DefaultReferenceEquity
	}
	if cfg.Risk.TurnoverLimit == 0 {
		cfg.Risk.TurnoverLimit = risk.DefaultTurnoverLimit
	}

	if len(cfg.Scheduler.Jobs) == 0 {
		cfg.Scheduler.Jobs = scheduler.DefaultConfig().Jobs
	}
	if cfg.Scheduler.Tick == 0 {
		cfg.Scheduler.Tick = scheduler.DefaultConfig().Tick
	}

	srv := httpapi.DefaultServerConfig()
	if cfg.Server.Host == "" {
		cfg.Server.Host = srv.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = srv.Port
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = srv.ReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = srv.WriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = srv.IdleTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = srv.RequestTimeout
	}

	arc := archive.DefaultConfig()
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = arc.Dir
	}
	if cfg.Archive.Compression == "" {
		cfg.Archive.Compression = arc.Compression
	}
	if cfg.Archive.S3.Prefix == "" {
		cfg.Archive.S3.Prefix = arc.S3.Prefix
	}
	if cfg.Archive.S3.Region == "" {
		cfg.Archive.S3.Region = arc.S3.Region
	}

	lg := applog.DefaultConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = lg.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = lg.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = lg.Output
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = lg.MaxSizeMB
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = lg.MaxAgeDays
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = lg.MaxBackups
	}
}

// Validate ensures the configuration is valid and consistent
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
	default:
		return fmt.Errorf("database driver must be %s or %s, got %q", sqlstore.DriverSQLite, sqlstore.DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}
	if _, err := c.Database.Location(); err != nil {
		return fmt.Errorf("database timezone %q: %w", c.Database.Timezone, err)
	}

	switch c.MarketData.Provider {
	case "yahoo":
	case "rest":
		if c.MarketData.REST.BaseURL == "" {
			return fmt.Errorf("marketdata rest provider requires base_url")
		}
	case "static":
		if len(c.MarketData.Static) == 0 {
			return fmt.Errorf("marketdata static provider requires quotes")
		}
	default:
		return fmt.Errorf("unknown marketdata provider %q", c.MarketData.Provider)
	}

	for ticker, d := range c.Universe.Candidates {
		if d < 0 {
			return fmt.Errorf("universe candidate %s has negative duration %v", ticker, d)
		}
	}
	if c.Universe.Floor() < 0 {
		return fmt.Errorf("universe liquidity_floor cannot be negative")
	}
	if c.Universe.DurationRefresh.Enabled && c.Universe.DurationRefresh.URLTemplate == "" {
		return fmt.Errorf("universe duration_refresh requires url_template")
	}

	if c.Allocation.Enabled() {
		if _, ok := c.Universe.Candidates[c.Allocation.Ticker]; !ok {
			return fmt.Errorf("allocation anchor %s is not a universe candidate", c.Allocation.Ticker)
		}
		if c.Allocation.MinWeight <= 0 || c.Allocation.MinWeight >= 1 {
			return fmt.Errorf("allocation anchor_min_weight must be in (0,1), got %v", c.Allocation.MinWeight)
		}
	}

	if c.Rebalance.DriftThreshold < 0 {
		return fmt.Errorf("rebalance drift_threshold cannot be negative")
	}
	if c.Rebalance.MinTradeShares < 0 {
		return fmt.Errorf("rebalance min_trade_shares cannot be negative")
	}

	if c.Risk.ReferenceEquity <= 0 {
		return fmt.Errorf("risk reference_equity must be positive, got %v", c.Risk.ReferenceEquity)
	}
	if err := c.Risk.Limits.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	return nil
}
