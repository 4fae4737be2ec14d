package marketdata

import (
	"fmt"
	"time"
)

// Config selects and tunes the market data provider
type Config struct {
	Provider string                 `yaml:"provider"` // yahoo, rest or static
	Lookback time.Duration          `yaml:"lookback"`
	Interval string                 `yaml:"interval"`
	RPS      float64                `yaml:"rps"`
	Burst    int                    `yaml:"burst"`
	REST     RESTConfig             `yaml:"rest"`
	Static   map[string]StaticQuote `yaml:"static"`
	Breaker  BreakerConfig          `yaml:"breaker"`
	CacheTTL time.Duration          `yaml:"cache_ttl"`
}

// New assembles provider, rate limiter, circuit breaker and cache
func New(cfg Config, cache Cache) (Source, error) {
	limiter := NewLimiter(cfg.RPS, cfg.Burst)

	var src Source
	switch cfg.Provider {
	case "", "yahoo":
		src = NewYahooSource(limiter)
	case "rest":
		if cfg.REST.BaseURL == "" {
			return nil, fmt.Errorf("marketdata: rest provider requires base_url")
		}
		src = NewRESTSource(cfg.REST, limiter)
	case "static":
		if len(cfg.Static) == 0 {
			return nil, fmt.Errorf("marketdata: static provider requires quotes")
		}
		return NewStaticSource(cfg.Static), nil
	default:
		return nil, fmt.Errorf("marketdata: unknown provider %q", cfg.Provider)
	}

	src = NewGuardedSource(src, cfg.Breaker)
	if cache != nil && cfg.CacheTTL > 0 {
		src = NewCachedSource(src, cache, cfg.CacheTTL)
	}
	return src, nil
}
