package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerConfig controls when a provider is cut off
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

// DefaultBreakerConfig trips after 3 straight failures and probes again after a minute
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Minute,
		Timeout:             time.Minute,
		ConsecutiveFailures: 3,
	}
}

// GuardedSource wraps a provider in a circuit breaker
type GuardedSource struct {
	next    Source
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedSource decorates next with a breaker named after it
func NewGuardedSource(next Source, cfg BreakerConfig) *GuardedSource {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Market data circuit breaker changed state")
		},
	}
	return &GuardedSource{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (g *GuardedSource) Name() string { return g.next.Name() }

// State returns the breaker state name
func (g *GuardedSource) State() string { return g.breaker.State().String() }

// Fetch runs the provider through the breaker; an open breaker is reported as a fetch failure
func (g *GuardedSource) Fetch(ctx context.Context, req Request) (Snapshot, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Fetch(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fetchError(g.Name(), err)
		}
		return nil, err
	}
	return result.(Snapshot), nil
}

// BreakerState finds the breaker under any decorators and returns its state.
// Sources without a breaker report "closed".
func BreakerState(src Source) string {
	for src != nil {
		switch s := src.(type) {
		case *GuardedSource:
			return s.State()
		case interface{ Unwrap() Source }:
			src = s.Unwrap()
		default:
			return "closed"
		}
	}
	return "closed"
}
