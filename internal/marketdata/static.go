package marketdata

import (
	"context"
	"strings"
	"time"
)

// StaticQuote is a configured fixed quote
type StaticQuote struct {
	Price     float64 `yaml:"price"`
	AvgVolume float64 `yaml:"avg_volume"`
}

// StaticSource serves fixed quotes, for offline and paper runs
type StaticSource struct {
	quotes map[string]StaticQuote
	now    func() time.Time
}

// NewStaticSource creates a source over fixed quotes
func NewStaticSource(quotes map[string]StaticQuote) *StaticSource {
	q := make(map[string]StaticQuote, len(quotes))
	for t, v := range quotes {
		q[strings.ToUpper(t)] = v
	}
	return &StaticSource{quotes: q, now: time.Now}
}

func (s *StaticSource) Name() string { return "static" }

// Fetch returns the configured quotes for the requested tickers that exist
func (s *StaticSource) Fetch(ctx context.Context, req Request) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fetchError(s.Name(), err)
	}
	req = req.Normalized()
	snap := make(Snapshot, len(req.Tickers))
	for _, t := range req.Tickers {
		q, ok := s.quotes[t]
		if !ok {
			continue
		}
		snap[t] = Quote{
			Price:     q.Price,
			AvgVolume: q.AvgVolume,
			HasVolume: q.AvgVolume > 0,
			AsOf:      s.now(),
		}
	}
	return snap, nil
}
