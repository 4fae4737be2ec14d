package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sawpanic/fisr/internal/domain"
)

var (
	// ErrFetchFailed marks a provider failure, as opposed to a valid empty answer
	ErrFetchFailed = errors.New("market data fetch failed")
	// ErrNoData is returned by callers that require at least one quote
	ErrNoData = errors.New("market data returned no quotes")
)

// Default fetch window
const (
	DefaultLookback = 5 * 24 * time.Hour
	DefaultInterval = "1d"
)

// Request asks for the latest quotes of a set of tickers over a lookback window
type Request struct {
	Tickers  []string      `json:"tickers"`
	Lookback time.Duration `json:"lookback"`
	Interval string        `json:"interval"`
}

// Normalized returns a copy with upper-cased, de-duplicated, sorted tickers and default window
func (r Request) Normalized() Request {
	seen := make(map[string]struct{}, len(r.Tickers))
	out := Request{Lookback: r.Lookback, Interval: r.Interval}
	for _, t := range r.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out.Tickers = append(out.Tickers, t)
	}
	sort.Strings(out.Tickers)
	if out.Lookback <= 0 {
		out.Lookback = DefaultLookback
	}
	if out.Interval == "" {
		out.Interval = DefaultInterval
	}
	return out
}

// Key identifies the request for caching
func (r Request) Key() string {
	n := r.Normalized()
	return fmt.Sprintf("quotes:%s:%s:%s", strings.Join(n.Tickers, ","), n.Lookback, n.Interval)
}

// Quote is the latest observation for one ticker
type Quote struct {
	Price     float64   `json:"price"`
	AvgVolume float64   `json:"avg_volume"`
	HasVolume bool      `json:"has_volume"`
	AsOf      time.Time `json:"as_of"`
}

// Snapshot maps ticker to quote
type Snapshot map[string]Quote

// Prices extracts positive prices
func (s Snapshot) Prices() domain.Prices {
	p := make(domain.Prices, len(s))
	for t, q := range s {
		if q.Price > 0 {
			p[t] = q.Price
		}
	}
	return p
}

// Source fetches quotes. A failure wraps ErrFetchFailed; an empty Snapshot with nil error is a valid answer.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) (Snapshot, error)
}

func fetchError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrFetchFailed, provider, err)
}
