package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/rs/zerolog/log"
)

const yahooHost = "query1.finance.yahoo.com"

// Bar is one OHLCV observation reduced to what quoting needs
type Bar struct {
	Timestamp time.Time
	Close     float64
	Volume    int64
}

// BarFetcher loads the bars of one symbol in [start, end]
type BarFetcher func(ctx context.Context, symbol string, start, end time.Time, interval string) ([]Bar, error)

// YahooSource reads delayed quotes from Yahoo Finance charts
type YahooSource struct {
	fetch   BarFetcher
	limiter *Limiter
	now     func() time.Time
}

// NewYahooSource creates a Yahoo-backed source; limiter may be nil
func NewYahooSource(limiter *Limiter) *YahooSource {
	return &YahooSource{fetch: chartBars, limiter: limiter, now: time.Now}
}

// NewYahooSourceWithFetcher swaps the chart client, for tests and replays
func NewYahooSourceWithFetcher(fetch BarFetcher, limiter *Limiter) *YahooSource {
	return &YahooSource{fetch: fetch, limiter: limiter, now: time.Now}
}

func (y *YahooSource) Name() string { return "yahoo" }

// Fetch quotes each ticker from its bars. Price is the last positive close and
// AvgVolume the mean bar volume. Tickers with no bars are left out of the snapshot.
// The call fails only if every ticker fails.
func (y *YahooSource) Fetch(ctx context.Context, req Request) (Snapshot, error) {
	req = req.Normalized()
	end := y.now()
	start := end.Add(-req.Lookback)

	snap := make(Snapshot, len(req.Tickers))
	var failures int
	var lastErr error
	for _, ticker := range req.Tickers {
		if err := y.limiter.Wait(ctx, yahooHost); err != nil {
			return nil, fetchError(y.Name(), err)
		}
		bars, err := y.fetch(ctx, ticker, start, end, req.Interval)
		if err != nil {
			failures++
			lastErr = err
			log.Warn().Err(err).Str("ticker", ticker).Msg("Yahoo chart fetch failed")
			continue
		}
		if q, ok := quoteFromBars(bars); ok {
			snap[ticker] = q
		}
	}

	if len(req.Tickers) > 0 && failures == len(req.Tickers) {
		return nil, fetchError(y.Name(), lastErr)
	}
	return snap, nil
}

func quoteFromBars(bars []Bar) (Quote, bool) {
	var q Quote
	var volume int64
	found := false
	for _, b := range bars {
		volume += b.Volume
		if b.Close > 0 {
			q.Price = b.Close
			q.AsOf = b.Timestamp
			found = true
		}
	}
	if !found {
		return Quote{}, false
	}
	if len(bars) > 0 {
		q.AvgVolume = float64(volume) / float64(len(bars))
		q.HasVolume = true
	}
	return q, true
}

func chartBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]Bar, error) {
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.Interval(interval),
	}
	iter := chart.Get(params)

	var bars []Bar
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := iter.Bar()
		bars = append(bars, Bar{
			Timestamp: time.Unix(int64(bar.Timestamp), 0),
			Close:     bar.Close.InexactFloat64(),
			Volume:    int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	return bars, nil
}
