package universe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fisr/internal/marketdata"
)

func liquid(price float64) marketdata.Quote {
	return marketdata.Quote{Price: price, AvgVolume: 2e6, HasVolume: true}
}

func TestBuildFiltersByLiquidity(t *testing.T) {
	b := NewBuilder(DefaultCandidates(), DefaultLiquidityFloor)
	snap := marketdata.Snapshot{
		"SHY": liquid(80),
		"IEF": {Price: 95, AvgVolume: 100000, HasVolume: true},
		"TLT": liquid(90),
	}

	u, excluded, err := b.Build(snap, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"SHY", "TLT"}, u.Tickers())
	require.Len(t, excluded, 1)
	assert.Equal(t, "IEF", excluded[0].Ticker)
	assert.Contains(t, excluded[0].Reason, "below floor")
}

func TestBuildMissingVolumeFailsPositiveFloor(t *testing.T) {
	b := NewBuilder(DefaultCandidates(), DefaultLiquidityFloor)
	snap := marketdata.Snapshot{"SHY": {Price: 80}, "TLT": liquid(90)}

	u, excluded, err := b.Build(snap, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"TLT"}, u.Tickers())
	assert.Len(t, excluded, 2)
}

func TestBuildZeroFloorDisablesFilter(t *testing.T) {
	b := NewBuilder(DefaultCandidates(), 0)
	snap := marketdata.Snapshot{"SHY": {Price: 80}, "IEF": {Price: 95}, "TLT": {Price: 0}}

	u, _, err := b.Build(snap, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"SHY", "IEF"}, u.Tickers())
}

func TestBuildEmpty(t *testing.T) {
	b := NewBuilder(DefaultCandidates(), DefaultLiquidityFloor)

	_, _, err := b.Build(marketdata.Snapshot{}, nil)
	assert.ErrorIs(t, err, ErrEmptyUniverse)

	_, excluded, err := b.Build(marketdata.Snapshot{"TLT": {Price: 90, AvgVolume: 10, HasVolume: true}}, nil)
	assert.ErrorIs(t, err, ErrEmptyUniverse)
	assert.Len(t, excluded, 3)
}

func TestBuildDurationOverride(t *testing.T) {
	b := NewBuilder(DefaultCandidates(), 0)
	snap := marketdata.Snapshot{"TLT": {Price: 90}, "IEF": {Price: 95}}

	u, _, err := b.Build(snap, map[string]float64{"TLT": 17.1})
	require.NoError(t, err)

	tlt, ok := u.Lookup("TLT")
	require.True(t, ok)
	assert.Equal(t, 17.1, tlt.Duration)
	ief, _ := u.Lookup("IEF")
	assert.Equal(t, 7.45, ief.Duration)
}

func TestScrapedDurations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/tlt"):
			_, _ = w.Write([]byte(`<html><body><div class="fund"><span class="eff-duration">Effective Duration 16.95 yrs</span></div></body></html>`))
		case strings.HasSuffix(r.URL.Path, "/ief"):
			_, _ = w.Write([]byte(`<html><body><span class="eff-duration">n/a</span></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewScrapedDurations(ScrapeConfig{
		Enabled:     true,
		URLTemplate: srv.URL + "/etf/{ticker}",
		Selector:    ".eff-duration",
	}, StaticDurations(DefaultCandidates()))

	d, err := s.Durations(context.Background(), []string{"TLT", "IEF", "SHY"})
	require.NoError(t, err)

	assert.Equal(t, 16.95, d["TLT"])
	assert.Equal(t, 7.45, d["IEF"])
	assert.Equal(t, 1.92, d["SHY"])
}
