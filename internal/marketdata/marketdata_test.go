package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	snap  Snapshot
	err   error
}

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) Fetch(_ context.Context, _ Request) (Snapshot, error) {
	c.calls++
	return c.snap, c.err
}

func TestRequestNormalized(t *testing.T) {
	r := Request{Tickers: []string{"tlt", " IEF", "TLT", ""}}.Normalized()

	assert.Equal(t, []string{"IEF", "TLT"}, r.Tickers)
	assert.Equal(t, DefaultLookback, r.Lookback)
	assert.Equal(t, DefaultInterval, r.Interval)
	assert.Equal(t, Request{Tickers: []string{"TLT", "IEF"}}.Key(), Request{Tickers: []string{"ief", "tlt"}}.Key())
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(map[string]StaticQuote{
		"tlt": {Price: 90, AvgVolume: 2e6},
		"SHY": {Price: 80},
	})

	snap, err := src.Fetch(context.Background(), Request{Tickers: []string{"TLT", "SHY", "IEF"}})
	require.NoError(t, err)

	assert.Len(t, snap, 2)
	assert.Equal(t, 90.0, snap["TLT"].Price)
	assert.True(t, snap["TLT"].HasVolume)
	assert.False(t, snap["SHY"].HasVolume)
	assert.Equal(t, 2, len(snap.Prices()))
}

func TestYahooSourceAggregatesBars(t *testing.T) {
	day := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	fetch := func(_ context.Context, symbol string, _, _ time.Time, interval string) ([]Bar, error) {
		assert.Equal(t, "1d", interval)
		switch symbol {
		case "TLT":
			return []Bar{
				{Timestamp: day, Close: 89, Volume: 100},
				{Timestamp: day.Add(24 * time.Hour), Close: 90, Volume: 300},
				{Timestamp: day.Add(48 * time.Hour), Close: 0, Volume: 200},
			}, nil
		case "IEF":
			return nil, nil
		default:
			return nil, errors.New("boom")
		}
	}
	src := NewYahooSourceWithFetcher(fetch, nil)

	snap, err := src.Fetch(context.Background(), Request{Tickers: []string{"TLT", "IEF", "BAD"}})
	require.NoError(t, err)

	require.Contains(t, snap, "TLT")
	assert.NotContains(t, snap, "IEF")
	assert.NotContains(t, snap, "BAD")
	assert.Equal(t, 90.0, snap["TLT"].Price)
	assert.Equal(t, 200.0, snap["TLT"].AvgVolume)
	assert.Equal(t, day.Add(24*time.Hour), snap["TLT"].AsOf)
}

func TestYahooSourceAllFailed(t *testing.T) {
	fetch := func(context.Context, string, time.Time, time.Time, string) ([]Bar, error) {
		return nil, errors.New("unreachable")
	}
	_, err := NewYahooSourceWithFetcher(fetch, NewLimiter(100, 1)).Fetch(context.Background(), Request{Tickers: []string{"TLT"}})
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestRESTSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quotes", r.URL.Path)
		assert.Equal(t, "IEF,TLT", r.URL.Query().Get("symbols"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"symbol":"tlt","price":90.5,"avg_volume":1500000},{"symbol":"IEF","price":95}]`))
	}))
	defer srv.Close()

	src := NewRESTSource(RESTConfig{BaseURL: srv.URL}, nil)
	snap, err := src.Fetch(context.Background(), Request{Tickers: []string{"TLT", "IEF"}})
	require.NoError(t, err)

	assert.Equal(t, 90.5, snap["TLT"].Price)
	assert.True(t, snap["TLT"].HasVolume)
	assert.Equal(t, 1500000.0, snap["TLT"].AvgVolume)
	assert.False(t, snap["IEF"].HasVolume)
}

func TestRESTSourceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRESTSource(RESTConfig{BaseURL: srv.URL}, nil).Fetch(context.Background(), Request{Tickers: []string{"TLT"}})
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestRESTSourceEmptyIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	snap, err := NewRESTSource(RESTConfig{BaseURL: srv.URL}, nil).Fetch(context.Background(), Request{Tickers: []string{"TLT"}})
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestCachedSource(t *testing.T) {
	next := &countingSource{snap: Snapshot{"TLT": {Price: 90}}}
	src := NewCachedSource(next, NewMemoryCache(), time.Minute)
	req := Request{Tickers: []string{"TLT"}}

	for i := 0; i < 3; i++ {
		snap, err := src.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 90.0, snap["TLT"].Price)
	}
	assert.Equal(t, 1, next.calls)
}

func TestCachedSourceDoesNotCacheEmpty(t *testing.T) {
	next := &countingSource{snap: Snapshot{}}
	src := NewCachedSource(next, NewMemoryCache(), time.Minute)

	_, _ = src.Fetch(context.Background(), Request{Tickers: []string{"TLT"}})
	_, _ = src.Fetch(context.Background(), Request{Tickers: []string{"TLT"}})
	assert.Equal(t, 2, next.calls)
}

func TestRedisCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewRedisCache(db, "fisr:")
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("fisr:k").SetVal(`{"TLT":{"price":90}}`)
		b, ok := cache.Get(ctx, "k")
		assert.True(t, ok)
		assert.JSONEq(t, `{"TLT":{"price":90}}`, string(b))
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("fisr:missing").RedisNil()
		_, ok := cache.Get(ctx, "missing")
		assert.False(t, ok)
	})

	t.Run("error is a miss", func(t *testing.T) {
		mock.ExpectGet("fisr:err").SetErr(errors.New("connection refused"))
		_, ok := cache.Get(ctx, "err")
		assert.False(t, ok)
	})

	t.Run("set", func(t *testing.T) {
		val := []byte("v")
		mock.ExpectSet("fisr:k", val, time.Minute).SetVal("OK")
		cache.Set(ctx, "k", val, time.Minute)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardedSourceTrips(t *testing.T) {
	next := &countingSource{err: errors.New("timeout")}
	cfg := DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 2
	src := NewGuardedSource(next, cfg)
	req := Request{Tickers: []string{"TLT"}}

	for i := 0; i < 2; i++ {
		_, err := src.Fetch(context.Background(), req)
		assert.Error(t, err)
	}
	assert.Equal(t, "open", src.State())

	_, err := src.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 2, next.calls)
}

func TestNewFactory(t *testing.T) {
	_, err := New(Config{Provider: "rest"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)

	src, err := New(Config{Provider: "static", Static: map[string]StaticQuote{"TLT": {Price: 90}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "static", src.Name())

	src, err = New(Config{Provider: "yahoo", CacheTTL: time.Minute}, NewMemoryCache())
	require.NoError(t, err)
	assert.IsType(t, &CachedSource{}, src)
	assert.Equal(t, "closed", BreakerState(src))
}

func TestBreakerStateThroughCache(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 1
	guarded := NewGuardedSource(&countingSource{err: errors.New("timeout")}, cfg)
	src := NewCachedSource(guarded, NewMemoryCache(), time.Minute)

	_, err := src.Fetch(context.Background(), Request{Tickers: []string{"TLT"}})
	assert.Error(t, err)
	assert.Equal(t, "open", BreakerState(src))
	assert.Equal(t, "closed", BreakerState(NewStaticSource(nil)))
}
