package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RESTConfig configures an HTTP quote service
type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type restQuote struct {
	Symbol    string   `json:"symbol"`
	Price     float64  `json:"price"`
	AvgVolume *float64 `json:"avg_volume"`
	AsOf      string   `json:"as_of,omitempty"`
}

// RESTSource reads quotes from GET {base}/quotes?symbols=A,B&lookback=..&interval=..
type RESTSource struct {
	client  *resty.Client
	limiter *Limiter
	host    string
	now     func() time.Time
}

// NewRESTSource creates a REST-backed source; limiter may be nil
func NewRESTSource(cfg RESTConfig, limiter *Limiter) *RESTSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	host := cfg.BaseURL
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &RESTSource{client: client, limiter: limiter, host: host, now: time.Now}
}

func (s *RESTSource) Name() string { return "rest" }

// Fetch issues one request for all tickers
func (s *RESTSource) Fetch(ctx context.Context, req Request) (Snapshot, error) {
	req = req.Normalized()
	if len(req.Tickers) == 0 {
		return Snapshot{}, nil
	}
	if err := s.limiter.Wait(ctx, s.host); err != nil {
		return nil, fetchError(s.Name(), err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbols":  strings.Join(req.Tickers, ","),
			"lookback": req.Lookback.String(),
			"interval": req.Interval,
		}).
		Get("/quotes")
	if err != nil {
		return nil, fetchError(s.Name(), err)
	}
	if resp.StatusCode() != 200 {
		return nil, fetchError(s.Name(), fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String()))
	}

	var rows []restQuote
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fetchError(s.Name(), fmt.Errorf("decode quotes: %w", err))
	}

	snap := make(Snapshot, len(rows))
	for _, r := range rows {
		sym := strings.ToUpper(r.Symbol)
		if sym == "" {
			continue
		}
		q := Quote{Price: r.Price, AsOf: s.now()}
		if r.AvgVolume != nil {
			q.AvgVolume = *r.AvgVolume
			q.HasVolume = true
		}
		if r.AsOf != "" {
			if ts, err := time.Parse(time.RFC3339, r.AsOf); err == nil {
				q.AsOf = ts
			}
		}
		snap[sym] = q
	}
	return snap, nil
}
