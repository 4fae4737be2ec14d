package universe

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// DurationSource supplies effective durations for tickers
type DurationSource interface {
	Durations(ctx context.Context, tickers []string) (map[string]float64, error)
}

// StaticDurations is a fixed ticker to duration table
type StaticDurations map[string]float64

// Durations returns the known entries for tickers
func (s StaticDurations) Durations(_ context.Context, tickers []string) (map[string]float64, error) {
	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if d, ok := s[t]; ok {
			out[t] = d
		}
	}
	return out, nil
}

// ScrapeConfig points the duration scraper at issuer fund pages
type ScrapeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URLTemplate string        `yaml:"url_template"` // {ticker} is replaced, e.g. https://issuer.example/etf/{ticker}
	Selector    string        `yaml:"selector"`
	Timeout     time.Duration `yaml:"timeout"`
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ScrapedDurations reads effective duration from each fund's web page and falls back to a static table
type ScrapedDurations struct {
	client   *resty.Client
	cfg      ScrapeConfig
	fallback StaticDurations
}

// NewScrapedDurations creates a scraper
func NewScrapedDurations(cfg ScrapeConfig, fallback StaticDurations) *ScrapedDurations {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; fisr/1.0)")
	return &ScrapedDurations{client: client, cfg: cfg, fallback: fallback}
}

// Durations never fails; tickers that cannot be scraped keep their static duration
func (s *ScrapedDurations) Durations(ctx context.Context, tickers []string) (map[string]float64, error) {
	out, _ := s.fallback.Durations(ctx, tickers)
	for _, t := range tickers {
		d, err := s.scrape(ctx, t)
		if err != nil {
			log.Warn().Err(err).Str("ticker", t).Float64("static_duration", s.fallback[t]).
				Msg("Duration scrape failed, using static duration")
			continue
		}
		out[t] = d
	}
	return out, nil
}

func (s *ScrapedDurations) scrape(ctx context.Context, ticker string) (float64, error) {
	url := strings.ReplaceAll(s.cfg.URLTemplate, "{ticker}", strings.ToLower(ticker))
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", url, err)
	}
	text := strings.TrimSpace(doc.Find(s.cfg.Selector).First().Text())
	m := numberPattern.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("no duration under %q", s.cfg.Selector)
	}
	d, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", d)
	}
	return d, nil
}
