package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fisr/internal/application"
	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/domain/risk"
	"github.com/sawpanic/fisr/internal/eventlog"
	httpContracts "github.com/sawpanic/fisr/internal/http"
	"github.com/sawpanic/fisr/internal/infrastructure/db"
	"github.com/sawpanic/fisr/internal/interfaces/http/handlers"
	"github.com/sawpanic/fisr/internal/marketdata"
	"github.com/sawpanic/fisr/internal/persistence"
)

type fixture struct {
	server  *Server
	ledger  persistence.Ledger
	metrics *MetricsRegistry
	hub     *LogHub
	journal *eventlog.Journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "dash.db")
	cfg.Timezone = "UTC"
	m, err := db.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	require.NoError(t, m.Ledger().Init(context.Background()))

	hub := NewLogHub()
	journal := eventlog.NewJournal(m.Ledger(), zerolog.Nop(), nil)
	journal.Subscribe(hub)
	metrics := NewMetricsRegistry()

	h := handlers.NewHandlers(handlers.Deps{
		Ledger:       m.Ledger(),
		LedgerHealth: m.Health(),
		Source: marketdata.NewStaticSource(map[string]marketdata.StaticQuote{
			"TLT": {Price: 95, AvgVolume: 2e7},
		}),
		Durations: map[string]float64{"SHY": 1.92, "TLT": 16.80},
		Equity:    100000,
		Journal:   journal,
	})
	return &fixture{
		server:  NewServer(DefaultServerConfig(), h, metrics, hub),
		ledger:  m.Ledger(),
		metrics: metrics,
		hub:     hub,
		journal: journal,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, "GET", "/api/health", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Len(t, rr.Header().Get("X-Request-ID"), 8)

	var resp httpContracts.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.Ledger.Healthy)
	assert.Equal(t, "static", resp.MarketData.Name)
	require.NotNil(t, resp.KillSwitch)
	assert.Equal(t, 1.0, *resp.KillSwitch)
}

func TestPortfolioEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.AppendTrade(ctx, persistence.Trade{
		Ticker: "TLT", Qty: 1000, Price: 90, Side: "BUY", TradeValue: 90000, Status: domain.TradeStatusFilled,
	}))

	rr := f.do(t, "GET", "/api/portfolio", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp httpContracts.PortfolioResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, "TLT", resp.Positions[0].Ticker)
	assert.True(t, resp.Positions[0].Priced)
	assert.InDelta(t, 95000, resp.MarketValue, 1e-9)
	assert.InDelta(t, 10000, resp.Cash, 1e-9)
	assert.InDelta(t, 105000, resp.Equity, 1e-9)
	assert.InDelta(t, 16.80, resp.CurrentDuration, 1e-9)
	assert.Equal(t, 8.0, resp.TargetDuration)
	assert.False(t, resp.Halted)
	assert.Nil(t, resp.SignalTarget)
}

func TestPortfolioCashFloor(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.AppendTrade(context.Background(), persistence.Trade{
		Ticker: "TLT", Qty: 2000, Price: 90, Side: "BUY", TradeValue: 180000, Status: domain.TradeStatusFilled,
	}))

	var resp httpContracts.PortfolioResponse
	require.NoError(t, json.Unmarshal(f.do(t, "GET", "/api/portfolio", "").Body.Bytes(), &resp))
	assert.Equal(t, 0.0, resp.Cash)
}

func TestConfigEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rr := f.do(t, "PUT", "/api/config/kill_switch", `{"value": 0}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	v, err := f.ledger.GetConfig(ctx, domain.ConfigKillSwitch)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	logs, err := f.ledger.ListLogs(ctx, 10, "INFO")
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "Operator set kill_switch to 0.00", logs[0].Message)

	rr = f.do(t, "GET", "/api/config/kill_switch", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var entry persistence.ConfigEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	assert.Equal(t, 0.0, entry.Value)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/api/config/fat_finger_limit", `{"value": 1}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/api/config/kill_switch", `{"value": 0.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/api/config/target_duration", `{"value": -1}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/api/config/target_duration", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/config/unknown", "").Code)

	rr = f.do(t, "GET", "/api/config", "")
	var list httpContracts.ConfigResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Config, 2)
}

func TestLedgerListEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.AppendTrade(ctx, persistence.Trade{
		Ticker: "TLT", Qty: 10, Price: 90, Side: "BUY", TradeValue: 900, Status: domain.TradeStatusFilled,
	}))
	require.NoError(t, f.ledger.LogSignal(ctx, 16.8, domain.WeightVector{"TLT": 1}))

	var trades httpContracts.TradesResponse
	require.NoError(t, json.Unmarshal(f.do(t, "GET", "/api/trades?limit=5", "").Body.Bytes(), &trades))
	assert.Equal(t, 1, trades.Count)

	today := f.ledger.Now().Format(persistence.DayLayout)
	require.NoError(t, json.Unmarshal(f.do(t, "GET", "/api/trades?day="+today, "").Body.Bytes(), &trades))
	assert.Equal(t, 1, trades.Count)

	var signals httpContracts.SignalsResponse
	require.NoError(t, json.Unmarshal(f.do(t, "GET", "/api/signals", "").Body.Bytes(), &signals))
	require.Equal(t, 1, signals.Count)
	assert.Equal(t, 1.0, signals.Signals[0].Weights["TLT"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/trades?day=01/02/2024", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/logs?limit=-3", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/candidates", "").Code)
}

func TestMetricsObserver(t *testing.T) {
	f := newFixture(t)
	var obs application.Observer = f.metrics

	obs.ObserveCycle(application.OutcomeRebalanced, 250*time.Millisecond)
	obs.ObserveOrder(application.OrderRejected, risk.ReasonTurnover)
	obs.ObserveOrder(application.OrderFilled, risk.ReasonNone)
	obs.ObserveDuration(3.2, 8.0, 4.8)
	obs.ObserveFetchError("yahoo")

	var m dto.Metric
	require.NoError(t, f.metrics.Cycles.WithLabelValues("rebalanced").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())

	m.Reset()
	require.NoError(t, f.metrics.Rejections.WithLabelValues("turnover").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())

	m.Reset()
	require.NoError(t, f.metrics.Drift.Write(&m))
	assert.Equal(t, 4.8, m.GetGauge().GetValue())

	families, err := f.metrics.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	assert.True(t, names["fisr_orders_total"])
	assert.True(t, names["fisr_marketdata_errors_total"])

	rr := f.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `fisr_cycles_total{outcome="rebalanced"} 1`)
}

func TestLogStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/logs"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.journal.Record(context.Background(), domain.LevelRiskReject, "BUY TLT 10.00@90.00 rejected"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var entry persistence.LogEntry
	require.NoError(t, json.Unmarshal(msg, &entry))
	assert.Equal(t, "RISK_REJECT", entry.Level)
	assert.Equal(t, "BUY TLT 10.00@90.00 rejected", entry.Message)
}
