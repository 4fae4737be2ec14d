package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/fisr/internal/domain"
)

func order(notional float64) domain.TradeOrder {
	return domain.TradeOrder{Ticker: "TLT", Quantity: notional / 100, Price: 100, Side: domain.SideBuy, Notional: notional}
}

func TestGatekeeperCheck(t *testing.T) {
	gk := NewGatekeeper(Limits{FatFingerLimit: 0.05, TurnoverLimit: 0.20})
	live := Exposure{KillSwitch: 1, Equity: 100000}

	tests := []struct {
		name     string
		order    domain.TradeOrder
		exp      Exposure
		approved bool
		reason   RejectReason
	}{
		{"small order approved", order(1000), live, true, ReasonNone},
		{"kill switch first", order(1000), Exposure{KillSwitch: 0, Equity: 100000}, false, ReasonKillSwitch},
		{"kill switch beats fat finger", order(90000), Exposure{KillSwitch: 0, Equity: 100000}, false, ReasonKillSwitch},
		{"fat finger equality accepted", order(5000), live, true, ReasonNone},
		{"fat finger exceeded", order(5000.01), live, false, ReasonConcentration},
		{"turnover equality accepted", order(5000), Exposure{KillSwitch: 1, Equity: 100000, TradedToday: 15000}, true, ReasonNone},
		{"turnover exceeded", order(4000), Exposure{KillSwitch: 1, Equity: 100000, TradedToday: 17000}, false, ReasonTurnover},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gk.Check(tt.order, tt.exp)
			assert.Equal(t, tt.approved, d.Approved)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestGatekeeperMessages(t *testing.T) {
	gk := NewGatekeeper(Limits{FatFingerLimit: 1.0, TurnoverLimit: 0.20})

	d := gk.Check(order(1), Exposure{KillSwitch: 0, Equity: 100000})
	assert.Equal(t, "Kill Switch is ACTIVE", d.Message)

	d = gk.Check(order(99999.9), Exposure{KillSwitch: 1, Equity: 100000})
	assert.Equal(t, ReasonTurnover, d.Reason)
	assert.Equal(t, "Daily turnover limit: $0.00 + $99999.90 = $99999.90 exceeds $20000.00 (20% of equity)", d.Message)

	gk = NewGatekeeper(Limits{FatFingerLimit: 0.5, TurnoverLimit: 1})
	d = gk.Check(order(60000), Exposure{KillSwitch: 1, Equity: 100000})
	assert.Equal(t, "Fat-finger limit: order value $60000.00 exceeds $50000.00 (50% of equity)", d.Message)
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, Limits{FatFingerLimit: 1, TurnoverLimit: DefaultTurnoverLimit}.Validate())
	assert.Error(t, Limits{TurnoverLimit: DefaultTurnoverLimit}.Validate())
	assert.Error(t, Limits{FatFingerLimit: 1.5, TurnoverLimit: DefaultTurnoverLimit}.Validate())
	assert.Error(t, Limits{FatFingerLimit: 0.5}.Validate())
}

func TestAsRejection(t *testing.T) {
	err := fmt.Errorf("order TLT: %w", &Rejection{Decision: Decision{Reason: ReasonTurnover, Message: "cap"}})

	r, ok := AsRejection(err)
	assert.True(t, ok)
	assert.Equal(t, ReasonTurnover, r.Decision.Reason)

	_, ok = AsRejection(fmt.Errorf("plain"))
	assert.False(t, ok)
}
