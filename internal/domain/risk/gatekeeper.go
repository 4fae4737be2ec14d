package risk

import (
	"errors"
	"fmt"

	"github.com/sawpanic/fisr/internal/domain"
)

// DefaultTurnoverLimit caps a day's traded notional at 20% of equity
const DefaultTurnoverLimit = 0.20

// RejectReason identifies which rule denied an order
type RejectReason string

const (
	ReasonNone          RejectReason = ""
	ReasonKillSwitch    RejectReason = "kill_switch"
	ReasonConcentration RejectReason = "concentration"
	ReasonTurnover      RejectReason = "turnover"
)

// Limits are the configured risk fractions of equity
type Limits struct {
	FatFingerLimit float64 `yaml:"fat_finger_limit"`
	TurnoverLimit  float64 `yaml:"turnover_limit"`
}

// Validate requires both limits to be explicit fractions in (0,1]
func (l Limits) Validate() error {
	if l.FatFingerLimit <= 0 || l.FatFingerLimit > 1 {
		return fmt.Errorf("fat_finger_limit must be set in (0,1], got %v", l.FatFingerLimit)
	}
	if l.TurnoverLimit <= 0 || l.TurnoverLimit > 1 {
		return fmt.Errorf("turnover_limit must be in (0,1], got %v", l.TurnoverLimit)
	}
	return nil
}

// Exposure is the ledger-derived context an order is checked against
type Exposure struct {
	KillSwitch  float64 `json:"kill_switch"`
	Equity      float64 `json:"equity"`
	TradedToday float64 `json:"traded_today"`
}

// Halted reports whether the kill switch stops all trading
func (e Exposure) Halted() bool {
	return e.KillSwitch <= 0
}

// Decision is the gatekeeper verdict for one order
type Decision struct {
	Approved bool         `json:"approved"`
	Reason   RejectReason `json:"reason,omitempty"`
	Message  string       `json:"message"`
}

// Rejection wraps a denied decision as an error
type Rejection struct {
	Decision Decision
}

func (r *Rejection) Error() string {
	return "risk reject: " + r.Decision.Message
}

// AsRejection extracts a Rejection from an error chain
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// Gatekeeper approves or rejects sized orders. It reads nothing and writes nothing.
type Gatekeeper struct {
	limits Limits
}

// NewGatekeeper creates a gatekeeper; the limits must already be validated
func NewGatekeeper(limits Limits) *Gatekeeper {
	return &Gatekeeper{limits: limits}
}

// Limits returns the configured limits
func (g *Gatekeeper) Limits() Limits {
	return g.limits
}

// Check runs kill switch, fat-finger and turnover rules in that order and stops at the first failure
func (g *Gatekeeper) Check(order domain.TradeOrder, exp Exposure) Decision {
	if exp.Halted() {
		return Decision{Reason: ReasonKillSwitch, Message: "Kill Switch is ACTIVE"}
	}

	maxOrder := exp.Equity * g.limits.FatFingerLimit
	if order.Notional > maxOrder {
		return Decision{
			Reason: ReasonConcentration,
			Message: fmt.Sprintf("Fat-finger limit: order value $%.2f exceeds $%.2f (%.0f%% of equity)",
				order.Notional, maxOrder, g.limits.FatFingerLimit*100),
		}
	}

	turnoverCap := exp.Equity * g.limits.TurnoverLimit
	total := exp.TradedToday + order.Notional
	if total > turnoverCap {
		return Decision{
			Reason: ReasonTurnover,
			Message: fmt.Sprintf("Daily turnover limit: $%.2f + $%.2f = $%.2f exceeds $%.2f (%.0f%% of equity)",
				exp.TradedToday, order.Notional, total, turnoverCap, g.limits.TurnoverLimit*100),
		}
	}

	return Decision{Approved: true, Message: "Approved"}
}
