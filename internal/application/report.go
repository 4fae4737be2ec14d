package application

import (
	"fmt"
	"time"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/domain/portfolio"
	"github.com/sawpanic/fisr/internal/domain/rebalance"
	"github.com/sawpanic/fisr/internal/domain/risk"
	"github.com/sawpanic/fisr/internal/domain/sizing"
	"github.com/sawpanic/fisr/internal/domain/universe"
	"github.com/sawpanic/fisr/internal/persistence"
)

// ErrorKind classifies cycle-fatal failures
type ErrorKind string

const (
	DataError   ErrorKind = "DataError"
	ConfigError ErrorKind = "ConfigError"
	LedgerError ErrorKind = "LedgerError"
)

// CycleError aborts a cycle before or during order handling
type CycleError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// Outcome summarises how a cycle ended
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeRebalanced Outcome = "rebalanced"
	OutcomeAborted    Outcome = "aborted"
)

// OrderStatus is the fate of one sized order
type OrderStatus string

const (
	OrderFilled   OrderStatus = "filled"
	OrderRejected OrderStatus = "rejected"
)

// OrderResult pairs an order with the gatekeeper verdict and the stored trade
type OrderResult struct {
	Order    domain.TradeOrder  `json:"order"`
	Status   OrderStatus        `json:"status"`
	Decision risk.Decision      `json:"decision"`
	Trade    *persistence.Trade `json:"trade,omitempty"`
}

// CycleReport describes one rebalance cycle
type CycleReport struct {
	StartedAt      time.Time            `json:"started_at"`
	Elapsed        time.Duration        `json:"elapsed"`
	Outcome        Outcome              `json:"outcome"`
	KillSwitch     float64              `json:"kill_switch"`
	TargetDuration float64              `json:"target_duration"`
	Universe       domain.Universe      `json:"universe,omitempty"`
	Excluded       []universe.Exclusion `json:"excluded,omitempty"`
	State          portfolio.State      `json:"state"`
	Decision       rebalance.Decision   `json:"decision"`
	Weights        domain.WeightVector  `json:"weights,omitempty"`
	Orders         []OrderResult        `json:"orders,omitempty"`
	Unsized        []sizing.Skipped     `json:"unsized,omitempty"`
}

// Filled returns the orders that were executed
func (r *CycleReport) Filled() []OrderResult {
	return r.filter(OrderFilled)
}

// Rejected returns the orders the gatekeeper denied
func (r *CycleReport) Rejected() []OrderResult {
	return r.filter(OrderRejected)
}

func (r *CycleReport) filter(status OrderStatus) []OrderResult {
	var out []OrderResult
	for _, o := range r.Orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}
