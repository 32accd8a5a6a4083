package dto

// RunStatus is the lifecycle state of a backtest run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// TradeSide is the direction of a simulated order.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Exit reasons recorded on closing trades.
const (
	ExitReasonSignal      = "signal"
	ExitReasonMaxHoldDays = "max_hold_days"
	ExitReasonStop        = "stop"
)

// Rebalance frequencies accepted by the engine.
const (
	RebalanceDaily   = "daily"
	RebalanceWeekly  = "weekly"
	RebalanceMonthly = "monthly"
)

// TradingDaysPerYear is the annualization convention used by the
// performance metrics.
const TradingDaysPerYear = 252
