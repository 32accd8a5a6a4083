package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestConfigRequest carries everything needed to start a run. Dates are
// YYYY-MM-DD strings; zero-valued money/sizing fields fall back to the
// defaults applied by the service.
type BacktestConfigRequest struct {
	StrategyName   string             `json:"strategy_name" validate:"required"`
	StrategyParams map[string]float64 `json:"strategy_params"`
	StartDate      string             `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string             `json:"end_date" validate:"required,datetime=2006-01-02"`
	InitialCash    float64            `json:"initial_cash" validate:"omitempty,gt=0"`
	CommissionRate float64            `json:"commission_rate" validate:"omitempty,gte=0,lte=0.01"`
	Slippage       float64            `json:"slippage" validate:"omitempty,gte=0,lte=0.05"`
	MaxPositions   int                `json:"max_positions" validate:"omitempty,gte=1,lte=50"`
	PositionSize   float64            `json:"position_size" validate:"omitempty,gt=0,lte=1"`
	HoldDays       int                `json:"hold_days" validate:"omitempty,gte=1,lte=365"`
	RebalanceFreq  string             `json:"rebalance_freq" validate:"omitempty,oneof=daily weekly monthly"`
	StockPool      []string           `json:"stock_pool"`
	Sector         string             `json:"sector"`
}

// TradeRecord is one executed simulated order. Profit and ExitReason are set
// on sells only.
type TradeRecord struct {
	Date       time.Time        `json:"date"`
	Code       string           `json:"code"`
	Side       TradeSide        `json:"side"`
	Price      decimal.Decimal  `json:"price"`
	Quantity   int64            `json:"quantity"`
	Amount     decimal.Decimal  `json:"amount"`
	Commission decimal.Decimal  `json:"commission"`
	Profit     *decimal.Decimal `json:"profit,omitempty"`
	ExitReason string           `json:"exit_reason,omitempty"`
}

// EquityPoint is one mark-to-market snapshot, appended exactly once per
// trading day.
type EquityPoint struct {
	Date      time.Time       `json:"date"`
	Equity    decimal.Decimal `json:"equity"`
	Cash      decimal.Decimal `json:"cash"`
	Positions int             `json:"positions"`
}

// PerformanceMetrics is the read-only reduction over a finished equity curve
// and trade log. Nullable metrics stay nil when undefined instead of
// reporting a misleading zero.
type PerformanceMetrics struct {
	InitialCash         float64  `json:"initial_cash"`
	FinalEquity         float64  `json:"final_equity"`
	TotalReturn         float64  `json:"total_return"`
	AnnualReturn        float64  `json:"annual_return"`
	SharpeRatio         *float64 `json:"sharpe_ratio"`
	MaxDrawdown         float64  `json:"max_drawdown"`
	MaxDrawdownValue    float64  `json:"max_drawdown_value"`
	MaxDrawdownDuration int      `json:"max_drawdown_duration"`
	TotalTrades         int      `json:"total_trades"`
	ProfitableTrades    int      `json:"profitable_trades"`
	LosingTrades        int      `json:"losing_trades"`
	WinRate             float64  `json:"win_rate"`
	AvgProfit           float64  `json:"avg_profit"`
	AvgLoss             float64  `json:"avg_loss"`
	ProfitLossRatio     *float64 `json:"profit_loss_ratio"`
	StartDate           string   `json:"start_date"`
	EndDate             string   `json:"end_date"`
	TradingDays         int      `json:"trading_days"`
}

// BacktestRunResponse acknowledges run creation.
type BacktestRunResponse struct {
	RunID  uint      `json:"run_id"`
	Status RunStatus `json:"status"`
}

// BacktestResultResponse is the full run view returned by the API.
type BacktestResultResponse struct {
	RunID       uint                  `json:"run_id"`
	Config      BacktestConfigRequest `json:"config"`
	Status      RunStatus             `json:"status"`
	Error       string                `json:"error,omitempty"`
	Performance *PerformanceMetrics   `json:"performance,omitempty"`
	EquityCurve []EquityPoint         `json:"equity_curve,omitempty"`
	Trades      []TradeRecord         `json:"trades,omitempty"`
	AISummary   string                `json:"ai_summary,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// BacktestRunListItem is the condensed row for run listings.
type BacktestRunListItem struct {
	RunID        uint       `json:"run_id"`
	StrategyName string     `json:"strategy_name"`
	StartDate    string     `json:"start_date"`
	EndDate      string     `json:"end_date"`
	Status       RunStatus  `json:"status"`
	TotalReturn  *float64   `json:"total_return,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// StrategyParamInfo describes one tunable strategy parameter.
type StrategyParamInfo struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// StrategyInfo describes a registered strategy for the catalog endpoint.
type StrategyInfo struct {
	Name        string              `json:"name"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Params      []StrategyParamInfo `json:"params"`
}

// AISummaryParam feeds a finished run's headline numbers to the AI summary.
type AISummaryParam struct {
	StrategyName string
	StartDate    string
	EndDate      string
	Metrics      PerformanceMetrics
}

// PortfolioSnapshot is the read-only view of portfolio state handed to
// strategies during signal generation.
type PortfolioSnapshot struct {
	Cash      decimal.Decimal
	Positions map[string]PositionView
}

// Held reports whether the snapshot contains an open position for code.
func (s PortfolioSnapshot) Held(code string) bool {
	_, ok := s.Positions[code]
	return ok
}

// PositionView is the immutable per-position slice of a snapshot.
type PositionView struct {
	Code      string
	Quantity  int64
	AvgCost   decimal.Decimal
	EntryDate time.Time
	HeldDays  int
}
