package model

import (
	"time"

	"gorm.io/datatypes"
)

// BacktestRun is one persisted backtest execution. Status follows
// pending -> running -> completed/failed/cancelled and is immutable once
// terminal.
type BacktestRun struct {
	ID             uint           `gorm:"primarykey"`
	StrategyName   string         `gorm:"type:varchar(50);not null;index"`
	StrategyParams datatypes.JSON `gorm:"type:jsonb"`
	StartDate      time.Time      `gorm:"type:date;not null;index"`
	EndDate        time.Time      `gorm:"type:date;not null"`
	InitialCash    float64        `gorm:"type:decimal(15,2);not null"`
	CommissionRate float64        `gorm:"type:decimal(7,5);not null"`
	Slippage       float64        `gorm:"type:decimal(7,5);not null"`
	MaxPositions   int            `gorm:"not null"`
	PositionSize   float64        `gorm:"type:decimal(5,4);not null"`
	HoldDays       int            `gorm:"not null"`
	RebalanceFreq  string         `gorm:"type:varchar(10);not null"`
	StockPool      datatypes.JSON `gorm:"type:jsonb"`
	Sector         string         `gorm:"type:varchar(50)"`
	Status         string         `gorm:"type:varchar(20);not null;index"`
	ErrorMessage   string         `gorm:"type:text"`

	// Set on completion.
	ResultSummary datatypes.JSON `gorm:"type:jsonb"`
	EquityCurve   datatypes.JSON `gorm:"type:jsonb"`
	AISummary     string         `gorm:"type:text"`

	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
	CompletedAt *time.Time `gorm:"null"`

	Trades []BacktestTrade `gorm:"foreignKey:BacktestRunID"`
}

func (BacktestRun) TableName() string {
	return "backtest_runs"
}

// BacktestTrade is one simulated fill belonging to a run.
type BacktestTrade struct {
	ID            uint      `gorm:"primarykey"`
	BacktestRunID uint      `gorm:"not null;index"`
	StockCode     string    `gorm:"type:varchar(20);not null"`
	Side          string    `gorm:"type:varchar(10);not null"`
	TradeDate     time.Time `gorm:"type:date;not null;index"`
	Price         float64   `gorm:"type:decimal(10,2);not null"`
	Quantity      int64     `gorm:"not null"`
	Amount        float64   `gorm:"type:decimal(15,2);not null"`
	Commission    float64   `gorm:"type:decimal(10,2);not null"`
	Profit        *float64  `gorm:"type:decimal(15,2);null"`
	ExitReason    string    `gorm:"type:varchar(30)"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (BacktestTrade) TableName() string {
	return "backtest_trades"
}

// GetBacktestRunParam filters run listings.
type GetBacktestRunParam struct {
	Statuses     []string
	StrategyName *string
	Limit        *int
}
