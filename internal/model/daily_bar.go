package model

import "time"

// DailyBar is one adjusted OHLCV row in the local price history store.
// Rows are written once by the sync job and never mutated.
type DailyBar struct {
	ID        uint      `gorm:"primarykey"`
	StockCode string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_daily_bar_key,priority:1"`
	TradeDate time.Time `gorm:"type:date;not null;uniqueIndex:idx_daily_bar_key,priority:2"`
	Adjust    string    `gorm:"type:varchar(10);not null;default:qfq;uniqueIndex:idx_daily_bar_key,priority:3"`
	Open      float64   `gorm:"type:decimal(10,2);not null"`
	High      float64   `gorm:"type:decimal(10,2);not null"`
	Low       float64   `gorm:"type:decimal(10,2);not null"`
	Close     float64   `gorm:"type:decimal(10,2);not null"`
	Volume    int64     `gorm:"not null"`
	Amount    float64   `gorm:"type:decimal(18,2);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (DailyBar) TableName() string {
	return "daily_bars"
}
