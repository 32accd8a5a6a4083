package dto

import "time"

// PriceBar is one daily OHLCV record for an instrument, immutable once
// fetched. Bars are keyed by (code, date, adjust) and ordered ascending by
// date within a series.
type PriceBar struct {
	Code   string    `json:"code"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	Amount float64   `json:"amount"`
	Adjust string    `json:"adjust"`
}

// GetDailyBarsParam selects a gap-free daily series for one instrument.
type GetDailyBarsParam struct {
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Adjust    string
}

// GatewayBarsResponse is the market-data gateway payload for a kline query.
type GatewayBarsResponse struct {
	Code  string       `json:"code"`
	Items []GatewayBar `json:"items"`
	Total int          `json:"total"`
}

type GatewayBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
	Amount float64 `json:"amount"`
}

// GatewayStockListResponse is the gateway payload for the stock universe
// endpoint, optionally filtered by sector.
type GatewayStockListResponse struct {
	Items []GatewayStock `json:"items"`
	Total int            `json:"total"`
}

type GatewayStock struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Market   string `json:"market"`
	Industry string `json:"industry"`
}
