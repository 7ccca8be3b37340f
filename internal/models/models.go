// Package models provides domain models for the dashboard client.
package models

import (
	"time"
)

// PriceTick represents a live price update for a symbol.
type PriceTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Quote represents a market quote returned by the quotes endpoint.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ScreenerFilter holds the filter and sort parameters of a screener query.
type ScreenerFilter struct {
	MinPrice float64
	MaxPrice float64
	Sector   string
	SortBy   string // symbol, price, change_percent, volume, market_cap
	Order    string // asc, desc
	Limit    int
	Skip     int
}

// ScreenerRow is a single stock returned by the screener.
type ScreenerRow struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Sector        string  `json:"sector"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	MarketCap     float64 `json:"market_cap"`
	PERatio       float64 `json:"pe_ratio"`
}

// BreadthPoint is one day of market breadth history.
type BreadthPoint struct {
	Date      time.Time `json:"date"`
	Advancers int       `json:"advancers"`
	Decliners int       `json:"decliners"`
	Unchanged int       `json:"unchanged"`
}

// AdvanceDeclineRatio returns advancers over decliners, or advancers when
// there are no decliners.
func (b BreadthPoint) AdvanceDeclineRatio() float64 {
	if b.Decliners == 0 {
		return float64(b.Advancers)
	}
	return float64(b.Advancers) / float64(b.Decliners)
}
