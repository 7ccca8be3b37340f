package utils

import (
	"time"
)

// CairoLocation is the timezone of the Egyptian Exchange.
var CairoLocation *time.Location

func init() {
	var err error
	CairoLocation, err = time.LoadLocation("Africa/Cairo")
	if err != nil {
		CairoLocation = time.FixedZone("EET", 2*60*60)
	}
}

// MarketStatus represents the current market session.
type MarketStatus string

const (
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketOpen    MarketStatus = "OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// Session boundaries in minutes after midnight, Cairo time.
const (
	preOpenMinute = 9*60 + 30
	openMinute    = 10 * 60
	closeMinute   = 14*60 + 30
)

// isTradingDay reports whether d is a regular EGX trading day (Sunday to Thursday).
func isTradingDay(d time.Weekday) bool {
	return d != time.Friday && d != time.Saturday
}

// MarketStatusAt returns the market session at t.
func MarketStatusAt(t time.Time) MarketStatus {
	now := t.In(CairoLocation)
	if !isTradingDay(now.Weekday()) {
		return MarketClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= preOpenMinute && minutes < openMinute:
		return MarketPreOpen
	case minutes >= openMinute && minutes < closeMinute:
		return MarketOpen
	}
	return MarketClosed
}

// GetMarketStatus returns the current market status.
func GetMarketStatus() MarketStatus {
	return MarketStatusAt(time.Now())
}

// IsMarketOpen returns true if the market is currently open.
func IsMarketOpen() bool {
	return GetMarketStatus() == MarketOpen
}

// NextMarketOpen returns the first session open strictly after t.
func NextMarketOpen(t time.Time) time.Time {
	now := t.In(CairoLocation)
	next := time.Date(now.Year(), now.Month(), now.Day(), openMinute/60, openMinute%60, 0, 0, CairoLocation)

	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for !isTradingDay(next.Weekday()) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
