// Package portfolio computes holding valuations and portfolio totals.
package portfolio

import (
	"github.com/shopspring/decimal"

	"marketdash/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Derive returns h with its cost basis, current value and unrealized P&L
// computed from quantity, average price and current price. Values are exact
// decimal products; rounding happens only when they are displayed or
// exported. A cost basis already set is kept.
func Derive(h models.Holding) models.Holding {
	qty := decimal.NewFromFloat(h.Quantity)
	avg := decimal.NewFromFloat(h.AveragePrice)
	price := decimal.NewFromFloat(h.CurrentPrice)

	cost := decimal.NewFromFloat(h.CostBasis)
	if cost.IsZero() {
		cost = qty.Mul(avg)
	}

	value := qty.Mul(price)
	pnl := value.Sub(cost)

	pct := decimal.Zero
	if !cost.IsZero() {
		pct = pnl.Div(cost).Mul(hundred)
	}

	h.CostBasis = cost.InexactFloat64()
	h.CurrentValue = value.InexactFloat64()
	h.PnLValue = pnl.InexactFloat64()
	h.PnLPercent = pct.InexactFloat64()
	return h
}

// Totals aggregates a set of holdings.
type Totals struct {
	Count             int     `json:"count"`
	TotalCost         float64 `json:"total_cost"`
	TotalValue        float64 `json:"total_value"`
	UnrealizedGain    float64 `json:"unrealized_gain"`
	UnrealizedPercent float64 `json:"unrealized_percent"`
	RealizedGain      float64 `json:"realized_gain"`
}

func computeTotals(holdings []models.Holding) Totals {
	cost, value, realized := decimal.Zero, decimal.Zero, decimal.Zero
	for _, h := range holdings {
		cost = cost.Add(decimal.NewFromFloat(h.CostBasis))
		value = value.Add(decimal.NewFromFloat(h.CurrentValue))
		realized = realized.Add(decimal.NewFromFloat(h.RealizedGain))
	}

	gain := value.Sub(cost)
	pct := decimal.Zero
	if !cost.IsZero() {
		pct = gain.Div(cost).Mul(hundred)
	}

	return Totals{
		Count:             len(holdings),
		TotalCost:         cost.InexactFloat64(),
		TotalValue:        value.InexactFloat64(),
		UnrealizedGain:    gain.InexactFloat64(),
		UnrealizedPercent: pct.InexactFloat64(),
		RealizedGain:      realized.InexactFloat64(),
	}
}
