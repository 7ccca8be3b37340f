package models

// Holding is a portfolio position. CurrentValue, PnLValue and PnLPercent are
// derived from the other fields and are recomputed whenever CurrentPrice
// changes.
type Holding struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	AveragePrice float64   `json:"average_price"`
	CurrentPrice float64   `json:"current_price"`
	CostBasis    float64   `json:"cost_basis"`
	CurrentValue float64   `json:"current_value"`
	PnLValue     float64   `json:"pnl_value"`
	PnLPercent   float64   `json:"pnl_percent"`
	RealizedGain float64   `json:"realized_gain,omitempty"`
	Sparkline    []float64 `json:"sparkline_data,omitempty"`
}

// CreateHoldingRequest is the body posted when adding a holding.
type CreateHoldingRequest struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
}
