package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"marketdash/internal/models"
)

// Screener runs a stock screener query.
func (c *Client) Screener(ctx context.Context, f models.ScreenerFilter) ([]models.ScreenerRow, error) {
	query := url.Values{}
	if f.MinPrice > 0 {
		query.Set("min_price", strconv.FormatFloat(f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice > 0 {
		query.Set("max_price", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	if f.Sector != "" {
		query.Set("sector", f.Sector)
	}
	if f.SortBy != "" {
		query.Set("sort_by", f.SortBy)
	}
	if f.Order != "" {
		query.Set("order", f.Order)
	}
	if f.Limit > 0 {
		query.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Skip > 0 {
		query.Set("skip", strconv.Itoa(f.Skip))
	}

	var raw json.RawMessage
	if err := c.get(ctx, "/api/stocks/screener", query, &raw); err != nil {
		return nil, err
	}
	return decodeList[models.ScreenerRow](raw, "stocks")
}

// MarketBreadth returns market breadth history as sent by the backend
// (newest first).
func (c *Client) MarketBreadth(ctx context.Context, days int) ([]models.BreadthPoint, error) {
	query := url.Values{}
	if days > 0 {
		query.Set("days", strconv.Itoa(days))
	}

	var raw json.RawMessage
	if err := c.get(ctx, "/api/market/breadth", query, &raw); err != nil {
		return nil, err
	}
	return decodeList[models.BreadthPoint](raw, "history", "breadth")
}
