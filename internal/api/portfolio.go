package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"marketdash/internal/models"
)

// ListHoldings returns the raw portfolio holdings.
func (c *Client) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/portfolio/holdings", nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[models.Holding](raw, "holdings")
}

// CreateHolding adds a holding to the portfolio.
func (c *Client) CreateHolding(ctx context.Context, req models.CreateHoldingRequest) (*models.Holding, error) {
	var h models.Holding
	if err := c.post(ctx, "/api/portfolio/holdings", req, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// DeleteHolding removes a holding by id.
func (c *Client) DeleteHolding(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/portfolio/holdings/"+url.PathEscape(id))
}

// GetQuotes returns the latest quotes for symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return []models.Quote{}, nil
	}

	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))

	var raw json.RawMessage
	if err := c.get(ctx, "/api/market/quotes", query, &raw); err != nil {
		return nil, err
	}
	return decodeList[models.Quote](raw, "quotes")
}
