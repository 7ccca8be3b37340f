package api

import (
	"context"
	"encoding/json"
	"net/url"

	"marketdash/internal/models"
)

// ListAlerts returns all price alerts, active and triggered.
func (c *Client) ListAlerts(ctx context.Context) ([]models.PriceAlert, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/alerts", nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[models.PriceAlert](raw, "alerts")
}

// CreateAlert creates a price alert.
func (c *Client) CreateAlert(ctx context.Context, req models.CreateAlertRequest) (*models.PriceAlert, error) {
	var a models.PriceAlert
	if err := c.post(ctx, "/api/alerts", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAlert deletes a price alert by id.
func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/alerts/"+url.PathEscape(id))
}
