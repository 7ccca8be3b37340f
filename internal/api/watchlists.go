package api

import (
	"context"
	"encoding/json"
	"net/url"

	"marketdash/internal/models"
)

// ListWatchlists returns all watchlists of the signed-in user.
func (c *Client) ListWatchlists(ctx context.Context) ([]models.Watchlist, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/watchlists", nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[models.Watchlist](raw, "watchlists")
}

// CreateWatchlist creates a named watchlist.
func (c *Client) CreateWatchlist(ctx context.Context, name string) (*models.Watchlist, error) {
	var w models.Watchlist
	if err := c.post(ctx, "/api/watchlists", map[string]string{"name": name}, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeleteWatchlist deletes a watchlist by id.
func (c *Client) DeleteWatchlist(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/watchlists/"+url.PathEscape(id))
}

// AddWatchlistItem adds symbol to a watchlist.
func (c *Client) AddWatchlistItem(ctx context.Context, listID, symbol string) error {
	body := models.WatchlistItem{Symbol: symbol}
	return c.post(ctx, "/api/watchlists/"+url.PathEscape(listID)+"/items", body, nil)
}

// RemoveWatchlistItem removes symbol from a watchlist.
func (c *Client) RemoveWatchlistItem(ctx context.Context, listID, symbol string) error {
	return c.delete(ctx, "/api/watchlists/"+url.PathEscape(listID)+"/items/"+url.PathEscape(symbol))
}
