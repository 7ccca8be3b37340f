package api

import (
	"context"

	"marketdash/internal/models"
)

// SendChat posts one user turn to the chat completion endpoint.
func (c *Client) SendChat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if req.History == nil {
		req.History = []models.HistoryEntry{}
	}

	var resp models.ChatResponse
	if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
