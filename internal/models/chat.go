package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatSession is one conversation thread.
type ChatSession struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// Message is a single entry of a chat thread. Messages are immutable once
// appended.
type Message struct {
	ID        string        `json:"id"`
	Seq       uint64        `json:"seq"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Response  *ChatResponse `json:"response,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// HistoryEntry is the wire form of a prior message sent with a chat request.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body posted to the chat completion endpoint.
type ChatRequest struct {
	Message   string         `json:"message"`
	History   []HistoryEntry `json:"history"`
	SessionID string         `json:"session_id"`
}

// ChatResponse is the structured payload of one assistant turn.
type ChatResponse struct {
	Cards    []Card        `json:"cards,omitempty"`
	Chart    *ChartPayload `json:"chart,omitempty"`
	Actions  []Action      `json:"actions,omitempty"`
	Language string        `json:"language,omitempty"`

	// The backend has used several names for the reply text over time.
	ConversationalText string `json:"conversational_text,omitempty"`
	MessageText        string `json:"message_text,omitempty"`
	Reply              string `json:"reply,omitempty"`

	// SessionID is set when the backend issues or rotates the session.
	SessionID string `json:"session_id,omitempty"`
}

// ReplyText returns the first non-empty reply field, or fallback.
func (r *ChatResponse) ReplyText(fallback string) string {
	if r == nil {
		return fallback
	}
	for _, s := range []string{r.ConversationalText, r.MessageText, r.Reply} {
		if s != "" {
			return s
		}
	}
	return fallback
}

// Card is an opaque presentation card (stock summary, fund detail, ...).
type Card struct {
	Type  string                 `json:"type"`
	Title string                 `json:"title,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// ChartPayload describes a chart to render alongside an assistant reply.
type ChartPayload struct {
	Type      string       `json:"type"`
	Symbol    string       `json:"symbol,omitempty"`
	Timeframe string       `json:"timeframe,omitempty"`
	Series    []ChartPoint `json:"series,omitempty"`
}

// ChartPoint is a single point of a chart series.
type ChartPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Action is a suggested follow-up the UI may offer.
type Action struct {
	Label   string `json:"label"`
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
}
