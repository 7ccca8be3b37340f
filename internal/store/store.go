// Package store provides local persistence for client-side state.
//
// The store is the command-line stand-in for browser local storage: it keeps
// the chat session id, the chat thread and the time each dashboard section
// was last refreshed. The backend remains authoritative for everything else.
package store

import (
	"context"
	"time"

	"marketdash/internal/models"
)

// Well-known keys of the key-value table.
const (
	KeyChatSessionID = "chat_session_id"
)

// Sync data types recorded with SetLastSync.
const (
	SyncWatchlists = "watchlists"
	SyncAlerts     = "alerts"
	SyncHoldings   = "holdings"
)

// LocalStore defines the interface for local persistence.
type LocalStore interface {
	// Key-value, last write wins.
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error

	// Chat thread
	AppendMessage(ctx context.Context, sessionID string, msg models.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	ClearMessages(ctx context.Context, sessionID string) error

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}

// Freshness describes how old a locally recorded refresh is.
type Freshness struct {
	DataType    string
	LastUpdated time.Time
	Age         time.Duration
	IsStale     bool
}

// CheckFreshness reports the freshness of dataType against maxAge.
func CheckFreshness(s LocalStore, dataType string, maxAge time.Duration, now time.Time) Freshness {
	last := s.GetLastSync(dataType)
	f := Freshness{DataType: dataType, LastUpdated: last}
	if last.IsZero() {
		f.IsStale = true
		return f
	}
	f.Age = now.Sub(last)
	f.IsStale = f.Age > maxAge
	return f
}
