// Package chat manages the AI analyst conversation thread.
package chat

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"marketdash/internal/store"
)

// NewSessionID returns a fresh session id of the form
// sess_<unix-millis>_<random base36>.
func NewSessionID(now time.Time) string {
	random := strconv.FormatUint(rand.Uint64(), 36)
	if len(random) > 9 {
		random = random[:9]
	}
	return fmt.Sprintf("sess_%d_%s", now.UnixMilli(), random)
}

// IsSessionID reports whether id looks like a session id.
func IsSessionID(id string) bool {
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "sess" || parts[2] == "" {
		return false
	}
	_, err := strconv.ParseInt(parts[1], 10, 64)
	return err == nil
}

// loadOrCreateSession reads the persisted session id, creating and storing
// one when absent.
func loadOrCreateSession(ctx context.Context, s store.LocalStore, now time.Time) (string, bool, error) {
	id, ok, err := s.GetValue(ctx, store.KeyChatSessionID)
	if err != nil {
		return "", false, err
	}
	if ok && id != "" {
		return id, false, nil
	}

	id = NewSessionID(now)
	if err := s.SetValue(ctx, store.KeyChatSessionID, id); err != nil {
		return "", false, err
	}
	return id, true, nil
}
