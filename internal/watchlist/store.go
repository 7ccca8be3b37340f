// Package watchlist keeps the client-side copy of the user's watchlists.
//
// The backend is authoritative: every successful mutation is followed by a
// full refetch, and the local collection is never patched in place.
package watchlist

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "marketdash/internal/errors"
	"marketdash/internal/logging"
	"marketdash/internal/models"
	"marketdash/internal/security"
	"marketdash/internal/store"
)

// Backend is the watchlist part of the dashboard API.
type Backend interface {
	ListWatchlists(ctx context.Context) ([]models.Watchlist, error)
	CreateWatchlist(ctx context.Context, name string) (*models.Watchlist, error)
	DeleteWatchlist(ctx context.Context, id string) error
	AddWatchlistItem(ctx context.Context, listID, symbol string) error
	RemoveWatchlistItem(ctx context.Context, listID, symbol string) error
}

// Store holds the last fetched watchlists.
type Store struct {
	backend Backend
	local   store.LocalStore
	logger  zerolog.Logger

	mu         sync.RWMutex
	watchlists []models.Watchlist
	pending    int
	lastErr    error
}

// NewStore creates a new watchlist Store. local may be nil.
func NewStore(backend Backend, local store.LocalStore, logger zerolog.Logger) *Store {
	return &Store{
		backend:    backend,
		local:      local,
		logger:     logger.With().Str("component", "watchlist").Logger(),
		watchlists: []models.Watchlist{},
	}
}

// Refresh refetches all watchlists from the backend. On failure the
// previous collection is kept.
func (s *Store) Refresh(ctx context.Context) error {
	lists, err := s.backend.ListWatchlists(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to refresh watchlists")
		return err
	}
	s.watchlists = lists

	if s.local != nil {
		if err := s.local.SetLastSync(store.SyncWatchlists, time.Now()); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to record watchlist sync")
		}
	}
	return nil
}

// List returns a copy of all watchlists.
func (s *Store) List() []models.Watchlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Watchlist, len(s.watchlists))
	for i, w := range s.watchlists {
		out[i] = copyWatchlist(w)
	}
	return out
}

// Get returns the watchlist with id.
func (s *Store) Get(id string) (models.Watchlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.watchlists {
		if w.ID == id {
			return copyWatchlist(w), true
		}
	}
	return models.Watchlist{}, false
}

// FindByName returns the watchlist named name, ignoring case.
func (s *Store) FindByName(name string) (models.Watchlist, bool) {
	name = strings.TrimSpace(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.watchlists {
		if strings.EqualFold(w.Name, name) {
			return copyWatchlist(w), true
		}
	}
	return models.Watchlist{}, false
}

// Symbols returns every distinct symbol across all watchlists.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var symbols []string
	for _, w := range s.watchlists {
		for _, sym := range w.Symbols() {
			if !seen[sym] {
				seen[sym] = true
				symbols = append(symbols, sym)
			}
		}
	}
	return symbols
}

// Pending reports whether a mutation is in flight.
func (s *Store) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending > 0
}

// Err returns the error of the last refresh, if any.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// CreateWatchlist creates a watchlist named name.
func (s *Store) CreateWatchlist(ctx context.Context, name string) (*models.Watchlist, error) {
	name, err := security.ValidateWatchlistName(name)
	if err != nil {
		return nil, err
	}

	var created *models.Watchlist
	err = s.mutate(ctx, "create", name, func() error {
		w, err := s.backend.CreateWatchlist(ctx, name)
		created = w
		return err
	})
	if err != nil {
		return nil, err
	}
	if w, ok := s.FindByName(name); ok {
		return &w, nil
	}
	return created, nil
}

// DeleteWatchlist deletes the watchlist with id.
func (s *Store) DeleteWatchlist(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.NewValidationError("id", id, "watchlist id cannot be empty")
	}
	return s.mutate(ctx, "delete", id, func() error {
		return s.backend.DeleteWatchlist(ctx, id)
	})
}

// AddItem adds symbol to the watchlist listID.
func (s *Store) AddItem(ctx context.Context, listID, symbol string) error {
	if strings.TrimSpace(listID) == "" {
		return apperrors.NewValidationError("id", listID, "watchlist id cannot be empty")
	}
	symbol, err := security.ValidateSymbol(symbol)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "add_item", listID+"/"+symbol, func() error {
		return s.backend.AddWatchlistItem(ctx, listID, symbol)
	})
}

// RemoveItem removes symbol from the watchlist listID.
func (s *Store) RemoveItem(ctx context.Context, listID, symbol string) error {
	if strings.TrimSpace(listID) == "" {
		return apperrors.NewValidationError("id", listID, "watchlist id cannot be empty")
	}
	symbol, err := security.ValidateSymbol(symbol)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "remove_item", listID+"/"+symbol, func() error {
		return s.backend.RemoveWatchlistItem(ctx, listID, symbol)
	})
}

// mutate runs call once and refetches on success. The local collection is
// left untouched on failure. A failed refetch does not fail the mutation;
// it is reported through Err.
func (s *Store) mutate(ctx context.Context, action, id string, call func() error) error {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
	}()

	err := call()
	logging.LogMutation(s.logger, "watchlist", action, id, err)
	if err != nil {
		return apperrors.NewMutationError("watchlist", action, id, err)
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("id", id).
			Msg("Saved, but refetch failed; local copy is stale")
	}
	return nil
}

func copyWatchlist(w models.Watchlist) models.Watchlist {
	w.Items = append([]models.WatchlistItem{}, w.Items...)
	return w
}
