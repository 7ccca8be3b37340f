// Package alerts keeps the client-side copy of the user's price alerts.
package alerts

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

// Backend is the alert part of the dashboard API.
type Backend interface {
	ListAlerts(ctx context.Context) ([]models.PriceAlert, error)
	CreateAlert(ctx context.Context, req models.CreateAlertRequest) (*models.PriceAlert, error)
	DeleteAlert(ctx context.Context, id string) error
}

// Store holds the last fetched alerts. The backend decides when an alert
// triggers; once an alert is seen triggered it stays triggered here.
type Store struct {
	backend Backend
	local   store.LocalStore
	logger  zerolog.Logger

	mu      sync.RWMutex
	alerts  []models.PriceAlert
	pending int
	lastErr error
}

// NewStore creates a new alert Store. local may be nil.
func NewStore(backend Backend, local store.LocalStore, logger zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		local:   local,
		logger:  logger.With().Str("component", "alerts").Logger(),
		alerts:  []models.PriceAlert{},
	}
}

// Refresh refetches all alerts and merges trigger times.
func (s *Store) Refresh(ctx context.Context) error {
	fresh, err := s.backend.ListAlerts(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to refresh alerts")
		return err
	}
	s.alerts = mergeTriggered(s.alerts, fresh)

	if s.local != nil {
		if err := s.local.SetLastSync(store.SyncAlerts, time.Now()); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to record alert sync")
		}
	}
	return nil
}

// mergeTriggered returns fresh, keeping any trigger time cached in prev
// that fresh reports as null.
func mergeTriggered(prev, fresh []models.PriceAlert) []models.PriceAlert {
	triggered := make(map[string]time.Time, len(prev))
	for _, a := range prev {
		if a.TriggeredAt != nil {
			triggered[a.ID] = *a.TriggeredAt
		}
	}

	out := make([]models.PriceAlert, len(fresh))
	for i, a := range fresh {
		if a.TriggeredAt == nil {
			if at, ok := triggered[a.ID]; ok {
				at := at
				a.TriggeredAt = &at
			}
		}
		out[i] = a
	}
	return out
}

// List returns a copy of all alerts.
func (s *Store) List() []models.PriceAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.PriceAlert{}, s.alerts...)
}

// Active returns the alerts that have not triggered.
func (s *Store) Active() []models.PriceAlert {
	return s.filter(func(a models.PriceAlert) bool { return !a.IsTriggered() })
}

// Triggered returns the alerts that have triggered.
func (s *Store) Triggered() []models.PriceAlert {
	return s.filter(func(a models.PriceAlert) bool { return a.IsTriggered() })
}

// ActiveFor returns the active alerts on symbol.
func (s *Store) ActiveFor(symbol string) []models.PriceAlert {
	return s.filter(func(a models.PriceAlert) bool {
		return !a.IsTriggered() && a.Symbol == symbol
	})
}

func (s *Store) filter(keep func(models.PriceAlert) bool) []models.PriceAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.PriceAlert{}
	for _, a := range s.alerts {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
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

// CreateAlert creates an alert on symbol. condition is ABOVE or BELOW.
func (s *Store) CreateAlert(ctx context.Context, symbol string, target float64, condition string) (*models.PriceAlert, error) {
	symbol, err := security.ValidateSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := security.ValidateTargetPrice(target); err != nil {
		return nil, err
	}
	cond, ok := models.ParseAlertCondition(condition)
	if !ok {
		return nil, apperrors.NewValidationError("condition", condition, "condition must be ABOVE or BELOW")
	}

	var created *models.PriceAlert
	err = s.mutate(ctx, "create", symbol, func() error {
		a, err := s.backend.CreateAlert(ctx, models.CreateAlertRequest{
			Symbol:      symbol,
			Condition:   cond,
			TargetPrice: target,
		})
		created = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteAlert deletes the alert with id.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.NewValidationError("id", id, "alert id cannot be empty")
	}
	return s.mutate(ctx, "delete", id, func() error {
		return s.backend.DeleteAlert(ctx, id)
	})
}

// mutate runs call once and refetches on success. A failed refetch does
// not fail the mutation; it is reported through Err.
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
	logging.LogMutation(s.logger, "alert", action, id, err)
	if err != nil {
		return apperrors.NewMutationError("alert", action, id, err)
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("id", id).
			Msg("Saved, but refetch failed; local copy is stale")
	}
	return nil
}
