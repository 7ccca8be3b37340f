package portfolio

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

// Backend is the portfolio part of the dashboard API.
type Backend interface {
	ListHoldings(ctx context.Context) ([]models.Holding, error)
	CreateHolding(ctx context.Context, req models.CreateHoldingRequest) (*models.Holding, error)
	DeleteHolding(ctx context.Context, id string) error
	GetQuotes(ctx context.Context, symbols []string) ([]models.Quote, error)
}

// Service keeps the current Book and re-derives it on price changes.
// It implements stream.Consumer.
type Service struct {
	backend Backend
	local   store.LocalStore
	logger  zerolog.Logger

	mu      sync.RWMutex
	book    Book
	pending int
	lastErr error
}

// NewService creates a new portfolio Service. local may be nil.
func NewService(backend Backend, local store.LocalStore, logger zerolog.Logger) *Service {
	return &Service{
		backend: backend,
		local:   local,
		logger:  logger.With().Str("component", "portfolio").Logger(),
	}
}

// Refresh refetches holdings and their latest quotes. A quote failure is
// logged and the prices sent with the holdings are used.
func (s *Service) Refresh(ctx context.Context) error {
	holdings, err := s.backend.ListHoldings(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Warn().Err(err).Msg("Failed to refresh holdings")
		return err
	}

	book := NewBook(holdings)
	if symbols := book.Symbols(); len(symbols) > 0 {
		quotes, err := s.backend.GetQuotes(ctx, symbols)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to fetch quotes, using holding prices")
		} else {
			book = book.WithPrices(quotePrices(quotes))
		}
	}

	s.mu.Lock()
	s.book = book
	s.lastErr = nil
	s.mu.Unlock()

	if s.local != nil {
		if err := s.local.SetLastSync(store.SyncHoldings, time.Now()); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to record holdings sync")
		}
	}
	return nil
}

func quotePrices(quotes []models.Quote) map[string]float64 {
	prices := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		prices[q.Symbol] = q.Price
	}
	return prices
}

// Book returns the current Book.
func (s *Service) Book() Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book
}

// Err returns the error of the last refresh, if any.
func (s *Service) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Pending reports whether a mutation is in flight.
func (s *Service) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending > 0
}

// AddHolding adds quantity shares of symbol bought at averagePrice.
func (s *Service) AddHolding(ctx context.Context, symbol string, quantity, averagePrice float64) (*models.Holding, error) {
	symbol, err := security.ValidateSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := security.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if err := security.ValidatePrice("average_price", averagePrice); err != nil {
		return nil, err
	}

	var created *models.Holding
	err = s.mutate(ctx, "create", symbol, func() error {
		h, err := s.backend.CreateHolding(ctx, models.CreateHoldingRequest{
			Symbol:       symbol,
			Quantity:     quantity,
			AveragePrice: averagePrice,
		})
		created = h
		return err
	})
	if err != nil {
		return nil, err
	}
	if created != nil {
		derived := Derive(*created)
		created = &derived
	}
	return created, nil
}

// RemoveHolding deletes the holding with id.
func (s *Service) RemoveHolding(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.NewValidationError("id", id, "holding id cannot be empty")
	}
	return s.mutate(ctx, "delete", id, func() error {
		return s.backend.DeleteHolding(ctx, id)
	})
}

func (s *Service) mutate(ctx context.Context, action, id string, call func() error) error {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
	}()

	err := call()
	logging.LogMutation(s.logger, "holding", action, id, err)
	if err != nil {
		return apperrors.NewMutationError("holding", action, id, err)
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("id", id).
			Msg("Saved, but refetch failed; local copy is stale")
	}
	return nil
}

// OnTick re-derives the holdings of the tick's symbol at its price.
func (s *Service) OnTick(tick models.PriceTick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.book = s.book.WithPrice(tick.Symbol, tick.Price)
}

// Symbols returns the symbols held.
func (s *Service) Symbols() []string {
	return s.Book().Symbols()
}
