// Package market provides screener and market breadth queries.
package market

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	apperrors "marketdash/internal/errors"
	"marketdash/internal/models"
)

// Backend is the market part of the dashboard API.
type Backend interface {
	Screener(ctx context.Context, f models.ScreenerFilter) ([]models.ScreenerRow, error)
	MarketBreadth(ctx context.Context, days int) ([]models.BreadthPoint, error)
}

// MaxScreenerLimit bounds a single screener page.
const MaxScreenerLimit = 200

var screenerSortKeys = map[string]bool{
	"symbol":         true,
	"price":          true,
	"change_percent": true,
	"volume":         true,
	"market_cap":     true,
}

// Service runs market queries.
type Service struct {
	backend Backend
	logger  zerolog.Logger
}

// NewService creates a new market Service.
func NewService(backend Backend, logger zerolog.Logger) *Service {
	return &Service{
		backend: backend,
		logger:  logger.With().Str("component", "market").Logger(),
	}
}

// ValidateFilter normalizes f and checks its bounds.
func ValidateFilter(f models.ScreenerFilter) (models.ScreenerFilter, error) {
	f.SortBy = strings.ToLower(strings.TrimSpace(f.SortBy))
	f.Order = strings.ToLower(strings.TrimSpace(f.Order))
	f.Sector = strings.TrimSpace(f.Sector)

	if f.SortBy != "" && !screenerSortKeys[f.SortBy] {
		return f, apperrors.NewValidationError("sort_by", f.SortBy, "must be one of symbol, price, change_percent, volume, market_cap")
	}
	if f.Order != "" && f.Order != "asc" && f.Order != "desc" {
		return f, apperrors.NewValidationError("order", f.Order, "must be asc or desc")
	}
	if f.MinPrice < 0 || f.MaxPrice < 0 {
		return f, apperrors.NewValidationError("price", f.MinPrice, "price bounds cannot be negative")
	}
	if f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		return f, apperrors.NewValidationError("min_price", f.MinPrice, "min price is above max price")
	}
	if f.Limit < 0 || f.Limit > MaxScreenerLimit {
		return f, apperrors.NewValidationError("limit", f.Limit, "limit must be between 0 and 200")
	}
	if f.Skip < 0 {
		return f, apperrors.NewValidationError("skip", f.Skip, "skip cannot be negative")
	}
	return f, nil
}

// Screener runs a screener query.
func (s *Service) Screener(ctx context.Context, f models.ScreenerFilter) ([]models.ScreenerRow, error) {
	f, err := ValidateFilter(f)
	if err != nil {
		return nil, err
	}

	rows, err := s.backend.Screener(ctx, f)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Screener query failed")
		return nil, err
	}
	s.logger.Debug().Int("rows", len(rows)).Str("sort_by", f.SortBy).Msg("Screener query")
	return rows, nil
}

// Breadth returns up to days of breadth history, oldest first. The result
// is a new slice; the backend response is never reordered in place.
func (s *Service) Breadth(ctx context.Context, days int) ([]models.BreadthPoint, error) {
	if days < 0 {
		return nil, apperrors.NewValidationError("days", days, "days cannot be negative")
	}

	points, err := s.backend.MarketBreadth(ctx, days)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Breadth query failed")
		return nil, err
	}
	return Chronological(points), nil
}

// Chronological returns a copy of points sorted by date, oldest first.
// Points on the same date keep their relative order.
func Chronological(points []models.BreadthPoint) []models.BreadthPoint {
	out := make([]models.BreadthPoint, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// BreadthSummary totals a breadth history.
type BreadthSummary struct {
	Days       int
	Advancers  int
	Decliners  int
	Unchanged  int
	UpDays     int
	DownDays   int
	NetAdvance int
}

// Summarize totals points.
func Summarize(points []models.BreadthPoint) BreadthSummary {
	var sum BreadthSummary
	for _, p := range points {
		sum.Days++
		sum.Advancers += p.Advancers
		sum.Decliners += p.Decliners
		sum.Unchanged += p.Unchanged
		switch {
		case p.Advancers > p.Decliners:
			sum.UpDays++
		case p.Decliners > p.Advancers:
			sum.DownDays++
		}
	}
	sum.NetAdvance = sum.Advancers - sum.Decliners
	return sum
}
