// Package dashboard assembles a point-in-time view of watchlists, alerts,
// holdings and market breadth.
package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"marketdash/internal/alerts"
	"marketdash/internal/market"
	"marketdash/internal/models"
	"marketdash/internal/portfolio"
	"marketdash/internal/watchlist"
	"marketdash/pkg/utils"
)

// BreadthDays is how much breadth history a snapshot carries.
const BreadthDays = 5

// Dashboard refreshes every section of the dashboard.
type Dashboard struct {
	watchlists *watchlist.Store
	alerts     *alerts.Store
	portfolio  *portfolio.Service
	market     *market.Service
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a Dashboard. Any section may be nil and is then left empty.
func New(w *watchlist.Store, a *alerts.Store, p *portfolio.Service, m *market.Service, logger zerolog.Logger) *Dashboard {
	return &Dashboard{
		watchlists: w,
		alerts:     a,
		portfolio:  p,
		market:     m,
		logger:     logger.With().Str("component", "dashboard").Logger(),
		now:        time.Now,
	}
}

// WatchlistSection is the watchlist part of a snapshot.
type WatchlistSection struct {
	Watchlists []models.Watchlist
	Err        error
}

// AlertSection is the alerts part of a snapshot.
type AlertSection struct {
	Active    []models.PriceAlert
	Triggered []models.PriceAlert
	Err       error
}

// PortfolioSection is the holdings part of a snapshot.
type PortfolioSection struct {
	Holdings []models.Holding
	Totals   portfolio.Totals
	Err      error
}

// BreadthSection is the market breadth part of a snapshot.
type BreadthSection struct {
	Points  []models.BreadthPoint
	Summary market.BreadthSummary
	Err     error
}

// Snapshot is the dashboard at one point in time. A section whose refresh
// failed is empty and carries the error.
type Snapshot struct {
	TakenAt      time.Time
	MarketStatus utils.MarketStatus
	Watchlists   WatchlistSection
	Alerts       AlertSection
	Portfolio    PortfolioSection
	Breadth      BreadthSection
}

// Errs returns the section errors.
func (s Snapshot) Errs() []error {
	var errs []error
	for _, err := range []error{s.Watchlists.Err, s.Alerts.Err, s.Portfolio.Err, s.Breadth.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Snapshot refreshes all sections concurrently. Section failures never fail
// the snapshot; only a cancelled ctx does.
func (d *Dashboard) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := d.now()
	snap := &Snapshot{
		TakenAt:      now,
		MarketStatus: utils.MarketStatusAt(now),
	}

	g, gctx := errgroup.WithContext(ctx)

	if d.watchlists != nil {
		g.Go(func() error {
			if err := d.watchlists.Refresh(gctx); err != nil {
				snap.Watchlists.Err = err
				return nil
			}
			snap.Watchlists.Watchlists = d.watchlists.List()
			return nil
		})
	}

	if d.alerts != nil {
		g.Go(func() error {
			if err := d.alerts.Refresh(gctx); err != nil {
				snap.Alerts.Err = err
				return nil
			}
			snap.Alerts.Active = d.alerts.Active()
			snap.Alerts.Triggered = d.alerts.Triggered()
			return nil
		})
	}

	if d.portfolio != nil {
		g.Go(func() error {
			if err := d.portfolio.Refresh(gctx); err != nil {
				snap.Portfolio.Err = err
				return nil
			}
			book := d.portfolio.Book()
			snap.Portfolio.Holdings = book.Sorted(portfolio.SortValue, true)
			snap.Portfolio.Totals = book.Totals()
			return nil
		})
	}

	if d.market != nil {
		g.Go(func() error {
			points, err := d.market.Breadth(gctx, BreadthDays)
			if err != nil {
				snap.Breadth.Err = err
				return nil
			}
			snap.Breadth.Points = points
			snap.Breadth.Summary = market.Summarize(points)
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, err := range snap.Errs() {
		d.logger.Warn().Err(err).Msg("Dashboard section unavailable")
	}
	return snap, nil
}
