package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketdash/internal/logging"
	"marketdash/internal/models"
	"marketdash/internal/notify"
)

// DefaultRefreshDelay is how long the Watcher waits after a local crossing
// before pulling alert state from the backend.
const DefaultRefreshDelay = 2 * time.Second

// Watcher checks live ticks against active alerts. A local crossing is
// only a hint: it is reported once and followed by a debounced refresh so
// the backend's trigger state is pulled. The Watcher never marks an alert
// triggered itself.
//
// Watcher implements stream.Consumer. Start runs the refresh loop.
type Watcher struct {
	store    *Store
	notifier notify.Notifier
	delay    time.Duration
	currency string
	logger   zerolog.Logger

	kick     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	notified map[string]bool
	refreshN int
}

// NewWatcher creates a Watcher. notifier may be nil.
func NewWatcher(s *Store, notifier notify.Notifier, delay time.Duration, currency string, logger zerolog.Logger) *Watcher {
	if delay <= 0 {
		delay = DefaultRefreshDelay
	}
	return &Watcher{
		store:    s,
		notifier: notifier,
		delay:    delay,
		currency: currency,
		logger:   logger.With().Str("component", "alert_watcher").Logger(),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		notified: make(map[string]bool),
	}
}

// Start runs the debounced refresh loop until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop ends the refresh loop and drops any pending refresh.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// loop coalesces crossings within the delay into one refresh.
func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.kick:
			if timer == nil {
				timer = time.NewTimer(w.delay)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			w.refresh(ctx)
		}
	}
}

// Symbols returns the symbols that have active alerts.
func (w *Watcher) Symbols() []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, a := range w.store.Active() {
		if !seen[a.Symbol] {
			seen[a.Symbol] = true
			symbols = append(symbols, a.Symbol)
		}
	}
	return symbols
}

// OnTick checks tick against the active alerts on its symbol.
func (w *Watcher) OnTick(tick models.PriceTick) {
	crossed := false
	for _, a := range w.store.ActiveFor(tick.Symbol) {
		if !a.Crosses(tick.Price) || !w.markNotified(a.ID) {
			continue
		}
		crossed = true

		logging.LogAlert(w.logger, a.ID, a.Symbol, string(a.Condition), a.TargetPrice, tick.Price)
		if w.notifier != nil {
			w.notifier.Notify(notify.Notification{
				Kind:         notify.KindAlert,
				Symbol:       a.Symbol,
				Message:      fmt.Sprintf("%s crossed %s %.2f", a.Symbol, strings.ToLower(string(a.Condition)), a.TargetPrice),
				CurrentPrice: tick.Price,
				TriggerPrice: a.TargetPrice,
				Currency:     w.currency,
				Timestamp:    tick.Timestamp,
				Priority:     1,
			})
		}
	}

	if crossed {
		w.scheduleRefresh()
	}
}

func (w *Watcher) markNotified(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.notified[id] {
		return false
	}
	w.notified[id] = true
	return true
}

func (w *Watcher) scheduleRefresh() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.refreshN++
		w.mu.Unlock()
	}()

	if err := w.store.Refresh(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("Alert refresh after crossing failed")
		return
	}

	// Forget alerts that are gone or now triggered on the backend.
	active := make(map[string]bool)
	for _, a := range w.store.Active() {
		active[a.ID] = true
	}
	w.mu.Lock()
	for id := range w.notified {
		if !active[id] {
			delete(w.notified, id)
		}
	}
	w.mu.Unlock()
}

// Refreshes returns how many debounced refreshes have run.
func (w *Watcher) Refreshes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refreshN
}
