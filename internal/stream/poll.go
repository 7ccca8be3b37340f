package stream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"marketdash/internal/models"
	"marketdash/internal/resilience"
	"marketdash/pkg/utils"
)

// Quoter fetches the latest quotes.
type Quoter interface {
	GetQuotes(ctx context.Context, symbols []string) ([]models.Quote, error)
}

// PollConfig holds poll source settings.
type PollConfig struct {
	Interval time.Duration
	// ClosedInterval is used while the exchange is closed.
	ClosedInterval time.Duration
	Symbols        func() []string
	Breaker        resilience.CircuitBreakerConfig
}

// PollSource polls the quotes endpoint and publishes prices that changed
// since the previous poll.
type PollSource struct {
	config  PollConfig
	quoter  Quoter
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
	now     func() time.Time

	last map[string]float64
}

// NewPollSource creates a new PollSource.
func NewPollSource(quoter Quoter, config PollConfig, logger zerolog.Logger) *PollSource {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Second
	}
	if config.ClosedInterval < config.Interval {
		config.ClosedInterval = 4 * config.Interval
	}
	if config.Breaker.FailureThreshold == 0 {
		config.Breaker = resilience.DefaultCircuitBreakerConfig()
	}

	logger = logger.With().Str("source", "poll").Logger()
	config.Breaker.OnStateChange = func(name string, from, to resilience.CircuitState) {
		logger.Warn().Str("breaker", name).Str("from", string(from)).Str("to", string(to)).Msg("Quote circuit changed state")
	}

	return &PollSource{
		config:  config,
		quoter:  quoter,
		breaker: resilience.NewCircuitBreaker("quotes", config.Breaker),
		logger:  logger,
		now:     time.Now,
		last:    make(map[string]float64),
	}
}

// Name implements Source.
func (p *PollSource) Name() string { return "poll" }

// Run implements Source.
func (p *PollSource) Run(ctx context.Context, publish func(models.PriceTick)) error {
	for {
		p.Poll(ctx, publish)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.nextInterval()):
		}
	}
}

func (p *PollSource) nextInterval() time.Duration {
	if utils.MarketStatusAt(p.now()) != utils.MarketOpen {
		return p.config.ClosedInterval
	}
	return p.config.Interval
}

// Poll fetches quotes once and publishes the changed prices. It returns
// the number of ticks published.
func (p *PollSource) Poll(ctx context.Context, publish func(models.PriceTick)) int {
	var symbols []string
	if p.config.Symbols != nil {
		symbols = p.config.Symbols()
	}
	if len(symbols) == 0 {
		return 0
	}

	quotes, err := resilience.Execute(p.breaker, func() ([]models.Quote, error) {
		return p.quoter.GetQuotes(ctx, symbols)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			p.logger.Debug().Msg("Quote circuit open, skipping poll")
		} else if ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("Quote poll failed")
		}
		return 0
	}

	n := 0
	for _, q := range quotes {
		if q.Price <= 0 || p.last[q.Symbol] == q.Price {
			continue
		}
		p.last[q.Symbol] = q.Price

		ts := q.UpdatedAt
		if ts.IsZero() {
			ts = p.now()
		}
		publish(models.PriceTick{Symbol: q.Symbol, Price: q.Price, Timestamp: ts})
		n++
	}
	return n
}

// BreakerStats returns the quote circuit breaker statistics.
func (p *PollSource) BreakerStats() resilience.CircuitBreakerStats {
	return p.breaker.Stats()
}
