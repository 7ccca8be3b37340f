// Package stream distributes live price ticks to subscribers and consumers.
package stream

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"marketdash/internal/models"
)

// Source produces price ticks until ctx is done.
type Source interface {
	Run(ctx context.Context, publish func(models.PriceTick)) error
	Name() string
}

// Consumer processes ticks.
type Consumer interface {
	// OnTick is called for every tick of a symbol the consumer wants.
	OnTick(tick models.PriceTick)
	// Symbols returns the symbols this consumer is interested in.
	// Return nil or empty slice to receive all ticks.
	Symbols() []string
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal tick channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// ConsumerBufferSize is the size of each consumer's queue.
	ConsumerBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           256,
		SubscriberBufferSize: 64,
		ConsumerBufferSize:   64,
	}
}

// ErrHubStopped is returned when running a source on a stopped hub.
var ErrHubStopped = errors.New("stream hub stopped")

// Hub fans out ticks from a single source to per-symbol subscriber
// channels and to registered consumers. Sends never block: a full
// subscriber or consumer drops the tick and the drop is counted.
type Hub struct {
	config HubConfig
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	consumers   []*consumerQueue
	started     bool
	stopped     bool

	tickChan chan models.PriceTick
	done     chan struct{}
	stopOnce sync.Once

	ticksReceived  atomic.Uint64
	ticksBroadcast atomic.Uint64
	ticksDropped   atomic.Uint64
}

type subscriber struct {
	ch      chan models.PriceTick
	dropped atomic.Uint64
}

type consumerQueue struct {
	consumer Consumer
	ch       chan models.PriceTick
	dropped  atomic.Uint64
}

// NewHub creates a new hub.
func NewHub(config HubConfig, logger zerolog.Logger) *Hub {
	def := DefaultHubConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = def.SubscriberBufferSize
	}
	if config.ConsumerBufferSize <= 0 {
		config.ConsumerBufferSize = def.ConsumerBufferSize
	}
	return &Hub{
		config:      config,
		logger:      logger.With().Str("component", "stream").Logger(),
		subscribers: make(map[string][]*subscriber),
		tickChan:    make(chan models.PriceTick, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the distribution loop. It is a no-op if already started.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started || h.stopped {
		h.mu.Unlock()
		return
	}
	h.started = true
	for _, q := range h.consumers {
		go h.runConsumer(q)
	}
	h.mu.Unlock()

	go h.broadcastLoop(ctx)
}

// Run starts the hub and feeds it from src until ctx is done or the source
// gives up.
func (h *Hub) Run(ctx context.Context, src Source) error {
	if h.isStopped() {
		return ErrHubStopped
	}
	h.Start(ctx)
	h.logger.Info().Str("source", src.Name()).Msg("Price stream started")

	err := src.Run(ctx, h.Publish)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Error().Err(err).Str("source", src.Name()).Msg("Price stream stopped")
		return err
	}
	h.logger.Info().Str("source", src.Name()).Msg("Price stream stopped")
	return nil
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.done:
			return
		case tick := <-h.tickChan:
			h.ticksReceived.Add(1)
			h.broadcast(tick)
		}
	}
}

// Stop stops the hub and closes all subscriber channels. Safe to call more
// than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.stopped = true
		h.started = false
		close(h.done)

		for symbol, subs := range h.subscribers {
			for _, sub := range subs {
				close(sub.ch)
			}
			delete(h.subscribers, symbol)
		}
	})
}

func (h *Hub) isStopped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stopped
}

// Subscribe returns a channel receiving ticks for symbol. The channel is
// closed by Unsubscribe or Stop.
func (h *Hub) Subscribe(symbol string) <-chan models.PriceTick {
	sub := &subscriber{ch: make(chan models.PriceTick, h.config.SubscriberBufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		close(sub.ch)
		return sub.ch
	}
	h.subscribers[symbol] = append(h.subscribers[symbol], sub)
	return sub.ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(symbol string, ch <-chan models.PriceTick) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[symbol]
	for i, sub := range subs {
		if sub.ch == ch {
			close(sub.ch)
			h.subscribers[symbol] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[symbol]) == 0 {
		delete(h.subscribers, symbol)
	}
}

// RegisterConsumer adds a consumer. Each consumer is fed from its own
// queue by its own goroutine, so a slow consumer only drops its own ticks.
func (h *Hub) RegisterConsumer(c Consumer) {
	q := &consumerQueue{consumer: c, ch: make(chan models.PriceTick, h.config.ConsumerBufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.consumers = append(h.consumers, q)
	if h.started {
		go h.runConsumer(q)
	}
}

func (h *Hub) runConsumer(q *consumerQueue) {
	for {
		select {
		case <-h.done:
			return
		case tick := <-q.ch:
			q.consumer.OnTick(tick)
		}
	}
}

// Publish queues a tick for distribution. If the hub buffer is full the
// tick is dropped.
func (h *Hub) Publish(tick models.PriceTick) {
	if tick.Timestamp.IsZero() {
		tick.Timestamp = time.Now()
	}
	select {
	case h.tickChan <- tick:
	default:
		h.ticksDropped.Add(1)
	}
}

// broadcast holds the read lock while sending so Stop cannot close a
// channel mid-send.
func (h *Hub) broadcast(tick models.PriceTick) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers[tick.Symbol] {
		select {
		case sub.ch <- tick:
			h.ticksBroadcast.Add(1)
		default:
			if sub.dropped.Add(1) == 1 {
				h.logger.Debug().Str("symbol", tick.Symbol).Msg("Slow subscriber, dropping ticks")
			}
			h.ticksDropped.Add(1)
		}
	}

	for _, q := range h.consumers {
		symbols := q.consumer.Symbols()
		if len(symbols) > 0 && !containsSymbol(symbols, tick.Symbol) {
			continue
		}
		select {
		case q.ch <- tick:
			h.ticksBroadcast.Add(1)
		default:
			q.dropped.Add(1)
			h.ticksDropped.Add(1)
		}
	}
}

// WantedSymbols returns the sorted union of subscribed symbols and the
// symbols of registered consumers.
func (h *Hub) WantedSymbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	for symbol := range h.subscribers {
		seen[symbol] = true
	}
	for _, q := range h.consumers {
		for _, s := range q.consumer.Symbols() {
			seen[s] = true
		}
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// SubscriberCount returns the number of subscribers for a symbol.
func (h *Hub) SubscriberCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[symbol])
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	TicksReceived  uint64
	TicksBroadcast uint64
	TicksDropped   uint64
	Subscribers    int
	Consumers      int
}

// Metrics returns hub metrics.
func (h *Hub) Metrics() HubMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := 0
	for _, s := range h.subscribers {
		subs += len(s)
	}
	return HubMetrics{
		TicksReceived:  h.ticksReceived.Load(),
		TicksBroadcast: h.ticksBroadcast.Load(),
		TicksDropped:   h.ticksDropped.Load(),
		Subscribers:    subs,
		Consumers:      len(h.consumers),
	}
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc struct {
	symbols  []string
	onTickFn func(models.PriceTick)
}

// NewConsumerFunc creates a new ConsumerFunc.
func NewConsumerFunc(symbols []string, onTick func(models.PriceTick)) *ConsumerFunc {
	return &ConsumerFunc{symbols: symbols, onTickFn: onTick}
}

// OnTick implements Consumer.
func (c *ConsumerFunc) OnTick(tick models.PriceTick) {
	if c.onTickFn != nil {
		c.onTickFn(tick)
	}
}

// Symbols implements Consumer.
func (c *ConsumerFunc) Symbols() []string {
	return c.symbols
}
