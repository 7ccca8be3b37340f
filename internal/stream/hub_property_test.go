package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"marketdash/internal/models"
)

var testSymbols = []string{"COMI", "SWDY", "ETEL", "HRHO", "TMGH"}

func newTestHub(cfg HubConfig) (*Hub, context.CancelFunc) {
	hub := NewHub(cfg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	hub.Start(ctx)
	return hub, func() {
		cancel()
		hub.Stop()
	}
}

// Property: all fast subscribers of a symbol receive every tick published
// for it.
func TestProperty_AllSubscribersReceiveTicks(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("all fast subscribers receive all ticks", prop.ForAll(
		func(subscriberCount, tickCount, symbolIdx int, basePrice float64) bool {
			symbol := testSymbols[symbolIdx]

			hub, stop := newTestHub(HubConfig{BufferSize: 1000, SubscriberBufferSize: 100})
			defer stop()

			var wg sync.WaitGroup
			received := make([]int64, subscriberCount)
			for i := 0; i < subscriberCount; i++ {
				ch := hub.Subscribe(symbol)
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()
					timeout := time.After(5 * time.Second)
					for {
						select {
						case _, ok := <-ch:
							if !ok {
								return
							}
							if atomic.AddInt64(&received[idx], 1) >= int64(tickCount) {
								return
							}
						case <-timeout:
							return
						}
					}
				}(i)
			}

			for i := 0; i < tickCount; i++ {
				hub.Publish(models.PriceTick{
					Symbol:    symbol,
					Price:     basePrice + float64(i)*0.05,
					Timestamp: time.Now(),
				})
			}

			wg.Wait()

			for i := range received {
				if atomic.LoadInt64(&received[i]) != int64(tickCount) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 20),
		gen.IntRange(0, len(testSymbols)-1),
		gen.Float64Range(1.0, 500.0),
	))

	properties.TestingRun(t)
}

// Property: a subscriber that never reads does not stop others from
// receiving ticks.
func TestProperty_SlowSubscribersDoNotBlockOthers(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	properties.Property("slow subscribers do not block fast ones", prop.ForAll(
		func(symbolIdx int, basePrice float64) bool {
			symbol := testSymbols[symbolIdx]

			hub, stop := newTestHub(HubConfig{BufferSize: 100, SubscriberBufferSize: 5})
			defer stop()

			fastCh := hub.Subscribe(symbol)
			_ = hub.Subscribe(symbol)

			var fastReceived int64
			done := make(chan struct{})
			go func() {
				defer close(done)
				timeout := time.After(2 * time.Second)
				for {
					select {
					case _, ok := <-fastCh:
						if !ok {
							return
						}
						if atomic.AddInt64(&fastReceived, 1) >= 5 {
							return
						}
					case <-timeout:
						return
					}
				}
			}()

			for i := 0; i < 20; i++ {
				hub.Publish(models.PriceTick{Symbol: symbol, Price: basePrice + float64(i)})
			}
			<-done

			return atomic.LoadInt64(&fastReceived) > 0
		},
		gen.IntRange(0, len(testSymbols)-1),
		gen.Float64Range(1.0, 500.0),
	))

	properties.TestingRun(t)
}

// Property: subscribers only receive ticks for their own symbol.
func TestProperty_SubscribersReceiveOnlyTheirSymbol(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	properties.Property("ticks are routed by symbol", prop.ForAll(
		func(subscribedIdx, publishedIdx int) bool {
			subscribed := testSymbols[subscribedIdx]
			published := testSymbols[publishedIdx]

			hub, stop := newTestHub(DefaultHubConfig())
			defer stop()

			ch := hub.Subscribe(subscribed)
			hub.Publish(models.PriceTick{Symbol: published, Price: 10})

			select {
			case tick := <-ch:
				return tick.Symbol == subscribed
			case <-time.After(200 * time.Millisecond):
				return subscribed != published
			}
		},
		gen.IntRange(0, len(testSymbols)-1),
		gen.IntRange(0, len(testSymbols)-1),
	))

	properties.TestingRun(t)
}

func TestConsumersFilterBySymbol(t *testing.T) {
	hub, stop := newTestHub(DefaultHubConfig())
	defer stop()

	got := make(chan models.PriceTick, 10)
	hub.RegisterConsumer(NewConsumerFunc([]string{"COMI"}, func(tick models.PriceTick) {
		got <- tick
	}))

	hub.Publish(models.PriceTick{Symbol: "SWDY", Price: 20})
	hub.Publish(models.PriceTick{Symbol: "COMI", Price: 84})

	select {
	case tick := <-got:
		if tick.Symbol != "COMI" || tick.Price != 84 {
			t.Errorf("consumer got %+v", tick)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not receive its tick")
	}

	select {
	case tick := <-got:
		t.Errorf("unexpected extra tick %+v", tick)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConsumerRegisteredBeforeStart(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), zerolog.Nop())
	got := make(chan models.PriceTick, 1)
	hub.RegisterConsumer(NewConsumerFunc(nil, func(tick models.PriceTick) { got <- tick }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	hub.Publish(models.PriceTick{Symbol: "ETEL", Price: 30})
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("consumer registered before Start did not run")
	}
}

func TestStopClosesSubscribersAndIsIdempotent(t *testing.T) {
	hub, stop := newTestHub(DefaultHubConfig())
	ch := hub.Subscribe("COMI")

	stop()
	hub.Stop()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after Stop")
	}
	if _, ok := <-hub.Subscribe("COMI"); ok {
		t.Error("subscribing to a stopped hub should return a closed channel")
	}
	hub.Publish(models.PriceTick{Symbol: "COMI", Price: 1})
}

func TestUnsubscribe(t *testing.T) {
	hub, stop := newTestHub(DefaultHubConfig())
	defer stop()

	a := hub.Subscribe("COMI")
	b := hub.Subscribe("COMI")
	hub.Unsubscribe("COMI", a)

	if _, ok := <-a; ok {
		t.Error("unsubscribed channel should be closed")
	}
	if n := hub.SubscriberCount("COMI"); n != 1 {
		t.Errorf("SubscriberCount = %d, want 1", n)
	}

	hub.Publish(models.PriceTick{Symbol: "COMI", Price: 84})
	select {
	case <-b:
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber got nothing")
	}
}

func TestWantedSymbols(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), zerolog.Nop())
	hub.Subscribe("SWDY")
	hub.RegisterConsumer(NewConsumerFunc([]string{"COMI", "SWDY"}, nil))

	got := hub.WantedSymbols()
	if len(got) != 2 || got[0] != "COMI" || got[1] != "SWDY" {
		t.Errorf("WantedSymbols = %v", got)
	}
	if m := hub.Metrics(); m.Subscribers != 1 || m.Consumers != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

type staticSource struct {
	ticks []models.PriceTick
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) Run(ctx context.Context, publish func(models.PriceTick)) error {
	for _, t := range s.ticks {
		publish(t)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunFeedsHubFromSource(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), zerolog.Nop())
	ch := hub.Subscribe("HRHO")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- hub.Run(ctx, staticSource{ticks: []models.PriceTick{{Symbol: "HRHO", Price: 17.5}}})
	}()

	select {
	case tick := <-ch:
		if tick.Price != 17.5 || tick.Timestamp.IsZero() {
			t.Errorf("tick = %+v", tick)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick from source")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run after cancel = %v, want nil", err)
	}
}
