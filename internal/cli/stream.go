package cli

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"marketdash/internal/config"
	"marketdash/internal/models"
	"marketdash/internal/security"
	"marketdash/internal/stream"
	"marketdash/pkg/utils"
)

func (a *App) hubConfig() stream.HubConfig {
	cfg := stream.DefaultHubConfig()
	if a.Config != nil && a.Config.Stream.BufferSize > 0 {
		cfg.BufferSize = a.Config.Stream.BufferSize
	}
	return cfg
}

// priceSource builds the configured live price source.
func (a *App) priceSource(symbols func() []string) (stream.Source, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	switch cfg.Stream.Mode {
	case config.StreamWebSocket:
		return stream.NewWebSocketSource(stream.WebSocketConfig{
			URL:     cfg.Stream.URL,
			Token:   cfg.Credentials.Token,
			Symbols: symbols,
		}, a.Logger), nil
	case config.StreamPoll, "":
		c, err := a.client()
		if err != nil {
			return nil, err
		}
		return stream.NewPollSource(c, stream.PollConfig{
			Interval: cfg.Stream.PollInterval,
			Symbols:  symbols,
		}, a.Logger), nil
	}
	return nil, fmt.Errorf("live prices are disabled (stream.mode = %q)", cfg.Stream.Mode)
}

func newStreamCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stream [symbol...]",
		Short: "Stream live prices",
		Long: `Stream live prices for the given symbols.

Without arguments, streams every symbol in your watchlists and holdings.`,
		Example: `  marketdash stream
  marketdash stream COMI SWDY`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := signalContext(cmd)
			defer cancel()

			symbols, err := streamSymbols(cmd, app, args)
			if err != nil {
				return err
			}
			if len(symbols) == 0 {
				output.Empty("symbols to stream")
				return nil
			}

			hub := stream.NewHub(app.hubConfig(), app.Logger)
			printer := newTickPrinter(output)
			hub.RegisterConsumer(stream.NewConsumerFunc(symbols, printer.OnTick))

			src, err := app.priceSource(hub.WantedSymbols)
			if err != nil {
				return err
			}

			if !output.IsJSON() {
				output.Bold("Streaming %d symbols via %s (Ctrl-C to stop)", len(symbols), src.Name())
			}
			if err := hub.Run(ctx, src); err != nil {
				return err
			}

			m := hub.Metrics()
			app.Logger.Debug().
				Uint64("received", m.TicksReceived).
				Uint64("broadcast", m.TicksBroadcast).
				Uint64("dropped", m.TicksDropped).
				Msg("Stream stopped")
			if !output.IsJSON() {
				output.Dim("%d ticks received, %d dropped", m.TicksReceived, m.TicksDropped)
			}
			return nil
		},
	}
}

// streamSymbols validates args, or collects watchlist and holding symbols.
func streamSymbols(cmd *cobra.Command, app *App, args []string) ([]string, error) {
	seen := make(map[string]bool)
	var symbols []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}

	if len(args) > 0 {
		for _, arg := range args {
			s, err := security.ValidateSymbol(arg)
			if err != nil {
				return nil, err
			}
			add(s)
		}
		return symbols, nil
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	wl, err := app.watchlists()
	if err != nil {
		return nil, err
	}
	if err := wl.Refresh(ctx); err != nil {
		app.Logger.Warn().Err(err).Msg("Could not load watchlists")
	}
	for _, s := range wl.Symbols() {
		add(s)
	}

	p, err := app.portfolio()
	if err != nil {
		return nil, err
	}
	if err := p.Refresh(ctx); err != nil {
		app.Logger.Warn().Err(err).Msg("Could not load holdings")
	}
	for _, s := range p.Symbols() {
		add(s)
	}

	sort.Strings(symbols)
	return symbols, nil
}

// tickPrinter prints ticks with the change from the previous tick.
type tickPrinter struct {
	output *Output

	mu   sync.Mutex
	last map[string]float64
}

func newTickPrinter(output *Output) *tickPrinter {
	return &tickPrinter{output: output, last: make(map[string]float64)}
}

func (p *tickPrinter) OnTick(tick models.PriceTick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.output.IsJSON() {
		p.output.JSON(tick)
		return
	}

	change := ""
	if prev, ok := p.last[tick.Symbol]; ok && prev > 0 {
		pct := (tick.Price - prev) / prev * 100
		arrow := "▲"
		if pct < 0 {
			arrow = "▼"
		}
		change = p.output.Percent(pct)
		if pct != 0 {
			change = arrow + " " + change
		}
	}
	p.last[tick.Symbol] = tick.Price

	p.output.Printf("%s  %-8s %12s  %s\n",
		p.output.DimText(tick.Timestamp.In(utils.CairoLocation).Format("15:04:05")),
		tick.Symbol,
		utils.FormatMoney(tick.Price, ""),
		change)
}
