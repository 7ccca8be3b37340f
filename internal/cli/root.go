// Package cli provides the command-line interface for the dashboard client.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"marketdash/internal/alerts"
	"marketdash/internal/api"
	"marketdash/internal/chat"
	"marketdash/internal/config"
	"marketdash/internal/logging"
	"marketdash/internal/market"
	"marketdash/internal/portfolio"
	"marketdash/internal/store"
	"marketdash/internal/watchlist"
)

// BuildDate is set at link time.
var BuildDate = "unknown"

// App holds the application dependencies. Config, Client and Store are
// created on first use unless already set.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Client *api.Client
	Store  store.LocalStore

	configDir string
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "marketdash",
		Short: "Terminal client for the EGX market dashboard",
		Long: `marketdash is a terminal client for the market dashboard backend.

It keeps watchlists, price alerts and holdings in sync with the backend,
streams live prices and talks to the AI market analyst.

Use 'marketdash <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			app.configDir, _ = cmd.Flags().GetString("config")
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/marketdash)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newChatCmd(app))
	rootCmd.AddCommand(newWatchlistCmd(app))
	rootCmd.AddCommand(newAlertCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newMarketCmd(app))
	rootCmd.AddCommand(newStreamCmd(app))
	rootCmd.AddCommand(newDashboardCmd(app))

	return rootCmd
}

// loadConfig loads the configuration on first use.
func (a *App) loadConfig() (*config.Config, error) {
	if a.Config != nil {
		return a.Config, nil
	}
	cfg, err := config.Load(a.configDir)
	if err != nil {
		return nil, err
	}
	a.Config = cfg
	return cfg, nil
}

// client returns the backend client, creating it on first use.
func (a *App) client() (*api.Client, error) {
	if a.Client != nil {
		return a.Client, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	c, err := api.NewClient(api.Config{
		BaseURL:       cfg.Backend.BaseURL,
		Token:         cfg.Credentials.Token,
		Timeout:       cfg.Backend.Timeout,
		UserAgent:     cfg.Backend.UserAgent,
		WarmupRetries: cfg.Backend.WarmupRetries,
		WarmupDelay:   cfg.Backend.WarmupDelay,
		RateLimit:     cfg.Backend.RateLimit,
		RateBurst:     cfg.Backend.RateBurst,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("base_url", cfg.Backend.BaseURL).Str("token", logging.MaskToken(cfg.Credentials.Token)).Msg("Backend client initialized")
	a.Client = c
	return c, nil
}

// localStore returns the local store, opening it on first use.
func (a *App) localStore() (store.LocalStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", cfg.Storage.Path).Msg("Local store opened")
	a.Store = s
	return s, nil
}

// optionalStore returns the local store or nil when it cannot be opened.
// Sync markers are a nicety; commands work without them.
func (a *App) optionalStore() store.LocalStore {
	s, err := a.localStore()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Local store unavailable")
		return nil
	}
	return s
}

// Close releases the local store.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

func (a *App) chatManager() (*chat.Manager, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	s, err := a.localStore()
	if err != nil {
		return nil, fmt.Errorf("chat needs local storage: %w", err)
	}
	return chat.NewManager(c, s, cfg.Chat, a.Logger), nil
}

func (a *App) watchlists() (*watchlist.Store, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return watchlist.NewStore(c, a.optionalStore(), a.Logger), nil
}

func (a *App) alertStore() (*alerts.Store, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return alerts.NewStore(c, a.optionalStore(), a.Logger), nil
}

func (a *App) portfolio() (*portfolio.Service, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return portfolio.NewService(c, a.optionalStore(), a.Logger), nil
}

func (a *App) market() (*market.Service, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return market.NewService(c, a.Logger), nil
}

// signalContext returns a context cancelled on interrupt.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// requestTimeout bounds one-shot commands, warm-up retries included.
const requestTimeout = 2 * time.Minute

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(commandContext(cmd), requestTimeout)
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    config.Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("marketdash v%s\n", config.Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}
			output := NewOutput(cmd, app)
			if output.IsJSON() {
				return output.JSON(redacted(cfg))
			}
			showConfig(output, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := app.configDir
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			output := NewOutput(cmd, app)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": dir})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			cfg, err := app.loadConfig()
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func redacted(cfg *config.Config) config.Config {
	c := *cfg
	c.Credentials.Token = logging.MaskToken(c.Credentials.Token)
	return c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Backend")
	output.Printf("  Base URL:        %s\n", cfg.Backend.BaseURL)
	output.Printf("  Timeout:         %s\n", cfg.Backend.Timeout)
	output.Printf("  Warm-up retries: %d (every %s)\n", cfg.Backend.WarmupRetries, cfg.Backend.WarmupDelay)
	if cfg.Backend.RateLimit > 0 {
		output.Printf("  Rate limit:      %g req/s (burst %d)\n", cfg.Backend.RateLimit, cfg.Backend.RateBurst)
	}
	output.Printf("  Token:           %s\n", logging.MaskToken(cfg.Credentials.Token))
	output.Println()

	output.Bold("Chat")
	output.Printf("  Language:        %s\n", cfg.Chat.Language)
	output.Printf("  History limit:   %d\n", cfg.Chat.HistoryLimit)
	output.Println()

	output.Bold("Stream")
	output.Printf("  Mode:            %s\n", cfg.Stream.Mode)
	if cfg.Stream.URL != "" {
		output.Printf("  URL:             %s\n", cfg.Stream.URL)
	}
	output.Printf("  Poll interval:   %s\n", cfg.Stream.PollInterval)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Path:            %s\n", cfg.Storage.Path)
	output.Println()

	output.Bold("UI")
	output.Printf("  Currency:        %s\n", cfg.UI.Currency)
	output.Printf("  Colour:          %v\n", cfg.UI.ColorEnabled)
}
