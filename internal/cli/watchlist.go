package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperrors "marketdash/internal/errors"
	"marketdash/internal/models"
	"marketdash/internal/watchlist"
)

func newWatchlistCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watchlist",
		Aliases: []string{"wl"},
		Short:   "Watchlist management",
		Long:    "Create, delete and list watchlists and the symbols they hold.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list [watchlist]",
		Short: "List watchlists",
		Long:  "Display all watchlists, or the symbols of one watchlist given by name or id.",
		Example: `  marketdash watchlist list
  marketdash watchlist list Banks`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			wl, err := app.watchlists()
			if err != nil {
				return err
			}
			if err := wl.Refresh(ctx); err != nil {
				output.Toast(err)
				return err
			}

			if len(args) > 0 {
				w, err := resolveWatchlist(wl, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(w)
				}
				printWatchlist(output, w)
				return nil
			}

			lists := wl.List()
			if output.IsJSON() {
				return output.JSON(lists)
			}
			if len(lists) == 0 {
				output.Empty("watchlists")
				return nil
			}

			table := NewTable(output, "Name", "ID", "Symbols")
			for _, w := range lists {
				table.AddRow(w.Name, output.DimText(w.ID), strings.Join(w.Symbols(), " "))
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a new watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			wl, err := app.watchlists()
			if err != nil {
				return err
			}
			created, err := wl.CreateWatchlist(ctx, args[0])
			if err != nil {
				output.Toast(err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(created)
			}
			output.Success("✓ Created watchlist '%s'", created.Name)
			output.Dim("Use 'marketdash watchlist add %s <symbol>' to add symbols", created.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <watchlist>",
		Short: "Delete a watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			wl, w, err := loadWatchlist(cmd, app, args[0])
			if err != nil {
				return err
			}
			if err := wl.DeleteWatchlist(ctx, w.ID); err != nil {
				output.Toast(err)
				return err
			}
			output.Success("✓ Deleted watchlist '%s'", w.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "add <watchlist> <symbol...>",
		Short:   "Add symbols to a watchlist",
		Example: `  marketdash watchlist add Banks COMI CIEB`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			wl, w, err := loadWatchlist(cmd, app, args[0])
			if err != nil {
				return err
			}
			for _, symbol := range args[1:] {
				if err := wl.AddItem(ctx, w.ID, symbol); err != nil {
					output.Toast(err)
					return err
				}
				output.Success("✓ Added %s to '%s'", strings.ToUpper(symbol), w.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <watchlist> <symbol>",
		Short: "Remove a symbol from a watchlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			wl, w, err := loadWatchlist(cmd, app, args[0])
			if err != nil {
				return err
			}
			if err := wl.RemoveItem(ctx, w.ID, args[1]); err != nil {
				output.Toast(err)
				return err
			}
			output.Success("✓ Removed %s from '%s'", strings.ToUpper(args[1]), w.Name)
			return nil
		},
	})

	return cmd
}

// loadWatchlist refreshes the store and resolves ref by id or name.
func loadWatchlist(cmd *cobra.Command, app *App, ref string) (*watchlist.Store, models.Watchlist, error) {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	wl, err := app.watchlists()
	if err != nil {
		return nil, models.Watchlist{}, err
	}
	if err := wl.Refresh(ctx); err != nil {
		NewOutput(cmd, app).Toast(err)
		return nil, models.Watchlist{}, err
	}
	w, err := resolveWatchlist(wl, ref)
	return wl, w, err
}

func resolveWatchlist(wl *watchlist.Store, ref string) (models.Watchlist, error) {
	if w, ok := wl.Get(ref); ok {
		return w, nil
	}
	if w, ok := wl.FindByName(ref); ok {
		return w, nil
	}
	return models.Watchlist{}, fmt.Errorf("%w: watchlist %q", apperrors.ErrNotFound, ref)
}

func printWatchlist(output *Output, w models.Watchlist) {
	symbols := w.Symbols()
	output.Bold("Watchlist: %s", w.Name)
	output.Printf("  %d symbols\n\n", len(symbols))
	for _, s := range symbols {
		output.Printf("  • %s\n", s)
	}
}
