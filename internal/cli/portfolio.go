package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"marketdash/internal/models"
	"marketdash/internal/portfolio"
	"marketdash/pkg/utils"
)

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portfolio",
		Aliases: []string{"pf"},
		Short:   "Holdings and P&L",
		Long:    "Show holdings with live P&L, add or remove holdings and export them to CSV.",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show holdings",
		Example: `  marketdash portfolio show
  marketdash portfolio show --sort gain_pct --desc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			sortBy, _ := cmd.Flags().GetString("sort")
			key, err := portfolio.ParseSortKey(sortBy)
			if err != nil {
				return err
			}
			desc, _ := cmd.Flags().GetBool("desc")

			svc, err := app.portfolio()
			if err != nil {
				return err
			}
			if err := svc.Refresh(ctx); err != nil {
				output.Toast(err)
				return err
			}

			book := svc.Book()
			holdings := book.Sorted(key, desc)
			totals := book.Totals()

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"holdings": holdings,
					"totals":   totals,
				})
			}
			if len(holdings) == 0 {
				output.Empty("holdings")
				return nil
			}
			renderHoldings(output, holdings)
			output.Println()
			renderTotals(output, totals)
			return nil
		},
	}
	showCmd.Flags().StringP("sort", "s", "symbol", "sort by symbol, value, gain, gain_pct or quantity")
	showCmd.Flags().Bool("desc", false, "sort descending")
	cmd.AddCommand(showCmd)

	cmd.AddCommand(&cobra.Command{
		Use:     "add <symbol> <quantity> <average_price>",
		Short:   "Add a holding",
		Example: `  marketdash portfolio add COMI 100 72.5`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			qty, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			avg, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid average price %q", args[2])
			}

			svc, err := app.portfolio()
			if err != nil {
				return err
			}
			h, err := svc.AddHolding(ctx, args[0], qty, avg)
			if err != nil {
				output.Toast(err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(h)
			}
			output.Success("✓ Added %s %s @ %s", utils.FormatQuantity(qty), h.Symbol, output.Money(avg))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a holding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			svc, err := app.portfolio()
			if err != nil {
				return err
			}
			if err := svc.RemoveHolding(ctx, args[0]); err != nil {
				output.Toast(err)
				return err
			}
			output.Success("✓ Removed holding %s", args[0])
			return nil
		},
	})

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export holdings to CSV",
		Example: `  marketdash portfolio export > holdings.csv
  marketdash portfolio export --out holdings.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			svc, err := app.portfolio()
			if err != nil {
				return err
			}
			if err := svc.Refresh(ctx); err != nil {
				output.Toast(err)
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			path, _ := cmd.Flags().GetString("out")
			if path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			book := svc.Book()
			if err := book.ExportCSV(w); err != nil {
				return err
			}
			if path != "" {
				output.Success("✓ Exported %d holdings to %s", book.Len(), path)
			}
			return nil
		},
	}
	exportCmd.Flags().StringP("out", "o", "", "write to file instead of stdout")
	cmd.AddCommand(exportCmd)

	return cmd
}

func renderHoldings(output *Output, holdings []models.Holding) {
	table := NewTable(output, "ID", "Symbol", "Qty", "Avg", "Last", "Value", "P&L", "P&L %")
	for _, h := range holdings {
		table.AddRow(
			output.DimText(h.ID),
			h.Symbol,
			utils.FormatQuantity(h.Quantity),
			utils.FormatMoney(h.AveragePrice, ""),
			utils.FormatMoney(h.CurrentPrice, ""),
			utils.FormatMoney(h.CurrentValue, ""),
			output.PnL(h.PnLValue),
			output.Percent(h.PnLPercent),
		)
	}
	table.Render()
}

func renderTotals(output *Output, t portfolio.Totals) {
	output.Printf("  Invested:   %s\n", output.Money(t.TotalCost))
	output.Printf("  Value:      %s\n", output.Money(t.TotalValue))
	output.Printf("  Unrealized: %s (%s)\n", output.PnL(t.UnrealizedGain), output.Percent(t.UnrealizedPercent))
	if t.RealizedGain != 0 {
		output.Printf("  Realized:   %s\n", output.PnL(t.RealizedGain))
	}
}
