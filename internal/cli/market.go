package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"marketdash/internal/market"
	"marketdash/internal/models"
	"marketdash/pkg/utils"
)

func newMarketCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Market screener and breadth",
	}

	screenerCmd := &cobra.Command{
		Use:   "screener",
		Short: "Screen stocks",
		Example: `  marketdash market screener --sector Banks --sort change_percent --order desc
  marketdash market screener --min-price 10 --max-price 50 --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			f := models.ScreenerFilter{}
			f.MinPrice, _ = cmd.Flags().GetFloat64("min-price")
			f.MaxPrice, _ = cmd.Flags().GetFloat64("max-price")
			f.Sector, _ = cmd.Flags().GetString("sector")
			f.SortBy, _ = cmd.Flags().GetString("sort")
			f.Order, _ = cmd.Flags().GetString("order")
			f.Limit, _ = cmd.Flags().GetInt("limit")
			f.Skip, _ = cmd.Flags().GetInt("skip")

			svc, err := app.market()
			if err != nil {
				return err
			}
			rows, err := svc.Screener(ctx, f)
			if err != nil {
				output.Toast(err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Empty("stocks")
				return nil
			}

			table := NewTable(output, "Symbol", "Name", "Sector", "Price", "Change", "Volume", "Mkt Cap")
			for _, r := range rows {
				table.AddRow(
					r.Symbol,
					utils.Truncate(r.Name, 28),
					r.Sector,
					utils.FormatMoney(r.Price, ""),
					output.Percent(r.ChangePercent),
					utils.FormatCompact(float64(r.Volume)),
					utils.FormatCompact(r.MarketCap),
				)
			}
			table.Render()
			return nil
		},
	}
	screenerCmd.Flags().Float64("min-price", 0, "minimum price")
	screenerCmd.Flags().Float64("max-price", 0, "maximum price")
	screenerCmd.Flags().String("sector", "", "sector name")
	screenerCmd.Flags().String("sort", "", "sort by symbol, price, change_percent, volume or market_cap")
	screenerCmd.Flags().String("order", "", "asc or desc")
	screenerCmd.Flags().Int("limit", 25, "maximum rows")
	screenerCmd.Flags().Int("skip", 0, "rows to skip")
	cmd.AddCommand(screenerCmd)

	breadthCmd := &cobra.Command{
		Use:   "breadth",
		Short: "Show advancers and decliners",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			days, _ := cmd.Flags().GetInt("days")

			svc, err := app.market()
			if err != nil {
				return err
			}
			points, err := svc.Breadth(ctx, days)
			if err != nil {
				output.Toast(err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(points)
			}
			if len(points) == 0 {
				output.Empty("breadth data")
				return nil
			}
			renderBreadth(output, points, app.dateFormat())
			return nil
		},
	}
	breadthCmd.Flags().Int("days", 10, "days of history")
	cmd.AddCommand(breadthCmd)

	return cmd
}

func (a *App) dateFormat() string {
	if a.Config != nil && a.Config.UI.DateFormat != "" {
		return a.Config.UI.DateFormat
	}
	return "02 Jan 2006"
}

func renderBreadth(output *Output, points []models.BreadthPoint, layout string) {
	table := NewTable(output, "Date", "Adv", "Dec", "Unch", "A/D")
	for _, p := range points {
		ratio := fmt.Sprintf("%.2f", p.AdvanceDeclineRatio())
		if p.Advancers > p.Decliners {
			ratio = output.Green(ratio)
		} else if p.Decliners > p.Advancers {
			ratio = output.Red(ratio)
		}
		table.AddRow(utils.FormatDate(p.Date, layout), strconv.Itoa(p.Advancers), strconv.Itoa(p.Decliners), strconv.Itoa(p.Unchanged), ratio)
	}
	table.Render()

	sum := market.Summarize(points)
	output.Println()
	output.Printf("  %d up days, %d down days, net advance %+d\n", sum.UpDays, sum.DownDays, sum.NetAdvance)
}
