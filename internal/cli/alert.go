package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"marketdash/internal/alerts"
	"marketdash/internal/models"
	"marketdash/internal/notify"
	"marketdash/internal/stream"
	"marketdash/pkg/utils"
)

func newAlertCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alert",
		Aliases: []string{"alerts"},
		Short:   "Price alert management",
		Long: `Create, delete and list price alerts.

Alerts are evaluated by the backend. 'alert watch' shows crossings as they
happen and pulls the backend's trigger state.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List price alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			s, err := app.alertStore()
			if err != nil {
				return err
			}
			if err := s.Refresh(ctx); err != nil {
				output.Toast(err)
				return err
			}

			list := s.Active()
			if all, _ := cmd.Flags().GetBool("all"); all {
				list = s.List()
			}
			if output.IsJSON() {
				return output.JSON(list)
			}
			if len(list) == 0 {
				output.Empty("alerts")
				return nil
			}
			renderAlerts(output, list)
			return nil
		},
	}
	listCmd.Flags().BoolP("all", "a", false, "include triggered alerts")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "create <symbol> <above|below> <price>",
		Short: "Create a price alert",
		Example: `  marketdash alert create COMI above 90
  marketdash alert create SWDY below 18.5`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			target, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid price %q", args[2])
			}

			s, err := app.alertStore()
			if err != nil {
				return err
			}
			created, err := s.CreateAlert(ctx, args[0], target, args[1])
			if err != nil {
				output.Toast(err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(created)
			}
			output.Success("✓ Alert set: %s %s %s", created.Symbol, created.Condition, output.Money(created.TargetPrice))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a price alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			s, err := app.alertStore()
			if err != nil {
				return err
			}
			if err := s.DeleteAlert(ctx, args[0]); err != nil {
				output.Toast(err)
				return err
			}
			output.Success("✓ Deleted alert %s", args[0])
			return nil
		},
	})

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch live prices against active alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := signalContext(cmd)
			defer cancel()

			s, err := app.alertStore()
			if err != nil {
				return err
			}
			if err := s.Refresh(ctx); err != nil {
				output.Toast(err)
				return err
			}
			if len(s.Active()) == 0 {
				output.Empty("active alerts")
				return nil
			}

			notifier := notify.NewTerminalNotifier(0)
			bell, _ := cmd.Flags().GetBool("bell")
			notifier.SetBellEnabled(bell)
			notifier.AddHandler(notify.WriterHandler(cmd.OutOrStdout()))
			recent := notify.NewOverlay(10, 24*time.Hour)
			notifier.AddHandler(recent.Notify)
			notifier.Start(ctx)

			watcher := alerts.NewWatcher(s, notifier, alerts.DefaultRefreshDelay, output.currency, app.Logger)
			watcher.Start(ctx)
			defer watcher.Stop()

			hub := stream.NewHub(app.hubConfig(), app.Logger)
			hub.RegisterConsumer(watcher)

			src, err := app.priceSource(hub.WantedSymbols)
			if err != nil {
				return err
			}

			output.Bold("Watching %d active alerts (Ctrl-C to stop)", len(s.Active()))
			renderAlerts(output, s.Active())
			output.Println()

			if err := hub.Run(ctx, src); err != nil {
				return err
			}
			if crossings := recent.Visible(); len(crossings) > 0 {
				output.Println()
				output.Bold("Crossings this session")
				for _, n := range crossings {
					output.Printf("  %s\n", notify.FormatNotification(n))
				}
			}
			return nil
		},
	}
	watchCmd.Flags().Bool("bell", true, "ring the terminal bell on crossings")
	cmd.AddCommand(watchCmd)

	return cmd
}

func renderAlerts(output *Output, list []models.PriceAlert) {
	table := NewTable(output, "ID", "Symbol", "Condition", "Target", "State", "Triggered")
	for _, a := range list {
		state := output.Green(string(a.State()))
		triggered := "-"
		if a.TriggeredAt != nil {
			state = output.Yellow(string(a.State()))
			triggered = utils.FormatDate(*a.TriggeredAt, "02 Jan 15:04")
		}
		table.AddRow(output.DimText(a.ID), a.Symbol, string(a.Condition), output.Money(a.TargetPrice), state, triggered)
	}
	table.Render()
}
