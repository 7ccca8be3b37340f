package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "marketdash/internal/errors"
	"marketdash/internal/dashboard"
	"marketdash/internal/store"
	"marketdash/pkg/utils"
)

func newDashboardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"dash"},
		Short:   "Show watchlists, alerts, holdings and breadth at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			wl, err := app.watchlists()
			if err != nil {
				return err
			}
			al, err := app.alertStore()
			if err != nil {
				return err
			}
			pf, err := app.portfolio()
			if err != nil {
				return err
			}
			mk, err := app.market()
			if err != nil {
				return err
			}

			snap, err := dashboard.New(wl, al, pf, mk, app.Logger).Snapshot(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(snapshotJSON(snap))
			}
			renderSnapshot(output, snap, app.dateFormat(), syncNotes(app.optionalStore(), snap.TakenAt))
			return nil
		},
	}
}

// syncNotes describes when each section was last refreshed successfully.
func syncNotes(local store.LocalStore, now time.Time) map[string]string {
	notes := make(map[string]string)
	if local == nil {
		return notes
	}
	for _, dataType := range []string{store.SyncWatchlists, store.SyncAlerts, store.SyncHoldings} {
		f := store.CheckFreshness(local, dataType, 0, now)
		if f.LastUpdated.IsZero() {
			notes[dataType] = "never synced"
			continue
		}
		notes[dataType] = "last synced " + f.Age.Round(time.Second).String() + " ago"
	}
	return notes
}

func failedLines(output *Output, err error, note string) []string {
	lines := []string{output.Red("✗ " + apperrors.UserMessage(err))}
	if note != "" {
		lines = append(lines, output.DimText(note))
	}
	return lines
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return apperrors.UserMessage(err)
}

func snapshotJSON(s *dashboard.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"taken_at":      s.TakenAt,
		"market_status": s.MarketStatus,
		"watchlists": map[string]interface{}{
			"items": s.Watchlists.Watchlists,
			"error": errString(s.Watchlists.Err),
		},
		"alerts": map[string]interface{}{
			"active":    s.Alerts.Active,
			"triggered": s.Alerts.Triggered,
			"error":     errString(s.Alerts.Err),
		},
		"portfolio": map[string]interface{}{
			"holdings": s.Portfolio.Holdings,
			"totals":   s.Portfolio.Totals,
			"error":    errString(s.Portfolio.Err),
		},
		"breadth": map[string]interface{}{
			"points":  s.Breadth.Points,
			"summary": s.Breadth.Summary,
			"error":   errString(s.Breadth.Err),
		},
	}
}

func renderSnapshot(output *Output, s *dashboard.Snapshot, layout string, notes map[string]string) {
	output.Printf("EGX %s  %s\n\n",
		output.MarketStatus(s.MarketStatus),
		output.DimText(s.TakenAt.In(utils.CairoLocation).Format("Mon 02 Jan 15:04")))

	var lines []string
	switch {
	case s.Watchlists.Err != nil:
		lines = failedLines(output, s.Watchlists.Err, notes[store.SyncWatchlists])
	case len(s.Watchlists.Watchlists) == 0:
		lines = []string{output.DimText("No watchlists available")}
	default:
		for _, w := range s.Watchlists.Watchlists {
			lines = append(lines, fmt.Sprintf("%-16s %s", w.Name, strings.Join(w.Symbols(), " ")))
		}
	}
	output.Box("Watchlists", lines)

	lines = nil
	switch {
	case s.Alerts.Err != nil:
		lines = failedLines(output, s.Alerts.Err, notes[store.SyncAlerts])
	case len(s.Alerts.Active)+len(s.Alerts.Triggered) == 0:
		lines = []string{output.DimText("No alerts available")}
	default:
		for _, a := range s.Alerts.Active {
			lines = append(lines, fmt.Sprintf("%-8s %-5s %s", a.Symbol, a.Condition, output.Money(a.TargetPrice)))
		}
		for _, a := range s.Alerts.Triggered {
			lines = append(lines, output.Yellow(fmt.Sprintf("%-8s %-5s %s  triggered", a.Symbol, a.Condition, output.Money(a.TargetPrice))))
		}
	}
	output.Box("Alerts", lines)

	lines = nil
	switch {
	case s.Portfolio.Err != nil:
		lines = failedLines(output, s.Portfolio.Err, notes[store.SyncHoldings])
	case len(s.Portfolio.Holdings) == 0:
		lines = []string{output.DimText("No holdings available")}
	default:
		for _, h := range s.Portfolio.Holdings {
			lines = append(lines, fmt.Sprintf("%-8s %14s  %s", h.Symbol,
				utils.FormatMoney(h.CurrentValue, ""), output.Percent(h.PnLPercent)))
		}
		t := s.Portfolio.Totals
		lines = append(lines, "", fmt.Sprintf("Value %s  P&L %s (%s)",
			output.Money(t.TotalValue), output.PnL(t.UnrealizedGain), output.Percent(t.UnrealizedPercent)))
	}
	output.Box("Portfolio", lines)

	lines = nil
	switch {
	case s.Breadth.Err != nil:
		lines = failedLines(output, s.Breadth.Err, "")
	case len(s.Breadth.Points) == 0:
		lines = []string{output.DimText("No breadth data available")}
	default:
		for _, p := range s.Breadth.Points {
			lines = append(lines, fmt.Sprintf("%-12s %s %s  %d unch",
				utils.FormatDate(p.Date, layout),
				output.Green(fmt.Sprintf("▲%4d", p.Advancers)),
				output.Red(fmt.Sprintf("▼%4d", p.Decliners)),
				p.Unchanged))
		}
		lines = append(lines, "", fmt.Sprintf("Net advance %+d", s.Breadth.Summary.NetAdvance))
	}
	output.Box("Breadth", lines)
}
