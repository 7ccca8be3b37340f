package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"marketdash/internal/models"
	"marketdash/pkg/utils"
)

func newChatCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the AI market analyst",
		Long: `Send messages to the AI market analyst and manage the conversation.

The conversation is kept locally and continues across runs until reset.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "send <message...>",
		Short: "Send a message",
		Example: `  marketdash chat send "How is COMI doing today?"
  marketdash chat send compare SWDY and ETEL`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			mgr, err := app.chatManager()
			if err != nil {
				return err
			}
			if err := mgr.Load(ctx); err != nil {
				return err
			}

			reply, err := mgr.Send(ctx, strings.Join(args, " "))
			if err != nil {
				output.Toast(err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(reply)
			}
			printAssistant(output, *reply)
			return nil
		},
	})

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show the conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			mgr, err := app.chatManager()
			if err != nil {
				return err
			}
			if err := mgr.Load(ctx); err != nil {
				return err
			}

			session := mgr.Session()
			limit, _ := cmd.Flags().GetInt("limit")
			if limit > 0 && len(session.Messages) > limit {
				session.Messages = session.Messages[len(session.Messages)-limit:]
			}

			if output.IsJSON() {
				return output.JSON(session)
			}
			if len(session.Messages) == 0 {
				output.Empty("messages")
				return nil
			}

			output.Dim("Session %s", session.SessionID)
			output.Println()
			for _, msg := range session.Messages {
				if msg.Role == models.RoleUser {
					output.Printf("%s %s\n", output.bold.Sprint("You:"), msg.Content)
					continue
				}
				printAssistant(output, msg)
			}
			return nil
		},
	}
	historyCmd.Flags().IntP("limit", "n", 0, "show only the last n messages")
	cmd.AddCommand(historyCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "session",
		Short: "Show the current session id",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			mgr, err := app.chatManager()
			if err != nil {
				return err
			}
			id, err := mgr.GetOrCreateSessionID(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"session_id": id})
			}
			output.Println(id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Start a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx, cancel := requestContext(cmd)
			defer cancel()

			mgr, err := app.chatManager()
			if err != nil {
				return err
			}
			if err := mgr.Load(ctx); err != nil {
				return err
			}
			id, err := mgr.Reset(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"session_id": id})
			}
			output.Success("✓ Started new conversation %s", id)
			return nil
		},
	})

	return cmd
}

func printAssistant(output *Output, msg models.Message) {
	output.Printf("%s %s\n", output.cyan.Sprint("Analyst:"), msg.Content)

	resp := msg.Response
	if resp == nil {
		return
	}
	for _, card := range resp.Cards {
		title := card.Title
		if title == "" {
			title = card.Type
		}
		output.Printf("  %s %s\n", output.DimText("["+card.Type+"]"), title)
		for _, key := range sortedKeys(card.Data) {
			output.Printf("    %s: %s\n", key, utils.Truncate(fmt.Sprint(card.Data[key]), 60))
		}
	}
	if resp.Chart != nil {
		output.Dim("  Chart: %s %s (%d points)", resp.Chart.Symbol, resp.Chart.Timeframe, len(resp.Chart.Series))
	}
	for _, action := range resp.Actions {
		output.Dim("  → %s", action.Label)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
