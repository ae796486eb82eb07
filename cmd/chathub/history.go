// ABOUTME: history subcommand prints a cached conversation thread
// ABOUTME: Walks parent links from the last bot reply (or --from) back to the root

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/chathub/internal/compose"
	"github.com/2389/chathub/internal/conversation"
)

func newHistoryCmd(a *app) *cobra.Command {
	var key, from string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a cached conversation thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.close()

			thread, err := c.History(cmd.Context(), key, from)
			if err != nil {
				return err
			}
			printThread(cmd.OutOrStdout(), thread, a.cfg.Chat.UserLabel, a.cfg.Chat.BotLabel)
			return nil
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "conversation key (default chat.conversation_key)")
	cmd.Flags().StringVar(&from, "from", "", "message id to end the thread at (default last bot reply)")
	return cmd
}

func printThread(w io.Writer, thread []conversation.Message, userLabel, botLabel string) {
	if userLabel == "" {
		userLabel = compose.DefaultUserLabel
	}
	if botLabel == "" {
		botLabel = compose.DefaultBotLabel
	}
	if len(thread) == 0 {
		color.New(color.FgHiBlack).Fprintln(w, "(no messages)")
		return
	}

	user := color.New(color.FgCyan, color.Bold)
	bot := color.New(color.FgGreen, color.Bold)
	for _, m := range thread {
		if m.Role == conversation.RoleUser {
			user.Fprint(w, userLabel+": ")
		} else {
			bot.Fprint(w, botLabel+": ")
		}
		fmt.Fprintln(w, m.Text)
	}
}
