// ABOUTME: chat (one-shot) and repl (multi-turn) subcommands
// ABOUTME: Streams deltas to stdout as they arrive, or renders the final reply as HTML

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/chathub/internal/client"
	"github.com/2389/chathub/internal/turn"
)

type chatFlags struct {
	key     string
	html    bool
	timeout time.Duration
}

func newChatCmd(a *app) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.close()

			_, err = runTurn(cmd.Context(), c, cmd.OutOrStdout(), cmd.ErrOrStderr(),
				strings.Join(args, " "), client.SendOptions{ConversationKey: f.key, Timeout: f.timeout}, f.html)
			return err
		},
	}
	cmd.Flags().StringVarP(&f.key, "key", "k", "", "conversation key (default chat.conversation_key or the new conversation id)")
	cmd.Flags().BoolVar(&f.html, "html", false, "render the final reply as HTML instead of streaming text")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "override chat.timeout for this turn")
	return cmd
}

// runTurn sends text and writes the reply to out. Streaming is disabled in
// HTML mode because the markdown is only complete at the end.
func runTurn(ctx context.Context, c *client.Client, out, errOut io.Writer, text string, opts client.SendOptions, html bool) (*client.Response, error) {
	if !html {
		bot := color.New(color.FgGreen)
		opts.OnProgress = func(s string) {
			bot.Fprint(out, s)
		}
	}

	resp, err := c.SendMessage(ctx, text, opts)
	if err != nil {
		if !html {
			fmt.Fprintln(out)
		}
		switch {
		case errors.Is(err, turn.ErrTimeout):
			return nil, fmt.Errorf("no reply within the turn timeout: %w", err)
		case errors.Is(err, turn.ErrAborted):
			return nil, fmt.Errorf("cancelled: %w", err)
		}
		return nil, err
	}

	if html {
		rendered, err := renderHTML(resp.Text)
		if err != nil {
			return nil, err
		}
		fmt.Fprint(out, rendered)
	} else {
		fmt.Fprintln(out)
	}
	if resp.Degraded {
		color.New(color.FgYellow).Fprintln(errOut, "(reply was cut short; showing the text received so far)")
	}
	return resp, nil
}

func newReplCmd(a *app) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Hold a multi-turn conversation on stdin",
		Long: `Reads one message per line and keeps the conversation going between turns.

Commands:
  /new   start a fresh conversation
  /exit  quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if a.cfg.Metrics.Enabled {
				stop := serveMetrics(a)
				defer stop()
			}

			printBanner(cmd.ErrOrStderr())
			return repl(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), f)
		},
	}
	cmd.Flags().StringVarP(&f.key, "key", "k", "", "conversation key to start in")
	cmd.Flags().BoolVar(&f.html, "html", false, "render replies as HTML")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "override chat.timeout for each turn")
	return cmd
}

func repl(ctx context.Context, c *client.Client, in io.Reader, out, errOut io.Writer, f chatFlags) error {
	prompt := color.New(color.FgCyan)
	next := client.SendOptions{ConversationKey: f.key, Timeout: f.timeout}

	scanner := bufio.NewScanner(in)
	for {
		prompt.Fprint(errOut, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(errOut)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			next = client.SendOptions{Timeout: f.timeout}
			color.New(color.FgHiBlack).Fprintln(errOut, "started a new conversation")
			continue
		}

		resp, err := runTurn(ctx, c, out, errOut, line, next, f.html)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			color.New(color.FgRed).Fprintf(errOut, "error: %v\n", err)
			continue
		}
		next = resp.Continue(nil)
		next.Timeout = f.timeout
	}
}

// serveMetrics exposes the Prometheus handler until the returned func is called.
func serveMetrics(a *app) func() {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err, "addr", a.cfg.Metrics.Addr)
		}
	}()
	a.logger.Info("serving metrics", "addr", a.cfg.Metrics.Addr, "path", a.cfg.Metrics.Path)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
