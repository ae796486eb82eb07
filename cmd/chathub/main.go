// ABOUTME: Entry point for the chathub command line client
// ABOUTME: Wires config, logging, cache backend and metrics into cobra subcommands

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/chathub/internal/cache"
	"github.com/2389/chathub/internal/client"
	"github.com/2389/chathub/internal/config"
	"github.com/2389/chathub/internal/logging"
	"github.com/2389/chathub/internal/metrics"
)

// Version is set at build time.
var version = "dev"

const banner = `
       _           _   _           _
   ___| |__   __ _| |_| |__  _   _| |__
  / __| '_ \ / _' | __| '_ \| | | | '_ \
 | (__| | | | (_| | |_| | | | |_| | |_) |
  \___|_| |_|\__,_|\__|_| |_|\__,_|_.__/
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the path to the config file.
// Priority: CHATHUB_CONFIG env var > XDG_CONFIG_HOME/chathub/config.yaml > ~/.config/chathub/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHATHUB_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chathub", "config.yaml")
}

// app holds state shared by subcommands once the config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	cache      cache.Backend
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "chathub",
		Short:         "Converse with the chat hub from the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default $CHATHUB_CONFIG or ~/.config/chathub/config.yaml)")

	root.AddCommand(
		newChatCmd(a),
		newReplCmd(a),
		newHistoryCmd(a),
		newInitCmd(a),
	)
	return root
}

// load reads the config and builds the logger and cache backend.
func (a *app) load(stderr io.Writer) error {
	if a.configPath == "" {
		a.configPath = getConfigPath()
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg
	a.logger = logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format)
	a.metrics = metrics.New()

	backend, err := cache.Open(cache.Options{
		Backend:    cfg.Cache.Backend,
		Path:       cfg.Cache.Path,
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	})
	if err != nil {
		return fmt.Errorf("opening %s cache: %w", cfg.Cache.Backend, err)
	}
	a.cache = cache.WithNamespace(backend, cfg.Cache.Namespace)

	a.logger.Debug("config loaded",
		"config", a.configPath,
		"cache_backend", cfg.Cache.Backend,
		"socket_url", cfg.Service.SocketURL,
	)
	return nil
}

// client loads config and returns a ready Client. requireCredential rejects
// configs with no user token or cookies.
func (a *app) client(stderr io.Writer, requireCredential bool) (*client.Client, error) {
	if err := a.load(stderr); err != nil {
		return nil, err
	}
	if requireCredential && !a.cfg.Service.HasCredential() {
		a.close()
		return nil, fmt.Errorf("service.user_token or service.cookies is required")
	}
	c, err := client.New(a.cfg, a.cache, a.metrics, a.logger)
	if err != nil {
		a.close()
		return nil, err
	}
	return c, nil
}

func (a *app) close() {
	if a.cache == nil {
		return
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("closing cache", "error", err)
	}
	a.cache = nil
}

func printBanner(w io.Writer) {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(w, banner)
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(w, "    version: %s\n\n", version)
}
