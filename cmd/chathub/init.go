// ABOUTME: init subcommand writes a starter config file with every default filled in
// ABOUTME: The format follows the file extension (.yaml, .yml or .toml)

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/chathub/internal/config"
)

func newInitCmd(a *app) *cobra.Command {
	var force bool
	var token string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if path == "" {
				path = getConfigPath()
			}
			if err := writeStarterConfig(path, token, force); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprint(cmd.OutOrStdout(), "    ▶ ")
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.Flags().StringVar(&token, "token", "${BING_USER_TOKEN}", "value for service.user_token")
	return cmd
}

func writeStarterConfig(path, token string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	cfg.Service.UserToken = token
	data, err := config.Marshal(cfg, filepath.Ext(path))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file may hold a credential
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
