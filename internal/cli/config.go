// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/skinchat/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(*cobra.Command, []string) error {
				fmt.Fprintln(a.out, a.cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			RunE: func(*cobra.Command, []string) error {
				path := a.configPath
				if path == "" {
					var err error
					if path, err = config.ConfigPath(); err != nil {
						return err
					}
				}
				fmt.Fprintln(a.out, path)
				return nil
			},
		},
		newConfigInitCommand(a),
	)
	return cmd
}

func newConfigInitCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		RunE: func(*cobra.Command, []string) error {
			path := a.configPath
			if path == "" {
				var err error
				if path, err = config.ConfigPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveTOML(a.cfg, path); err != nil {
				return err
			}
			a.printf("%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
