// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hui-shao/byre/internal/buildinfo"
	"github.com/hui-shao/byre/internal/config"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "byre",
		Short: "NexusPHP catalog manager for qBittorrent",
		Long: `byre - extracts a private tracker's catalog and reconciles it
against a local qBittorrent instance, deciding what to add, rename or
remove without ever deleting data another torrent still needs.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunListCommand())
	rootCmd.AddCommand(RunUserCommand())
	rootCmd.AddCommand(RunPlanCommand())
	rootCmd.AddCommand(RunApplyCommand())
	rootCmd.AddCommand(RunHistoryCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of byre",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("byre %s\n", version)
			if buildinfo.Commit != "" {
				fmt.Printf("commit: %s\n", buildinfo.Commit)
			}
			if buildinfo.Date != "" {
				fmt.Printf("built:  %s\n", buildinfo.Date)
			}
		},
	}
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without connecting anywhere.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/byre/config.toml
- Windows: %APPDATA%\byre\config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				configPath = filepath.Join(config.GetDefaultConfigDir(), "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func RunListCommand() *cobra.Command {
	var (
		configDir string
		site      string
		page      int
	)

	command := &cobra.Command{
		Use:   "list",
		Short: "List and score a catalog page",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(configDir)
			if err != nil {
				return err
			}
			return app.RunList(cmd.Context(), site, page)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&site, "site", "", "site key (defaults to the first configured site)")
	command.Flags().IntVar(&page, "page", 0, "catalog page number")

	return command
}

func RunUserCommand() *cobra.Command {
	var (
		configDir string
		site      string
		userID    int
	)

	command := &cobra.Command{
		Use:   "user",
		Short: "Show a user's profile statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(configDir)
			if err != nil {
				return err
			}
			return app.RunUser(cmd.Context(), site, userID)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&site, "site", "", "site key (defaults to the first configured site)")
	command.Flags().IntVar(&userID, "id", 0, "user id (0 means the logged-in account)")

	return command
}

func RunPlanCommand() *cobra.Command {
	var (
		configDir string
		site      string
		pages     int
	)

	command := &cobra.Command{
		Use:   "plan",
		Short: "Compute the reconciliation plan without applying it",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(configDir)
			if err != nil {
				return err
			}
			return app.RunPlan(cmd.Context(), site, pages, false)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&site, "site", "", "site key (defaults to the first configured site)")
	command.Flags().IntVar(&pages, "pages", 1, "number of catalog pages to fetch")

	return command
}

func RunApplyCommand() *cobra.Command {
	var (
		configDir string
		site      string
		pages     int
	)

	command := &cobra.Command{
		Use:   "apply",
		Short: "Compute the reconciliation plan and apply it to qBittorrent",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(configDir)
			if err != nil {
				return err
			}
			return app.RunPlan(cmd.Context(), site, pages, true)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&site, "site", "", "site key (defaults to the first configured site)")
	command.Flags().IntVar(&pages, "pages", 1, "number of catalog pages to fetch")

	return command
}

func RunHistoryCommand() *cobra.Command {
	var (
		configDir string
		site      string
		limit     int
	)

	command := &cobra.Command{
		Use:   "history",
		Short: "Show recorded reconciliation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(configDir)
			if err != nil {
				return err
			}
			return app.RunHistory(cmd.Context(), site, limit)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&site, "site", "", "filter by site key")
	command.Flags().IntVar(&limit, "limit", 20, "number of runs to show")

	return command
}
