package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	applog "github.com/janisto/waitlist/internal/platform/logging"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

func main() {
	defer func() {
		if err := applog.Sync(); err != nil {
			applog.LogError(context.Background(), "logger sync error", err)
		}
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(context.Background(), "logger init error", err)
	}

	if err := rootCmd().Execute(); err != nil {
		applog.LogError(context.Background(), "command failed", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the waitlist HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd := &cobra.Command{
		Use:           "waitlist",
		Short:         "Waitlist signup service",
		Long:          "Accepts waitlist signups over HTTP, validates them and stores each email exactly once.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(serve)
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres signup table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), configPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "waitlist %s\n", Version)
		},
	})
	return cmd
}
