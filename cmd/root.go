// Package cmd is the command line of a formkit application. The program
// registers its forms, lists and functions on an App and hands it to
// NewRootCommand; the commands read the configuration and open the database
// themselves.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stokaro/formkit/cmd/describe"
	"github.com/stokaro/formkit/cmd/migrate"
	"github.com/stokaro/formkit/cmd/upload"
	"github.com/stokaro/formkit/cmd/verify"
	"github.com/stokaro/formkit/config"
	"github.com/stokaro/formkit/core/app"
)

const (
	configFlag  = "config"
	envFileFlag = "env-file"
)

// NewRootCommand builds the command tree around a.
func NewRootCommand(a *app.App) *cobra.Command {
	var configPath, envFile string
	root := &cobra.Command{
		Use:   "formkit",
		Short: "Validate, upload and inspect form data",
		Long: `Validate, upload and inspect the forms of an application.

Configuration is read from the file given with --config, if any, and from
FORMKIT_* environment variables. A .env file in the working directory, or the
file given with --env-file, is loaded into the environment first.

Examples:
  formkit describe invoice                        # Show the SQL of a form
  formkit upload --spec invoices --input in.csv   # Upload rows
  formkit verify                                  # Compare forms with the database`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return configure(a, configPath, envFile)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.Close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, configFlag, "", "Configuration file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&envFile, envFileFlag, "", "Environment file loaded before the configuration")

	root.AddCommand(upload.NewUploadCommand(a))
	root.AddCommand(describe.NewDescribeCommand(a))
	root.AddCommand(verify.NewVerifyCommand(a))
	root.AddCommand(migrate.NewMigrateCommand(a))
	return root
}

// Execute runs the command line and exits with a non-zero status on failure.
func Execute(a *app.App) {
	if err := NewRootCommand(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func configure(a *app.App, configPath, envFile string) error {
	switch {
	case envFile != "":
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	default:
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	a.Config = cfg
	a.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return nil
}
