/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/pgmstore/pkg/config"
	"github.com/ssargent/pgmstore/pkg/di"
	"github.com/ssargent/pgmstore/pkg/store"
)

type contextKey string

const appKey contextKey = "app"

// app is what PersistentPreRunE resolves for every command
type app struct {
	config *config.Config
	logger *slog.Logger
}

var container *di.Container

// SetContainer injects the dependency container
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pgmstore",
	Short: "pgmstore - named storage for PGM images",
	Long: `pgmstore keeps binary PGM images in an append-only data log with a
fixed-size key index next to it. Images can be exported negated or
thresholded, deleted, and the log compacted to reclaim their space.

Run without a subcommand to start the interactive menu.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		if container == nil {
			container = di.NewContainer()
		}
		logger, err := container.NewLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey, &app{config: cfg, logger: logger}))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/pgmstore/config.yaml when present)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory holding images.bin and keys.bin")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

// resolveConfig loads the config file, if any, and applies flag overrides
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := config.DefaultConfig()
	switch {
	case configPath != "":
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case config.ConfigExists(config.GetDefaultConfigPath()):
		loaded, err := config.LoadConfig(config.GetDefaultConfigPath())
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func appFrom(cmd *cobra.Command) (*app, error) {
	a, ok := cmd.Context().Value(appKey).(*app)
	if !ok {
		return nil, errors.New("configuration not found in context")
	}
	return a, nil
}

// withStore opens the store for the duration of fn
func withStore(cmd *cobra.Command, fn func(s *store.ImageStore, a *app) error) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}

	s, recovery, err := container.OpenStore(a.config, a.logger)
	if err != nil {
		return err
	}
	reportRecovery(cmd, recovery)

	err = fn(s, a)
	return errors.Join(err, s.Close())
}

func reportRecovery(cmd *cobra.Command, r *store.RecoveryResult) {
	if r == nil {
		return
	}
	if r.IndexBytesTruncated > 0 {
		cmd.PrintErrf("Recovered from corruption: %d trailing key index bytes truncated\n", r.IndexBytesTruncated)
	}
	if len(r.StaleTempFiles) > 0 {
		cmd.PrintErrf("Removed %d files left by an interrupted compaction\n", len(r.StaleTempFiles))
	}
	if r.DuplicatesRepaired > 0 {
		cmd.PrintErrf("Deactivated %d older duplicate entries\n", r.DuplicatesRepaired)
	}
	if r.DanglingEntries > 0 {
		cmd.PrintErrf("Warning: %d entries point past the end of the data log; run 'pgmstore check'\n", r.DanglingEntries)
	}
}
