/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/pgmstore/pkg/shell"
	"github.com/ssargent/pgmstore/pkg/store"
)

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run the interactive menu",
	Long: `Run the numbered interactive menu. This is also what pgmstore does when
started without a subcommand.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command) error {
	return withStore(cmd, func(s *store.ImageStore, a *app) error {
		sh := shell.New(s, cmd.InOrStdin(), cmd.OutOrStdout(), a.logger)
		return sh.Run(cmd.Context())
	})
}
