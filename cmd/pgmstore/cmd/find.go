/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/pgmstore/pkg/store"
)

// findCmd represents the find command
var findCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Show the active image stored under a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.ImageStore, _ *app) error {
			e, err := s.FindByName(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:       %s\n", e.Name)
			fmt.Fprintf(out, "Dimensions: %dx%d\n", e.Columns, e.Rows)
			fmt.Fprintf(out, "Max:        %d\n", e.MaxIntensity)
			fmt.Fprintf(out, "Size:       %d bytes\n", e.TotalSize)
			fmt.Fprintf(out, "Offset:     %d\n", e.Offset)
			return nil
		})
	},
}

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Show every entry ever recorded under a name",
	Long: `Show every key entry recorded under name in index order, including
deleted ones that have not yet been compacted away.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.ImageStore, _ *app) error {
			entries, err := s.History(args[0])
			if err != nil {
				return err
			}
			writeEntries(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(historyCmd)
}
