/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/pgmstore/pkg/store"
)

// compactCmd represents the compact command
var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the data log and key index without deleted images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.ImageStore, _ *app) error {
			result, err := s.Compact()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Compaction %s finished in %s\n", result.RunID, result.Duration)
			fmt.Fprintf(out, "Entries: %d -> %d\n", result.EntriesBefore, result.EntriesAfter)
			fmt.Fprintf(out, "Data log: %d -> %d bytes (%d reclaimed)\n",
				result.DataBytesBefore, result.DataBytesAfter, result.Reclaimed())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(compactCmd)
}
