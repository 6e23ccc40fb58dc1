/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/pgmstore/pkg/store"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts and file sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.ImageStore, _ *app) error {
			stats, err := s.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries:    %d (%d active, %d deleted)\n",
				stats.Entries, stats.ActiveEntries, stats.InactiveEntries)
			fmt.Fprintf(out, "Data log:   %d bytes\n", stats.DataLogBytes)
			fmt.Fprintf(out, "Key index:  %d bytes\n", stats.IndexBytes)
			fmt.Fprintf(out, "Live bytes: %d\n", stats.LiveBytes)
			fmt.Fprintf(out, "Dead bytes: %d\n", stats.DeadBytes)
			return nil
		})
	},
}

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Read every active image and verify it against its key entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.ImageStore, _ *app) error {
			report, err := s.Check()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "%s (offset %d): %v\n", issue.Entry.Name, issue.Entry.Offset, issue.Err)
			}
			fmt.Fprintf(out, "Checked %d active images, %d problems\n", report.Checked, len(report.Issues))
			if len(report.Issues) > 0 {
				return errors.New("store check failed")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(checkCmd)
}
