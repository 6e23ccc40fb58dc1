/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ssargent/pgmstore/pkg/codec"
	"github.com/ssargent/pgmstore/pkg/store"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.ImageStore, _ *app) error {
			var entries []codec.KeyEntry
			for e, err := range s.ListActive() {
				if err != nil {
					return err
				}
				entries = append(entries, e)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No active images.")
				return nil
			}
			writeEntries(out, entries)
			fmt.Fprintf(out, "Total: %d active images\n", len(entries))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func writeEntries(out io.Writer, entries []codec.KeyEntry) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMAX\tBYTES\tOFFSET\tACTIVE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%dx%d\t%d\t%d\t%d\t%t\n",
			e.Name, e.Columns, e.Rows, e.MaxIntensity, e.TotalSize, e.Offset, e.Active)
	}
	tw.Flush()
}
