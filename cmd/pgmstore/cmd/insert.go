/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/pgmstore/pkg/store"
)

// insertCmd represents the insert command
var insertCmd = &cobra.Command{
	Use:   "insert <file> <name>",
	Short: "Insert a PGM file under a name",
	Long: `Decode a binary (P5) PGM file and append it to the store under name.
Fails if an active image already uses the name.

Example:
  pgmstore insert ./cat.pgm cat`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.ImageStore, _ *app) error {
			entry, err := s.Insert(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %q (%dx%d, %d bytes at offset %d)\n",
				entry.Name, entry.Columns, entry.Rows, entry.TotalSize, entry.Offset)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(insertCmd)
}
