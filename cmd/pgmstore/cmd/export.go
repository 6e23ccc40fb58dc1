/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/kjk/common/atomicfile"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/ssargent/pgmstore/pkg/store"
	"github.com/ssargent/pgmstore/pkg/transform"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <name> <output>",
	Short: "Write an image to a PGM file, optionally transformed",
	Long: `Write the active image stored under name to output as a binary PGM.

Examples:
  pgmstore export cat ./cat.pgm
  pgmstore export cat ./cat-negative.pgm --transform negate
  pgmstore export cat ./cat-bw.pgm --transform threshold --threshold 100
  pgmstore export cat ./cat.pgm.gz --gzip`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := transformSpec(cmd)
		if err != nil {
			return err
		}
		compress, _ := cmd.Flags().GetBool("gzip")
		return withStore(cmd, func(s *store.ImageStore, _ *app) error {
			export := s.Export
			if compress {
				export = func(name, outputPath string, spec transform.Spec) error {
					return exportGzip(s, name, outputPath, spec)
				}
			}
			if err := export(args[0], args[1], spec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %q to %s (%s)\n", args[0], args[1], spec)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("transform", "t", "none", "Transform to apply (none, negate, threshold)")
	exportCmd.Flags().Int("threshold", transform.DefaultCut, "Cut value for the threshold transform (0-255)")
	exportCmd.Flags().Bool("gzip", false, "Compress the output with gzip")
}

// exportGzip writes the gzip compressed image to outputPath, replacing it
// only once the whole stream has been written.
func exportGzip(s *store.ImageStore, name, outputPath string, spec transform.Spec) error {
	f, err := atomicfile.New(outputPath)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %w", store.ErrIO, outputPath, err)
	}
	defer f.RemoveIfNotClosed()

	zw := gzip.NewWriter(f)
	if err := s.ExportTo(name, zw, spec); err != nil {
		return err
	}
	if err := errors.Join(zw.Close(), f.Close()); err != nil {
		return fmt.Errorf("%w: writing %s: %w", store.ErrIO, outputPath, err)
	}
	return nil
}

func transformSpec(cmd *cobra.Command) (transform.Spec, error) {
	name, _ := cmd.Flags().GetString("transform")
	cut, _ := cmd.Flags().GetInt("threshold")

	kind, err := transform.ParseKind(name)
	if err != nil {
		return transform.Spec{}, err
	}
	if kind == transform.Threshold && (cut < 0 || cut > 255) {
		return transform.Spec{}, fmt.Errorf("threshold must be between 0 and 255, got %d", cut)
	}
	return transform.Spec{Kind: kind, Cut: cut}, nil
}
