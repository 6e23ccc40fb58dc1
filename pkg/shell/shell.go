// Package shell implements the interactive numbered menu over an image store.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ssargent/pgmstore/pkg/codec"
	"github.com/ssargent/pgmstore/pkg/log"
	"github.com/ssargent/pgmstore/pkg/store"
	"github.com/ssargent/pgmstore/pkg/transform"
)

// Store is the part of the image store the menu drives
type Store interface {
	Insert(sourcePath, name string) (codec.KeyEntry, error)
	ListActive() iter.Seq2[codec.KeyEntry, error]
	FindByName(name string) (codec.KeyEntry, error)
	Export(name, outputPath string, spec transform.Spec) error
	Delete(name string) error
	Compact() (*store.CompactionResult, error)
}

var errQuit = errors.New("quit")

// Shell reads whitespace separated answers from in and writes prompts and
// results to out. Operation failures are reported and the menu continues.
type Shell struct {
	store  Store
	in     *bufio.Scanner
	out    io.Writer
	logger *slog.Logger
}

// New creates a shell
func New(s Store, in io.Reader, out io.Writer, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = log.Discard()
	}
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanWords)
	return &Shell{store: s, in: scanner, out: out, logger: logger}
}

// Run shows the menu until the user picks 0, the input ends or ctx is done
func (sh *Shell) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sh.menu()
		choice, ok := sh.next()
		if !ok {
			return sh.in.Err()
		}

		err := sh.dispatch(choice)
		if errors.Is(err, errQuit) {
			fmt.Fprintln(sh.out, "Bye.")
			return nil
		}
		if errors.Is(err, io.EOF) {
			return sh.in.Err()
		}
		if err != nil {
			fmt.Fprintf(sh.out, "Error: %v\n", err)
		}
	}
}

func (sh *Shell) menu() {
	fmt.Fprint(sh.out, `
==================== PGM IMAGE STORE ====================
1. Insert image
2. List images
3. Find image by name
4. Export image
5. Delete image
6. Compact data log
0. Quit
Choice: `)
}

func (sh *Shell) dispatch(choice string) error {
	switch choice {
	case "1":
		return sh.insert()
	case "2":
		return sh.list()
	case "3":
		return sh.find()
	case "4":
		return sh.export()
	case "5":
		return sh.remove()
	case "6":
		return sh.compact()
	case "0":
		return errQuit
	}
	return fmt.Errorf("unknown option %q", choice)
}

func (sh *Shell) insert() error {
	path, err := sh.ask("PGM file to insert: ")
	if err != nil {
		return err
	}
	name, err := sh.ask("Name to store it under: ")
	if err != nil {
		return err
	}

	if _, err := sh.store.Insert(path, name); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Image %q inserted.\n", name)
	return nil
}

func (sh *Shell) list() error {
	fmt.Fprintf(sh.out, "\n%-20s %-10s %-10s %-8s %-10s\n", "Name", "Rows", "Columns", "Max", "Size")
	fmt.Fprintln(sh.out, strings.Repeat("-", 62))

	count := 0
	for e, err := range sh.store.ListActive() {
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%-20s %-10d %-10d %-8d %-10d\n", e.Name, e.Rows, e.Columns, e.MaxIntensity, e.TotalSize)
		count++
	}

	if count == 0 {
		fmt.Fprintln(sh.out, "No active images.")
		return nil
	}
	fmt.Fprintf(sh.out, "Total: %d active images\n", count)
	return nil
}

func (sh *Shell) find() error {
	name, err := sh.ask("Name to find: ")
	if err != nil {
		return err
	}

	e, err := sh.store.FindByName(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "\nName:       %s\n", e.Name)
	fmt.Fprintf(sh.out, "Dimensions: %d x %d pixels\n", e.Columns, e.Rows)
	fmt.Fprintf(sh.out, "Max:        %d\n", e.MaxIntensity)
	fmt.Fprintf(sh.out, "Size:       %d bytes\n", e.TotalSize)
	fmt.Fprintf(sh.out, "Offset:     %d\n", e.Offset)
	return nil
}

func (sh *Shell) export() error {
	name, err := sh.ask("Name to export: ")
	if err != nil {
		return err
	}
	path, err := sh.ask("Output PGM file: ")
	if err != nil {
		return err
	}
	answer, err := sh.ask("Transform (0 original, 1 negate, 2 threshold): ")
	if err != nil {
		return err
	}

	kind, err := transform.ParseKind(answer)
	if err != nil {
		return err
	}
	spec := transform.Spec{Kind: kind, Cut: transform.DefaultCut}
	if kind == transform.Threshold {
		cut, err := sh.askInt("Threshold (0-255): ")
		if err != nil {
			return err
		}
		if cut < 0 || cut > 255 {
			return fmt.Errorf("threshold %d outside 0..255", cut)
		}
		spec.Cut = cut
	}

	if err := sh.store.Export(name, path, spec); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Image %q exported to %s (%s).\n", name, path, spec)
	return nil
}

func (sh *Shell) remove() error {
	name, err := sh.ask("Name to delete: ")
	if err != nil {
		return err
	}
	ok, err := sh.confirm(fmt.Sprintf("Delete %q?", name))
	if err != nil || !ok {
		return err
	}

	if err := sh.store.Delete(name); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Image %q deleted. Compact to reclaim its space.\n", name)
	return nil
}

func (sh *Shell) compact() error {
	fmt.Fprintln(sh.out, "\nCompaction rewrites the data log without deleted images.")
	ok, err := sh.confirm("Compact now?")
	if err != nil || !ok {
		return err
	}

	result, err := sh.store.Compact()
	if err != nil {
		return err
	}
	sh.logger.Debug("compaction from menu", log.RunIDKey, result.RunID)
	fmt.Fprintf(sh.out, "Compaction finished: %d images kept, %d bytes reclaimed.\n", result.EntriesAfter, result.Reclaimed())
	return nil
}

// confirm reports whether the user answered 1 (or y/yes)
func (sh *Shell) confirm(question string) (bool, error) {
	answer, err := sh.ask(question + " (1=yes, 0=no): ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "1", "y", "yes":
		return true, nil
	}
	fmt.Fprintln(sh.out, "Cancelled.")
	return false, nil
}

func (sh *Shell) ask(prompt string) (string, error) {
	fmt.Fprint(sh.out, prompt)
	tok, ok := sh.next()
	if !ok {
		return "", io.EOF
	}
	return tok, nil
}

func (sh *Shell) askInt(prompt string) (int, error) {
	tok, err := sh.ask(prompt)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%q is not a whole number", tok)
	}
	return n, nil
}

func (sh *Shell) next() (string, bool) {
	if !sh.in.Scan() {
		return "", false
	}
	return sh.in.Text(), true
}
