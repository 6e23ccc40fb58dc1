package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ssargent/pgmstore/pkg/codec"
)

// recover runs with the mutex held. It removes leftovers of an interrupted
// compaction, drops a torn trailing key entry, opens both files and rebuilds
// the name index.
func (s *ImageStore) recover() (*RecoveryResult, error) {
	startTime := time.Now()
	result := &RecoveryResult{}

	stale, err := removeStaleTempFiles(s.config.DataDir, s.config.DataFile, s.config.IndexFile)
	if err != nil {
		return nil, fmt.Errorf("%w: removing stale compaction files: %w", ErrIO, err)
	}
	result.StaleTempFiles = stale
	for _, path := range stale {
		s.logger.Warn("removed stale compaction file", "path", path)
	}

	truncated, err := truncatePartialEntry(s.indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: validating key index: %w", ErrIO, err)
	}
	result.IndexBytesTruncated = truncated
	if truncated > 0 {
		s.logger.Warn("truncated partial key entry", "path", s.indexPath, "bytes", truncated)
	}

	if err := s.openFiles(); err != nil {
		return nil, err
	}

	entries, err := s.index.LoadAll()
	if err != nil {
		s.closeFiles()
		return nil, err
	}

	for _, slot := range s.names.Build(entries) {
		e := entries[slot]
		e.Active = false
		if err := s.index.Put(slot, e); err != nil {
			s.closeFiles()
			return nil, fmt.Errorf("%w: deactivating duplicate %q: %w", ErrIO, e.Name, err)
		}
		entries[slot] = e
		result.DuplicatesRepaired++
		s.logger.Warn("deactivated duplicate active entry", "name", e.Name, "slot", slot)
	}

	result.EntriesLoaded = len(entries)
	for _, e := range entries {
		if !e.Active {
			continue
		}
		result.ActiveEntries++
		if e.End() > s.data.Size() {
			result.DanglingEntries++
			s.logger.Warn("active entry points past end of data log",
				"name", e.Name, "offset", e.Offset, "size", e.TotalSize, "data_log_size", s.data.Size())
		}
	}

	result.RecoveryTime = time.Since(startTime)
	return result, nil
}

// truncatePartialEntry cuts the index back to a whole number of entries and
// returns how many bytes it removed
func truncatePartialEntry(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	extra := info.Size() % codec.EntrySize
	if extra == 0 {
		return 0, nil
	}
	if err := os.Truncate(path, info.Size()-extra); err != nil {
		return 0, err
	}
	return extra, nil
}

// removeStaleTempFiles deletes the temporary files compaction creates next to
// the live files (the live name followed by digits)
func removeStaleTempFiles(dir string, names ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		for _, live := range names {
			if !isTempName(entry.Name(), live) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				return removed, err
			}
			removed = append(removed, path)
			break
		}
	}
	return removed, nil
}

func isTempName(name, live string) bool {
	suffix, ok := strings.CutPrefix(name, live)
	if !ok || suffix == "" {
		return false
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
