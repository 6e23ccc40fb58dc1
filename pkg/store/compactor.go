package store

import (
	"bufio"
	"fmt"
	"time"

	"github.com/kjk/common/atomicfile"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/pgmstore/pkg/codec"
	"github.com/ssargent/pgmstore/pkg/log"
)

// Compact rewrites the data log and the key index so that they hold only the
// active records, in their original order, with corrected offsets.
//
// Both new files are written to temporary files beside the live ones and
// renamed over them as the last two steps. Until the first rename the live
// files are untouched; a failure between the two renames leaves a compacted
// data log next to the old index and is logged as needing manual repair.
func (s *ImageStore) Compact() (*CompactionResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrStoreClosed
	}

	startTime := time.Now()
	result := &CompactionResult{
		RunID:            ksuid.New().String(),
		DataBytesBefore:  s.data.Size(),
		IndexBytesBefore: s.index.Size(),
	}
	logger := s.logger.With(log.RunIDKey, result.RunID)

	entries, err := s.index.LoadAll()
	if err != nil {
		return nil, err
	}
	result.EntriesBefore = len(entries)

	if len(entries) == 0 {
		result.DataBytesAfter = result.DataBytesBefore
		result.IndexBytesAfter = result.IndexBytesBefore
		result.Duration = time.Since(startTime)
		logger.Info("compaction skipped, key index is empty")
		return result, nil
	}

	logger.Info("compaction started", "entries", len(entries), "data_log_bytes", result.DataBytesBefore)

	dataTmp, err := atomicfile.New(s.dataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: creating temporary data log: %w", ErrIO, err)
	}
	defer dataTmp.RemoveIfNotClosed()

	indexTmp, err := atomicfile.New(s.indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: creating temporary key index: %w", ErrIO, err)
	}
	defer indexTmp.RemoveIfNotClosed()

	survivors, newSize, err := s.copyActive(entries, dataTmp)
	if err != nil {
		logger.Error("compaction aborted, live files untouched", "error", err)
		return nil, err
	}

	indexBytes, err := encodeEntries(s.codec, survivors)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding key index: %w", ErrCorruptRecord, err)
	}
	if _, err := indexTmp.Write(indexBytes); err != nil {
		return nil, fmt.Errorf("%w: writing temporary key index: %w", ErrIO, err)
	}

	// Windows cannot rename over open files
	if err := s.closeFiles(); err != nil {
		logger.Warn("closing live files before swap", "error", err)
	}

	if err := dataTmp.Close(); err != nil {
		return nil, s.reopenAfter(fmt.Errorf("%w: replacing data log: %w", ErrIO, err))
	}
	if err := indexTmp.Close(); err != nil {
		logger.Error("data log replaced but key index was not; manual repair needed",
			"data_log", s.dataPath, "key_index", s.indexPath, "error", err)
		return nil, s.reopenAfter(fmt.Errorf("%w: replacing key index: %w", ErrIO, err))
	}

	if err := s.openFiles(); err != nil {
		s.isOpen = false
		return nil, err
	}
	s.names.Build(survivors)

	result.EntriesAfter = len(survivors)
	result.DataBytesAfter = newSize
	result.IndexBytesAfter = s.index.Size()
	result.Duration = time.Since(startTime)

	logger.Info("compaction finished",
		"entries_before", result.EntriesBefore,
		"entries_after", result.EntriesAfter,
		"reclaimed_bytes", result.Reclaimed(),
		"duration", result.Duration)
	return result, nil
}

// copyActive streams every active record into w and returns the surviving
// entries with offsets into w. The offset is tracked as records are written
// rather than taken from the file length.
func (s *ImageStore) copyActive(entries []codec.KeyEntry, w *atomicfile.File) ([]codec.KeyEntry, int64, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	header := make([]byte, codec.HeaderSize)

	survivors := make([]codec.KeyEntry, 0, len(entries))
	var offset int64
	for _, e := range entries {
		if !e.Active {
			continue
		}

		h, pixels, err := s.data.ReadAt(e.Offset, s.config.MaxPixels)
		if err != nil {
			return nil, 0, fmt.Errorf("reading %q at offset %d: %w", e.Name, e.Offset, err)
		}
		if h != e.Header() {
			return nil, 0, fmt.Errorf("%w: %q expects %+v at offset %d, found %+v", ErrCorruptRecord, e.Name, e.Header(), e.Offset, h)
		}

		s.codec.PutHeader(header, h)
		if _, err := bw.Write(header); err != nil {
			return nil, 0, fmt.Errorf("%w: writing temporary data log: %w", ErrIO, err)
		}
		if _, err := bw.Write(pixels); err != nil {
			return nil, 0, fmt.Errorf("%w: writing temporary data log: %w", ErrIO, err)
		}

		e.Offset = offset
		offset += h.RecordSize()
		survivors = append(survivors, e)
	}

	if err := bw.Flush(); err != nil {
		return nil, 0, fmt.Errorf("%w: writing temporary data log: %w", ErrIO, err)
	}
	return survivors, offset, nil
}

// reopenAfter restores the file handles after a failed swap and returns cause
func (s *ImageStore) reopenAfter(cause error) error {
	if err := s.openFiles(); err != nil {
		s.isOpen = false
		return fmt.Errorf("%w (reopen failed: %v)", cause, err)
	}
	entries, err := s.index.LoadAll()
	if err != nil {
		s.isOpen = false
		s.closeFiles()
		return fmt.Errorf("%w (reload failed: %v)", cause, err)
	}
	s.names.Build(entries)
	return cause
}
