package store

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/ssargent/pgmstore/pkg/codec"
	"github.com/ssargent/pgmstore/pkg/log"
	"github.com/ssargent/pgmstore/pkg/pgm"
	"github.com/ssargent/pgmstore/pkg/transform"
)

// ImageStore keeps named grayscale images in a data log plus a key index.
// Every operation holds one mutex; the store is not safe for use by several
// processes at once.
type ImageStore struct {
	config    Config
	dataPath  string
	indexPath string
	data      *DataLog
	index     *KeyIndex
	names     *NameIndex
	codec     *codec.RecordCodec
	logger    *slog.Logger
	mutex     sync.Mutex
	isOpen    bool
}

// NewImageStore creates a new image store instance
func NewImageStore(config Config) (*ImageStore, error) {
	if config.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(config.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", ErrIO, err)
	}

	if config.DataFile == "" {
		config.DataFile = DefaultDataFile
	}
	if config.IndexFile == "" {
		config.IndexFile = DefaultIndexFile
	}
	if config.DataFile == config.IndexFile {
		return nil, fmt.Errorf("data file and index file must differ, both are %q", config.DataFile)
	}
	if config.MaxPixels <= 0 {
		config.MaxPixels = DefaultMaxPixels
	}

	logger := config.Logger
	if logger == nil {
		logger = log.Discard()
	}

	return &ImageStore{
		config:    config,
		dataPath:  filepath.Join(config.DataDir, config.DataFile),
		indexPath: filepath.Join(config.DataDir, config.IndexFile),
		names:     NewNameIndex(),
		codec:     codec.NewRecordCodec(),
		logger:    logger.With(log.ComponentKey, "store"),
	}, nil
}

// Open repairs leftovers of earlier runs, opens both files and loads the
// name index
func (s *ImageStore) Open() (*RecoveryResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isOpen {
		return &RecoveryResult{}, nil
	}

	result, err := s.recover()
	if err != nil {
		return nil, err
	}

	s.isOpen = true
	s.logger.Info("store opened",
		"data_log", s.dataPath,
		"entries", result.EntriesLoaded,
		"active", result.ActiveEntries,
		"recovery_time", result.RecoveryTime)
	return result, nil
}

// Close shuts down the store
func (s *ImageStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil
	}
	s.isOpen = false
	return s.closeFiles()
}

// Paths returns the data log and key index paths
func (s *ImageStore) Paths() (dataLog, keyIndex string) {
	return s.dataPath, s.indexPath
}

// Insert decodes the PGM file at sourcePath and stores it under name
func (s *ImageStore) Insert(sourcePath, name string) (codec.KeyEntry, error) {
	if err := validateName(name); err != nil {
		return codec.KeyEntry{}, err
	}

	img, err := pgm.DecodeFile(sourcePath, s.config.MaxPixels)
	if err != nil {
		return codec.KeyEntry{}, decodeError(sourcePath, err)
	}
	return s.InsertImage(name, img)
}

// InsertFrom decodes a PGM stream and stores it under name
func (s *ImageStore) InsertFrom(name string, r io.Reader) (codec.KeyEntry, error) {
	if err := validateName(name); err != nil {
		return codec.KeyEntry{}, err
	}

	img, err := pgm.DecodeLimit(r, s.config.MaxPixels)
	if err != nil {
		return codec.KeyEntry{}, decodeError("request body", err)
	}
	return s.InsertImage(name, img)
}

// InsertImage appends img to the data log and records an active key entry
// for it. It fails with ErrDuplicateActiveName when name is already active.
func (s *ImageStore) InsertImage(name string, img *pgm.Image) (codec.KeyEntry, error) {
	if err := validateName(name); err != nil {
		return codec.KeyEntry{}, err
	}
	if err := img.Validate(); err != nil {
		return codec.KeyEntry{}, fmt.Errorf("%w: %w", ErrCodec, err)
	}

	pixelCount := int64(img.Rows) * int64(img.Columns)
	if pixelCount > s.config.MaxPixels || pixelCount > math.MaxInt32-codec.HeaderSize {
		return codec.KeyEntry{}, fmt.Errorf("%w: %d pixels", ErrAllocation, pixelCount)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return codec.KeyEntry{}, ErrStoreClosed
	}

	if _, exists := s.names.Get(name); exists {
		return codec.KeyEntry{}, fmt.Errorf("%w: %q", ErrDuplicateActiveName, name)
	}

	header := codec.RecordHeader{
		Rows:         int32(img.Rows),
		Columns:      int32(img.Columns),
		MaxIntensity: int32(img.MaxIntensity),
		PixelCount:   uint64(pixelCount),
	}

	offset, err := s.data.Append(header, img.Pixels)
	if err != nil {
		return codec.KeyEntry{}, fmt.Errorf("%w: appending to data log: %w", ErrIO, err)
	}

	entry := codec.KeyEntry{
		Name:         name,
		Offset:       offset,
		TotalSize:    int32(header.RecordSize()),
		Rows:         header.Rows,
		Columns:      header.Columns,
		MaxIntensity: header.MaxIntensity,
		Active:       true,
	}

	// A failure here leaves an orphan record in the data log; compaction only
	// copies records that an entry refers to, so it is reclaimed there.
	slot, err := s.index.Append(entry)
	if err != nil {
		s.logger.Warn("orphan record left in data log", "name", name, "offset", offset, "error", err)
		return codec.KeyEntry{}, fmt.Errorf("%w: appending to key index: %w", ErrIO, err)
	}

	s.names.Put(slot, entry)
	s.logger.Debug("image inserted", "name", name, "offset", offset, "size", entry.TotalSize)
	return entry, nil
}

// FindByName returns the active entry for name, or ErrNotFound
func (s *ImageStore) FindByName(name string) (codec.KeyEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return codec.KeyEntry{}, ErrStoreClosed
	}

	ref, exists := s.names.Get(name)
	if !exists {
		return codec.KeyEntry{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return ref.Entry, nil
}

// History returns every entry ever recorded under name, oldest first
func (s *ImageStore) History(name string) ([]codec.KeyEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrStoreClosed
	}

	entries, err := s.index.LoadAll()
	if err != nil {
		return nil, err
	}

	var history []codec.KeyEntry
	for _, e := range entries {
		if e.Name == name {
			history = append(history, e)
		}
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return history, nil
}

// ReadAt reads the image whose record header starts at offset
func (s *ImageStore) ReadAt(offset int64) (*pgm.Image, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrStoreClosed
	}
	return s.readAt(offset)
}

// Load returns the active image stored under name
func (s *ImageStore) Load(name string) (*pgm.Image, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrStoreClosed
	}

	ref, exists := s.names.Get(name)
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s.readEntry(ref.Entry)
}

// Export writes the active image stored under name to outputPath after
// applying spec. Stored state is never modified.
func (s *ImageStore) Export(name, outputPath string, spec transform.Spec) error {
	img, err := s.Load(name)
	if err != nil {
		return err
	}

	spec.Apply(img.Pixels, img.MaxIntensity)
	if err := pgm.EncodeFile(outputPath, img); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrIO, outputPath, err)
	}

	s.logger.Debug("image exported", "name", name, "path", outputPath, "transform", spec.String())
	return nil
}

// ExportTo is Export for an arbitrary writer
func (s *ImageStore) ExportTo(name string, w io.Writer, spec transform.Spec) error {
	img, err := s.Load(name)
	if err != nil {
		return err
	}

	spec.Apply(img.Pixels, img.MaxIntensity)
	if err := pgm.Encode(w, img); err != nil {
		return fmt.Errorf("%w: encoding %q: %w", ErrIO, name, err)
	}
	return nil
}

// Delete marks the active entry for name inactive. Only the key entry is
// rewritten; the record stays in the data log until the next compaction.
func (s *ImageStore) Delete(name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return ErrStoreClosed
	}

	ref, exists := s.names.Get(name)
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	entry := ref.Entry
	entry.Active = false
	if err := s.index.Put(ref.Slot, entry); err != nil {
		return fmt.Errorf("%w: deactivating %q: %w", ErrIO, name, err)
	}

	s.names.Delete(name)
	s.logger.Debug("image deleted", "name", name, "slot", ref.Slot)
	return nil
}

// ListActive yields the active entries in index order. Each call rescans the
// key index; the lock is taken per entry, so the body of the loop may call
// back into the store.
func (s *ImageStore) ListActive() iter.Seq2[codec.KeyEntry, error] {
	return func(yield func(codec.KeyEntry, error) bool) {
		for slot := int64(0); ; slot++ {
			entry, ok, err := s.entryAt(slot)
			if err != nil {
				yield(codec.KeyEntry{}, err)
				return
			}
			if !ok {
				return
			}
			if !entry.Active {
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Stats returns store statistics
func (s *ImageStore) Stats() (*StoreStats, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrStoreClosed
	}

	entries, err := s.index.LoadAll()
	if err != nil {
		return nil, err
	}

	stats := &StoreStats{
		Entries:      len(entries),
		DataLogBytes: s.data.Size(),
		IndexBytes:   s.index.Size(),
	}
	for _, e := range entries {
		if e.Active {
			stats.ActiveEntries++
			stats.LiveBytes += int64(e.TotalSize)
		} else {
			stats.InactiveEntries++
		}
	}
	stats.DeadBytes = max(stats.DataLogBytes-stats.LiveBytes, 0)
	return stats, nil
}

// Check reads every active record and verifies it against its key entry
func (s *ImageStore) Check() (*CheckReport, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrStoreClosed
	}

	entries, err := s.index.LoadAll()
	if err != nil {
		return nil, err
	}

	report := &CheckReport{}
	for _, e := range entries {
		if !e.Active {
			continue
		}
		report.Checked++
		if _, err := s.readEntry(e); err != nil {
			report.Issues = append(report.Issues, CheckIssue{Entry: e, Err: err})
		}
	}
	return report, nil
}

func (s *ImageStore) entryAt(slot int64) (codec.KeyEntry, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return codec.KeyEntry{}, false, ErrStoreClosed
	}
	if slot >= s.index.Len() {
		return codec.KeyEntry{}, false, nil
	}

	e, err := s.index.Get(slot)
	if err != nil {
		return codec.KeyEntry{}, false, err
	}
	return e, true, nil
}

// readAt must be called with the mutex held
func (s *ImageStore) readAt(offset int64) (*pgm.Image, error) {
	h, pixels, err := s.data.ReadAt(offset, s.config.MaxPixels)
	if err != nil {
		return nil, err
	}
	return &pgm.Image{
		Rows:         int(h.Rows),
		Columns:      int(h.Columns),
		MaxIntensity: int(h.MaxIntensity),
		Pixels:       pixels,
	}, nil
}

// readEntry reads the record an entry points to and checks that the header
// found there is the one the entry describes
func (s *ImageStore) readEntry(e codec.KeyEntry) (*pgm.Image, error) {
	h, pixels, err := s.data.ReadAt(e.Offset, s.config.MaxPixels)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", e.Name, err)
	}
	if h != e.Header() {
		return nil, fmt.Errorf("%w: %q expects %+v at offset %d, found %+v", ErrCorruptRecord, e.Name, e.Header(), e.Offset, h)
	}
	return &pgm.Image{
		Rows:         int(h.Rows),
		Columns:      int(h.Columns),
		MaxIntensity: int(h.MaxIntensity),
		Pixels:       pixels,
	}, nil
}

func (s *ImageStore) openFiles() error {
	data, err := OpenDataLog(s.dataPath, s.config.SyncWrites)
	if err != nil {
		return fmt.Errorf("%w: opening data log: %w", ErrIO, err)
	}

	index, err := OpenKeyIndex(s.indexPath, s.config.SyncWrites)
	if err != nil {
		data.Close()
		return fmt.Errorf("%w: opening key index: %w", ErrIO, err)
	}

	s.data = data
	s.index = index
	return nil
}

func (s *ImageStore) closeFiles() error {
	var errs []error
	if s.data != nil {
		errs = append(errs, s.data.Close())
		s.data = nil
	}
	if s.index != nil {
		errs = append(errs, s.index.Close())
		s.index = nil
	}
	return errors.Join(errs...)
}

func validateName(name string) error {
	if err := codec.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	return nil
}

func decodeError(source string, err error) error {
	switch {
	case errors.Is(err, pgm.ErrTooLarge):
		return fmt.Errorf("%w: %s: %w", ErrAllocation, source, err)
	case errors.Is(err, pgm.ErrFormat):
		return fmt.Errorf("%w: %s: %w", ErrCodec, source, err)
	default:
		return fmt.Errorf("%w: reading %s: %w", ErrIO, source, err)
	}
}
