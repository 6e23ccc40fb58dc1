package store

import (
	"log/slog"
	"time"

	"github.com/ssargent/pgmstore/pkg/codec"
)

const (
	DefaultDataFile  = "images.bin"
	DefaultIndexFile = "keys.bin"

	// DefaultMaxPixels bounds any single pixel buffer the store allocates
	DefaultMaxPixels = 1 << 28
)

// Config holds configuration for the image store
type Config struct {
	DataDir    string       // Directory holding both files
	DataFile   string       // Data log file name (default images.bin)
	IndexFile  string       // Key index file name (default keys.bin)
	SyncWrites bool         // fsync after every mutation
	MaxPixels  int64        // Largest pixel buffer accepted on insert or read
	Logger     *slog.Logger // Optional; discards when nil
}

// RecoveryResult describes what Open found and repaired
type RecoveryResult struct {
	EntriesLoaded       int
	ActiveEntries       int
	IndexBytesTruncated int64    // Partial trailing key entry removed
	StaleTempFiles      []string // Leftovers of an interrupted compaction, removed
	DuplicatesRepaired  int      // Older active entries sharing a name, deactivated
	DanglingEntries     int      // Active entries pointing past the end of the data log
	RecoveryTime        time.Duration
}

// CompactionResult summarizes one compaction pass
type CompactionResult struct {
	RunID            string
	EntriesBefore    int
	EntriesAfter     int
	DataBytesBefore  int64
	DataBytesAfter   int64
	IndexBytesBefore int64
	IndexBytesAfter  int64
	Duration         time.Duration
}

// Reclaimed returns the number of data log bytes freed
func (r *CompactionResult) Reclaimed() int64 {
	return r.DataBytesBefore - r.DataBytesAfter
}

// StoreStats holds statistics about the store
type StoreStats struct {
	Entries         int
	ActiveEntries   int
	InactiveEntries int
	DataLogBytes    int64
	IndexBytes      int64
	LiveBytes       int64 // Sum of TotalSize over active entries
	DeadBytes       int64 // Data log bytes compaction would reclaim
}

// CheckIssue is one active entry whose record could not be verified
type CheckIssue struct {
	Entry codec.KeyEntry
	Err   error
}

// CheckReport is the result of verifying every active record
type CheckReport struct {
	Checked int
	Issues  []CheckIssue
}

// Errors
var (
	ErrIO                  = &StoreError{"i/o error"}
	ErrCodec               = &StoreError{"malformed image"}
	ErrCorruptRecord       = &StoreError{"corrupt record"}
	ErrDuplicateActiveName = &StoreError{"an active image with this name already exists"}
	ErrNotFound            = &StoreError{"image not found"}
	ErrAllocation          = &StoreError{"image too large"}
	ErrInvalidName         = &StoreError{"invalid image name"}
	ErrStoreClosed         = &StoreError{"store is not open"}
)

// StoreError represents an image store error
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}
