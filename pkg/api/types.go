package api

import (
	"io"
	"iter"
	"time"

	"github.com/ssargent/pgmstore/pkg/codec"
	"github.com/ssargent/pgmstore/pkg/store"
	"github.com/ssargent/pgmstore/pkg/transform"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind   string
	Port   int
	APIKey string // Empty disables authentication

	// MaxUploadBytes bounds PUT bodies; zero means no limit beyond the store's pixel limit
	MaxUploadBytes int64
	// StatsInterval is how often the store gauges are refreshed in the background
	StatsInterval time.Duration
}

// ImageInfo describes one key entry
type ImageInfo struct {
	Name         string `json:"name"`
	Offset       int64  `json:"offset"`
	TotalSize    int32  `json:"total_size"`
	Rows         int32  `json:"rows"`
	Columns      int32  `json:"columns"`
	MaxIntensity int32  `json:"max_intensity"`
	Active       bool   `json:"active"`
}

func imageInfo(e codec.KeyEntry) ImageInfo {
	return ImageInfo{
		Name:         e.Name,
		Offset:       e.Offset,
		TotalSize:    e.TotalSize,
		Rows:         e.Rows,
		Columns:      e.Columns,
		MaxIntensity: e.MaxIntensity,
		Active:       e.Active,
	}
}

// CompactResponse summarizes a compaction run
type CompactResponse struct {
	RunID           string `json:"run_id"`
	EntriesBefore   int    `json:"entries_before"`
	EntriesAfter    int    `json:"entries_after"`
	DataBytesBefore int64  `json:"data_bytes_before"`
	DataBytesAfter  int64  `json:"data_bytes_after"`
	ReclaimedBytes  int64  `json:"reclaimed_bytes"`
	DurationMillis  int64  `json:"duration_ms"`
}

// StatsResponse mirrors store.StoreStats
type StatsResponse struct {
	Entries         int   `json:"entries"`
	ActiveEntries   int   `json:"active_entries"`
	InactiveEntries int   `json:"inactive_entries"`
	DataLogBytes    int64 `json:"data_log_bytes"`
	IndexBytes      int64 `json:"index_bytes"`
	LiveBytes       int64 `json:"live_bytes"`
	DeadBytes       int64 `json:"dead_bytes"`
}

// IImageStore defines the store operations the API exposes
type IImageStore interface {
	InsertFrom(name string, r io.Reader) (codec.KeyEntry, error)
	FindByName(name string) (codec.KeyEntry, error)
	History(name string) ([]codec.KeyEntry, error)
	ExportTo(name string, w io.Writer, spec transform.Spec) error
	Delete(name string) error
	ListActive() iter.Seq2[codec.KeyEntry, error]
	Compact() (*store.CompactionResult, error)
	Stats() (*store.StoreStats, error)
}
