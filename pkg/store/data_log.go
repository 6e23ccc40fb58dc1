package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ssargent/pgmstore/pkg/codec"
)

// DataLog is the append-only file of record headers and pixel bytes
type DataLog struct {
	path  string
	file  *os.File
	codec *codec.RecordCodec
	sync  bool
	size  int64 // Current end offset; the next record starts here
}

// OpenDataLog opens or creates the data log at path
func OpenDataLog(path string, sync bool) (*DataLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &DataLog{
		path:  path,
		file:  file,
		codec: codec.NewRecordCodec(),
		sync:  sync,
		size:  stat.Size(),
	}, nil
}

// Append writes one header followed by its pixels at the end of the log and
// returns the offset of the header
func (l *DataLog) Append(h codec.RecordHeader, pixels []byte) (int64, error) {
	if uint64(len(pixels)) != h.PixelCount {
		return 0, fmt.Errorf("header declares %d pixels, buffer holds %d", h.PixelCount, len(pixels))
	}

	offset := l.size
	if _, err := l.file.WriteAt(l.codec.EncodeHeader(h), offset); err != nil {
		return 0, err
	}
	if _, err := l.file.WriteAt(pixels, offset+codec.HeaderSize); err != nil {
		return 0, err
	}

	if l.sync {
		if err := l.file.Sync(); err != nil {
			return 0, err
		}
	}

	l.size = offset + h.RecordSize()
	return offset, nil
}

// ReadAt reads the record whose header starts at offset. Pixel buffers larger
// than maxPixels are refused before anything is allocated.
func (l *DataLog) ReadAt(offset int64, maxPixels int64) (codec.RecordHeader, []byte, error) {
	if offset < 0 || offset+codec.HeaderSize > l.size {
		return codec.RecordHeader{}, nil, fmt.Errorf("%w: no record header at offset %d (log is %d bytes)", ErrCorruptRecord, offset, l.size)
	}

	buf := make([]byte, codec.HeaderSize)
	if _, err := l.file.ReadAt(buf, offset); err != nil {
		return codec.RecordHeader{}, nil, readError("record header", offset, err)
	}

	h, err := l.codec.DecodeHeader(buf)
	if err != nil {
		return codec.RecordHeader{}, nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}

	if h.Rows < 0 || h.Columns < 0 || uint64(h.Rows)*uint64(h.Columns) != h.PixelCount {
		return h, nil, fmt.Errorf("%w: header at %d declares %d pixels for %dx%d", ErrCorruptRecord, offset, h.PixelCount, h.Columns, h.Rows)
	}
	if h.PixelCount > uint64(maxPixels) {
		return h, nil, fmt.Errorf("%w: record at %d declares %d pixels, limit is %d", ErrAllocation, offset, h.PixelCount, maxPixels)
	}
	if available := l.size - offset - codec.HeaderSize; h.PixelCount > uint64(available) {
		return h, nil, fmt.Errorf("%w: record at %d declares %d pixels, only %d bytes remain", ErrCorruptRecord, offset, h.PixelCount, available)
	}

	pixels := make([]byte, h.PixelCount)
	if _, err := l.file.ReadAt(pixels, offset+codec.HeaderSize); err != nil {
		return h, nil, readError("pixels", offset, err)
	}

	return h, pixels, nil
}

// Size returns the current length of the log
func (l *DataLog) Size() int64 {
	return l.size
}

// Path returns the file path
func (l *DataLog) Path() string {
	return l.path
}

// Close closes the underlying file
func (l *DataLog) Close() error {
	return l.file.Close()
}

func readError(what string, offset int64, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: short read of %s at offset %d", ErrCorruptRecord, what, offset)
	}
	return fmt.Errorf("%w: reading %s at offset %d: %w", ErrIO, what, offset, err)
}
