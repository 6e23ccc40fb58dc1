package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the encoded size of a RecordHeader.
	HeaderSize = 20
	// NameSize is the width of the zero-padded name field of a KeyEntry.
	NameSize = 100
	// MaxNameLen leaves room for the terminating zero byte.
	MaxNameLen = NameSize - 1
	// EntrySize is the encoded size of a KeyEntry.
	EntrySize = NameSize + 8 + 5*4
)

var (
	ErrShortBuffer = errors.New("buffer too short")
	ErrInvalidName = errors.New("invalid image name")
)

// RecordHeader precedes the pixel bytes of every record in the data log
type RecordHeader struct {
	Rows         int32  // Image height
	Columns      int32  // Image width
	MaxIntensity int32  // Largest gray value
	PixelCount   uint64 // Number of pixel bytes following the header
}

// RecordSize returns the number of bytes the record occupies in the data log
func (h RecordHeader) RecordSize() int64 {
	return HeaderSize + int64(h.PixelCount)
}

// KeyEntry is one fixed-size record of the key index
type KeyEntry struct {
	Name         string // At most MaxNameLen bytes
	Offset       int64  // Byte offset of the record header in the data log
	TotalSize    int32  // HeaderSize + pixel count
	Rows         int32
	Columns      int32
	MaxIntensity int32
	Active       bool
}

// PixelCount returns the pixel byte count implied by TotalSize
func (e KeyEntry) PixelCount() uint64 {
	if e.TotalSize < HeaderSize {
		return 0
	}
	return uint64(e.TotalSize - HeaderSize)
}

// Header returns the record header the entry expects to find at Offset
func (e KeyEntry) Header() RecordHeader {
	return RecordHeader{
		Rows:         e.Rows,
		Columns:      e.Columns,
		MaxIntensity: e.MaxIntensity,
		PixelCount:   e.PixelCount(),
	}
}

// End returns the offset just past the entry's record
func (e KeyEntry) End() int64 {
	return e.Offset + int64(e.TotalSize)
}

// ValidateName reports whether name fits the fixed name field
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: name is %d bytes, limit is %d", ErrInvalidName, len(name), MaxNameLen)
	}
	if bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("%w: name contains a zero byte", ErrInvalidName)
	}
	return nil
}

// RecordCodec packs and unpacks the on-disk structures
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// EncodeHeader serializes a record header
// Format: [Rows(4)][Columns(4)][MaxIntensity(4)][PixelCount(8)]
func (c *RecordCodec) EncodeHeader(h RecordHeader) []byte {
	buf := make([]byte, HeaderSize)
	c.PutHeader(buf, h)
	return buf
}

// PutHeader writes h into the first HeaderSize bytes of dst
func (c *RecordCodec) PutHeader(dst []byte, h RecordHeader) {
	binary.LittleEndian.PutUint32(dst[0:], uint32(h.Rows))
	binary.LittleEndian.PutUint32(dst[4:], uint32(h.Columns))
	binary.LittleEndian.PutUint32(dst[8:], uint32(h.MaxIntensity))
	binary.LittleEndian.PutUint64(dst[12:], h.PixelCount)
}

// DecodeHeader deserializes a record header
func (c *RecordCodec) DecodeHeader(data []byte) (RecordHeader, error) {
	if len(data) < HeaderSize {
		return RecordHeader{}, fmt.Errorf("%w: record header needs %d bytes, got %d", ErrShortBuffer, HeaderSize, len(data))
	}

	return RecordHeader{
		Rows:         int32(binary.LittleEndian.Uint32(data[0:4])),
		Columns:      int32(binary.LittleEndian.Uint32(data[4:8])),
		MaxIntensity: int32(binary.LittleEndian.Uint32(data[8:12])),
		PixelCount:   binary.LittleEndian.Uint64(data[12:20]),
	}, nil
}

// EncodeEntry serializes a key entry
// Format: [Name(100)][Offset(8)][TotalSize(4)][Rows(4)][Columns(4)][MaxIntensity(4)][Active(4)]
func (c *RecordCodec) EncodeEntry(e KeyEntry) ([]byte, error) {
	if err := ValidateName(e.Name); err != nil {
		return nil, err
	}

	buf := make([]byte, EntrySize)
	copy(buf[:NameSize], e.Name)

	binary.LittleEndian.PutUint64(buf[100:], uint64(e.Offset))
	binary.LittleEndian.PutUint32(buf[108:], uint32(e.TotalSize))
	binary.LittleEndian.PutUint32(buf[112:], uint32(e.Rows))
	binary.LittleEndian.PutUint32(buf[116:], uint32(e.Columns))
	binary.LittleEndian.PutUint32(buf[120:], uint32(e.MaxIntensity))
	if e.Active {
		binary.LittleEndian.PutUint32(buf[124:], 1)
	}

	return buf, nil
}

// DecodeEntry deserializes a key entry
func (c *RecordCodec) DecodeEntry(data []byte) (KeyEntry, error) {
	if len(data) < EntrySize {
		return KeyEntry{}, fmt.Errorf("%w: key entry needs %d bytes, got %d", ErrShortBuffer, EntrySize, len(data))
	}

	i := bytes.IndexByte(data[:NameSize], 0)
	if i < 0 {
		return KeyEntry{}, fmt.Errorf("%w: name field is not terminated", ErrInvalidName)
	}
	name := data[:i]

	e := KeyEntry{
		Name:         string(name),
		Offset:       int64(binary.LittleEndian.Uint64(data[100:108])),
		TotalSize:    int32(binary.LittleEndian.Uint32(data[108:112])),
		Rows:         int32(binary.LittleEndian.Uint32(data[112:116])),
		Columns:      int32(binary.LittleEndian.Uint32(data[116:120])),
		MaxIntensity: int32(binary.LittleEndian.Uint32(data[120:124])),
	}

	switch flag := binary.LittleEndian.Uint32(data[124:128]); flag {
	case 0:
	case 1:
		e.Active = true
	default:
		return KeyEntry{}, fmt.Errorf("invalid active flag %d for entry %q", flag, e.Name)
	}

	if e.Offset < 0 || e.TotalSize < HeaderSize {
		return KeyEntry{}, fmt.Errorf("invalid location for entry %q: offset %d size %d", e.Name, e.Offset, e.TotalSize)
	}

	return e, nil
}
