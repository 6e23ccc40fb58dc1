package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ssargent/pgmstore/pkg/codec"
)

// KeyIndex is the flat file of fixed-size key entries. Entry n (its slot)
// starts at byte n*codec.EntrySize.
type KeyIndex struct {
	path  string
	file  *os.File
	codec *codec.RecordCodec
	sync  bool
	count int64
}

// OpenKeyIndex opens or creates the key index at path. Trailing bytes that do
// not form a whole entry are ignored; Open truncates them beforehand.
func OpenKeyIndex(path string, sync bool) (*KeyIndex, error) {
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

	return &KeyIndex{
		path:  path,
		file:  file,
		codec: codec.NewRecordCodec(),
		sync:  sync,
		count: stat.Size() / codec.EntrySize,
	}, nil
}

// Len returns the number of entries
func (x *KeyIndex) Len() int64 {
	return x.count
}

// Size returns the index length in bytes
func (x *KeyIndex) Size() int64 {
	return x.count * codec.EntrySize
}

// Path returns the file path
func (x *KeyIndex) Path() string {
	return x.path
}

// Append writes e after the last entry and returns its slot
func (x *KeyIndex) Append(e codec.KeyEntry) (int64, error) {
	slot := x.count
	if err := x.write(slot, e); err != nil {
		return 0, err
	}
	x.count++
	return slot, nil
}

// Put overwrites the entry in an existing slot
func (x *KeyIndex) Put(slot int64, e codec.KeyEntry) error {
	if slot < 0 || slot >= x.count {
		return fmt.Errorf("slot %d out of range [0,%d)", slot, x.count)
	}
	return x.write(slot, e)
}

// Get reads the entry in slot
func (x *KeyIndex) Get(slot int64) (codec.KeyEntry, error) {
	if slot < 0 || slot >= x.count {
		return codec.KeyEntry{}, fmt.Errorf("slot %d out of range [0,%d)", slot, x.count)
	}

	buf := make([]byte, codec.EntrySize)
	if _, err := x.file.ReadAt(buf, slot*codec.EntrySize); err != nil {
		return codec.KeyEntry{}, readError("key entry", slot*codec.EntrySize, err)
	}
	return x.decode(slot, buf)
}

// LoadAll reads every entry in slot order
func (x *KeyIndex) LoadAll() ([]codec.KeyEntry, error) {
	if x.count == 0 {
		return nil, nil
	}

	buf := make([]byte, x.Size())
	if _, err := x.file.ReadAt(buf, 0); err != nil {
		return nil, readError("key index", 0, err)
	}

	entries := make([]codec.KeyEntry, 0, x.count)
	for slot := int64(0); slot < x.count; slot++ {
		e, err := x.decode(slot, buf[slot*codec.EntrySize:])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close closes the underlying file
func (x *KeyIndex) Close() error {
	return x.file.Close()
}

func (x *KeyIndex) write(slot int64, e codec.KeyEntry) error {
	buf, err := x.codec.EncodeEntry(e)
	if err != nil {
		return err
	}
	if _, err := x.file.WriteAt(buf, slot*codec.EntrySize); err != nil {
		return err
	}
	if x.sync {
		return x.file.Sync()
	}
	return nil
}

func (x *KeyIndex) decode(slot int64, buf []byte) (codec.KeyEntry, error) {
	e, err := x.codec.DecodeEntry(buf)
	if err != nil {
		return codec.KeyEntry{}, fmt.Errorf("%w: key entry %d: %w", ErrCorruptRecord, slot, err)
	}
	return e, nil
}

// encodeEntries packs entries back to back, as the index file stores them
func encodeEntries(c *codec.RecordCodec, entries []codec.KeyEntry) ([]byte, error) {
	buf := make([]byte, 0, len(entries)*codec.EntrySize)
	for _, e := range entries {
		b, err := c.EncodeEntry(e)
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return buf, nil
}
