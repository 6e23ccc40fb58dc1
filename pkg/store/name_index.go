package store

import (
	"github.com/ssargent/pgmstore/pkg/codec"
)

// NameRef locates the active entry for a name
type NameRef struct {
	Slot  int64
	Entry codec.KeyEntry
}

// NameIndex maps each name to its single active key entry. It mirrors the
// key index and is rebuilt from it on open and after compaction. Callers
// hold the ImageStore mutex.
type NameIndex struct {
	entries map[string]NameRef
}

// NewNameIndex creates an empty name index
func NewNameIndex() *NameIndex {
	return &NameIndex{
		entries: make(map[string]NameRef),
	}
}

// Put records the active entry for its name
func (idx *NameIndex) Put(slot int64, entry codec.KeyEntry) {
	idx.entries[entry.Name] = NameRef{Slot: slot, Entry: entry}
}

// Get retrieves the active entry for name
func (idx *NameIndex) Get(name string) (NameRef, bool) {
	ref, exists := idx.entries[name]
	return ref, exists
}

// Delete forgets name
func (idx *NameIndex) Delete(name string) {
	delete(idx.entries, name)
}

// Build replaces the contents with the active entries of a full index scan.
// When several active entries share a name the latest slot wins; the slots
// it displaced are returned so the caller can deactivate them.
func (idx *NameIndex) Build(entries []codec.KeyEntry) (displaced []int64) {
	idx.entries = make(map[string]NameRef)
	for slot, e := range entries {
		if !e.Active {
			continue
		}
		if prev, ok := idx.entries[e.Name]; ok {
			displaced = append(displaced, prev.Slot)
		}
		idx.entries[e.Name] = NameRef{Slot: int64(slot), Entry: e}
	}
	return displaced
}
