// Package codec provides the on-disk record layouts used by pgmstore.
//
// Two structures are persisted: the record header written in front of every
// image in the data log, and the fixed-size key entry written to the key
// index. Both use an explicit little-endian layout without padding so that
// files are portable between architectures.
//
// # Record Header
//
//	[Rows(4)][Columns(4)][MaxIntensity(4)][PixelCount(8)]
//
// The header is immediately followed by PixelCount raw pixel bytes. The total
// record size is: 20 bytes (header) + PixelCount.
//
// # Key Entry
//
//	[Name(100)][Offset(8)][TotalSize(4)][Rows(4)][Columns(4)][MaxIntensity(4)][Active(4)]
//
// Fields:
//   - Name: zero-padded image name, at most 99 bytes
//   - Offset: signed byte offset of the record header in the data log
//   - TotalSize: header size plus pixel count
//   - Rows, Columns, MaxIntensity: copied from the record header
//   - Active: 1 for a live image, 0 for a soft-deleted one
//
// Every entry is exactly 128 bytes, so entry i lives at byte i*128 of the
// index and can be overwritten in place.
//
// # Usage
//
//	c := codec.NewRecordCodec()
//
//	buf, err := c.EncodeEntry(codec.KeyEntry{Name: "cat", TotalSize: 24, Active: true})
//	if err != nil {
//	    return err
//	}
//
//	entry, err := c.DecodeEntry(buf)
//	if err != nil {
//	    return err
//	}
//
// RecordCodec instances hold no state and are safe for concurrent use.
package codec
