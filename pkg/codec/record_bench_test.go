//go:build bench
// +build bench

package codec

import (
	"testing"
)

func BenchmarkRecordCodec_EncodeEntry(b *testing.B) {
	codec := NewRecordCodec()
	entry := KeyEntry{Name: "benchmark-image", Offset: 123456, TotalSize: 1044, Rows: 32, Columns: 32, MaxIntensity: 255, Active: true}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.EncodeEntry(entry); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRecordCodec_DecodeEntry(b *testing.B) {
	codec := NewRecordCodec()
	encoded, err := codec.EncodeEntry(KeyEntry{Name: "benchmark-image", Offset: 123456, TotalSize: 1044, Active: true})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.DecodeEntry(encoded); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRecordCodec_Header(b *testing.B) {
	codec := NewRecordCodec()
	header := RecordHeader{Rows: 1024, Columns: 768, MaxIntensity: 255, PixelCount: 1024 * 768}
	buf := make([]byte, HeaderSize)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		codec.PutHeader(buf, header)
		if _, err := codec.DecodeHeader(buf); err != nil {
			b.Fatal(err)
		}
	}
}
