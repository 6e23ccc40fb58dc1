package codec_test

import (
	"fmt"
	"log"

	"github.com/ssargent/pgmstore/pkg/codec"
)

// ExampleRecordCodec_EncodeEntry demonstrates packing a key entry
func ExampleRecordCodec_EncodeEntry() {
	c := codec.NewRecordCodec()

	entry := codec.KeyEntry{
		Name:         "cat",
		Offset:       0,
		TotalSize:    codec.HeaderSize + 4,
		Rows:         2,
		Columns:      2,
		MaxIntensity: 255,
		Active:       true,
	}

	encoded, err := c.EncodeEntry(entry)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Encoded %d bytes\n", len(encoded))

	decoded, err := c.DecodeEntry(encoded)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Name: %s\n", decoded.Name)
	fmt.Printf("Size: %d\n", decoded.TotalSize)
	fmt.Printf("Active: %t\n", decoded.Active)

	// Output:
	// Encoded 128 bytes
	// Name: cat
	// Size: 24
	// Active: true
}

// ExampleRecordCodec_EncodeHeader demonstrates the record header layout
func ExampleRecordCodec_EncodeHeader() {
	c := codec.NewRecordCodec()

	header := codec.RecordHeader{Rows: 2, Columns: 3, MaxIntensity: 255, PixelCount: 6}
	encoded := c.EncodeHeader(header)

	fmt.Printf("% x\n", encoded)
	fmt.Printf("Record size: %d\n", header.RecordSize())

	// Output:
	// 02 00 00 00 03 00 00 00 ff 00 00 00 06 00 00 00 00 00 00 00
	// Record size: 26
}
