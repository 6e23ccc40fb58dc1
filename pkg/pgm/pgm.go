// Package pgm reads and writes binary portable graymaps (P5).
package pgm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/kjk/common/atomicfile"
)

// Magic is the token that opens every binary graymap.
const Magic = "P5"

// DefaultMaxPixels bounds the pixel buffer Decode is willing to allocate.
const DefaultMaxPixels = 1 << 28

var (
	ErrFormat   = errors.New("malformed pgm data")
	ErrTooLarge = errors.New("pgm image too large")
)

// Image is a grayscale raster with one byte per pixel.
type Image struct {
	Rows         int
	Columns      int
	MaxIntensity int
	Pixels       []byte
}

// New allocates a zeroed image.
func New(rows, columns, maxIntensity int) *Image {
	return &Image{
		Rows:         rows,
		Columns:      columns,
		MaxIntensity: maxIntensity,
		Pixels:       make([]byte, rows*columns),
	}
}

// PixelCount returns Rows*Columns.
func (img *Image) PixelCount() int {
	return img.Rows * img.Columns
}

// Validate checks the size and intensity invariants.
func (img *Image) Validate() error {
	if img.Rows < 0 || img.Columns < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrFormat, img.Columns, img.Rows)
	}
	if int64(img.Rows) > math.MaxInt32 || int64(img.Columns) > math.MaxInt32 {
		return fmt.Errorf("%w: dimensions %dx%d exceed %d", ErrFormat, img.Columns, img.Rows, math.MaxInt32)
	}
	if img.MaxIntensity < 1 || img.MaxIntensity > 255 {
		return fmt.Errorf("%w: max intensity %d outside 1..255", ErrFormat, img.MaxIntensity)
	}
	// both factors fit in 31 bits, so the product cannot wrap
	if int64(len(img.Pixels)) != int64(img.Rows)*int64(img.Columns) {
		return fmt.Errorf("%w: %d pixels for %dx%d image", ErrFormat, len(img.Pixels), img.Columns, img.Rows)
	}
	return nil
}

// Decode reads a P5 image, refusing images larger than DefaultMaxPixels.
func Decode(r io.Reader) (*Image, error) {
	return DecodeLimit(r, DefaultMaxPixels)
}

// DecodeLimit reads a P5 image whose pixel count may not exceed maxPixels.
func DecodeLimit(r io.Reader, maxPixels int64) (*Image, error) {
	br := bufio.NewReader(r)

	magic, err := readToken(br)
	if err != nil {
		return nil, fmt.Errorf("%w: reading magic: %w", ErrFormat, err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: magic %q, expected %q", ErrFormat, magic, Magic)
	}

	columns, err := readInt(br, "width")
	if err != nil {
		return nil, err
	}
	rows, err := readInt(br, "height")
	if err != nil {
		return nil, err
	}
	maxIntensity, err := readInt(br, "max intensity")
	if err != nil {
		return nil, err
	}
	if maxIntensity < 1 || maxIntensity > 255 {
		return nil, fmt.Errorf("%w: max intensity %d outside 1..255", ErrFormat, maxIntensity)
	}

	// readToken stopped on the single whitespace byte that ends the header
	if _, err := br.ReadByte(); err != nil {
		return nil, fmt.Errorf("%w: missing raster: %w", ErrFormat, err)
	}

	if columns != 0 && int64(rows) > maxPixels/int64(columns) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, columns, rows, maxPixels)
	}
	count := int64(rows) * int64(columns)

	img := &Image{Rows: rows, Columns: columns, MaxIntensity: maxIntensity}
	img.Pixels = make([]byte, count)
	if _, err := io.ReadFull(br, img.Pixels); err != nil {
		return nil, fmt.Errorf("%w: raster truncated: %w", ErrFormat, err)
	}
	return img, nil
}

// DecodeFile opens path and decodes it.
func DecodeFile(path string, maxPixels int64) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeLimit(f, maxPixels)
}

// Encode writes img as P5.
func Encode(w io.Writer, img *Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\n%d %d\n%d\n", Magic, img.Columns, img.Rows, img.MaxIntensity); err != nil {
		return err
	}
	_, err := w.Write(img.Pixels)
	return err
}

// EncodeFile writes img to path through a temporary file, so a failed
// export never leaves a partial image behind.
func EncodeFile(path string, img *Image) error {
	f, err := atomicfile.New(path)
	if err != nil {
		return err
	}
	defer f.RemoveIfNotClosed()

	bw := bufio.NewWriter(f)
	if err := Encode(bw, img); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func readInt(br *bufio.Reader, field string) (int, error) {
	tok, err := readToken(br)
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s: %w", ErrFormat, field, err)
	}
	n, err := strconv.ParseInt(tok, 10, 32)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad %s %q", ErrFormat, field, tok)
	}
	return int(n), nil
}

// readToken skips whitespace and # comments, then returns the next run of
// non-whitespace bytes. The delimiter after the token is left unread.
func readToken(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(tok) > 0 {
				return string(tok), nil
			}
			if err == io.EOF {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}

		switch {
		case c == '#' && len(tok) == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", io.ErrUnexpectedEOF
			}
		case isSpace(c):
			if len(tok) > 0 {
				return string(tok), br.UnreadByte()
			}
		default:
			if len(tok) >= 32 {
				return "", fmt.Errorf("token too long")
			}
			tok = append(tok, c)
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
