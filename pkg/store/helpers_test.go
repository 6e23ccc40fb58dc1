package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssargent/pgmstore/pkg/pgm"
)

// newTestStore opens a store in a fresh temporary directory
func newTestStore(t *testing.T) *ImageStore {
	t.Helper()

	s, err := NewImageStore(Config{DataDir: t.TempDir()})
	require.NoError(t, err)

	_, err = s.Open()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// reopen closes s and opens a new store over the same files
func reopen(t *testing.T, s *ImageStore) (*ImageStore, *RecoveryResult) {
	t.Helper()
	require.NoError(t, s.Close())

	again, err := NewImageStore(s.config)
	require.NoError(t, err)
	result, err := again.Open()
	require.NoError(t, err)
	t.Cleanup(func() { again.Close() })
	return again, result
}

func testImage(rows, columns int, seed byte) *pgm.Image {
	img := pgm.New(rows, columns, 255)
	for i := range img.Pixels {
		img.Pixels[i] = seed + byte(i*7)
	}
	return img
}

// writePGM writes img as a .pgm file under dir and returns its path
func writePGM(t *testing.T, dir, name string, img *pgm.Image) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, pgm.Encode(&buf, img))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
	return path
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()

	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func activeNames(t *testing.T, s *ImageStore) []string {
	t.Helper()

	var names []string
	for e, err := range s.ListActive() {
		require.NoError(t, err)
		names = append(names, e.Name)
	}
	return names
}
