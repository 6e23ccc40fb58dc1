package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pgmstore/pkg/api"
	"github.com/ssargent/pgmstore/pkg/config"
	"github.com/ssargent/pgmstore/pkg/di"
	"github.com/ssargent/pgmstore/pkg/pgm"
	"github.com/ssargent/pgmstore/pkg/store"
)

// resetCommands clears flag values and contexts left behind by an earlier run
// of the shared command tree.
func resetCommands(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	c.SetContext(context.Background())
	for _, sub := range c.Commands() {
		resetCommands(sub)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	resetCommands(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func setup(t *testing.T) (dataDir string, catPath string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	SetContainer(di.NewContainer())

	dir := t.TempDir()
	catPath = filepath.Join(dir, "cat.pgm")
	img := &pgm.Image{Rows: 2, Columns: 2, MaxIntensity: 255, Pixels: []byte{10, 200, 50, 255}}
	require.NoError(t, pgm.EncodeFile(catPath, img))
	return filepath.Join(dir, "data"), catPath
}

func TestImageCommands(t *testing.T) {
	dataDir, catPath := setup(t)
	outPath := filepath.Join(t.TempDir(), "negative.pgm")

	out, err := execute(t, "", "insert", catPath, "cat", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, `Inserted "cat" (2x2, 24 bytes at offset 0)`)

	out, err = execute(t, "", "list", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "cat")
	assert.Contains(t, out, "Total: 1 active images")

	out, err = execute(t, "", "find", "cat", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Dimensions: 2x2")
	assert.Contains(t, out, "Offset:     0")

	out, err = execute(t, "", "export", "cat", outPath, "--transform", "negate", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "negate")

	img, err := pgm.DecodeFile(outPath, pgm.DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, []byte{245, 55, 205, 0}, img.Pixels)

	out, err = execute(t, "", "check", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Checked 1 active images, 0 problems")

	_, err = execute(t, "", "delete", "cat", "-d", dataDir)
	require.NoError(t, err)

	_, err = execute(t, "", "find", "cat", "-d", dataDir)
	assert.ErrorIs(t, err, store.ErrNotFound)

	out, err = execute(t, "", "list", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "No active images.")

	_, err = execute(t, "", "insert", catPath, "cat", "-d", dataDir)
	require.NoError(t, err)

	out, err = execute(t, "", "history", "cat", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "false")
	assert.Contains(t, out, "true")

	out, err = execute(t, "", "stats", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:    2 (1 active, 1 deleted)")
	assert.Contains(t, out, "Dead bytes: 24")

	out, err = execute(t, "", "compact", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 2 -> 1")
	assert.Contains(t, out, "(24 reclaimed)")

	out, err = execute(t, "", "find", "cat", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Offset:     0")
}

func TestInsertDuplicate(t *testing.T) {
	dataDir, catPath := setup(t)

	_, err := execute(t, "", "insert", catPath, "cat", "-d", dataDir)
	require.NoError(t, err)

	_, err = execute(t, "", "insert", catPath, "cat", "-d", dataDir)
	assert.ErrorIs(t, err, store.ErrDuplicateActiveName)
}

func TestExportFlags(t *testing.T) {
	dataDir, catPath := setup(t)
	_, err := execute(t, "", "insert", catPath, "cat", "-d", dataDir)
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "bw.pgm")
	_, err = execute(t, "", "export", "cat", outPath, "-t", "threshold", "--threshold", "100", "-d", dataDir)
	require.NoError(t, err)

	img, err := pgm.DecodeFile(outPath, pgm.DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 255, 0, 255}, img.Pixels)

	_, err = execute(t, "", "export", "cat", outPath, "-t", "threshold", "--threshold", "300", "-d", dataDir)
	assert.ErrorContains(t, err, "between 0 and 255")

	_, err = execute(t, "", "export", "cat", outPath, "-t", "sepia", "-d", dataDir)
	assert.ErrorContains(t, err, "unknown transform")
}

func TestRootRunsShell(t *testing.T) {
	dataDir, catPath := setup(t)

	out, err := execute(t, "1 "+catPath+" cat 2 0", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "PGM IMAGE STORE")
	assert.Contains(t, out, "Total: 1 active images")
	assert.Contains(t, out, "Bye.")

	out, err = execute(t, "", "shell", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "PGM IMAGE STORE")
}

func TestGlobalFlags(t *testing.T) {
	dataDir, _ := setup(t)

	_, err := execute(t, "", "list", "-d", dataDir, "--log-level", "loud")
	assert.Error(t, err)

	_, err = execute(t, "", "list", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.Logging.Level = "error"
	require.NoError(t, config.SaveConfig(cfg, configPath))

	out, err := execute(t, "", "list", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No active images.")
	assert.DirExists(t, dataDir)
}

func TestConfigInit(t *testing.T) {
	setup(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	dataDir := filepath.Join(t.TempDir(), "images")

	out, err := execute(t, "", "config", "init", "--config", configPath, "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to "+configPath)

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Len(t, cfg.Server.APIKey, 64)

	_, err = execute(t, "", "config", "init", "--config", configPath)
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "", "config", "init", "--config", configPath, "--force")
	require.NoError(t, err)

	again, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Server.APIKey, again.Server.APIKey)
}

type recordingStarter struct {
	config api.ServerConfig
	called bool
}

func (r *recordingStarter) StartServer(_ context.Context, _ api.IImageStore, config api.ServerConfig, _ *slog.Logger) error {
	r.called = true
	r.config = config
	return nil
}

type recordingFactory struct {
	starter *recordingStarter
}

func (f *recordingFactory) CreateServerStarter() api.ServerStarter {
	return f.starter
}

func TestServe(t *testing.T) {
	dataDir, _ := setup(t)

	starter := &recordingStarter{}
	container := di.NewContainer()
	container.SetServerFactory(&recordingFactory{starter: starter})
	SetContainer(container)

	out, err := execute(t, "", "serve", "-d", dataDir, "--port", "9099", "--api-key", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "http://127.0.0.1:9099")

	require.True(t, starter.called)
	assert.Equal(t, "127.0.0.1", starter.config.Bind)
	assert.Equal(t, 9099, starter.config.Port)
	assert.Equal(t, "secret", starter.config.APIKey)
	assert.Equal(t, int64(store.DefaultMaxPixels+uploadHeaderSlack), starter.config.MaxUploadBytes)
	assert.Equal(t, statsInterval, starter.config.StatsInterval)
}

func TestServeRejectsBadPort(t *testing.T) {
	dataDir, _ := setup(t)

	_, err := execute(t, "", "serve", "-d", dataDir, "--port", "70000")
	assert.ErrorContains(t, err, "out of range")
}

func TestRecoveryIsReported(t *testing.T) {
	dataDir, catPath := setup(t)
	_, err := execute(t, "", "insert", catPath, "cat", "-d", dataDir)
	require.NoError(t, err)

	f, err := os.OpenFile(filepath.Join(dataDir, store.DefaultIndexFile), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 50))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := execute(t, "", "list", "-d", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "50 trailing key index bytes truncated")
}

func TestExportGzip(t *testing.T) {
	dataDir, catPath := setup(t)
	_, err := execute(t, "", "insert", catPath, "cat", "-d", dataDir)
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "cat.pgm.gz")
	_, err = execute(t, "", "export", "cat", outPath, "--gzip", "-t", "negate", "-d", dataDir)
	require.NoError(t, err)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	img, err := pgm.Decode(zr)
	require.NoError(t, err)
	assert.Equal(t, []byte{245, 55, 205, 0}, img.Pixels)

	_, err = execute(t, "", "export", "dog", filepath.Join(t.TempDir(), "dog.pgm.gz"), "--gzip", "-d", dataDir)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
