package di

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pgmstore/pkg/api"
	"github.com/ssargent/pgmstore/pkg/config"
	"github.com/ssargent/pgmstore/pkg/store"
)

type fakeStarter struct{ called bool }

func (f *fakeStarter) StartServer(context.Context, api.IImageStore, api.ServerConfig, *slog.Logger) error {
	f.called = true
	return nil
}

type fakeFactory struct{ starter *fakeStarter }

func (f *fakeFactory) CreateServerStarter() api.ServerStarter { return f.starter }

func TestContainer_OpenStore(t *testing.T) {
	c := NewContainer()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	s, recovery, err := c.OpenStore(cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 0, recovery.EntriesLoaded)
	dataLog, keyIndex := s.Paths()
	assert.FileExists(t, dataLog)
	assert.FileExists(t, keyIndex)
}

func TestContainer_SetStoreOpener(t *testing.T) {
	c := NewContainer()

	var got store.Config
	c.SetStoreOpener(func(sc store.Config) (*store.ImageStore, *store.RecoveryResult, error) {
		got = sc
		return nil, nil, store.ErrIO
	})

	cfg := config.DefaultConfig()
	cfg.DataDir = "/somewhere"
	_, _, err := c.OpenStore(cfg, slog.Default())
	assert.ErrorIs(t, err, store.ErrIO)
	assert.Equal(t, "/somewhere", got.DataDir)
	assert.NotNil(t, got.Logger)
}

func TestContainer_NewLogger(t *testing.T) {
	c := NewContainer()
	cfg := config.DefaultConfig()
	cfg.Logging.Format = "json"

	var buf bytes.Buffer
	logger, err := c.NewLogger(cfg, &buf)
	require.NoError(t, err)

	logger.Info("starting", "api_key", "topsecret")
	assert.Contains(t, buf.String(), `"msg":"starting"`)
	assert.NotContains(t, buf.String(), "topsecret")

	cfg.Logging.Level = "loud"
	_, err = c.NewLogger(cfg, &buf)
	assert.Error(t, err)
}

func TestContainer_ServerFactory(t *testing.T) {
	c := NewContainer()
	assert.NotNil(t, c.GetServerFactory())

	starter := &fakeStarter{}
	c.SetServerFactory(&fakeFactory{starter: starter})
	require.NoError(t, c.GetServerFactory().CreateServerStarter().StartServer(context.Background(), nil, api.ServerConfig{}, nil))
	assert.True(t, starter.called)
}
