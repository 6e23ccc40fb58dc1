// Package di provides dependency injection container
package di

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ssargent/pgmstore/pkg/api" //nolint:depguard
	"github.com/ssargent/pgmstore/pkg/config"
	"github.com/ssargent/pgmstore/pkg/log"
	"github.com/ssargent/pgmstore/pkg/store"
)

// StoreOpener opens an image store
type StoreOpener func(cfg store.Config) (*store.ImageStore, *store.RecoveryResult, error)

// Container holds all the dependencies for the application
type Container struct {
	serverFactory api.ServerFactory
	storeOpener   StoreOpener
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		serverFactory: api.NewServerFactory(),
		storeOpener:   OpenImageStore,
	}
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// SetStoreOpener allows overriding how stores are opened (for testing)
func (c *Container) SetStoreOpener(opener StoreOpener) {
	c.storeOpener = opener
}

// NewLogger builds the logger described by cfg.Logging. The API key is
// never written to the log.
func (c *Container) NewLogger(cfg *config.Config, out io.Writer) (*slog.Logger, error) {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return log.New(log.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: out,
		Redact: []string{"api_key"},
	})
}

// OpenStore opens the image store described by cfg
func (c *Container) OpenStore(cfg *config.Config, logger *slog.Logger) (*store.ImageStore, *store.RecoveryResult, error) {
	sc := cfg.StoreConfig()
	sc.Logger = logger
	return c.storeOpener(sc)
}

// OpenImageStore creates and opens a store
func OpenImageStore(cfg store.Config) (*store.ImageStore, *store.RecoveryResult, error) {
	s, err := store.NewImageStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	recovery, err := s.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, recovery, nil
}
