// Package api pgmstore REST API
//
// @title           pgmstore REST API
// @version         1.0.0
// @description     Named storage, export and compaction of binary PGM images.
// @host            localhost:8080
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/swaggo/swag"
)

const defaultStatsInterval = 15 * time.Second

// Routes builds the router: the authenticated API under /api/v1 plus the
// unauthenticated /metrics and /swagger endpoints
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link", RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", s.metrics.Handler())

	m := s.metrics
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", m.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		r.Get("/images", m.InstrumentHandler("GET", "/api/v1/images", s.handleListImages))
		r.Get("/images/{name}", m.InstrumentHandler("GET", "/api/v1/images/{name}", s.handleGetImage))
		r.Put("/images/{name}", m.InstrumentHandler("PUT", "/api/v1/images/{name}", s.handlePutImage))
		r.Delete("/images/{name}", m.InstrumentHandler("DELETE", "/api/v1/images/{name}", s.handleDeleteImage))
		r.Get("/images/{name}/history", m.InstrumentHandler("GET", "/api/v1/images/{name}/history", s.handleHistory))
		r.Get("/images/{name}/pgm", m.InstrumentHandler("GET", "/api/v1/images/{name}/pgm", s.handleExport))

		r.Post("/compact", m.InstrumentHandler("POST", "/api/v1/compact", s.handleCompact))
		r.Get("/stats", m.InstrumentHandler("GET", "/api/v1/stats", s.handleStats))
	})

	r.Get("/swagger/doc.json", s.handleSwaggerDoc)

	return r
}

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	if err != nil {
		s.logger.Error("generating swagger doc", "error", err)
		sendError(w, "Failed to generate Swagger documentation", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// StartServer serves the API until ctx is cancelled, then shuts down
// gracefully
func StartServer(ctx context.Context, st IImageStore, config ServerConfig, logger *slog.Logger) error {
	SwaggerInfo.Host = config.Addr()

	server := NewServer(st, config, NewMetrics(), logger)
	httpServer := &http.Server{
		Addr:              config.Addr(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go server.startMetricsUpdater(ctx)

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("starting REST API server", "addr", httpServer.Addr,
			"metrics", fmt.Sprintf("http://%s/metrics", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	server.logger.Info("shutting down REST API server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return httpServer.Shutdown(shutdownCtx)
}

// startMetricsUpdater refreshes the store gauges until ctx is done
func (s *Server) startMetricsUpdater(ctx context.Context) {
	interval := s.config.StatsInterval
	if interval <= 0 {
		interval = defaultStatsInterval
	}

	s.refreshStats()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshStats()
		}
	}
}
