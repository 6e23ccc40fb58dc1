package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ssargent/pgmstore/pkg/log"
	"github.com/ssargent/pgmstore/pkg/store"
	"github.com/ssargent/pgmstore/pkg/transform"
)

// PGMContentType is the media type of exported images
const PGMContentType = "image/x-portable-graymap"

// Server holds the API server state
type Server struct {
	store   IImageStore
	config  ServerConfig
	metrics *Metrics
	logger  *slog.Logger
}

// NewServer creates a new API server
func NewServer(store IImageStore, config ServerConfig, metrics *Metrics, logger *slog.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{
		store:   store,
		config:  config,
		metrics: metrics,
		logger:  logger.With(log.ComponentKey, "api"),
	}
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Get the health status of the API
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	APIResponse
//	@Router			/health [get]
//	@Security		ApiKeyAuth
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleListImages godoc
//
//	@Summary		List active images
//	@Tags			images
//	@Produce		json
//	@Success		200	{object}	APIResponse{data=[]ImageInfo}
//	@Failure		500	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/images [get]
func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	images := []ImageInfo{}
	for e, err := range s.store.ListActive() {
		if err != nil {
			s.metrics.RecordStoreOperation("list", false, time.Since(start))
			sendStoreError(w, err)
			return
		}
		images = append(images, imageInfo(e))
	}

	s.metrics.RecordStoreOperation("list", true, time.Since(start))
	sendSuccess(w, images)
}

// handleGetImage godoc
//
//	@Summary		Describe an active image
//	@Tags			images
//	@Produce		json
//	@Param			name	path		string	true	"Image name"
//	@Success		200		{object}	APIResponse{data=ImageInfo}
//	@Failure		404		{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/images/{name} [get]
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name, ok := imageName(w, r)
	if !ok {
		return
	}

	e, err := s.store.FindByName(name)
	s.metrics.RecordStoreOperation("find", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, err)
		return
	}
	sendSuccess(w, imageInfo(e))
}

// handleHistory godoc
//
//	@Summary		List every entry recorded under a name
//	@Description	Includes deleted entries that have not been compacted away, oldest first
//	@Tags			images
//	@Produce		json
//	@Param			name	path		string	true	"Image name"
//	@Success		200		{object}	APIResponse{data=[]ImageInfo}
//	@Failure		404		{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/images/{name}/history [get]
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name, ok := imageName(w, r)
	if !ok {
		return
	}

	entries, err := s.store.History(name)
	s.metrics.RecordStoreOperation("history", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, err)
		return
	}

	history := make([]ImageInfo, 0, len(entries))
	for _, e := range entries {
		history = append(history, imageInfo(e))
	}
	sendSuccess(w, history)
}

// handleExport godoc
//
//	@Summary		Download an image as PGM
//	@Tags			images
//	@Produce		octet-stream
//	@Param			name		path		string	true	"Image name"
//	@Param			transform	query		string	false	"none, negate or threshold"
//	@Param			threshold	query		int		false	"Cut for threshold (0-255, default 128)"
//	@Success		200			{file}		binary
//	@Failure		400			{object}	APIResponse
//	@Failure		404			{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/images/{name}/pgm [get]
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name, ok := imageName(w, r)
	if !ok {
		return
	}

	spec, err := parseTransform(r.URL.Query())
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Buffered so that a failure can still be reported as JSON
	var buf bytes.Buffer
	err = s.store.ExportTo(name, &buf, spec)
	s.metrics.RecordStoreOperation("export", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", PGMContentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".pgm"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handlePutImage godoc
//
//	@Summary		Insert an image
//	@Description	The body is a binary (P5) PGM. Fails with 409 while an active image has the same name.
//	@Tags			images
//	@Accept			octet-stream
//	@Produce		json
//	@Param			name	path		string	true	"Image name"
//	@Param			body	body		[]byte	true	"PGM image"
//	@Success		201		{object}	APIResponse{data=ImageInfo}
//	@Failure		400		{object}	APIResponse
//	@Failure		409		{object}	APIResponse
//	@Failure		413		{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/images/{name} [put]
func (s *Server) handlePutImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name, ok := imageName(w, r)
	if !ok {
		return
	}

	body := r.Body
	if s.config.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}

	e, err := s.store.InsertFrom(name, body)
	s.metrics.RecordStoreOperation("insert", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, err)
		return
	}

	s.refreshStats()
	s.logger.Info("image inserted", log.RequestIDKey, RequestID(r.Context()), "name", name, "size", e.TotalSize)
	sendJSON(w, http.StatusCreated, imageInfo(e))
}

// handleDeleteImage godoc
//
//	@Summary		Delete an image
//	@Description	Marks the active entry inactive; space is reclaimed by compaction
//	@Tags			images
//	@Produce		json
//	@Param			name	path		string	true	"Image name"
//	@Success		200		{object}	APIResponse
//	@Failure		404		{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/images/{name} [delete]
func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name, ok := imageName(w, r)
	if !ok {
		return
	}

	err := s.store.Delete(name)
	s.metrics.RecordStoreOperation("delete", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, err)
		return
	}

	s.refreshStats()
	s.logger.Info("image deleted", log.RequestIDKey, RequestID(r.Context()), "name", name)
	sendSuccess(w, map[string]string{"status": "deleted", "name": name})
}

// handleCompact godoc
//
//	@Summary		Compact the data log
//	@Tags			maintenance
//	@Produce		json
//	@Success		200	{object}	APIResponse{data=CompactResponse}
//	@Failure		500	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/compact [post]
func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	result, err := s.store.Compact()
	s.metrics.RecordStoreOperation("compact", err == nil, time.Since(start))
	s.metrics.RecordCompaction(result)
	if err != nil {
		s.logger.Error("compaction failed", log.RequestIDKey, RequestID(r.Context()), "error", err)
		sendStoreError(w, err)
		return
	}

	s.refreshStats()
	sendSuccess(w, CompactResponse{
		RunID:           result.RunID,
		EntriesBefore:   result.EntriesBefore,
		EntriesAfter:    result.EntriesAfter,
		DataBytesBefore: result.DataBytesBefore,
		DataBytesAfter:  result.DataBytesAfter,
		ReclaimedBytes:  result.Reclaimed(),
		DurationMillis:  result.Duration.Milliseconds(),
	})
}

// handleStats godoc
//
//	@Summary		Get store statistics
//	@Tags			maintenance
//	@Produce		json
//	@Success		200	{object}	APIResponse{data=StatsResponse}
//	@Security		ApiKeyAuth
//	@Router			/stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		sendStoreError(w, err)
		return
	}
	s.metrics.UpdateStoreStats(stats)

	sendSuccess(w, StatsResponse{
		Entries:         stats.Entries,
		ActiveEntries:   stats.ActiveEntries,
		InactiveEntries: stats.InactiveEntries,
		DataLogBytes:    stats.DataLogBytes,
		IndexBytes:      stats.IndexBytes,
		LiveBytes:       stats.LiveBytes,
		DeadBytes:       stats.DeadBytes,
	})
}

// refreshStats updates the store gauges; failures only get logged
func (s *Server) refreshStats() {
	stats, err := s.store.Stats()
	if err != nil {
		if !errors.Is(err, store.ErrStoreClosed) {
			s.logger.Warn("reading store stats", "error", err)
		}
		return
	}
	s.metrics.UpdateStoreStats(stats)
}

func imageName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		sendError(w, "Invalid image name", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func parseTransform(q url.Values) (transform.Spec, error) {
	kind, err := transform.ParseKind(q.Get("transform"))
	if err != nil {
		return transform.Spec{}, err
	}

	spec := transform.Spec{Kind: kind, Cut: transform.DefaultCut}
	if raw := q.Get("threshold"); raw != "" {
		cut, err := strconv.Atoi(raw)
		if err != nil || cut < 0 || cut > 255 {
			return transform.Spec{}, fmt.Errorf("threshold must be an integer in 0..255, got %q", raw)
		}
		spec.Cut = cut
	}
	return spec, nil
}
