package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pgmstore/pkg/pgm"
	"github.com/ssargent/pgmstore/pkg/store"
)

// setupTestServer creates a server over a store in a temporary directory
func setupTestServer(t *testing.T, config ServerConfig) (*Server, *store.ImageStore, http.Handler) {
	t.Helper()

	st, err := store.NewImageStore(store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	_, err = st.Open()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	server := NewServer(st, config, NewMetrics(), nil)
	return server, st, server.Routes()
}

func catPGM(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	img := &pgm.Image{Rows: 2, Columns: 2, MaxIntensity: 255, Pixels: []byte{10, 200, 50, 255}}
	require.NoError(t, pgm.Encode(&buf, img))
	return buf.Bytes()
}

func doRequest(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data interface{}) APIResponse {
	t.Helper()

	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return APIResponse{Success: raw.Success, Error: raw.Error}
}

func TestServer_Health(t *testing.T) {
	_, _, h := setupTestServer(t, ServerConfig{})

	w := doRequest(t, h, "GET", "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	var data map[string]string
	resp := decodeResponse(t, w, &data)
	assert.True(t, resp.Success)
	assert.Equal(t, "healthy", data["status"])
}

func TestServer_PutGetList(t *testing.T) {
	_, _, h := setupTestServer(t, ServerConfig{})

	w := doRequest(t, h, "PUT", "/api/v1/images/cat", catPGM(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created ImageInfo
	decodeResponse(t, w, &created)
	assert.Equal(t, ImageInfo{Name: "cat", Offset: 0, TotalSize: 24, Rows: 2, Columns: 2, MaxIntensity: 255, Active: true}, created)

	w = doRequest(t, h, "GET", "/api/v1/images/cat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found ImageInfo
	decodeResponse(t, w, &found)
	assert.Equal(t, created, found)

	w = doRequest(t, h, "GET", "/api/v1/images", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []ImageInfo
	decodeResponse(t, w, &list)
	assert.Equal(t, []ImageInfo{created}, list)
}

func TestServer_ListEmpty(t *testing.T) {
	_, _, h := setupTestServer(t, ServerConfig{})

	w := doRequest(t, h, "GET", "/api/v1/images", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestServer_PutErrors(t *testing.T) {
	_, _, h := setupTestServer(t, ServerConfig{MaxUploadBytes: 64})

	w := doRequest(t, h, "PUT", "/api/v1/images/cat", catPGM(t))
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name   string
		path   string
		body   []byte
		status int
	}{
		{"duplicate name", "/api/v1/images/cat", catPGM(t), http.StatusConflict},
		{"not a pgm", "/api/v1/images/dog", []byte("hello"), http.StatusBadRequest},
		{"plain pgm", "/api/v1/images/dog", []byte("P2\n1 1\n255\n0\n"), http.StatusBadRequest},
		{"body too large", "/api/v1/images/big", append([]byte("P5\n10 10\n255\n"), make([]byte, 100)...), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, "PUT", tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decodeResponse(t, w, nil)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestServer_GetNotFound(t *testing.T) {
	_, _, h := setupTestServer(t, ServerConfig{})

	for _, path := range []string{
		"/api/v1/images/ghost",
		"/api/v1/images/ghost/history",
		"/api/v1/images/ghost/pgm",
	} {
		w := doRequest(t, h, "GET", path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	w := doRequest(t, h, "DELETE", "/api/v1/images/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Export(t *testing.T) {
	_, _, h := setupTestServer(t, ServerConfig{})
	require.Equal(t, http.StatusCreated, doRequest(t, h, "PUT", "/api/v1/images/cat", catPGM(t)).Code)

	tests := []struct {
		query string
		want  []byte
	}{
		{"", []byte{10, 200, 50, 255}},
		{"?transform=negate", []byte{245, 55, 205, 0}},
		{"?transform=threshold", []byte{0, 255, 0, 255}},
		{"?transform=threshold&threshold=40", []byte{0, 255, 255, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := doRequest(t, h, "GET", "/api/v1/images/cat/pgm"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, PGMContentType, w.Header().Get("Content-Type"))

			img, err := pgm.Decode(w.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, img.Pixels)
		})
	}

	for _, query := range []string{"?transform=blur", "?transform=threshold&threshold=256", "?threshold=abc"} {
		w := doRequest(t, h, "GET", "/api/v1/images/cat/pgm"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestServer_DeleteHistoryCompact(t *testing.T) {
	_, st, h := setupTestServer(t, ServerConfig{})

	require.Equal(t, http.StatusCreated, doRequest(t, h, "PUT", "/api/v1/images/cat", catPGM(t)).Code)
	require.Equal(t, http.StatusOK, doRequest(t, h, "DELETE", "/api/v1/images/cat", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, h, "DELETE", "/api/v1/images/cat", nil).Code)
	require.Equal(t, http.StatusCreated, doRequest(t, h, "PUT", "/api/v1/images/cat", catPGM(t)).Code)

	w := doRequest(t, h, "GET", "/api/v1/images/cat/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []ImageInfo
	decodeResponse(t, w, &history)
	require.Len(t, history, 2)
	assert.False(t, history[0].Active)
	assert.True(t, history[1].Active)

	w = doRequest(t, h, "GET", "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats StatsResponse
	decodeResponse(t, w, &stats)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(24), stats.DeadBytes)

	w = doRequest(t, h, "POST", "/api/v1/compact", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var compacted CompactResponse
	decodeResponse(t, w, &compacted)
	assert.NotEmpty(t, compacted.RunID)
	assert.Equal(t, 2, compacted.EntriesBefore)
	assert.Equal(t, 1, compacted.EntriesAfter)
	assert.Equal(t, int64(24), compacted.ReclaimedBytes)

	e, err := st.FindByName("cat")
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.Offset)
}

func TestServer_APIKey(t *testing.T) {
	_, _, h := setupTestServer(t, ServerConfig{APIKey: "secret"})

	w := doRequest(t, h, "GET", "/api/v1/health", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Metrics and docs stay open
	assert.Equal(t, http.StatusOK, doRequest(t, h, "GET", "/metrics", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, "GET", "/swagger/doc.json", nil).Code)
}

func TestServer_SwaggerDoc(t *testing.T) {
	_, _, h := setupTestServer(t, ServerConfig{})

	w := doRequest(t, h, "GET", "/swagger/doc.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "/api/v1", doc["basePath"])
	paths, ok := doc["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/images/{name}/pgm")
}

func TestServer_ClosedStore(t *testing.T) {
	_, st, h := setupTestServer(t, ServerConfig{})
	require.NoError(t, st.Close())

	w := doRequest(t, h, "GET", "/api/v1/images", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
