package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/registry"
	"github.com/marmos91/dittorepo/pkg/session"
	"github.com/marmos91/dittorepo/pkg/store/metadata/memory"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoot = "/data/main"

type testServer struct {
	adapter  *HTTPAdapter
	fs       afero.Fs
	bus      *events.Bus
	sessions *session.Manager
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg HTTPConfig) *testServer {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(testRoot+"/images", 0o755))
	require.NoError(t, afero.WriteFile(fs, testRoot+"/images/notes.txt", []byte("hello world"), 0o644))
	require.NoError(t, afero.WriteFile(fs, testRoot+"/images/dot.png", pngBytes(t, 4, 3), 0o644))
	require.NoError(t, fs.MkdirAll("/data/locked", 0o755))

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterMetadataStore("mem", memory.NewMemoryMetadataStoreWithDefaults()))

	ctx := context.Background()
	_, err := reg.AddRepository(ctx, &registry.RepositoryConfig{
		Name: "main", Root: testRoot, MetadataStore: "mem", Fs: fs, Events: bus,
		MaxImagePixels: 10_000,
	})
	require.NoError(t, err)
	_, err = reg.AddRepository(ctx, &registry.RepositoryConfig{
		Name: "locked", Root: "/data/locked", MetadataStore: "mem", Fs: fs, ReadOnly: true,
		DeniedClients: []string{"203.0.113.0/24"},
	})
	require.NoError(t, err)

	sessions := session.NewManager(session.Config{MaxServantsPerSession: 4}, nil)
	t.Cleanup(sessions.Shutdown)

	a := New(cfg, Dependencies{Sessions: sessions, Events: bus})
	a.SetRegistry(reg)

	return &testServer{adapter: a, fs: fs, bus: bus, sessions: sessions}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type call struct {
	method  string
	path    string
	body    any
	raw     []byte
	session string
	remote  string
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	switch {
	case c.raw != nil:
		body = bytes.NewReader(c.raw)
	case c.body != nil:
		data, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set(SessionHeader, c.session)
	}
	if c.remote != "" {
		req.RemoteAddr = c.remote
	}

	rec := httptest.NewRecorder()
	s.adapter.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error.Code
}

func (s *testServer) openSession(t *testing.T) string {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/api/v1/sessions"})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[sessionResponse](t, rec).ID
}

func TestHealthAndRepositories(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})

	rec := s.do(t, call{method: http.MethodGet, path: "/api/v1/health"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string][]string](t, rec)
	assert.Equal(t, []string{"locked", "main"}, got["repositories"])

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories/main"})
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[map[string]any](t, rec)
	assert.Equal(t, "/", root["path"])
	assert.Equal(t, "Directory", root["mimetype"])

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories/nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "repository_not_found", errorCode(t, rec))
}

func TestListAndQueries(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})

	rec := s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories/main/list"})
	require.Equal(t, http.StatusOK, rec.Code)
	paths := decode[map[string][]string](t, rec)["paths"]
	assert.Equal(t, []string{testRoot + "/images", testRoot + "/images/dot.png", testRoot + "/images/notes.txt"}, paths)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories/main/list?path=images&files=true"})
	require.Equal(t, http.StatusOK, rec.Code)
	files := decode[map[string][]map[string]any](t, rec)["files"]
	require.Len(t, files, 2)
	assert.Equal(t, "dot.png", files[0]["name"])

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories/main/mimetype?path=images/dot.png"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", decode[map[string]string](t, rec)["mimetype"])

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories/main/exists?path=images/missing.txt"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]bool](t, rec)["exists"])
}

func TestPathEscapeIsForbidden(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})

	rec := s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories/main/mimetype?path=../../etc/passwd"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "path_escape", body.Error.Code)
	assert.Equal(t, "validation", body.Error.Kind)
}

func TestRegisterCreateMkdirDelete(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})
	base := "/api/v1/repositories/main"

	rec := s.do(t, call{method: http.MethodPost, path: base + "/register", body: registerRequest{Path: "images/dot.png"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[map[string]any](t, rec)
	assert.Equal(t, "/images/", first["path"])
	assert.Equal(t, "UNKNOWN", first["checksum"])

	rec = s.do(t, call{method: http.MethodPost, path: base + "/register", body: registerRequest{Path: "images/dot.png"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first["id"], decode[map[string]any](t, rec)["id"], "re-registering returns the same record")

	rec = s.do(t, call{method: http.MethodPost, path: base + "/register", body: registerRequest{Path: "images/nope.png"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: base + "/register", body: map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodPost, path: base + "/mkdir", body: pathRequest{Path: "a/b"}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: base + "/create", body: pathRequest{Path: "a/b/c.txt"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, call{method: http.MethodPost, path: base + "/create", body: pathRequest{Path: "a/b/c.txt"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[map[string]bool](t, rec)["created"])

	rec = s.do(t, call{method: http.MethodPost, path: base + "/delete", body: pathRequest{Path: "a"}})
	assert.Equal(t, http.StatusConflict, rec.Code, "non-empty directory")

	rec = s.do(t, call{method: http.MethodPost, path: base + "/delete-files",
		body: deleteFilesRequest{Paths: []string{"a/b/c.txt", "a/missing"}}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a/missing"}, decode[map[string][]string](t, rec)["undeleted"])

	exists, err := afero.DirExists(s.fs, testRoot+"/a")
	require.NoError(t, err)
	assert.False(t, exists, "emptied parents are pruned")

	rec = s.do(t, call{method: http.MethodPost, path: base + "/delete", body: pathRequest{Path: testRoot}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "root cannot be deleted")
}

func TestUnsupportedOperations(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})
	base := "/api/v1/repositories/main"

	rec := s.do(t, call{method: http.MethodPost, path: base + "/rename", body: renameRequest{From: "a", To: "b"}})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	for _, op := range []string{"render", "thumbs", "transfer", "load"} {
		rec := s.do(t, call{method: http.MethodPost, path: base + "/" + op, body: unsupportedRequest{Path: "images/dot.png"}})
		assert.Equal(t, http.StatusNotImplemented, rec.Code, op)
		assert.Equal(t, "not_supported", errorCode(t, rec), op)
	}
}

func TestAccessRules(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})
	base := "/api/v1/repositories/locked"

	rec := s.do(t, call{method: http.MethodGet, path: base + "/list"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: base + "/mkdir", body: pathRequest{Path: "x"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "read_only", errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodGet, path: base + "/list", remote: "203.0.113.9:4000"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "access_denied", errorCode(t, rec))
}

func TestFileStreamLifecycle(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})
	sid := s.openSession(t)
	base := "/api/v1/repositories/main"

	rec := s.do(t, call{method: http.MethodPost, path: base + "/streams/file", body: openFileRequest{Path: "images/notes.txt"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "session header required")

	rec = s.do(t, call{method: http.MethodPost, path: base + "/streams/file",
		body: openFileRequest{Path: "images/notes.txt", Mode: "rw"}, session: sid})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	proxy := decode[proxyResponse](t, rec)
	assert.Equal(t, sid, proxy.Session)
	stream := "/api/v1/streams/" + proxy.Token

	rec = s.do(t, call{method: http.MethodGet, path: stream + "/data?offset=6&length=5", session: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "world", rec.Body.String())

	rec = s.do(t, call{method: http.MethodPut, path: stream + "/data?offset=0", raw: []byte("HELLO"), session: sid})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: stream + "/sync", session: sid})
	require.Equal(t, http.StatusNoContent, rec.Code)

	data, err := afero.ReadFile(s.fs, testRoot+"/images/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "HELLO world", string(data))

	size := int64(5)
	rec = s.do(t, call{method: http.MethodPost, path: stream + "/truncate", body: truncateRequest{Size: &size}, session: sid})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: stream, session: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 5, decode[map[string]any](t, rec)["size"])

	other := s.openSession(t)
	rec = s.do(t, call{method: http.MethodGet, path: stream, session: other})
	assert.Equal(t, http.StatusForbidden, rec.Code, "tokens are bound to their session")

	rec = s.do(t, call{method: http.MethodGet, path: stream + "/dimensions", session: sid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, call{method: http.MethodDelete, path: stream, session: sid})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: stream, session: sid})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "stream_not_found", errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/streams/garbage", session: sid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadOnlyStreamRejectsWrites(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})
	sid := s.openSession(t)

	rec := s.do(t, call{method: http.MethodPost, path: "/api/v1/repositories/main/streams/file",
		body: openFileRequest{Path: "images/notes.txt"}, session: sid})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode[proxyResponse](t, rec).Token

	rec = s.do(t, call{method: http.MethodPut, path: "/api/v1/streams/" + token + "/data", raw: []byte("x"), session: sid})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_permitted", errorCode(t, rec))
}

func TestFileByIDAndPixels(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})
	sid := s.openSession(t)
	base := "/api/v1/repositories/main"

	rec := s.do(t, call{method: http.MethodPost, path: base + "/register", body: registerRequest{Path: "images/dot.png"}})
	require.Equal(t, http.StatusOK, rec.Code)
	id := int64(decode[map[string]any](t, rec)["id"].(float64))

	rec = s.do(t, call{method: http.MethodPost, path: base + "/streams/file-by-id", body: openByIDRequest{ID: id}, session: sid})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodPost, path: base + "/streams/file-by-id", body: openByIDRequest{ID: 9999}, session: sid})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: base + "/streams/pixels", body: pathRequest{Path: "images/dot.png"}, session: sid})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	proxy := decode[proxyResponse](t, rec)
	assert.Equal(t, "pixels", string(proxy.Kind))
	stream := "/api/v1/streams/" + proxy.Token

	rec = s.do(t, call{method: http.MethodGet, path: stream + "/dimensions", session: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	dims := decode[map[string]any](t, rec)
	assert.EqualValues(t, 4, dims["width"])
	assert.EqualValues(t, 3, dims["height"])
	assert.Equal(t, "png", dims["format"])

	rec = s.do(t, call{method: http.MethodGet, path: stream + "/region?x=1&y=1&w=1&h=1", session: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{255, 0, 0, 255}, rec.Body.Bytes())
	assert.Equal(t, "1", rec.Header().Get("X-Region-Width"))

	rec = s.do(t, call{method: http.MethodGet, path: stream + "/region?x=3&w=4", session: sid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_region", errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodGet, path: stream + "/data", session: sid})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "pixel streams have no raw data route")
}

func TestStreamRegionLimits(t *testing.T) {
	s := newTestServer(t, HTTPConfig{MaxReadSize: 8})
	sid := s.openSession(t)

	openPixels := func(path string) string {
		rec := s.do(t, call{method: http.MethodPost, path: "/api/v1/repositories/main/streams/pixels",
			body: pathRequest{Path: path}, session: sid})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return "/api/v1/streams/" + decode[proxyResponse](t, rec).Token
	}

	dot := openPixels("images/dot.png")

	rec := s.do(t, call{method: http.MethodGet, path: dot + "/region?x=1&w=9223372036854775807&h=1", session: sid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_region", errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodGet, path: dot + "/region?y=1&w=1&h=9223372036854775807", session: sid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_region", errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodGet, path: dot + "/region?w=3&h=1", session: sid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodGet, path: dot + "/region?w=2&h=1", session: sid})
	assert.Equal(t, http.StatusOK, rec.Code)

	// 200x100 exceeds the repository's pixel budget; the header alone is fine
	require.NoError(t, afero.WriteFile(s.fs, testRoot+"/images/wide.png", pngBytes(t, 200, 100), 0o644))
	wide := openPixels("images/wide.png")

	rec = s.do(t, call{method: http.MethodGet, path: wide + "/dimensions", session: sid})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: wide + "/region?w=1&h=1", session: sid})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "image_too_large", errorCode(t, rec))
}

func TestSessionCloseReleasesStreams(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})
	sid := s.openSession(t)

	rec := s.do(t, call{method: http.MethodPost, path: "/api/v1/repositories/main/streams/file",
		body: openFileRequest{Path: "images/notes.txt"}, session: sid})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode[proxyResponse](t, rec).Token

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/sessions/" + sid})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[sessionResponse](t, rec).Streams)

	rec = s.do(t, call{method: http.MethodDelete, path: "/api/v1/sessions/" + sid})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/streams/" + token, session: sid})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodDelete, path: "/api/v1/sessions/" + sid})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, HTTPConfig{RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 2}})

	for i := 0; i < 2; i++ {
		rec := s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories", remote: "198.51.100.1:1"})
	assert.Equal(t, http.StatusOK, rec.Code, "buckets are per client")
}

type limiterMetrics struct {
	metrics.HTTPMetrics
	limited int
	clients int
}

func (m *limiterMetrics) RecordRateLimited()            { m.limited++ }
func (m *limiterMetrics) SetRateLimitClients(count int) { m.clients = count }

func TestRateLimitMetrics(t *testing.T) {
	s := newTestServer(t, HTTPConfig{RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 1}})
	m := &limiterMetrics{HTTPMetrics: metrics.NewNoopHTTPMetrics()}
	s.adapter.metrics = m

	s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories", remote: "198.51.100.1:1"})
	assert.Equal(t, 1, m.clients)

	s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories", remote: "198.51.100.2:1"})
	rec := s.do(t, call{method: http.MethodGet, path: "/api/v1/repositories", remote: "198.51.100.2:1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, m.clients)
	assert.Equal(t, 1, m.limited)
}

func TestEventFeed(t *testing.T) {
	s := newTestServer(t, HTTPConfig{})
	srv := httptest.NewServer(s.adapter.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?repository=main&type=dir_created"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return s.bus.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	rec := s.do(t, call{method: http.MethodPost, path: "/api/v1/repositories/main/create", body: pathRequest{Path: "new.txt"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, call{method: http.MethodPost, path: "/api/v1/repositories/main/mkdir", body: pathRequest{Path: "fresh"}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.DirCreated, ev.Type, "type filter drops the created event")
	assert.Equal(t, "main", ev.Repository)
	assert.Equal(t, "/fresh", ev.Path)
}

func TestServeAndStop(t *testing.T) {
	s := newTestServer(t, HTTPConfig{Port: 0})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.adapter.Serve(ctx) }()

	require.Eventually(t, func() bool { return s.adapter.Port() != 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "HTTP", s.adapter.Protocol())

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(s.adapter.Port()) + "/api/v1/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	assert.NoError(t, s.adapter.Stop(context.Background()), "Stop is idempotent")
}
