package router

import (
	"encoding/json"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muandane/ziria/internal/avatar"
	"github.com/muandane/ziria/internal/cache"
	"github.com/muandane/ziria/internal/handlers"
	"github.com/muandane/ziria/internal/identity"
	"github.com/muandane/ziria/internal/imaging"
	"github.com/muandane/ziria/internal/mojang/mojangtest"
	"github.com/muandane/ziria/internal/texture"
)

var face = color.NRGBA{R: 0x33, G: 0x66, B: 0x99, A: 0xff}

type app struct {
	handler  http.Handler
	pipeline *avatar.Pipeline
	backend  *cache.MemoryBackend
	srv      *mojangtest.Server
}

func newApp(t *testing.T, adminSecret string) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := mojangtest.NewServer(t)
	srv.AddUser("Notch", mojangtest.NotchID, mojangtest.Skin(t, face, color.NRGBA{}))
	client := srv.Client()

	backend := cache.NewMemoryBackend(0)
	store := cache.NewStore(backend, time.Hour)
	stats := handlers.NewStatsHandler(store)
	pipeline := avatar.New(
		identity.NewResolver(client),
		texture.NewFetcher(client),
		store,
		avatar.Options{Logger: logger, Recorder: stats},
	)
	t.Cleanup(pipeline.Wait)

	render, err := handlers.NewRenderHandler(pipeline, 20*time.Minute, logger)
	require.NoError(t, err)

	handler := NewRouter(logger).Setup(Handlers{
		Render: render,
		Health: handlers.NewHealthHandler(),
		Ready:  handlers.NewReadyHandler(store, logger),
		Stats:  stats,
		Flush:  handlers.NewFlushHandler(store, logger),
	}, adminSecret)

	return &app{handler: handler, pipeline: pipeline, backend: backend, srv: srv}
}

func (a *app) do(t *testing.T, method, target, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeSize(t *testing.T, body []byte) image.Point {
	t.Helper()
	img, err := imaging.Decode(body)
	require.NoError(t, err)
	return img.Bounds().Size()
}

func TestHealthRoutes(t *testing.T) {
	a := newApp(t, "")
	for _, path := range []string{"/", "/health"} {
		rec := a.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String(), path)
	}

	rec := a.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","cache":"ok"}`, rec.Body.String())
}

func TestAvatarFlow(t *testing.T) {
	a := newApp(t, "")

	rec := a.do(t, http.MethodGet, "/avatar/Notch/8/false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=1200", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	first := rec.Body.Bytes()
	a.pipeline.Wait()

	rec = a.do(t, http.MethodGet, "/avatar/Notch/8/false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, first, rec.Body.Bytes())

	rec = a.do(t, http.MethodGet, "/avatar/Notch/64/false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, image.Pt(64, 64), decodeSize(t, rec.Body.Bytes()))
	assert.EqualValues(t, 1, a.srv.Downloads())

	rec = a.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats handlers.CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	require.NotNil(t, stats.Backend)
	assert.Equal(t, 1, stats.Backend.EntryCount)
}

func TestAvatarErrors(t *testing.T) {
	a := newApp(t, "")

	tests := []struct {
		path string
		want int
	}{
		{path: "/avatar/Notch/7/false", want: http.StatusBadRequest},
		{path: "/avatar/Notch/9/false", want: http.StatusBadRequest},
		{path: "/avatar/Notch/513/false", want: http.StatusBadRequest},
		{path: "/avatar/Notch/8/sometimes", want: http.StatusBadRequest},
		{path: "/avatar/nobody_here/8/false", want: http.StatusNotFound},
		{path: "/avatar/00000000-0000-0000-0000-000000000000/8/false", want: http.StatusNotFound},
		{path: "/skin/Notch/96", want: http.StatusBadRequest},
		{path: "/skin/nobody_here", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := a.do(t, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		})
	}

	a.pipeline.Wait()
	assert.Zero(t, a.backend.Stats().EntryCount)
}

func TestSkinRoutes(t *testing.T) {
	a := newApp(t, "")

	rec := a.do(t, http.MethodGet, "/skin/Notch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, image.Pt(64, 64), decodeSize(t, rec.Body.Bytes()))

	rec = a.do(t, http.MethodGet, "/skin/Notch/128", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, image.Pt(128, 128), decodeSize(t, rec.Body.Bytes()))
}

func TestAdminFlush(t *testing.T) {
	a := newApp(t, "hunter2")

	rec := a.do(t, http.MethodGet, "/avatar/Notch/8/true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	a.pipeline.Wait()
	require.Equal(t, 1, a.backend.Stats().EntryCount)

	rec = a.do(t, http.MethodPost, "/admin/flush", "Bearer wrong")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, a.backend.Stats().EntryCount)

	rec = a.do(t, http.MethodPost, "/admin/flush", "Bearer hunter2")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, a.backend.Stats().EntryCount)

	rec = a.do(t, http.MethodGet, "/avatar/Notch/8/true", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	a := newApp(t, "")
	rec := a.do(t, http.MethodPost, "/admin/flush", "Bearer ")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	a := newApp(t, "")
	a.do(t, http.MethodGet, "/avatar/Notch/8/false", "")
	a.pipeline.Wait()

	rec := a.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "avatar_cache_misses_total")
	assert.Contains(t, body, `upstream_requests_total{host="textures"}`)
	assert.Contains(t, body, "http_requests_total")
}
