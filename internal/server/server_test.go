package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrotrack/internal/cache"
	"metrotrack/internal/config"
	"metrotrack/internal/handler"
	"metrotrack/internal/hub"
	"metrotrack/internal/sighting"
	"metrotrack/internal/storage"
	"metrotrack/internal/tracking"
	"metrotrack/internal/transit"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.Open(filepath.Join(t.TempDir(), "metro.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Load()
	wsHub := hub.New(logger)
	tracker := tracking.New(tracking.Options{Broadcaster: wsHub}, logger)
	router := transit.NewRouter(db, cache.NewMemory(time.Minute), 0, logger)
	h := handler.New(db, router, tracker, sighting.NewEstimator(db, db, logger), wsHub, nil, cfg, logger)
	return New(cfg, h, logger)
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"healthz", "GET", "/healthz", http.StatusOK},
		{"empty catalog not ready", "GET", "/readyz", http.StatusServiceUnavailable},
		{"preflight", http.MethodOptions, "/api/routes", http.StatusNoContent},
		{"nearby without coordinates", "GET", "/api/stations/nearby", http.StatusBadRequest},
		{"unknown station", "GET", "/api/stations/atlantis", http.StatusNotFound},
		{"wrong method", "GET", "/api/routes", http.StatusMethodNotAllowed},
		{"unknown path", "GET", "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestServer_UsesConfiguredTimeouts(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, fmt.Sprintf(":%d", srv.cfg.Port), srv.http.Addr)
	assert.Equal(t, srv.cfg.HTTP.ReadTimeout, srv.http.ReadTimeout)
	assert.Equal(t, srv.cfg.HTTP.WriteTimeout, srv.http.WriteTimeout)
}
