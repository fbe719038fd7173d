package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lgulliver/rpmgate/internal/metrics"
	"github.com/lgulliver/rpmgate/internal/middleware"
	"github.com/lgulliver/rpmgate/internal/refresh"
	"github.com/lgulliver/rpmgate/internal/storage"
	"github.com/lgulliver/rpmgate/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okRunner struct{}

func (okRunner) Run(string, []string) (refresh.Result, error) {
	return refresh.Result{}, nil
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"SERVER_HOST", "SERVER_PORT", "REPO_ROOT", "INDEXER_PATH",
		"LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPO_ROOT", "/from/env")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("INDEXER_PATH", "createrepo_c")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--root", "/from/flag", "--log-level", "DEBUG", "--metrics-addr", "127.0.0.1:9100"}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "/from/flag", cfg.Repository.Root)
	assert.Equal(t, 9000, cfg.Server.Port, "unset flags keep the environment value")
	assert.Equal(t, "createrepo_c", cfg.Repository.Indexer)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
}

func TestLoadConfig_MissingRoot(t *testing.T) {
	clearEnv(t)

	_, err := loadConfig(newRootCmd())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Root")
}

func TestRootCmd_RejectsInvalidConfiguration(t *testing.T) {
	clearEnv(t)

	cmd := newRootCmd()
	var stderr strings.Builder
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--log-level", "loud", "--root", t.TempDir()})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, stderr.String(), "Level")
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	setupLogging(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	setupLogging(config.LoggingConfig{Level: "bogus", Format: "text"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetupRouter_EndToEnd(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewLocalStorage(root)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewGatewayMetrics(reg)
	router := setupRouter(store, refresh.NewCoordinator(store, "createrepo", okRunner{}, m), m)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/acme/pkg-1.0.rpm", strings.NewReader("B")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	data, err := os.ReadFile(filepath.Join(root, "acme", "rpms", "pkg-1.0.rpm"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(data))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/acme", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/acme/pkg-1.0.rpm", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	metricsMux(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rpmgate_uploads_total")
	assert.Contains(t, rec.Body.String(), "rpmgate_refreshes_total")
}

func TestRun_InvalidRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	cfg := config.LoadFromEnv()
	cfg.Repository.Root = file

	err := run(context.Background(), cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository root")
}

func TestRun_ShutsDownWhenContextEnds(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()

	cfg := config.LoadFromEnv()
	cfg.Repository.Root = root
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after its context ended")
	}

	assert.DirExists(t, filepath.Join(root, "cache"))
}
