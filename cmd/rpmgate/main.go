// Package main implements the rpmgate server: an HTTP front end that stores
// uploaded RPMs and rebuilds repository metadata on request.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/rpmgate/cmd/rpmgate/routes"
	"github.com/lgulliver/rpmgate/internal/metrics"
	"github.com/lgulliver/rpmgate/internal/middleware"
	"github.com/lgulliver/rpmgate/internal/refresh"
	"github.com/lgulliver/rpmgate/internal/storage"
	"github.com/lgulliver/rpmgate/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rpmgate",
		Short: "RPM repository upload and metadata gateway",
		Long: `rpmgate serves a tree of RPM repositories over HTTP.

  PUT  /<repo>/<file>.rpm   store an artifact under <root>/<repo>/rpms
  POST /<repo>              rebuild the repository metadata
  GET  /<anything>          liveness check

Settings are read from the environment and may be overridden by flags.

Examples:
  # Serve /srv/rpm on port 8080
  rpmgate --root /srv/rpm

  # Use createrepo_c and expose metrics
  rpmgate --root /srv/rpm --indexer createrepo_c --metrics-addr 127.0.0.1:9100`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				return err
			}

			setupLogging(cfg.Logging)

			if err := run(cmd.Context(), cfg); err != nil {
				log.Error().Err(err).Msg("rpmgate stopped")
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("root", "", "repository root directory (REPO_ROOT)")
	flags.String("host", "", "listen host (SERVER_HOST)")
	flags.Int("port", 0, "listen port (SERVER_PORT)")
	flags.String("indexer", "", "metadata indexer executable (INDEXER_PATH)")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (LOG_LEVEL)")
	flags.String("metrics-addr", "", "Prometheus listen address, empty disables metrics (METRICS_ADDR)")

	return cmd
}

// loadConfig reads the environment, applies explicitly set flags and validates the result
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.LoadFromEnv()
	flags := cmd.Flags()

	if flags.Changed("root") {
		cfg.Repository.Root, _ = flags.GetString("root")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("indexer") {
		cfg.Repository.Indexer, _ = flags.GetString("indexer")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// run starts the servers and blocks until a shutdown signal or a listener failure
func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log.Info().Str("version", version).Msg("Starting rpmgate")

	store, err := storage.NewLocalStorage(cfg.Repository.Root)
	if err != nil {
		return fmt.Errorf("failed to initialize repository root: %w", err)
	}
	if err := store.EnsureCache(ctx); err != nil {
		return fmt.Errorf("failed to initialize indexer cache: %w", err)
	}

	if _, err := exec.LookPath(cfg.Repository.Indexer); err != nil {
		log.Warn().Err(err).Str("indexer", cfg.Repository.Indexer).Msg("indexer not found, refreshes will fail until it is installed")
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Addr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	gatewayMetrics := metrics.NewGatewayMetrics(reg)

	coordinator := refresh.NewCoordinator(store, cfg.Repository.Indexer, nil, gatewayMetrics)
	router := setupRouter(store, coordinator, gatewayMetrics)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	servers := []*http.Server{server}

	if reg != nil {
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info().Str("addr", srv.Addr).Msg("Starting server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	log.Info().
		Str("root", store.Root()).
		Str("indexer", cfg.Repository.Indexer).
		Str("addr", server.Addr).
		Msg("rpmgate ready")

	// Wait for interrupt signal to gracefully shutdown
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-sigCtx.Done():
		log.Info().Msg("Shutting down server...")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("addr", srv.Addr).Msg("Server forced to shutdown")
		}
	}
	log.Info().Msg("Server shutdown complete")

	return runErr
}

func setupRouter(store storage.RepositoryStore, refresher routes.Refresher, m metrics.GatewayMetrics) *gin.Engine {
	// Set Gin mode based on log level
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery())

	routes.RepositoryRoutes(router, store, refresher, m, version)

	return router
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	return mux
}
