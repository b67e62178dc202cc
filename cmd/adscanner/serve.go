package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rorqualx/adscanner-go/internal/collector"
	"github.com/Rorqualx/adscanner-go/internal/config"
	"github.com/Rorqualx/adscanner-go/internal/handlers"
	"github.com/Rorqualx/adscanner-go/internal/metrics"
	"github.com/Rorqualx/adscanner-go/internal/middleware"
	"github.com/Rorqualx/adscanner-go/internal/store"
	"github.com/Rorqualx/adscanner-go/pkg/version"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the collector that receives ad reports",
		Long: `Serve runs the HTTP collector scans report to. POST /upload_ad stores an
ad in SQLite (COLLECTOR_DB_PATH) and its screenshot under COLLECTOR_UPLOAD_DIR.
GET /health and GET /ads?limit=N expose its state. With PROMETHEUS_ENABLED the
metrics are served on PROMETHEUS_PORT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printBanner(cmd.ErrOrStderr(), "collector")
			return runServe(cmd.Context(), a.cfg)
		},
	}
}

// newCollectorHandler builds the collector API with its middleware chain.
// The returned close func stops the rate limiter.
func newCollectorHandler(cfg *config.Config, s *store.Store) (http.Handler, func()) {
	h := handlers.New(collector.New(s, cfg.CollectorUploadDir), s)

	mws := []func(http.Handler) http.Handler{
		middleware.Recovery,
		middleware.Logging,
	}
	closeFn := func() {}
	if cfg.RateLimitEnabled {
		log.Info().
			Int("requests_per_minute", cfg.RateLimitRPM).
			Bool("trust_proxy", cfg.TrustProxy).
			Msg("Rate limiting enabled")
		rl := middleware.NewRateLimiter(cfg.RateLimitRPM, time.Minute, cfg.TrustProxy, nil)
		mws = append(mws, rl.Handler)
		closeFn = rl.Close
	}
	mws = append(mws,
		middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins}),
		middleware.SecurityHeaders,
	)

	return middleware.Chain(mws...)(h), closeFn
}

func runServe(ctx context.Context, cfg *config.Config) error {
	s, err := store.Open(cfg.CollectorDBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("Database close error")
		}
	}()

	handler, closeLimiter := newCollectorHandler(cfg, s)
	defer closeLimiter()

	addr := net.JoinHostPort(cfg.CollectorHost, strconv.Itoa(cfg.CollectorPort))
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stopCh := make(chan struct{})
	defer close(stopCh)

	var metricsServer *http.Server
	if cfg.PrometheusEnabled {
		metrics.SetBuildInfo(version.Full(), version.GoVersion())
		go metrics.StartMemoryCollector(10*time.Second, stopCh)

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.PrometheusPort),
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Int("port", cfg.PrometheusPort).Msg("Prometheus metrics server started")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", addr).
			Str("db", s.Path()).
			Str("upload_dir", cfg.CollectorUploadDir).
			Bool("metrics_enabled", cfg.PrometheusEnabled).
			Bool("rate_limit_enabled", cfg.RateLimitEnabled).
			Msg("Collector is ready to accept ads")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("collector server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown error")
		}
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
