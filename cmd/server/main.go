package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agropal/agropal/internal"
	"github.com/agropal/agropal/internal/docs"
	"github.com/agropal/agropal/internal/handler"
	"github.com/agropal/agropal/internal/jobs"
	"github.com/agropal/agropal/internal/metrics"
	"github.com/agropal/agropal/internal/middleware"
	"github.com/agropal/agropal/internal/service"
	"github.com/agropal/agropal/internal/storage"
	"github.com/agropal/agropal/internal/worker"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize record store
	records, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("Database ready", "driver", cfg.DBDriver)

	// Initialize object storage
	objects, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	classifier, err := newClassifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("classifier initialization failed: %w", err)
	}
	logger.Info("Classifier ready", "provider", classifier.Name())

	publisher := newPublisher(cfg)
	defer publisher.Close()

	statsCache, err := newStatsCache(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("cache initialization failed: %w", err)
	}
	defer statsCache.Close()

	// Initialize services
	diagnosisService := service.NewDiagnosisService(service.DiagnosisConfig{
		Ingestor:          service.NewIngestor(objects, cfg.MaxUploadSize, logger),
		Normalizer:        service.NewImagingNormalizer(objects, logger),
		Classifier:        classifier,
		Store:             records,
		Storage:           objects,
		Publisher:         publisher,
		ClassifierTimeout: cfg.ClassifierTimeout,
		Logger:            logger,
	})
	historyService := service.NewHistoryService(records, statsCache, logger)

	// Initialize middleware
	isSecure := cfg.IsProduction()
	diagnoseLimiter := middleware.NewRateLimiter(cfg.DiagnoseRateLimit, time.Minute, logger)
	defer diagnoseLimiter.Stop()
	rateLimitMw := middleware.NewRateLimitMiddleware(diagnoseLimiter, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure, docs.UIPath)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	if !metricsAuthMw.Enabled() {
		logger.Warn("METRICS_USERNAME/METRICS_PASSWORD not set, /metrics is unprotected")
	}

	// Initialize handlers
	cropHandler := handler.NewCropHandler(handler.CropHandlerConfig{
		Diagnoses:     diagnosisService,
		History:       historyService,
		Support:       handler.NewSupportContact(cfg.SupportPhone, cfg.SupportWhatsApp),
		MaxUploadSize: cfg.MaxUploadSize,
		Debug:         !cfg.IsProduction(),
		Logger:        logger,
	})

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(loggingMw.Handler)
	r.Use(metrics.Middleware)
	r.Use(securityMw.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After", "Content-Disposition"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", handler.Health(records, logger))

	// Prometheus metrics
	r.Handle("/metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Uploaded crop photos (local storage only)
	if local, ok := objects.(*storage.LocalStorage); ok {
		prefix := cfg.LocalStorageURL + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(local.BasePath()))))
	}

	docs.RegisterRoutes(r)

	r.Route("/api/crops", func(api chi.Router) {
		cropHandler.RegisterRoutes(api, rateLimitMw.Limit)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	// ==========================================================================
	// Background jobs
	// ==========================================================================

	bg, err := worker.New(worker.DefaultConfig(), logger)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	if cfg.SweeperEnabled {
		sweeper := jobs.NewOrphanSweeper(objects, records, cfg.SweeperMinAge, logger)
		if err := bg.Register(sweeper, cfg.SweeperInterval); err != nil {
			return err
		}
	}
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	bg.Start(workerCtx)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads on slow rural connections take a while.
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: cfg.ClassifierTimeout + time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a failed listener
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	stopWorker()
	bg.Stop()

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
