// Amiro - persona matching API server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Haku929/Amiro-sub000/internal/api"
	"github.com/Haku929/Amiro-sub000/internal/config"
	"github.com/Haku929/Amiro-sub000/internal/identity"
	"github.com/Haku929/Amiro-sub000/internal/llm"
	"github.com/Haku929/Amiro-sub000/internal/metrics"
	"github.com/Haku929/Amiro-sub000/internal/middleware"
	"github.com/Haku929/Amiro-sub000/internal/persona"
	"github.com/Haku929/Amiro-sub000/internal/resonance"
	"github.com/Haku929/Amiro-sub000/internal/situation"
	"github.com/Haku929/Amiro-sub000/internal/slot"
	"github.com/Haku929/Amiro-sub000/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DB.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(ctx, store.Options{Driver: cfg.DB.Driver, Path: cfg.DB.Path, URL: cfg.DB.URL})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if _, err := situation.EnsureSeeded(ctx, repo); err != nil {
		slog.Error("Failed to seed situations", "error", err)
		os.Exit(1)
	}

	// The completion client is required; missing credentials stop startup.
	llmClient, err := llm.NewOpenAI(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		RequestTimeout: cfg.LLM.RequestTimeout,
		MaxRetries:     cfg.LLM.MaxRetries,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize completion client", "error", err)
		os.Exit(1)
	}
	slog.Info("Completion client ready", "model", llmClient.Model())

	var completer llm.Completer = llmClient
	extractorOpts := []persona.ExtractorOption{persona.WithExtractorLogger(logger)}
	slotOpts := []slot.Option{slot.WithLogger(logger)}
	if cfg.MetricsEnabled {
		observer, err := metrics.New(prometheus.DefaultRegisterer)
		if err != nil {
			slog.Error("Failed to register metrics", "error", err)
			os.Exit(1)
		}
		completer = llm.WithRecorder(completer, observer)
		extractorOpts = append(extractorOpts, persona.WithExtractionObserver(observer))
		slotOpts = append(slotOpts, slot.WithObserver(observer))
	}

	// Initialize handlers.
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	apiHandler := api.NewHandler(api.Services{
		Profiles:   repo,
		Health:     repo,
		Situations: situation.NewService(repo),
		Replies:    persona.NewReplyGenerator(completer),
		Extractor:  persona.NewExtractor(completer, extractorOpts...),
		Slots:      slot.NewManager(repo, slotOpts...),
		Matches:    resonance.NewRanker(repo, repo, logger),
	}, api.WithCompletionLimit(middleware.RateLimit(limiter, func(r *http.Request) string {
		return identity.UserIDFromContext(r.Context())
	})))

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// All API routes use identity middleware (no auth needed).
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		apiHandler.RegisterRoutes(r)
	})

	// WriteTimeout covers one extraction with every retry.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.RequestTimeout*time.Duration(persona.DefaultMaxAttempts) + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() && len(cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return append([]string{cfg.FrontendURL}, cfg.AllowedOrigins...)
}
