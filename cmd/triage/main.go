package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clearfield/triage/internal/adapter/actions"
	"github.com/clearfield/triage/internal/adapter/directory"
	thttp "github.com/clearfield/triage/internal/adapter/http"
	"github.com/clearfield/triage/internal/adapter/knowledgehttp"
	"github.com/clearfield/triage/internal/adapter/llm"
	tnats "github.com/clearfield/triage/internal/adapter/nats"
	totel "github.com/clearfield/triage/internal/adapter/otel"
	"github.com/clearfield/triage/internal/adapter/postgres"
	"github.com/clearfield/triage/internal/adapter/ristretto"
	"github.com/clearfield/triage/internal/adapter/ws"
	"github.com/clearfield/triage/internal/config"
	"github.com/clearfield/triage/internal/port/messagequeue"
	"github.com/clearfield/triage/internal/resilience"
	"github.com/clearfield/triage/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger.With("service", cfg.Logging.Service))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// Telemetry. The service runs without it when no collector is up.
	shutdownOtel, err := totel.Setup(ctx, cfg.Logging.Service)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(flushCtx)
		}()
	}
	metrics, err := totel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	// Run migrations
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := tnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Webhook dedup cache
	dedup, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer dedup.Close()

	// --- External clients ---
	llmClient := llm.NewClient(cfg.Inference.URL, cfg.Inference.APIKey)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	llmClient.SetMetrics(metrics)
	know := knowledgehttp.NewClient(cfg.Knowledge.URL, cfg.Knowledge.Timeout)
	dir := directory.New()
	exec := actions.NewExecutor()

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	catalog := service.NewCatalog(cfg.Inference)

	orch := service.NewOrchestrator(
		service.NewPreFilter(),
		service.NewClassifier(llmClient, cfg.Inference),
		service.NewContextBuilder(dir, store, cfg.Pipeline),
		service.NewGenerator(llmClient, know, catalog, cfg.Inference, cfg.Knowledge),
		service.NewDetector(llmClient, know, cfg.Inference, cfg.Knowledge),
		service.NewGovernor(store, exec, queue, metrics, cfg.Pipeline.ConfirmDeadline, cfg.Pipeline.ActionTimeout),
		service.NewGate(llmClient, cfg.Inference, cfg.Pipeline),
		service.NewAssembler(),
		store,
		queue,
		metrics,
		cfg.Pipeline,
	)

	// Bridge queue events to the review-surface WebSocket.
	cancelBridge, err := bridgeEvents(ctx, queue, hub)
	if err != nil {
		return fmt.Errorf("event bridge: %w", err)
	}
	defer cancelBridge()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go orch.RunExpirySweep(sweepCtx)

	// --- HTTP ---
	handlers := thttp.NewHandlers(orch, store, dedup, cfg.Cache.DedupTTL)

	r := chi.NewRouter()

	// Middleware
	r.Use(thttp.CORS(cfg.Server.CORSOrigin))
	r.Use(thttp.Logger)
	r.Use(thttp.SecurityHeaders)
	r.Use(totel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	thttp.MountRoutes(r, handlers, hub)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// bridgeEvents forwards pipeline events from the queue to connected
// review-surface clients. Payloads pass through as raw JSON.
func bridgeEvents(ctx context.Context, queue messagequeue.Queue, hub *ws.Hub) (func(), error) {
	bridge := map[string]string{
		messagequeue.SubjectAwaitingConfirmation: ws.EventAwaitingConfirmation,
		messagequeue.SubjectCallConfirmed:        ws.EventCallConfirmed,
		messagequeue.SubjectCallCancelled:        ws.EventCallCancelled,
		messagequeue.SubjectTurnFinalized:        ws.EventTurnFinalized,
	}

	var cancels []func()
	cancelAll := func() {
		for _, c := range cancels {
			c()
		}
	}

	for subject, event := range bridge {
		event := event
		cancel, err := queue.Subscribe(ctx, subject, func(ctx context.Context, _ string, data []byte) error {
			hub.BroadcastEvent(ctx, event, json.RawMessage(data))
			return nil
		})
		if err != nil {
			cancelAll()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		cancels = append(cancels, cancel)
	}

	return cancelAll, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
