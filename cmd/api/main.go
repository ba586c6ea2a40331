// Package main is the entry point for the orchestration engine API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atendai/orchestrator/internal/config"
	"github.com/atendai/orchestrator/internal/delivery"
	"github.com/atendai/orchestrator/internal/engine"
	"github.com/atendai/orchestrator/internal/followup"
	"github.com/atendai/orchestrator/internal/gateway"
	"github.com/atendai/orchestrator/internal/handler"
	"github.com/atendai/orchestrator/internal/llm"
	"github.com/atendai/orchestrator/internal/messenger"
	"github.com/atendai/orchestrator/internal/middleware"
	natsclient "github.com/atendai/orchestrator/internal/nats"
	"github.com/atendai/orchestrator/internal/queue"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/internal/tools"
	"github.com/atendai/orchestrator/pkg/logger"
	"github.com/atendai/orchestrator/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting orchestration engine")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "orchestrator", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// NATS carries lifecycle notifications; the engine runs without it.
	var natsClient *natsclient.Client
	var notifier gateway.Notifier
	nc, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Warn("NATS unavailable, lifecycle notifications disabled", zap.Error(err))
	} else {
		natsClient = nc
		defer natsClient.Close()

		n := natsclient.NewNotifier(natsClient)
		if err := n.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure notifications stream", zap.Error(err))
			os.Exit(1)
		}
		notifier = n
	}

	// LLM providers. Either may be absent; the router skips unconfigured ones.
	var openaiClient, anthropicClient llm.Client
	var transcriber gateway.Transcriber
	if cfg.OpenAIAPIKey != "" {
		c, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client", zap.Error(err))
		} else {
			openaiClient = c
		}
		t, err := llm.NewTranscriber(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create transcriber, audio disabled", zap.Error(err))
		} else {
			transcriber = t
		}
	}
	if cfg.AnthropicAPIKey != "" {
		c, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client", zap.Error(err))
		} else {
			anthropicClient = c
		}
	}
	if openaiClient == nil && anthropicClient == nil {
		log.Error("no LLM provider configured")
		os.Exit(1)
	}
	router := llm.NewRouter(openaiClient, anthropicClient, cfg.DefaultModel, cfg.LLMTimeout, log)

	st := store.NewMemory()

	sender := messenger.NewHTTPSender(messenger.Config{
		BaseURL:       cfg.ProviderBaseURL,
		APIKey:        cfg.ProviderAPIKey,
		RetryAttempts: cfg.SendRetryAttempts,
		RetryInterval: cfg.SendRetryInterval,
		Timeout:       30 * time.Second,
	}, log)

	registry := tools.NewRegistry(log)
	tools.RegisterBuiltin(registry, tools.Deps{
		Store:  st,
		Sender: sender,
		Logger: log,
	})

	pipeline := delivery.NewPipeline(st, sender, delivery.Config{
		ComposingDelay:  cfg.ComposingDelay,
		InterChunkDelay: cfg.InterChunkDelay,
		MinChunkLength:  cfg.MinChunkLength,
		MaxChunkLength:  cfg.MaxChunkLength,
	}, log)

	controller := engine.NewController(st, router, registry, pipeline, engine.Config{
		MaxTurns:      cfg.MaxTurns,
		HistoryWindow: cfg.HistoryWindow,
	}, log)

	aggregator := queue.NewAggregator(st, controller.ProcessBatch, cfg.DefaultGroupingInterval, log)
	defer aggregator.Stop()

	adapter := gateway.NewAdapter(st, aggregator, gateway.NewMemoryStorage(), transcriber, notifier, log)
	scheduler := followup.NewScheduler(st, sender, log)

	healthHandler := handler.NewHealthHandler(natsClient)
	webhookHandler := handler.NewWebhookHandler(adapter, log)
	followUpHandler := handler.NewFollowUpHandler(scheduler, cfg.SchedulerToken, log)
	conversationHandler := handler.NewConversationHandler(st, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Inbound provider events, rate limited per tenant.
	r.Group(func(r chi.Router) {
		r.Use(middleware.WebhookRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/webhook/{tenantID}", webhookHandler.Receive)
	})

	// Scheduler trigger, guarded by a static token.
	r.Post("/internal/followups/run", followUpHandler.Run)

	// Operator read surface.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireScope("conversations:read"))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", conversationHandler.Get)
			r.Get("/messages", conversationHandler.Messages)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
