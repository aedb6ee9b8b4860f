// Package main is the entry point for the experiment platform API server.
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

	"github.com/team-llm/experiment-platform/internal/agent"
	"github.com/team-llm/experiment-platform/internal/config"
	"github.com/team-llm/experiment-platform/internal/handler"
	"github.com/team-llm/experiment-platform/internal/middleware"
	natsclient "github.com/team-llm/experiment-platform/internal/nats"
	"github.com/team-llm/experiment-platform/internal/orchestrator"
	"github.com/team-llm/experiment-platform/internal/registry"
	"github.com/team-llm/experiment-platform/internal/store"
	"github.com/team-llm/experiment-platform/pkg/logger"
	"github.com/team-llm/experiment-platform/pkg/tracing"
)

// timeoutSweepInterval is how often active sessions are checked against their
// deadline.
const timeoutSweepInterval = 15 * time.Second

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting experiment platform API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "experiment-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Journaling is optional; the platform runs fully without a broker.
	journal := orchestrator.NopRecorder()
	var natsClient *natsclient.Client
	if cfg.NATSEnabled {
		natsClient, err = natsclient.NewClient(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		j, err := natsclient.NewJournal(natsClient)
		if err != nil {
			log.Error("failed to set up journal stream", zap.Error(err))
			os.Exit(1)
		}
		journal = j
	}

	sessions := store.NewMemorySessionStore()
	participants := store.NewMemoryParticipantStore()
	messages := store.NewMemoryMessageStore()
	experiments := store.NewMemoryExperimentStore()

	factory := agent.NewFactory(agent.Options{
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		TopicMatchChance: cfg.TopicMatchChance,
		IdleChance:       cfg.IdleParticipation,
		TypoRate:         cfg.TypoRate,
		MaxAttempts:      cfg.ProviderMaxAttempts,
	}, log)

	reg := registry.New(log)
	health := registry.NewHealthChecker(reg, cfg.HealthCheckInterval, cfg.ProbeIdleAfter, cfg.DropIdleAfter)
	go health.Run(ctx)

	orch := orchestrator.New(
		orchestrator.Stores{
			Sessions:     sessions,
			Participants: participants,
			Messages:     messages,
			Experiments:  experiments,
		},
		factory,
		reg,
		journal,
		orchestrator.Options{
			AITurnPacing:   cfg.AITurnPacing,
			SessionTimeout: cfg.SessionTimeout,
		},
		log,
	)
	go orch.RunTimeouts(ctx, timeoutSweepInterval)

	healthHandler := handler.NewHealthHandler(natsClient)
	experimentHandler := handler.NewExperimentHandler(experiments, log)
	sessionHandler := handler.NewSessionHandler(orch, sessions, participants, messages, log)
	wsHandler := handler.NewWSHandler(orch, reg, sessions, participants, cfg.MaxMessageLength, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Researcher API, JWT-protected.
	r.Route("/api/v1/experiments", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireScope(middleware.ScopeResearcher))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/", experimentHandler.Create)
		r.Get("/{id}", experimentHandler.Get)
	})

	// Participant API, reached through access codes.
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/", sessionHandler.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Post("/join", sessionHandler.Join)
			r.Post("/leave", sessionHandler.Leave)
			r.Post("/complete", sessionHandler.Complete)
			r.Post("/timeout", sessionHandler.Timeout)
			r.Get("/messages", sessionHandler.Messages)
		})
	})

	r.Get("/ws/sessions/{id}", wsHandler.Serve)

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

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
