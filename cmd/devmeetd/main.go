package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/patdiletx/DevMeet/internal/analysis"
	"github.com/patdiletx/DevMeet/internal/app"
	"github.com/patdiletx/DevMeet/internal/config"
	"github.com/patdiletx/DevMeet/internal/events"
	"github.com/patdiletx/DevMeet/internal/observability"
	"github.com/patdiletx/DevMeet/internal/pipeline"
	"github.com/patdiletx/DevMeet/internal/server"
	"github.com/patdiletx/DevMeet/internal/session"
	"github.com/patdiletx/DevMeet/internal/store"
	"github.com/patdiletx/DevMeet/internal/stt"
	mockstt "github.com/patdiletx/DevMeet/internal/stt/mock"
	openaistt "github.com/patdiletx/DevMeet/internal/stt/openai"
	"github.com/patdiletx/DevMeet/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Application startup failed")
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open database")
	}
	defer db.Close()

	var transcriber stt.Transcriber
	switch cfg.STTProvider {
	case "openai":
		transcriber, err = openaistt.New(openaistt.Config{
			APIKey:   cfg.OpenAIKey,
			Model:    cfg.OpenAIModel,
			Language: cfg.Language,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create OpenAI transcriber")
		}
	default:
		transcriber = mockstt.New()
	}
	log.Info().Str("provider", transcriber.Name()).Msg("Transcription provider configured")

	var analyzer analysis.Analyzer
	if cfg.OpenAIKey != "" {
		analyzer, err = analysis.NewOpenAI(cfg.OpenAIKey, "")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create analyzer")
		}
	} else {
		log.Info().Msg("No OpenAI key configured, highlight analysis disabled")
	}

	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicHighlight:  cfg.Kafka.TopicHighlight,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()

	hub := ws.NewHub(cfg.HeartbeatInterval, cfg.ClientTimeout)
	sessions := session.NewStore(cfg.ContextEntries, cfg.ContextPromptSize)

	orchestrator := pipeline.New(pipeline.Options{
		Transcriber: transcriber,
		Store:       db,
		Analyzer:    analyzer,
		Publisher:   publisher,
		Broadcaster: hub,
		Sessions:    sessions,
		Limits: pipeline.Limits{
			MinChunkBytes: cfg.MinChunkBytes,
			MaxChunkBytes: cfg.MaxChunkBytes,
		},
		AnalysisEvery: cfg.AnalysisEvery,
		SweepInterval: cfg.SweepInterval,
	})

	server.NewDispatcher(hub, sessions, orchestrator, db)

	hub.StartHeartbeat()
	orchestrator.StartSweep()

	obs := observability.NewServer(":"+cfg.MetricsPort, db.Ping)
	obs.Start()

	router := server.NewRouter(cfg, hub, sessions)
	httpServer := server.NewServer(":"+cfg.HTTPPort, router)
	httpServer.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	hub.Shutdown()
	orchestrator.Shutdown()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown error")
	}
	application.Shutdown()
}
