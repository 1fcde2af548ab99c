package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ewrenn/greenie/internal/config"
	"github.com/ewrenn/greenie/internal/engine"
	"github.com/ewrenn/greenie/internal/httpapi"
	"github.com/ewrenn/greenie/internal/llm"
	"github.com/ewrenn/greenie/internal/observability"
	"github.com/ewrenn/greenie/internal/session"
	"github.com/ewrenn/greenie/internal/store"
	"github.com/ewrenn/greenie/internal/topic"
	"github.com/ewrenn/greenie/internal/update"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.New(ctx, cfg.DatabaseURL, cfg.DBPath, cfg.MemoryMax)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()

	client := llm.New(llm.Config{
		Mode:    cfg.AdapterMode,
		APIKey:  cfg.GroqAPIKey,
		BaseURL: cfg.GroqBaseURL,
	})

	sessions := session.NewStore(cfg.SessionMax)
	updates := update.NewController(cfg.UpdateWindow, update.NewGitRefresher(cfg.RepoDir))

	eng := engine.New(st, topic.NewTracker(), sessions, client, updates, metrics, engine.Options{
		AssistantName: cfg.AssistantName,
		DefaultModel:  cfg.DefaultModel,
		FastModel:     cfg.FastModel,
		ChatTimeout:   cfg.ChatTimeout,
		FastTimeout:   cfg.FastTimeout,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		Timezone:      cfg.Timezone,
		KnowledgeN:    cfg.KnowledgeN,
		RecentN:       cfg.RecentN,
	})

	api := httpapi.New(cfg, eng, st, sessions)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	restart := false
	select {
	case <-sigCh:
		log.Printf("shutdown signal received")
	case <-updates.RestartRequests():
		// A confirmed self-update pulled new code; shut down cleanly and
		// let the process manager start the new build.
		restart = true
		metrics.UpdateEvents.WithLabelValues("restart").Inc()
		log.Printf("update applied, restarting")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
	if restart {
		st.Close()
		os.Exit(3)
	}
}
