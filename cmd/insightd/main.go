// insightd is the meeting-intelligence service: it accepts transcript
// chunks over websockets, detects questions and action items in real time,
// and persists the results when each meeting ends.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tell-Me-Mo/insight-engine/internal/config"
	"github.com/Tell-Me-Mo/insight-engine/internal/gateway"
	"github.com/Tell-Me-Mo/insight-engine/internal/inference"
	"github.com/Tell-Me-Mo/insight-engine/internal/providers"
	"github.com/Tell-Me-Mo/insight-engine/internal/search"
	"github.com/Tell-Me-Mo/insight-engine/internal/session"
	"github.com/Tell-Me-Mo/insight-engine/internal/store"
)

func main() {
	// Load .env if present; real deployments use the environment directly.
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatalf("insightd failed: %v", err)
	}
}

func run() error {
	fs := flag.NewFlagSet("insightd", flag.ExitOnError)
	addrFlag := fs.String("addr", "", "listen address (overrides config)")
	dataFlag := fs.String("data", "", "data directory (overrides config)")
	kbFlag := fs.String("kb", "", "knowledge base directory (overrides config)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	manager, err := config.NewManager()
	if err != nil {
		return err
	}
	cfg, err := manager.Load()
	if err != nil {
		return err
	}
	if *addrFlag != "" {
		cfg.ListenAddr = *addrFlag
	}
	if *dataFlag != "" {
		cfg.DataDir = *dataFlag
	}
	if *kbFlag != "" {
		cfg.KnowledgeDir = *kbFlag
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	ctx := context.Background()

	llm, model, err := providers.NewLLMClientFromEnv()
	if err != nil {
		return err
	}
	logger.Printf("using model %s", model)
	detector := inference.NewClient(llm, inference.Options{})

	// Document search is optional: without a knowledge base the first
	// discovery tier reports itself unavailable and is skipped.
	var docs search.DocumentSearcher
	var watcher *search.KnowledgeWatcher
	if cfg.KnowledgeDir != "" {
		index, err := search.NewKnowledgeIndex(filepath.Join(cfg.DataDir, "knowledge"))
		if err != nil {
			return err
		}
		defer index.Close()

		n, err := search.IndexTree(index, cfg.KnowledgeDir)
		if err != nil {
			logger.Printf("knowledge base indexing failed: %v", err)
		} else {
			logger.Printf("indexed %d knowledge documents from %s", n, cfg.KnowledgeDir)
		}

		watcher, err = search.NewKnowledgeWatcher(cfg.KnowledgeDir, index)
		if err != nil {
			logger.Printf("knowledge base watcher unavailable: %v", err)
		} else if err := watcher.Start(); err != nil {
			logger.Printf("knowledge base watcher failed to start: %v", err)
		} else {
			defer watcher.Stop()
		}
		docs = index
	}

	st, err := store.Open(ctx, filepath.Join(cfg.DataDir, "insights.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	hub := gateway.NewHub(logger)
	deps := session.Deps{
		Inference:   detector,
		Docs:        docs,
		Generator:   search.NewGenerator(llm),
		Broadcaster: hub,
		Persister:   st,
		Summarizer:  session.NewSummarizer(llm),
	}
	sessionCfg := session.Config{IncludeSpeakers: cfg.IncludeSpeakers}

	registry := session.NewRegistry(sessionCfg, deps, cfg.IdleTimeout())
	registry.Start()

	server := gateway.NewServer(logger, cfg.ListenAddr, hub, registry, st)

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	registry.Shutdown(shutdownCtx)
	return nil
}
