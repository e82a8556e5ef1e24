package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperkishore/cupido/internal/config"
	"github.com/hyperkishore/cupido/internal/contextmem"
	"github.com/hyperkishore/cupido/internal/httpapi"
	"github.com/hyperkishore/cupido/internal/observability"
	"github.com/hyperkishore/cupido/internal/store"
	"github.com/hyperkishore/cupido/internal/summarizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("conversation store: in-memory (set DATABASE_URL for postgres)")
	} else {
		log.Printf("conversation store: postgres")
	}

	llm, err := summarizer.NewAdapter(summarizer.Config{
		Mode: cfg.SummarizerMode,
		URL:  cfg.SummarizerURL,
	})
	if err != nil {
		log.Fatalf("summarizer init failed: %v", err)
	}

	memCfg := contextmem.Config{
		MaxRecentTurns:            cfg.MaxRecentTurns,
		MaxTokensBeforeCompaction: cfg.MaxTokensBeforeCompaction,
		MaxSummaryTokens:          cfg.MaxSummaryTokens,
		OverlapTurns:              cfg.OverlapTurns,
	}
	compactor := contextmem.NewCompactor(memCfg, llm, cfg.SummarizerTimeout)
	manager := contextmem.NewManager(memCfg, st, compactor, cfg.ContextIdleTimeout, metrics)
	manager.StartJanitor(ctx, cfg.JanitorInterval)

	server := httpapi.New(cfg, manager, st, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
