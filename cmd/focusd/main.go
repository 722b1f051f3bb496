package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jmarlin/focusd/internal/agent"
	"github.com/jmarlin/focusd/internal/config"
	"github.com/jmarlin/focusd/internal/eventlog"
	"github.com/jmarlin/focusd/internal/health"
	"github.com/jmarlin/focusd/internal/ingest"
	"github.com/jmarlin/focusd/internal/logging"
	"github.com/jmarlin/focusd/internal/mentalstate"
	"github.com/jmarlin/focusd/internal/orchestrator"
	"github.com/jmarlin/focusd/internal/router"
	"github.com/jmarlin/focusd/internal/store"
	"github.com/jmarlin/focusd/internal/tracker"
	"github.com/jmarlin/focusd/internal/types"
)

func main() {
	configPath := flag.String("config", "focusd.yaml", "optional yaml config file")
	flag.Parse()

	// Load .env if present (API keys, overrides)
	if err := godotenv.Load(); err == nil {
		logging.Info("main", "loaded .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	if err := os.MkdirAll(cfg.StatePath, 0755); err != nil {
		log.Fatalf("[main] state dir: %v", err)
	}

	st, err := store.Open(filepath.Join(cfg.StatePath, "focusd.db"))
	if err != nil {
		log.Fatalf("[main] store: %v", err)
	}
	defer st.Close()

	capture, err := eventlog.Open(filepath.Join(cfg.StatePath, "capture.jsonl"))
	if err != nil {
		log.Fatalf("[main] event log: %v", err)
	}
	defer capture.Close()

	classifier := mentalstate.NewClassifier(cfg)

	var fetcher *router.WebFetcher
	if cfg.FetchWebContent {
		fetcher = router.NewWebFetcher(cfg.FetchTimeout)
	}
	rt := router.New(&router.DefaultHandler{})
	rt.Register(&router.TerminalHandler{Apps: cfg.TerminalApps})
	rt.Register(&router.BrowserHandler{Apps: cfg.BrowserApps, Fetcher: fetcher})
	rt.Register(&router.CodeHandler{Apps: cfg.CodeApps})
	rt.Register(&router.ReadingHandler{Apps: cfg.ReaderApps})

	tr := tracker.New(cfg)
	client := agent.NewCLIClient(cfg.AgentCommand, cfg.AgentModel)
	orch := orchestrator.New(cfg, client, rt, st, tr)

	tr.OnWarn(orch.HandleWarn)
	tr.OnTrigger(orch.HandleTrigger)
	tr.OnClose(orch.HandleClose)

	mon := health.NewMonitor(30 * time.Second)

	f := newFunnel(cfg, tr, classifier, capture, orch)

	srv := ingest.NewServer(cfg.ListenAddr, f, func() any {
		status := map[string]any{
			"health": mon.Snapshot(),
		}
		if cur := tr.Current(); cur != nil {
			status["session"] = cur
		} else {
			status["session"] = nil
		}
		return status
	})
	orch.OnDeliver(srv.Push)

	orch.Start()
	mon.Start()
	f.Start()
	srv.Start()
	logging.Info("main", "focusd up, warn=%v long=%v", cfg.WarnThreshold, cfg.LongThreshold)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logging.Info("main", "shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logging.Info("main", "server shutdown: %v", err)
	}
	f.Stop()
	orch.Stop()
	mon.Stop()

	// Flush the live session so a restart doesn't lose it.
	tr.CloseCurrent(time.Now(), types.OutcomeNone)
	if err := capture.Flush(); err != nil {
		logging.Info("main", "capture flush: %v", err)
	}
}
