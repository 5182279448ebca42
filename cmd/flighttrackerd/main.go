// flighttrackerd runs the flight tracker ingestion daemon: the mailbox
// poller and the inbound SMTP server, sharing one extraction pipeline
// and one SQLite database.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/grouping"
	"github.com/nhle/flight-tracker/internal/model"
	"github.com/nhle/flight-tracker/internal/smtpserver"
	"github.com/nhle/flight-tracker/internal/store"
	"github.com/nhle/flight-tracker/internal/sync"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Fatal("opening database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer st.Close()

	grouper := grouping.NewGrouper(st, logger)
	orch := sync.NewOrchestrator(st, grouper, cfg.Sync.MaxMessages, logger)

	poller := sync.NewPoller(st, orch,
		time.Duration(cfg.Sync.PollIntervalSec)*time.Second,
		time.Duration(cfg.Sync.FetchTimeoutSec)*time.Second,
		logger)
	poller.Start()
	defer poller.Stop()

	smtpAddr := fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	backend := smtpserver.NewBackend(st, orch, cfg.SMTP.Domain, logger)
	server := smtpserver.NewServer(backend, smtpAddr)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("SMTP server listening",
			zap.String("addr", smtpAddr), zap.String("domain", cfg.SMTP.Domain))
		errCh <- server.ListenAndServe()
	}()

	logger.Info("flight tracker started",
		zap.String("database", cfg.Database.Path),
		zap.Int("poll_interval_sec", cfg.Sync.PollIntervalSec))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("SMTP server stopped", zap.Error(err))
	}

	if err := server.Close(); err != nil {
		logger.Warn("closing SMTP server", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
