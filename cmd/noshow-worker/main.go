package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medigo/appointment-service/internal/appointment"
	"github.com/medigo/appointment-service/internal/bootstrap"
	"github.com/medigo/appointment-service/internal/config"
	"github.com/medigo/appointment-service/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}

	log := logger.New(cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"env":      cfg.Env,
		"interval": cfg.WorkerInterval.String(),
		"grace":    cfg.NoShowGrace.String(),
	}).Info("noshow-worker starting up")

	if cfg.StoreBackend == config.StoreBackendMemory {
		log.Warn("memory store is private to this process, the worker will find nothing to sweep")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(rootCtx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("bootstrap failed")
	}
	defer deps.Close()

	// Run once at startup
	runOnce(rootCtx, deps.Service, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping noshow worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, deps.Service, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log logrus.FieldLogger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := svc.MarkOverdueNoShows(runCtx)
	if err != nil {
		log.WithError(err).Error("noshow run error")
		return
	}
	log.WithFields(logrus.Fields{
		"marked":   marked,
		"duration": time.Since(start).String(),
	}).Info("noshow run complete")
}
