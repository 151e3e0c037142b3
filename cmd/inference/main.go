package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vektralab/embedgate/internal/inference/batcher"
	"github.com/vektralab/embedgate/internal/inference/config"
	"github.com/vektralab/embedgate/internal/inference/handler"
	"github.com/vektralab/embedgate/internal/inference/metrics"
	"github.com/vektralab/embedgate/internal/inference/model"
	"github.com/vektralab/embedgate/internal/inference/router"
	"github.com/vektralab/embedgate/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	met := metrics.New(registry)

	var m model.EmbeddingModel
	switch cfg.Model {
	case "dummy":
		m = model.NewDummy()
	default:
		m = model.NewHashingEmbedder(cfg.EmbeddingDim)
	}

	var sched batcher.Scheduler
	if cfg.NoBatching {
		sched = batcher.NewNoBatching(m, met, log)
	} else {
		sched = batcher.New(m, batcher.Config{
			MaxBatchSize: cfg.MaxBatchSize,
			BatchTimeout: cfg.BatchTimeout,
			NumWorkers:   cfg.NumWorkers,
			QueueCap:     cfg.QueueCap,
		}, met, log)
	}
	sched.Start()

	log.Info().
		Str("model", m.Name()).
		Str("device", m.Device()).
		Int("max_batch_size", cfg.MaxBatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Int("num_workers", cfg.NumWorkers).
		Bool("no_batching", cfg.NoBatching).
		Msg("inference server starting")

	h := handler.New(m, sched, log)
	r := router.New(router.Deps{
		Logger:   log,
		Handler:  h,
		Registry: registry,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("inference server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	// Stop accepting requests first, then drain the batcher so in-flight
	// callers resolve before the process exits.
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	sched.Shutdown()
	log.Info().Msg("inference server stopped gracefully")
}
