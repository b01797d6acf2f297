package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"impact/internal/amqp"
	"impact/internal/cli"
	"impact/internal/config"
	"impact/internal/log"
	"impact/internal/worker"
)

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting recalc-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the recalc worker")
		exitCode = 1
		return
	}

	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Memory backend is private to this process, aggregates will not reach the session")
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	// Aggregates returned by the endpoint are written to the shared store
	be := cli.InitBackend(ctx, logger, cfg)
	if be.Cleanup != nil {
		defer be.Cleanup()
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		exitCode = 1
		return
	}
	defer amqpClient.Close()

	recalcWorker := worker.NewRecalcWorker(cli.NewRecalculator(cfg, logger), be.Store, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeRecalcJobs(gctx, recalcWorker.HandleRecalcJob)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		exitCode = 1
		return
	}
	logger.Info("Worker shutdown complete")
}
