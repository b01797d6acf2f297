package main

import (
	"context"
	"errors"
	"os"
	"time"

	"impact/internal/amqp"
	"impact/internal/cache"
	"impact/internal/cli"
	"impact/internal/config"
	"impact/internal/core"
	"impact/internal/impact"
	"impact/internal/local"
	"impact/internal/log"
	"impact/internal/recalc"
	"impact/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	if err := core.RequireUser(cfg.UserID); err != nil {
		logger.Error("IMPACT_USER_ID is required", log.FieldError, err)
		os.Exit(1)
	}

	if err := run(logger, cfg); err != nil {
		logger.Error("Session ended with error", log.FieldError, err)
		os.Exit(1)
	}
}

func run(logger *log.Logger, cfg *config.Config) error {
	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg)
	if be.Cleanup != nil {
		defer be.Cleanup()
	}

	aggregates := cache.NewLRU[core.ImpactAggregate](cfg.AggregateCacheSize, cfg.AggregateCacheTTL)
	janitor := cache.NewJanitor(logger, aggregates)
	janitor.Start(time.Minute)
	defer janitor.Stop()

	reader := impact.NewReader(be.Store, aggregates, logger)
	rc := cli.NewRecalculator(cfg, logger)

	var scheduler recalc.Scheduler
	switch cfg.RecalcTransport {
	case config.TransportAMQP:
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		scheduler = client
		logger.Info("Recalculation jobs published over AMQP", log.FieldQueue, cfg.AMQPQueue)
	default:
		queue := recalc.NewQueue(rc,
			recalc.QueueConfig{Size: cfg.RecalcQueueSize, Workers: cfg.RecalcWorkers},
			recalc.WithSink(reader),
			recalc.WithLogger(logger))
		if err := queue.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.RecalcTimeout)
			defer stopCancel()
			_ = queue.Stop(stopCtx)
		}()
		scheduler = queue
	}

	svc := services.NewSavingsService(be.Store, scheduler, logger)
	monitor := impact.NewMonitor(cfg.UserID, cfg.StalenessThreshold, scheduler, rc,
		impact.WithSink(reader),
		impact.WithLogger(logger))
	session := cli.NewSession(cli.SessionConfig{
		Store:      local.NewStore(svc, cfg.UserID, logger),
		Reader:     reader,
		Monitor:    monitor,
		UndoWindow: cfg.UndoWindow,
		Logger:     logger,
	})

	logger.Info("Starting impact session",
		log.FieldUserID, cfg.UserID,
		log.FieldBackend, cfg.DataBackend,
		"transport", cfg.RecalcTransport)

	err := session.Run(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
