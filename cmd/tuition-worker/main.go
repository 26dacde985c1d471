package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tuition/internal/backend"
	"tuition/internal/cli"
	"tuition/internal/config"
	applog "tuition/internal/log"
	"tuition/internal/services"
	"tuition/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if err := run(logger, cfg); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

// run owns every resource so deferred cleanup happens before main exits.
func run(logger *applog.Logger, cfg *config.Config) (err error) {
	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid backend configuration: %w", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("initialize backend: %w", err)
	}
	defer func() {
		if cerr := res.Cleanup(); cerr != nil {
			logger.Error("Backend cleanup failed", "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()
	if res.Events == nil {
		return errors.New("AMQP client unavailable, worker cannot consume events")
	}

	// The worker never publishes: it only recomputes and audits.
	ledger := services.NewLedgerService(res.Store, nil, services.LedgerConfig{
		UserID:   cfg.ActorUserID,
		StatsTTL: cfg.StatsCacheTTL,
	})
	w := worker.NewEventWorker(res.Store, ledger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Consuming student events", "queue", cfg.AMQPQueue)
		err := res.Events.ConsumeStudentEvents(gctx, w.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		runAudits(gctx, logger, w, cfg.DefaultPeriodID, cfg.AuditInterval)
		return nil
	})
	return g.Wait()
}

// runAudits checks the stored ledgers of period at start and then every interval.
func runAudits(ctx context.Context, logger *applog.Logger, w *worker.EventWorker, period string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := w.AuditPeriod(ctx, period); err != nil {
			logger.Error("Periodic audit failed", "error", err, "period_id", period)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
