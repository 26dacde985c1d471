package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tuition/internal/backend"
	"tuition/internal/cache"
	"tuition/internal/cli"
	"tuition/internal/config"
	apphttp "tuition/internal/http"
	applog "tuition/internal/log"
	"tuition/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	if err := run(logger, cfg); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
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
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if cerr := res.Cleanup(); cerr != nil {
			logger.Error("Backend cleanup failed", "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	ledger := services.NewLedgerService(res.Store, res.Publisher(), services.LedgerConfig{
		UserID:       cfg.ActorUserID,
		StatsTTL:     cfg.StatsCacheTTL,
		Autocomplete: cfg.AutocompleteDefault,
	})
	srv := apphttp.NewServer(":"+cfg.Port, ledger, apphttp.Options{
		Logger:          logger,
		DefaultPeriodID: cfg.DefaultPeriodID,
	})

	cacheLog := logger.WithComponent(applog.ComponentCache)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tuition server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"period", cfg.DefaultPeriodID,
			"events", res.Events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		cache.RunJanitor(gctx, time.Minute, func(dropped int) {
			cacheLog.Debug("Swept expired statistics", "dropped", dropped)
		}, ledger.StatsCache())
		return nil
	})
	g.Go(func() error {
		srv.RunLimiterCleanup(gctx)
		return nil
	})

	return g.Wait()
}
