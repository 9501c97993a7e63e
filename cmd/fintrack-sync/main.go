// Command fintrack-sync keeps a local copy of the ledger in step with the remote API:
// it replays queued writes, refreshes the account balance and fans change events out
// to AMQP when configured.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/categories"
	"fintrack/internal/categories/file"
	"fintrack/internal/categories/sheets"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/connectivity"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/remote"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(cli.BootstrapLogger())
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting fintrack-sync", "backend", cfg.StorageBackend, "ledger_url", cfg.LedgerAPIURL)

	startCtx := context.Background()
	be := cli.InitBackend(startCtx, logger, cfg)

	client, err := remote.New(remote.Config{
		BaseURL: cfg.LedgerAPIURL,
		Token:   cfg.LedgerAPIToken,
		Timeout: cfg.LedgerRequestTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("Failed to create ledger client", log.FieldError, err)
		os.Exit(1)
	}

	status := connectivity.NewStatus(false)
	prober := &connectivity.Prober{
		Status:   status,
		Addr:     cfg.ConnectivityProbeAddr,
		Interval: cfg.ConnectivityProbeInterval,
		Logger:   logger,
	}
	prober.Probe(startCtx)

	source, err := categorySource(startCtx, cfg, client, logger)
	if err != nil {
		logger.Error("Failed to initialize category source", log.FieldError, err, "source", cfg.CategorySource)
		os.Exit(1)
	}
	cats := categories.NewProvider(source, cfg.CategoryCacheTTL, logger)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(cats.Cache())
	cacheManager.StartCleanup(cfg.CategoryCacheTTL)

	bus := notify.NewBroadcaster()
	var publisher *amqp.Client
	unobserve := func() {}
	if cfg.AMQPURL != "" {
		publisher, err = amqp.NewClient(startCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, 5, logger)
		if err != nil {
			// Events still reach in-process subscribers.
			logger.Error("AMQP unavailable, change events stay local", log.FieldError, err)
		} else {
			unobserve = publisher.Observe(bus)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	accounts := ledger.New(ledger.Config{
		Store:   be.Stores.Accounts,
		API:     client,
		Monitor: status,
		Logger:  logger,
	})
	engine := services.NewEngine(services.EngineConfig{
		Stores:      be.Stores,
		Remote:      client,
		Ledger:      accounts,
		Monitor:     status,
		Categories:  cats,
		Broadcaster: bus,
		Logger:      logger,
	})

	syncWorker := worker.NewSyncWorker(engine, engine, status, status, worker.Config{
		DrainInterval:   cfg.SyncInterval,
		RefreshInterval: cfg.AccountRefreshInterval,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := syncWorker.Stop(ctx); err != nil {
			logger.Error("Failed to stop sync worker", log.FieldError, err)
		}
		cacheManager.Stop()
		unobserve()
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Error("Failed to close AMQP client", log.FieldError, err)
			}
		}
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Error("Failed to close storage backend", log.FieldError, err)
			}
		}
	})

	go prober.Run(ctx)

	if err := syncWorker.Start(ctx); err != nil {
		logger.Error("Failed to start sync worker", log.FieldError, err)
		os.Exit(1)
	}

	if err := warmUp(ctx, engine, cfg.FetchWindowDays, logger); err != nil {
		// Not fatal: the worker keeps retrying once the server is reachable.
		logger.Warn("Initial fetch failed", log.FieldError, err, log.FieldErrorClass, core.ClassOf(err).String())
	}

	cli.WaitForShutdown(ctx, done)
}

// categorySource picks where category reference data comes from.
func categorySource(ctx context.Context, cfg *config.Config, client *remote.Client, logger *log.Logger) (categories.Source, error) {
	switch cfg.CategorySource {
	case "remote":
		return categories.RemoteSource{API: client}, nil
	case "file":
		return file.Source{Path: cfg.CategoriesFile}, nil
	case "sheets":
		return sheets.New(ctx, sheets.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			Range:              cfg.GoogleCategoriesRange,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			Logger:             logger,
		})
	default:
		return nil, fmt.Errorf("unknown category source %q", cfg.CategorySource)
	}
}

// warmUp loads the account and the last days of transactions so the local copy is
// usable before the first worker tick.
func warmUp(ctx context.Context, engine *services.Engine, days int, logger *log.Logger) error {
	acct, err := engine.Account(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	p, err := core.NewPeriod(now.AddDate(0, 0, -days), now)
	if err != nil {
		return err
	}
	txs, err := engine.FetchTransactions(ctx, p)
	if err != nil {
		return err
	}
	pending, err := engine.PendingCount(ctx)
	if err != nil {
		return err
	}
	logger.Info("Local copy ready",
		log.FieldAccountID, acct.ID,
		log.FieldBalance, acct.Balance.String(),
		log.FieldCount, len(txs),
		"pending", pending,
	)
	return nil
}
