package backend

import (
	"context"
	"errors"
	"fmt"

	"tuition/internal/amqp"
	applog "tuition/internal/log"
	"tuition/internal/store/memory"
	"tuition/internal/storage"
)

type DefaultFactory struct {
	logger *applog.Logger
	// dial is swapped in tests.
	dial func(url, exchange, queue string) (*amqp.Client, error)
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
		dial:   amqp.NewClient,
	}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var res *BackendResult
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		res = &BackendResult{Store: repo, Cleanup: repo.Close}
	case MemoryBackend:
		st, err := memory.NewFromFiles(config.SeedDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized memory backend", "seed_dir", config.SeedDir)
		res = &BackendResult{Store: st, Cleanup: func() error { return nil }}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if config.AMQPURL == "" {
		return res, nil
	}
	client, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		return res, nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	storeCleanup := res.Cleanup
	res.Events = client
	res.Cleanup = func() error {
		return errors.Join(client.Close(), storeCleanup())
	}
	return res, nil
}
