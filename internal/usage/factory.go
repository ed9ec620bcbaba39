package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chatgateway/config"
	"chatgateway/internal/storage"
)

// Result holds the initialized usage logger and its dependencies.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Logger  Recorder
	Reader  Reader // nil when usage tracking is disabled
	Storage storage.Storage
}

// Close flushes the logger and closes the storage connection.
// Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New creates the usage ledger from configuration. When tracking is
// disabled it returns a NoopLogger and no storage.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Result, error) {
	if !cfg.Usage.Enabled {
		return &Result{Logger: NoopLogger{}}, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	usageStore, err := createStore(ctx, store, cfg.Usage.RetentionDays)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Result{
		Logger:  NewLogger(usageStore, buildLoggerConfig(cfg.Usage), logger),
		Reader:  usageStore,
		Storage: store,
	}, nil
}

// storeReader is a backend store that can also answer summary queries.
type storeReader interface {
	Store
	Reader
}

func buildStorageConfig(cfg config.StorageConfig) storage.Config {
	storageCfg := storage.DefaultConfig()
	if cfg.Type != "" {
		storageCfg.Type = cfg.Type
	}
	if cfg.SQLitePath != "" {
		storageCfg.SQLite.Path = cfg.SQLitePath
	}
	storageCfg.PostgreSQL.URL = cfg.PostgresURL
	if cfg.PostgresMaxConn > 0 {
		storageCfg.PostgreSQL.MaxConns = cfg.PostgresMaxConn
	}
	storageCfg.MongoDB.URL = cfg.MongoURL
	if cfg.MongoDatabase != "" {
		storageCfg.MongoDB.Database = cfg.MongoDatabase
	}
	return storageCfg
}

func createStore(ctx context.Context, store storage.Storage, retentionDays int) (storeReader, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, store.PostgreSQLPool(), retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, store.MongoDatabase(), retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func buildLoggerConfig(cfg config.UsageConfig) Config {
	out := DefaultConfig()
	out.Enabled = cfg.Enabled
	out.RetentionDays = cfg.RetentionDays
	if cfg.BufferSize > 0 {
		out.BufferSize = cfg.BufferSize
	}
	if cfg.FlushInterval > 0 {
		out.FlushInterval = cfg.FlushInterval
	}
	return out
}
