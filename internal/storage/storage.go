// Package storage persists snapshots and serves the latest readings back.
// Appends are durable when they return nil; readers never observe a
// partially written snapshot.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/PanelGoat/internal/config"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Append durably records the present fields of a snapshot. Failures are
	// *types.StorageError and are not retried.
	Append(ctx context.Context, snap *types.Snapshot) error

	// LatestTotalAccounts returns the most recently captured total, or
	// types.ErrNoSnapshot when none has been recorded.
	LatestTotalAccounts(ctx context.Context) (*types.TotalAccountsRecord, error)

	// LatestSubscription returns the most recently captured subscription
	// record, or types.ErrNoSnapshot.
	LatestSubscription(ctx context.Context) (*types.SubscriptionRecord, error)

	// Subscriptions returns the records captured within [start, end] in
	// ascending capture order. Zero bounds are open.
	Subscriptions(ctx context.Context, start, end time.Time) ([]types.SubscriptionRecord, error)

	// Close releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New opens every configured backend. With more than one backend the
// result fans out writes and reads from the first.
func New(cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	backends := make([]Storage, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		s, err := open(name, cfg, logger)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, err
		}
		backends = append(backends, s)
	}

	switch len(backends) {
	case 0:
		return nil, fmt.Errorf("no storage backend configured")
	case 1:
		return backends[0], nil
	default:
		return NewMultiStorage(backends, logger), nil
	}
}

func open(name string, cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	switch name {
	case "sqlite":
		return NewSQLiteStorage(ctx, cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStorage(ctx, cfg.PostgresDSN, logger)
	case "file":
		return NewFileStorage(cfg.FileDir, cfg.FileFormat, logger)
	case "mongodb":
		return NewMongoStorage(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", name)
	}
}

func storageErr(backend, op string, err error) error {
	return &types.StorageError{Backend: backend, Op: op, Err: err}
}
