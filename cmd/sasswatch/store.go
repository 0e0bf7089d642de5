package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sasswatch/sasswatch-api/internal/app"
	"github.com/sasswatch/sasswatch-api/internal/platform/db"
	"github.com/sasswatch/sasswatch-api/internal/users"
)

// openStore connects the principal store selected by STORE_DRIVER and
// applies its schema. The returned func releases it.
func openStore(ctx context.Context, cfg *app.Config, logger *slog.Logger) (users.RepositoryPort, func(), error) {
	switch cfg.StoreDriver {
	case app.StoreSQLite:
		repo, err := users.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("principal store ready", slog.String("driver", cfg.StoreDriver), slog.String("path", cfg.SQLitePath))
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("sqlite close", slog.Any("error", err))
			}
		}, nil
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		repo := users.NewPGRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("principal store ready", slog.String("driver", cfg.StoreDriver))
		return repo, pool.Close, nil
	}
}
