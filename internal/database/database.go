// Package database opens the storage backend selected by configuration.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"batepapo/internal/config"
	"batepapo/internal/storage"
	"batepapo/internal/storage/badgerstore"
	"batepapo/internal/storage/memory"
	"batepapo/internal/storage/sqlstore"
)

// Init opens, pings and migrates the configured backend. Any failure is
// returned so startup can abort; there is no fallback driver.
func Init(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()

	var (
		store storage.Store
		err   error
	)
	switch cfg.DBDriver {
	case config.DriverMySQL:
		if cfg.DBName == "" {
			return nil, fmt.Errorf("DB_NAME is required for the mysql driver")
		}
		store, err = sqlstore.Open(ctx, sqlstore.MySQL, cfg.MySQLDSN())
	case config.DriverSQLite:
		if err := ensureDir(filepath.Dir(cfg.DBPath)); err != nil {
			return nil, err
		}
		store, err = sqlstore.Open(ctx, sqlstore.SQLite, SQLiteDSN(cfg.DBPath))
	case config.DriverBadger:
		if err := ensureDir(cfg.DBPath); err != nil {
			return nil, err
		}
		store, err = badgerstore.Open(cfg.DBPath)
	case config.DriverMemory:
		store = memory.New()
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.DBDriver, err)
	}

	log.Info("✅ Storage connection established", zap.String("driver", cfg.DBDriver))
	return store, nil
}

// SQLiteDSN adds the pragmas used for every SQLite database.
func SQLiteDSN(path string) string {
	return filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return nil
}
