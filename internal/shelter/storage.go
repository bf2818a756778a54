package shelter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hay-kot/shelter/internal/core/config"
	"github.com/hay-kot/shelter/internal/core/offline"
	"github.com/hay-kot/shelter/internal/store/jsonfile"
	"github.com/hay-kot/shelter/internal/store/memory"
	"github.com/hay-kot/shelter/internal/store/sqlstore"
)

// Storage is durable storage for the cache document. Close releases any
// connection the backend holds.
type Storage interface {
	offline.Storage
	Close() error
}

type nopCloser struct{ offline.Storage }

func (nopCloser) Close() error { return nil }

// OpenStorage opens the backend selected by cfg.Cache.Backend.
func OpenStorage(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.Cache.Backend {
	case config.BackendFile:
		return nopCloser{jsonfile.NewKVStore(cfg.CacheFile()).WithQuota(cfg.Cache.QuotaBytes)}, nil
	case config.BackendMemory:
		return nopCloser{memory.New().WithQuota(cfg.Cache.QuotaBytes)}, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLiteFile()), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		return openSQL(ctx, sqlstore.SQLite, cfg.SQLiteFile())
	case config.BackendPostgres:
		return openSQL(ctx, sqlstore.Postgres, cfg.Cache.DSN)
	case config.BackendMySQL:
		return openSQL(ctx, sqlstore.MySQL, cfg.Cache.DSN)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func openSQL(ctx context.Context, backend sqlstore.Backend, dsn string) (Storage, error) {
	store, err := sqlstore.Open(ctx, backend, dsn, sqlstore.DefaultTable)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", backend, err)
	}
	return store, nil
}
