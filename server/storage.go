package server

import (
	"context"
	"fmt"

	"github.com/trevex/tenantscope"
	"github.com/trevex/tenantscope/hotel"
	"github.com/trevex/tenantscope/storage/pebble"
	"github.com/trevex/tenantscope/storage/postgres"
	"github.com/trevex/tenantscope/storage/sqlite3"
)

// OpenStorage creates the unrestricted storage the restricted clients of every
// request are derived from.
func OpenStorage(cfg StorageConfig, schema tenantscope.Schema) (tenantscope.Storage, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.DatabaseURL, schema, postgres.MaxConns(cfg.MaxConns))
	case "sqlite3":
		opts := []sqlite3.SQLite3Option{}
		if cfg.MaxConns > 0 {
			opts = append(opts, sqlite3.PoolSize(int(cfg.MaxConns)))
		}
		return sqlite3.NewSQLite3Storage(cfg.Path, schema, opts...)
	case "pebble":
		opts := []pebble.PebbleOption{}
		if cfg.InMemory {
			opts = append(opts, pebble.InMemory())
		}
		return pebble.NewPebbleStorage(cfg.Path, schema, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Migrate brings the hotel schema of the configured database up to date.
// Pebble is schemaless and needs no migrations.
func Migrate(ctx context.Context, cfg StorageConfig) error {
	switch cfg.Driver {
	case "postgres":
		return postgres.RunMigrations(cfg.DatabaseURL, hotel.PostgresMigrations)
	case "sqlite3":
		return sqlite3.RunMigrations(ctx, cfg.Path, hotel.SQLiteMigrations)
	case "pebble":
		return nil
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
