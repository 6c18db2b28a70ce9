// Package storage selects the record store and fetch state backend from
// configuration.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tokcache/internal/providers"
	"tokcache/internal/services"
	"tokcache/internal/state"
	"tokcache/internal/storage/pgstore"
	"tokcache/internal/storage/sqlitestore"
	"tokcache/internal/structures"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Store interface {
	services.RecordStore
	services.FetchStateStore
	Close()
}

// NewStore opens the configured database. The returned func closes it.
func NewStore(conf *structures.Config, logger providers.Logger) (Store, func(), error) {
	ctx := context.Background()

	var (
		store Store
		err   error
	)
	switch conf.Database.Driver {
	case DriverPostgres:
		store, err = pgstore.New(ctx, conf.Database.DSN, conf.Database.MaxConns)
	case DriverSQLite:
		store, err = openSQLite(ctx, conf.Database.DSN, conf.Database.MaxConns)
	default:
		err = fmt.Errorf("unsupported database driver %q", conf.Database.Driver)
	}
	if err != nil {
		return nil, nil, err
	}

	logger.Infof(providers.TypeApp, "Opened %s record store", conf.Database.Driver)
	return store, func() {
		store.Close()
		logger.Infof(providers.TypeApp, "Closed %s record store", conf.Database.Driver)
	}, nil
}

func openSQLite(ctx context.Context, dsn string, maxConns int) (Store, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	db, err := sqlitestore.Open(dsn, maxConns)
	if err != nil {
		return nil, err
	}
	store, err := sqlitestore.New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewFetchStateStore returns the database store or the in-memory store,
// depending on sync.stateBackend.
func NewFetchStateStore(conf *structures.Config, store Store, memory *state.MemoryStore) services.FetchStateStore {
	if conf.Sync.StateBackend == structures.StateBackendFile {
		return memory
	}
	return store
}
