package main

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	fulfillmentdb "lockstep/internal/db/fulfillment"
	"lockstep/internal/fulfillment"
	"lockstep/internal/journal"
)

var openStoreDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// buildInstanceStore wires the saga instance store. A Postgres DSN selects the
// durable store; otherwise the in-memory store is used, with journal recovery
// when SAGA_JOURNAL_PATH is set. The returned cleanup closes any resources.
func buildInstanceStore(ctx context.Context, dsn string, logf func(format string, args ...any)) (fulfillment.Store, func(), error) {
	cleanup := func() {}

	if dsn = strings.TrimSpace(dsn); dsn != "" {
		sqlDB, err := openStoreDB("pgx", dsn)
		if err != nil {
			logf("postgres open failed, falling back to in-memory instances: %v", err)
		} else {
			setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			store, err := fulfillmentdb.NewStoreWithSchema(setupCtx, sqlDB)
			if err != nil {
				logf("postgres init failed, falling back to in-memory instances: %v", err)
				_ = sqlDB.Close()
			} else {
				logf("postgres instance store enabled")
				cleanup = func() {
					if err := sqlDB.Close(); err != nil {
						logf("close postgres: %v", err)
					}
				}
				return store, cleanup, nil
			}
		}
	}

	path := strings.TrimSpace(os.Getenv("SAGA_JOURNAL_PATH"))
	if path == "" {
		return fulfillment.NewMemoryStore(nil), cleanup, nil
	}

	file, err := journal.Open(path)
	if err != nil {
		return nil, nil, err
	}
	store, err := fulfillment.NewMemoryStoreWithRecovery(file)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	logf("journal-backed instance store enabled (%s)", path)
	cleanup = func() {
		if err := file.Close(); err != nil {
			logf("close journal: %v", err)
		}
	}
	return store, cleanup, nil
}
