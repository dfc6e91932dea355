package main

import (
	"context"

	"github.com/sells-group/rayven/internal/store"
)

const defaultSQLiteDSN = "rayven.db"

// initStore opens the configured run store with its schema applied.
func initStore(ctx context.Context) (store.Store, error) {
	sc := cfg.Store
	if sc.Driver == "sqlite" && sc.DatabaseURL == "" {
		sc.DatabaseURL = defaultSQLiteDSN
	}
	return store.Open(ctx, sc)
}
