package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rayven/internal/config"
	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/resilience"
)

// Open connects to the configured backend, applies the schema and wraps the
// result with write retries.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Wrapf(model.ErrInvalidValue, "store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}

	zap.L().Debug("store: opened", zap.String("driver", cfg.Driver))
	return WithRetry(s, resilience.FromStoreConfig(cfg), cfg.Driver), nil
}
