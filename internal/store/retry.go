package store

import (
	"context"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/resilience"
)

// RetryingStore retries the writes of an underlying Store on transient
// failures. Reads pass straight through.
type RetryingStore struct {
	Store
	cfg     resilience.RetryConfig
	backend string
}

// WithRetry wraps s so its writes are retried according to cfg.
func WithRetry(s Store, cfg resilience.RetryConfig, backend string) *RetryingStore {
	return &RetryingStore{Store: s, cfg: cfg, backend: backend}
}

func (r *RetryingStore) policy(op string) resilience.RetryConfig {
	cfg := r.cfg
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(r.backend, op)
	}
	return cfg
}

func (r *RetryingStore) CreateRun(ctx context.Context, spec model.RunSpec) (*model.Run, error) {
	return resilience.DoVal(ctx, r.policy("create run"), func(ctx context.Context) (*model.Run, error) {
		return r.Store.CreateRun(ctx, spec)
	})
}

func (r *RetryingStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return resilience.Do(ctx, r.policy("update run status"), func(ctx context.Context) error {
		return r.Store.UpdateRunStatus(ctx, runID, status)
	})
}

func (r *RetryingStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	return resilience.Do(ctx, r.policy("complete run"), func(ctx context.Context) error {
		return r.Store.CompleteRun(ctx, runID, summary)
	})
}

func (r *RetryingStore) FailRun(ctx context.Context, runID string, reason string) error {
	return resilience.Do(ctx, r.policy("fail run"), func(ctx context.Context) error {
		return r.Store.FailRun(ctx, runID, reason)
	})
}

func (r *RetryingStore) SaveGhosts(ctx context.Context, runID string, star StarGhosts) ([]model.GhostRecord, error) {
	return resilience.DoVal(ctx, r.policy("save ghosts"), func(ctx context.Context) ([]model.GhostRecord, error) {
		return r.Store.SaveGhosts(ctx, runID, star)
	})
}
