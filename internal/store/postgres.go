package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rayven/internal/db"
	"github.com/sells-group/rayven/internal/model"
)

// PostgresStore implements Store using pgxpool. Ghost samples live in their
// own table and are bulk-loaded with COPY.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var sampleColumns = []string{"ghost_id", "idx", "x", "y", "flux"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	spec       JSONB NOT NULL,
	band       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ghosts (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	star_index INTEGER NOT NULL,
	name       TEXT NOT NULL,
	samples    INTEGER NOT NULL,
	total_flux DOUBLE PRECISION NOT NULL,
	scale      DOUBLE PRECISION NOT NULL,
	footprint  BYTEA,
	seq        BIGSERIAL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ghost_samples (
	ghost_id TEXT NOT NULL REFERENCES ghosts(id) ON DELETE CASCADE,
	idx      INTEGER NOT NULL,
	x        DOUBLE PRECISION NOT NULL,
	y        DOUBLE PRECISION NOT NULL,
	flux     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (ghost_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_band ON runs(band);
CREATE INDEX IF NOT EXISTS idx_ghosts_run_id ON ghosts(run_id, star_index);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, spec model.RunSpec) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal spec")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, spec, band, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, specJSON, string(spec.Band), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Spec:      spec,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, status = $2, error = NULL, updated_at = $3 WHERE id = $4`,
		summaryJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reason, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, spec, status, summary, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, spec, status, summary, error, created_at, updated_at FROM runs
		 WHERE ($1 = '' OR status = $1) AND ($2 = '' OR band = $2) AND ($3::timestamptz IS NULL OR created_at >= $3)
		 ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		string(filter.Status), string(filter.Band), createdAfter(filter), limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveGhosts inserts ghost metadata and COPYs the samples in one transaction.
func (s *PostgresStore) SaveGhosts(ctx context.Context, runID string, star StarGhosts) ([]model.GhostRecord, error) {
	built, err := buildGhostRows(runID, star, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = db.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		var samples [][]any
		for _, r := range built {
			if _, err := tx.Exec(ctx,
				`INSERT INTO ghosts (id, run_id, star_index, name, samples, total_flux, scale, footprint, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				r.rec.ID, runID, r.rec.StarIndex, r.rec.Name, r.rec.Samples, r.rec.TotalFlux, r.rec.Scale,
				r.footprint, r.rec.CreatedAt,
			); err != nil {
				return eris.Wrapf(err, "postgres: insert ghost %q for run %s", r.rec.Name, runID)
			}
			for i := range r.ghost.Flux {
				samples = append(samples, []any{r.rec.ID, i, r.ghost.X[i], r.ghost.Y[i], r.ghost.Flux[i]})
			}
		}
		_, err := db.CopyFrom(ctx, tx, "ghost_samples", sampleColumns, samples)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records(built), nil
}

func (s *PostgresStore) ListGhosts(ctx context.Context, runID string) ([]model.GhostRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, star_index, name, samples, total_flux, scale, footprint, created_at
		 FROM ghosts WHERE run_id = $1 ORDER BY star_index, seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list ghosts for run %s", runID)
	}
	defer rows.Close()

	var out []model.GhostRecord
	for rows.Next() {
		rec, err := scanPgGhost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ghosts iterate")
}

func (s *PostgresStore) GetGhost(ctx context.Context, ghostID string) (*model.GhostRecord, *model.Ghost, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, run_id, star_index, name, samples, total_flux, scale, footprint, created_at
		 FROM ghosts WHERE id = $1`,
		ghostID,
	)
	rec, err := scanPgGhost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, eris.Wrapf(ErrNotFound, "postgres: ghost %s", ghostID)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT x, y, flux FROM ghost_samples WHERE ghost_id = $1 ORDER BY idx`,
		ghostID,
	)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "postgres: load samples for ghost %s", ghostID)
	}
	defer rows.Close()

	g := &model.Ghost{
		Name: rec.Name,
		X:    make([]float64, 0, rec.Samples),
		Y:    make([]float64, 0, rec.Samples),
		Flux: make([]float64, 0, rec.Samples),
	}
	for rows.Next() {
		var x, y, f float64
		if err := rows.Scan(&x, &y, &f); err != nil {
			return nil, nil, eris.Wrap(err, "postgres: scan sample")
		}
		g.X = append(g.X, x)
		g.Y = append(g.Y, y)
		g.Flux = append(g.Flux, f)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "postgres: samples iterate")
	}
	return rec, g, nil
}

func createdAfter(f RunFilter) *time.Time {
	if f.CreatedAfter.IsZero() {
		return nil
	}
	t := f.CreatedAfter.UTC()
	return &t
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var specJSON, summaryJSON []byte
	var errMsg *string

	if err := row.Scan(&r.ID, &specJSON, &r.Status, &summaryJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(specJSON, &r.Spec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal spec")
	}
	if summaryJSON != nil {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}

func scanPgGhost(row pgx.Row) (*model.GhostRecord, error) {
	var rec model.GhostRecord
	var fp []byte
	if err := row.Scan(&rec.ID, &rec.RunID, &rec.StarIndex, &rec.Name, &rec.Samples,
		&rec.TotalFlux, &rec.Scale, &fp, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan ghost")
	}
	var err error
	if rec.Footprint, err = decodeFootprint(fp); err != nil {
		return nil, err
	}
	return &rec, nil
}
