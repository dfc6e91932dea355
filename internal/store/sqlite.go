package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/rayven/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	spec       TEXT NOT NULL,
	band       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ghosts (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	star_index INTEGER NOT NULL,
	name       TEXT NOT NULL,
	samples    INTEGER NOT NULL,
	total_flux REAL NOT NULL,
	scale      REAL NOT NULL,
	footprint  BLOB,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_band ON runs(band);
CREATE INDEX IF NOT EXISTS idx_ghosts_run_id ON ghosts(run_id, star_index);
`

// sampleData is the JSON column holding a ghost's samples.
type sampleData struct {
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`
	Flux []float64 `json:"flux"`
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, spec model.RunSpec) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal spec")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, spec, band, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(specJSON), string(spec.Band), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Spec:      spec,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, error = NULL, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		reason, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, spec, status, summary, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, spec, status, summary, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Band != "" {
		query += ` AND band = ?`
		args = append(args, string(filter.Band))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveGhosts(ctx context.Context, runID string, star StarGhosts) ([]model.GhostRecord, error) {
	built, err := buildGhostRows(runID, star, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ghosts (id, run_id, star_index, name, samples, total_flux, scale, footprint, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare ghost insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range built {
		data, err := json.Marshal(sampleData{X: r.ghost.X, Y: r.ghost.Y, Flux: r.ghost.Flux})
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal samples")
		}
		if _, err := stmt.ExecContext(ctx,
			r.rec.ID, runID, r.rec.StarIndex, r.rec.Name, r.rec.Samples, r.rec.TotalFlux, r.rec.Scale,
			r.footprint, string(data), r.rec.CreatedAt,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert ghost %q for run %s", r.rec.Name, runID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit ghosts")
	}
	return records(built), nil
}

func (s *SQLiteStore) ListGhosts(ctx context.Context, runID string) ([]model.GhostRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, star_index, name, samples, total_flux, scale, footprint, created_at
		 FROM ghosts WHERE run_id = ? ORDER BY star_index, rowid`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list ghosts for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.GhostRecord
	for rows.Next() {
		rec, err := scanGhostRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ghosts iterate")
}

func (s *SQLiteStore) GetGhost(ctx context.Context, ghostID string) (*model.GhostRecord, *model.Ghost, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, star_index, name, samples, total_flux, scale, footprint, created_at, data
		 FROM ghosts WHERE id = ?`,
		ghostID,
	)

	var data string
	rec, err := scanGhostRecord(row, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, eris.Wrapf(ErrNotFound, "sqlite: ghost %s", ghostID)
	}
	if err != nil {
		return nil, nil, err
	}

	var sd sampleData
	if err := json.Unmarshal([]byte(data), &sd); err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: unmarshal samples")
	}
	return rec, &model.Ghost{Name: rec.Name, X: sd.X, Y: sd.Y, Flux: sd.Flux}, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var specJSON string
	var summaryJSON, errMsg sql.NullString

	err := row.Scan(&r.ID, &specJSON, &r.Status, &summaryJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(specJSON), &r.Spec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal spec")
	}
	if summaryJSON.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	r.Error = errMsg.String
	return &r, nil
}

func scanGhostRecord(row scannable, extra ...any) (*model.GhostRecord, error) {
	var rec model.GhostRecord
	var fp []byte
	dest := append([]any{
		&rec.ID, &rec.RunID, &rec.StarIndex, &rec.Name, &rec.Samples, &rec.TotalFlux, &rec.Scale, &fp, &rec.CreatedAt,
	}, extra...)

	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan ghost")
	}

	if rec.Footprint, err = decodeFootprint(fp); err != nil {
		return nil, err
	}
	return &rec, nil
}
