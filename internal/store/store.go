// Package store persists simulation runs and the ghosts they produce.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rayven/internal/geometry"
	"github.com/sells-group/rayven/internal/model"
)

// ErrNotFound is returned when a run or ghost does not exist.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Band   model.Band      `json:"band,omitempty"`
	// CreatedAfter, when set, keeps only runs created at or after it.
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}

// StarGhosts is the ghost bundle of one simulated star.
type StarGhosts struct {
	StarIndex int
	Scale     float64
	Bundle    model.GhostBundle
}

// Store defines the persistence interface for simulation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, spec model.RunSpec) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Ghosts
	SaveGhosts(ctx context.Context, runID string, star StarGhosts) ([]model.GhostRecord, error)
	ListGhosts(ctx context.Context, runID string) ([]model.GhostRecord, error)
	GetGhost(ctx context.Context, ghostID string) (*model.GhostRecord, *model.Ghost, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// ghostRow is a ghost record plus its encoded footprint, ready to insert.
type ghostRow struct {
	rec       model.GhostRecord
	footprint []byte
	ghost     model.Ghost
}

// buildGhostRows assigns IDs and computes footprints for a star's ghosts.
func buildGhostRows(runID string, star StarGhosts, now time.Time) ([]ghostRow, error) {
	rows := make([]ghostRow, 0, star.Bundle.Len())
	for i := 0; i < star.Bundle.Len(); i++ {
		g := star.Bundle.At(i)
		if len(g.X) != len(g.Flux) || len(g.Y) != len(g.Flux) {
			return nil, eris.Wrapf(model.ErrInvalidValue, "store: ghost %q has mismatched sample lengths", g.Name)
		}
		fp := geometry.Footprint(g.X, g.Y)
		wkb, err := geometry.EncodeFootprint(fp)
		if err != nil {
			return nil, err
		}
		rows = append(rows, ghostRow{
			rec: model.GhostRecord{
				ID:        uuid.New().String(),
				RunID:     runID,
				StarIndex: star.StarIndex,
				Name:      g.Name,
				Samples:   g.Len(),
				TotalFlux: g.TotalFlux(),
				Scale:     star.Scale,
				Footprint: geometry.FootprintArray(fp),
				CreatedAt: now,
			},
			footprint: wkb,
			ghost:     g,
		})
	}
	return rows, nil
}

func decodeFootprint(data []byte) ([4]float64, error) {
	b, err := geometry.DecodeFootprint(data)
	if err != nil {
		return [4]float64{}, err
	}
	return geometry.FootprintArray(b), nil
}

func records(rows []ghostRow) []model.GhostRecord {
	out := make([]model.GhostRecord, len(rows))
	for i, r := range rows {
		out[i] = r.rec
	}
	return out
}
