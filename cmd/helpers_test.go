package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/rayven/internal/config"
	"github.com/sells-group/rayven/internal/focalplane"
	"github.com/sells-group/rayven/internal/geometry"
	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func newTestBinner(t *testing.T) *focalplane.Binner {
	t.Helper()
	cam, err := geometry.New(geometry.WithFocalPlane(-20, 20, -20, 20))
	require.NoError(t, err)
	return focalplane.NewBinner(cam)
}

func testRunSpec() model.RunSpec {
	return model.RunSpec{
		Band:     model.BandR,
		Mount:    model.MountSpec{Kind: model.MountTMA, Az: 30, Alt: 60},
		Scaling:  model.ScalingFlux,
		Catalog:  "stars.csv",
		NumStars: 2,
		NRad:     300,
		NAz:      2000,
		MinFlux:  1e-4,
		Detector: "ITL",
	}
}

// testBundle carries 1.0 flux in total, all inside the ±20 mm test mosaic.
func testBundle() model.GhostBundle {
	return model.GhostBundle{Ghosts: []model.Ghost{
		{Name: "L1_entrance->L1_exit", X: []float64{-5, 5}, Y: []float64{5, -5}, Flux: []float64{0.25, 0.25}},
		{Name: "Filter_entrance->Detector", X: []float64{0}, Y: []float64{0}, Flux: []float64{0.5}},
	}}
}

// seedRun stores a complete run with one star's ghosts at the given scale.
func seedRun(t *testing.T, st store.Store, scale float64) (*model.Run, []model.GhostRecord) {
	t.Helper()
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunSpec())
	require.NoError(t, err)
	recs, err := st.SaveGhosts(ctx, run.ID, store.StarGhosts{StarIndex: 0, Scale: scale, Bundle: testBundle()})
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, &model.RunSummary{Stars: 1, Ghosts: len(recs), Samples: 3, DurationMs: 1500}))

	run, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	return run, recs
}
