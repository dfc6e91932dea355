//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/sells-group/rayven/internal/focalplane"
	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/monitoring"
	"github.com/sells-group/rayven/internal/observability"
	"github.com/sells-group/rayven/internal/store"
)

type apiFixture struct {
	handler http.Handler
	run     *model.Run
	ghosts  []model.GhostRecord
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	st := newTestStore(t)
	run, ghosts := seedRun(t, st, 2)

	metrics, err := observability.NewSimulationCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	a := newAPI(apiDeps{
		Store:   st,
		Binner:  newTestBinner(t),
		Bins:    focalplane.Square(8),
		MaxBins: 64,
		Metrics: metrics.Handler(),
		Monitor: monitoring.NewCollector(st, time.Hour),
	})
	return apiFixture{handler: a.routes(), run: run, ghosts: ghosts}
}

func (f apiFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestAPI_Health(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_Metrics(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "rayven_runs_active")
}

func TestAPI_CORS(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPI_ListRuns(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/runs?status=complete&band=r")
	require.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, f.run.ID, runs[0].ID)

	rr = f.get(t, "/runs?status=failed")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestAPI_ListRuns_BadLimit(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/runs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_GetRun(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/runs/"+f.run.ID)
	require.Equal(t, http.StatusOK, rr.Code)

	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.MountTMA, run.Spec.Mount.Kind)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.Ghosts)
}

func TestAPI_NotFound(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	for _, path := range []string{"/runs/missing", "/ghosts/missing", "/ghosts/missing/image", "/runs/missing/image"} {
		rr := f.get(t, path)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), path)
		assert.Equal(t, "not found", body["error"], path)
	}
}

func TestAPI_ListGhosts(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/runs/"+f.run.ID+"/ghosts")
	require.Equal(t, http.StatusOK, rr.Code)

	var ghosts []model.GhostRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ghosts))
	assert.Len(t, ghosts, 2)
	for _, g := range ghosts {
		assert.Equal(t, f.run.ID, g.RunID)
		assert.Equal(t, 2.0, g.Scale)
	}
}

func TestAPI_GetGhost(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/ghosts/"+f.ghosts[0].ID)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		ID      string      `json:"id"`
		Samples int         `json:"samples"`
		Data    model.Ghost `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, f.ghosts[0].ID, body.ID)
	assert.Equal(t, f.ghosts[0].Samples, body.Samples)
	assert.Len(t, body.Data.Flux, body.Samples)
	assert.Len(t, body.Data.X, body.Samples)
}

func TestAPI_GhostImage_PNG(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/ghosts/"+f.ghosts[0].ID+"/image?bins_x=6&bins_y=3")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
}

func TestAPI_RunImage_TIFF(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/runs/"+f.run.ID+"/image?format=tiff&bins=4&stretch=log")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/tiff", rr.Header().Get("Content-Type"))

	img, err := tiff.Decode(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestAPI_RunImage_JPEGPreview(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/runs/"+f.run.ID+"/image?format=jpeg")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte{0xFF, 0xD8}))
}

func TestAPI_ImageBadParams(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	base := "/ghosts/" + f.ghosts[0].ID + "/image"

	for _, q := range []string{"?format=gif", "?stretch=cubic", "?bins=x", "?bins_y=-2"} {
		rr := f.get(t, base+q)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestAPI_ImageBinsLimit(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	ghost := "/ghosts/" + f.ghosts[0].ID + "/image"
	run := "/runs/" + f.run.ID + "/image"

	for _, path := range []string{
		ghost + "?bins_x=2000000000&bins_y=2000000000",
		ghost + "?bins=65",
		ghost + "?bins_y=100",
		run + "?bins_x=50000&bins_y=50000",
	} {
		rr := f.get(t, path)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
		assert.Contains(t, rr.Body.String(), "limit of 64", path)
	}

	rr := f.get(t, ghost+"?bins=64")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewAPI_DefaultMaxBins(t *testing.T) {
	t.Parallel()
	a := newAPI(apiDeps{})
	assert.Equal(t, focalplane.DefaultMaxBins, a.MaxBins)
}

func TestAPI_Status(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.get(t, "/status?hours=48")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap monitoring.RunSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 1, snap.Complete)
	assert.Equal(t, 48, snap.LookbackHours)

	rr = f.get(t, "/status?hours=zero")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_StatusWithoutMonitor(t *testing.T) {
	t.Parallel()
	h := newAPI(apiDeps{Store: newTestStore(t)}).routes()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestFail_InternalError(t *testing.T) {
	t.Parallel()
	a := newAPI(apiDeps{})

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rr := httptest.NewRecorder()
	a.fail(rr, req, store.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	a.fail(rr, req, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, strings.Contains(rr.Body.String(), assert.AnError.Error()))
}
