package ghost

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soniakeys/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rayven/internal/geometry"
	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/optic"
	"github.com/sells-group/rayven/internal/ray"
	"github.com/sells-group/rayven/pkg/raytrace"
)

const cameraYAML = `
name: LSST
pupil:
  size: 2
  obscuration: 0.5
  stop_surface: M1
  back_dist: 1
items:
  - name: M1
    type: mirror
  - name: L1_entrance
    type: refractive
  - name: Filter_entrance
    type: refractive
  - name: Detector
    type: detector
`

// Two rings of six rays each.
const testRays = 12

type mockTracer struct {
	mock.Mock
}

func (m *mockTracer) TraceSplit(ctx context.Context, om *optic.Model, rays *ray.Vector, minFlux float64) (*raytrace.SplitResult, error) {
	args := m.Called(ctx, om, rays, minFlux)
	if v := args.Get(0); v != nil {
		return v.(*raytrace.SplitResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *countingRecorder) StarTraced(outcome string, _ time.Duration, _ int, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func testModel(t *testing.T) *optic.Model {
	t.Helper()
	m, err := optic.Decode(strings.NewReader(cameraYAML))
	require.NoError(t, err)
	return m
}

func testReflectance() model.ReflectanceMap {
	return model.ReflectanceMap{
		"L1_entrance": 0.02,
		"r_entrance":  0.05,
		"ITL":         0.2,
		"E2V":         0.15,
	}
}

func testOptions() Options {
	o := DefaultOptions()
	o.NRad = 2
	o.NAz = 6
	return o
}

func newSimulator(t *testing.T, tracer Tracer, o Options, opts ...Option) *Simulator {
	t.Helper()
	s, err := New(Config{
		Model:       testModel(t),
		Camera:      geometry.LSSTCam(),
		Band:        model.BandR,
		Reflectance: testReflectance(),
		Options:     o,
	}, tracer, opts...)
	require.NoError(t, err)
	return s
}

func conservingSplit() *raytrace.SplitResult {
	return &raytrace.SplitResult{
		Forward: []*model.RayFamily{
			{Path: nil, X: []float64{0.001, -0.002}, Y: []float64{0.003, 0}, Flux: []float64{5, 5}},
			{Path: []string{"L1_entrance", "Detector"}, X: []float64{0.1}, Y: []float64{-0.1}, Flux: []float64{0.5}},
		},
		Reverse: []*model.RayFamily{
			{Path: []string{"L1_entrance"}, X: []float64{0.2}, Y: []float64{0.2}, Flux: []float64{1.5}},
		},
	}
}

func TestSimulateStar(t *testing.T) {
	t.Parallel()

	tracer := &mockTracer{}
	tracer.On("TraceSplit", mock.Anything, mock.AnythingOfType("*optic.Model"), mock.AnythingOfType("*ray.Vector"), 1e-4).
		Return(conservingSplit(), nil).Once()

	rec := &countingRecorder{}
	s := newSimulator(t, tracer, testOptions(), WithRecorder(rec))
	res, err := s.SimulateStar(context.Background(), unit.AngleFromDeg(0.5), unit.AngleFromDeg(-0.2), "ITL")
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{1, -2, 100}, res.X, 1e-9)
	assert.InDeltaSlice(t, []float64{3, 0, -100}, res.Y, 1e-9)
	assert.Equal(t, []float64{5, 5, 0.5}, res.Flux)
	assert.InDelta(t, 10.5, res.ForwardFlux, 1e-12)
	assert.InDelta(t, 1.5, res.ReverseFlux, 1e-12)
	assert.Equal(t, float64(testRays), res.InputFlux)
	assert.Equal(t, testRays, res.Rays)
	assert.Len(t, res.Families, 2)

	require.Equal(t, 2, res.Bundle.Len())
	assert.Equal(t, "direct", res.Bundle.At(0).Name)
	assert.Equal(t, "L1_entrance->Detector", res.Bundle.At(1).Name)
	assert.Same(t, res.Families[1], res.Bundle.At(1).Family)
	assert.Equal(t, []string{OutcomeOK}, rec.outcomes)

	tracer.AssertExpectations(t)
}

func TestSimulateStar_CoatsClone(t *testing.T) {
	t.Parallel()

	var traced *optic.Model
	tracer := &mockTracer{}
	tracer.On("TraceSplit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { traced = args.Get(1).(*optic.Model) }).
		Return(conservingSplit(), nil)

	s := newSimulator(t, tracer, testOptions())
	_, err := s.SimulateStar(context.Background(), 0, 0, "E2V")
	require.NoError(t, err)
	require.NotNil(t, traced)

	det, err := traced.Lookup("Detector")
	require.NoError(t, err)
	assert.InDelta(t, 0.15, det.Forward.Reflect, 1e-12)
	filter, err := traced.Lookup("Filter_entrance")
	require.NoError(t, err)
	assert.InDelta(t, 0.05, filter.Reverse.Reflect, 1e-12)

	base, err := s.base.Lookup("Detector")
	require.NoError(t, err)
	assert.Equal(t, 0.0, base.Forward.Reflect)
}

func TestSimulateStar_EngineErrorPropagates(t *testing.T) {
	t.Parallel()

	engErr := &raytrace.EngineError{StatusCode: 500, Message: "malformed optical model"}
	tracer := &mockTracer{}
	tracer.On("TraceSplit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, engErr)

	rec := &countingRecorder{}
	s := newSimulator(t, tracer, testOptions(), WithRecorder(rec))
	_, err := s.SimulateStar(context.Background(), 0, 0, "ITL")
	require.Error(t, err)

	var got *raytrace.EngineError
	require.True(t, errors.As(err, &got))
	assert.Same(t, engErr, got)
	assert.Equal(t, []string{OutcomeFailed}, rec.outcomes)
}

func TestSimulateStar_MissingDetectorType(t *testing.T) {
	t.Parallel()

	tracer := &mockTracer{}
	s := newSimulator(t, tracer, testOptions())
	_, err := s.SimulateStar(context.Background(), 0, 0, "STA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMissingReflectance))
	assert.Contains(t, err.Error(), "STA")
	tracer.AssertNotCalled(t, "TraceSplit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSimulateStar_ZeroFluxFamilies(t *testing.T) {
	t.Parallel()

	split := &raytrace.SplitResult{
		Forward: []*model.RayFamily{{Path: []string{"L1_entrance"}}},
	}
	tracer := &mockTracer{}
	tracer.On("TraceSplit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(split, nil)

	o := testOptions()
	o.Conservation = ConservationOff
	s := newSimulator(t, tracer, o)
	res, err := s.SimulateStar(context.Background(), 0, 0, "ITL")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Bundle.Len())
	assert.Empty(t, res.Flux)
	assert.Equal(t, 0.0, res.ForwardFlux)
}

func TestConservation(t *testing.T) {
	t.Parallel()

	leaky := &raytrace.SplitResult{
		Forward: []*model.RayFamily{{X: []float64{0}, Y: []float64{0}, Flux: []float64{1}}},
	}

	tests := []struct {
		mode    ConservationMode
		wantErr bool
	}{
		{ConservationWarn, false},
		{ConservationOff, false},
		{ConservationStrict, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()
			tracer := &mockTracer{}
			tracer.On("TraceSplit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(leaky, nil)

			o := testOptions()
			o.Conservation = tt.mode
			s := newSimulator(t, tracer, o)
			_, err := s.SimulateStar(context.Background(), 0, 0, "ITL")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "not conserved")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConservation_WithinTolerance(t *testing.T) {
	t.Parallel()

	tracer := &mockTracer{}
	tracer.On("TraceSplit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(conservingSplit(), nil)

	o := testOptions()
	o.Conservation = ConservationStrict
	s := newSimulator(t, tracer, o)
	// 10.5 + 1.5 equals the 12 input rays.
	_, err := s.SimulateStar(context.Background(), 0, 0, "ITL")
	assert.NoError(t, err)
}

func TestSimulateStar_Timeout(t *testing.T) {
	t.Parallel()

	tracer := &mockTracer{}
	tracer.On("TraceSplit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
		}).
		Return(conservingSplit(), nil)

	o := testOptions()
	o.StarTimeout = time.Minute
	s := newSimulator(t, tracer, o)
	_, err := s.SimulateStar(context.Background(), 0, 0, "ITL")
	require.NoError(t, err)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tracer := &mockTracer{}
	base := Config{
		Model:       testModel(t),
		Band:        model.BandR,
		Reflectance: testReflectance(),
		Options:     testOptions(),
	}

	_, err := New(base, nil)
	assert.Error(t, err)

	noBand := base
	noBand.Band = model.BandNone
	_, err = New(noBand, tracer)
	assert.True(t, errors.Is(err, model.ErrInvalidValue))

	gBand := base
	gBand.Band = model.BandG
	_, err = New(gBand, tracer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMissingReflectance))
	assert.Contains(t, err.Error(), "g_entrance")

	badOpts := base
	badOpts.Options.Conservation = "loud"
	_, err = New(badOpts, tracer)
	assert.Error(t, err)

	badRefl := base
	badRefl.Reflectance = model.ReflectanceMap{"r_entrance": 2}
	_, err = New(badRefl, tracer)
	assert.Error(t, err)

	s, err := New(base, tracer)
	require.NoError(t, err)
	assert.Equal(t, "LSSTCam", s.Camera().Name())
	assert.Equal(t, model.BandR, s.Band())
}
