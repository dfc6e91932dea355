// Package ghost runs the ghost simulation: per star it coats a fresh copy of
// the posed optical model, traces a polar ray bundle through the remote
// engine and gathers the forward ray families into named ghosts.
package ghost

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/soniakeys/unit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/rayven/internal/coating"
	"github.com/sells-group/rayven/internal/geometry"
	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/optic"
	"github.com/sells-group/rayven/internal/ray"
	"github.com/sells-group/rayven/pkg/raytrace"
)

const tracerName = "github.com/sells-group/rayven/internal/ghost"

// Engine positions are metres; ghosts are reported in millimetres.
const metresToMM = 1e3

// Tracer traces a ray bundle through a model. raytrace.Client satisfies it.
type Tracer interface {
	TraceSplit(ctx context.Context, m *optic.Model, rays *ray.Vector, minFlux float64) (*raytrace.SplitResult, error)
}

// ConservationMode controls what happens when forward plus reverse flux
// drifts from the input flux by more than the tolerance.
type ConservationMode string

const (
	ConservationWarn   ConservationMode = "warn"
	ConservationStrict ConservationMode = "strict"
	ConservationOff    ConservationMode = "off"
)

// Options tunes the simulation.
type Options struct {
	NRad            int
	NAz             int
	MinFlux         float64
	Concurrency     int
	StarTimeout     time.Duration
	DefaultDetector string
	Conservation    ConservationMode
	Tolerance       float64
	Verbose         bool
}

// DefaultOptions returns the standard sampling: 300 rings, 2000 rays on the
// outer ring, 1e-4 minimum flux, sequential.
func DefaultOptions() Options {
	return Options{
		NRad:            300,
		NAz:             2000,
		MinFlux:         1e-4,
		Concurrency:     1,
		DefaultDetector: "ITL",
		Conservation:    ConservationWarn,
		Tolerance:       0.05,
	}
}

// Config is what a simulator is built from.
type Config struct {
	Model       *optic.Model
	Camera      *geometry.Camera
	Band        model.Band
	Reflectance model.ReflectanceMap
	Options     Options
}

// Option configures optional collaborators.
type Option func(*Simulator)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Simulator) { s.recorder = r }
}

// WithTracerProvider sets the span provider; the global one is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Simulator) { s.spans = tp.Tracer(tracerName) }
}

// Simulator simulates ghosts for one posed model and band. The posed model
// is never modified; each star works on its own clone.
type Simulator struct {
	base       *optic.Model
	camera     *geometry.Camera
	band       model.Band
	refl       model.ReflectanceMap
	wavelength float64
	opts       Options
	engine     Tracer
	recorder   Recorder
	spans      trace.Tracer
}

// New validates cfg and returns a simulator. Reflectance keys needed by the
// band's filter surfaces are checked up front.
func New(cfg Config, engine Tracer, opts ...Option) (*Simulator, error) {
	if cfg.Model == nil {
		return nil, eris.New("ghost: nil optical model")
	}
	if engine == nil {
		return nil, eris.New("ghost: nil tracer")
	}
	if cfg.Camera == nil {
		cfg.Camera = geometry.LSSTCam()
	}
	o := cfg.Options
	if o.NRad <= 0 || o.NAz <= 0 {
		return nil, eris.Wrapf(model.ErrInvalidValue, "ghost: nrad and naz must be positive, got %d and %d", o.NRad, o.NAz)
	}
	if o.MinFlux <= 0 {
		return nil, eris.Wrapf(model.ErrInvalidValue, "ghost: min flux must be positive, got %g", o.MinFlux)
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	switch o.Conservation {
	case "":
		o.Conservation = ConservationWarn
	case ConservationWarn, ConservationStrict, ConservationOff:
	default:
		return nil, eris.Wrapf(model.ErrInvalidValue, "ghost: conservation must be 'warn', 'strict' or 'off', currently: %q", string(o.Conservation))
	}

	wl, err := cfg.Camera.Wavelength(cfg.Band)
	if err != nil {
		return nil, eris.Wrap(err, "ghost: band wavelength")
	}
	if err := cfg.Reflectance.Validate(); err != nil {
		return nil, err
	}
	if err := coating.Apply(cfg.Model.Clone(), cfg.Reflectance, cfg.Band); err != nil {
		return nil, err
	}

	s := &Simulator{
		base:       cfg.Model,
		camera:     cfg.Camera,
		band:       cfg.Band,
		refl:       cfg.Reflectance,
		wavelength: wl,
		opts:       o,
		engine:     engine,
		recorder:   NopRecorder{},
		spans:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Band returns the simulated band.
func (s *Simulator) Band() model.Band { return s.band }

// Camera returns the camera geometry.
func (s *Simulator) Camera() *geometry.Camera { return s.camera }

// Options returns the effective options.
func (s *Simulator) Options() Options { return s.opts }

// StarResult is the outcome of tracing one star.
type StarResult struct {
	Index        int
	FaX          unit.Angle
	FaY          unit.Angle
	DetectorType string
	Scale        float64

	// X, Y (mm) and Flux of every forward sample, family by family.
	X    []float64
	Y    []float64
	Flux []float64

	Families []*model.RayFamily
	Bundle   model.GhostBundle

	Rays        int
	InputFlux   float64
	ForwardFlux float64
	ReverseFlux float64
	Duration    time.Duration
}

// SimulateStar traces one star at field angle (faX, faY) onto a detector of
// the given type. Engine errors are returned as they came.
func (s *Simulator) SimulateStar(ctx context.Context, faX, faY unit.Angle, detectorType string) (*StarResult, error) {
	start := time.Now()
	ctx, span := s.spans.Start(ctx, "ghost.SimulateStar", trace.WithAttributes(
		attribute.String("band", string(s.band)),
		attribute.Float64("fa_x_deg", faX.Deg()),
		attribute.Float64("fa_y_deg", faY.Deg()),
		attribute.String("detector_type", detectorType),
	))
	defer span.End()

	res, err := s.simulateStar(ctx, faX, faY, detectorType)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "simulate star")
		s.recorder.StarTraced(OutcomeFailed, elapsed, 0, 0)
		return nil, err
	}

	res.Duration = elapsed
	span.SetAttributes(
		attribute.Int("rays", res.Rays),
		attribute.Int("ghosts", res.Bundle.Len()),
		attribute.Float64("forward_flux", res.ForwardFlux),
	)
	s.recorder.StarTraced(OutcomeOK, elapsed, res.Rays, res.ForwardFlux)
	return res, nil
}

func (s *Simulator) simulateStar(ctx context.Context, faX, faY unit.Angle, detectorType string) (*StarResult, error) {
	m := s.base.Clone()
	if err := coating.Apply(m, s.refl, s.band); err != nil {
		return nil, err
	}
	if err := coating.ApplyDetector(m, s.refl, detectorType); err != nil {
		return nil, err
	}

	rays, err := ray.AsPolar(m, ray.PolarConfig{
		Wavelength: s.wavelength,
		ThetaX:     faX.Rad(),
		ThetaY:     faY.Rad(),
		NRad:       s.opts.NRad,
		NAz:        s.opts.NAz,
	})
	if err != nil {
		return nil, err
	}

	if s.opts.StarTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.StarTimeout)
		defer cancel()
	}

	split, err := s.engine.TraceSplit(ctx, m, rays, s.opts.MinFlux)
	if err != nil {
		return nil, err
	}

	res := &StarResult{
		FaX:          faX,
		FaY:          faY,
		DetectorType: detectorType,
		Scale:        1,
		Families:     split.Forward,
		Rays:         rays.Len(),
		InputFlux:    floats.Sum(rays.Flux),
	}
	for _, f := range split.Forward {
		res.ForwardFlux += f.TotalFlux()
	}
	for _, f := range split.Reverse {
		res.ReverseFlux += f.TotalFlux()
	}
	res.Bundle = bundleOf(split.Forward)
	res.X = res.Bundle.X()
	res.Y = res.Bundle.Y()
	res.Flux = res.Bundle.Flux()

	if s.opts.Verbose {
		for _, f := range split.Forward {
			zap.L().Debug("ghost: forward family",
				zap.String("path", f.Label()),
				zap.Int("rays", f.Len()),
				zap.Float64("flux", f.TotalFlux()),
			)
		}
	}

	if err := s.checkConservation(res); err != nil {
		return nil, err
	}
	return res, nil
}

// bundleOf names each forward family by its path and converts its positions
// to millimetres.
func bundleOf(fams []*model.RayFamily) model.GhostBundle {
	b := model.GhostBundle{Ghosts: make([]model.Ghost, 0, len(fams))}
	for _, f := range fams {
		g := model.Ghost{
			Name:   f.Label(),
			Family: f,
			X:      make([]float64, len(f.X)),
			Y:      make([]float64, len(f.Y)),
			Flux:   make([]float64, len(f.Flux)),
		}
		floats.ScaleTo(g.X, metresToMM, f.X)
		floats.ScaleTo(g.Y, metresToMM, f.Y)
		copy(g.Flux, f.Flux)
		b.Ghosts = append(b.Ghosts, g)
	}
	return b
}

func (s *Simulator) checkConservation(res *StarResult) error {
	if s.opts.Conservation == ConservationOff || res.InputFlux == 0 {
		return nil
	}
	out := res.ForwardFlux + res.ReverseFlux
	drift := math.Abs(out-res.InputFlux) / res.InputFlux
	if drift <= s.opts.Tolerance {
		return nil
	}
	if s.opts.Conservation == ConservationStrict {
		return eris.Errorf("ghost: flux not conserved: in=%g forward=%g reverse=%g (drift %.3f > %.3f)",
			res.InputFlux, res.ForwardFlux, res.ReverseFlux, drift, s.opts.Tolerance)
	}
	zap.L().Warn("ghost: flux not conserved",
		zap.Float64("input_flux", res.InputFlux),
		zap.Float64("forward_flux", res.ForwardFlux),
		zap.Float64("reverse_flux", res.ReverseFlux),
		zap.Float64("drift", drift),
	)
	return nil
}
