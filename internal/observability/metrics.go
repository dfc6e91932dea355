// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for simulation runs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
)

// SimulationCollector bundles the Prometheus metrics of the ghost simulator.
// It implements ghost.Recorder.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	Stars         *prometheus.CounterVec
	StarDurations prometheus.Histogram
	RaysTraced    prometheus.Counter
	GhostFlux     prometheus.Counter
	RunsActive    prometheus.Gauge
}

// NewSimulationCollector registers simulation metrics against reg, defaulting
// to the global Prometheus registry when nil. Registering twice against the
// same registry reuses the existing collectors.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	stars, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rayven_stars_total",
		Help: "Stars simulated, labeled by outcome.",
	}, []string{"outcome"}), "rayven_stars_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rayven_star_duration_seconds",
		Help:    "Wall time to trace one star, engine round trip included.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}), "rayven_star_duration_seconds")
	if err != nil {
		return nil, err
	}

	rays, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rayven_rays_traced_total",
		Help: "Rays sent to the tracing engine.",
	}), "rayven_rays_traced_total")
	if err != nil {
		return nil, err
	}

	flux, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rayven_ghost_flux_total",
		Help: "Flux landing on the focal plane across all ghosts, before star scaling.",
	}), "rayven_ghost_flux_total")
	if err != nil {
		return nil, err
	}

	active, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rayven_runs_active",
		Help: "Simulation runs currently in progress.",
	}), "rayven_runs_active")
	if err != nil {
		return nil, err
	}

	return &SimulationCollector{
		gatherer:      gatherer,
		Stars:         stars,
		StarDurations: durations,
		RaysTraced:    rays,
		GhostFlux:     flux,
		RunsActive:    active,
	}, nil
}

// StarTraced records the outcome of one star.
func (c *SimulationCollector) StarTraced(outcome string, d time.Duration, rays int, ghostFlux float64) {
	c.Stars.WithLabelValues(outcome).Inc()
	c.StarDurations.Observe(d.Seconds())
	if rays > 0 {
		c.RaysTraced.Add(float64(rays))
	}
	if ghostFlux > 0 {
		c.GhostFlux.Add(ghostFlux)
	}
}

// RunStarted and RunFinished track in-flight runs.
func (c *SimulationCollector) RunStarted()  { c.RunsActive.Inc() }
func (c *SimulationCollector) RunFinished() { c.RunsActive.Dec() }

// Handler exposes a ready-to-use /metrics handler.
func (c *SimulationCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// register adds col to reg, returning the already registered collector of
// the same type when one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, eris.Errorf("observability: collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, eris.Wrapf(err, "observability: register %s", name)
	}
	return col, nil
}
