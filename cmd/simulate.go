package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/rayven/internal/catalog"
	"github.com/sells-group/rayven/internal/focalplane"
	"github.com/sells-group/rayven/internal/geometry"
	"github.com/sells-group/rayven/internal/ghost"
	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/observability"
	"github.com/sells-group/rayven/internal/optic"
	"github.com/sells-group/rayven/internal/pose"
	"github.com/sells-group/rayven/internal/store"
	"github.com/sells-group/rayven/pkg/raytrace"
)

var (
	simMount       mountFlags
	simCatalog     string
	simReflectance string
	simScaling     string
	simOutDir      string
	simStretch     string
	simConcurrency int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate the ghosts of a star field",
	Long:  "Loads a star catalog and reflectance table, poses the mount, traces every star through the remote engine, stores the run and its ghosts, and optionally writes focal-plane TIFF images.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if simScaling != "" {
			cfg.Simulation.Scaling = simScaling
		}
		if simConcurrency > 0 {
			cfg.Simulation.Concurrency = simConcurrency
		}
		if err := cfg.Validate("simulate"); err != nil {
			return err
		}
		band, err := simMount.resolveBand()
		if err != nil {
			return err
		}
		stretch, err := focalplane.ParseStretch(simStretch)
		if err != nil {
			return err
		}

		shutdown, err := observability.InitTracing(ctx, cfg.Tracing)
		if err != nil {
			return err
		}
		defer observability.ShutdownWithTimeout(ctx, shutdown)

		metrics, err := observability.NewSimulationCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}

		stars, err := catalog.LoadStars(ctx, simCatalog)
		if err != nil {
			return err
		}
		refl, err := catalog.LoadReflectance(ctx, simReflectance)
		if err != nil {
			return err
		}

		mount, err := pose.FromSpec(simMount.spec(), band)
		if err != nil {
			return err
		}
		om, err := pose.Build(mount, optic.DirSource(cfg.Models.Dir))
		if err != nil {
			return err
		}
		cam, err := geometry.FromConfig(cfg.Geometry)
		if err != nil {
			return err
		}

		engine := raytrace.NewClient(cfg.Engine.BaseURL,
			raytrace.WithRateLimit(cfg.Engine.RateLimitRPS, cfg.Engine.RateBurst),
			raytrace.WithTimeout(cfg.Engine.Timeout()),
			raytrace.WithVerbose(cfg.Simulation.Verbose),
		)
		if err := engine.Health(ctx); err != nil {
			return eris.Wrapf(err, "simulate: engine at %s is not healthy", cfg.Engine.BaseURL)
		}
		sim, err := ghost.New(ghost.Config{
			Model:       om,
			Camera:      cam,
			Band:        band,
			Reflectance: refl,
			Options:     simulationOptions(),
		}, engine, ghost.WithRecorder(metrics))
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		spec := model.RunSpec{
			Band:     band,
			Mount:    simMount.spec(),
			Scaling:  model.ScalingMode(cfg.Simulation.Scaling),
			Catalog:  simCatalog,
			NumStars: stars.Len(),
			NRad:     cfg.Simulation.NRad,
			NAz:      cfg.Simulation.NAz,
			MinFlux:  cfg.Simulation.MinFlux,
			Detector: cfg.Simulation.DefaultDetector,
		}
		run, err := st.CreateRun(ctx, spec)
		if err != nil {
			return eris.Wrap(err, "simulate: create run")
		}

		metrics.RunStarted()
		defer metrics.RunFinished()

		res, err := executeRun(ctx, st, sim, run.ID, stars, spec.Scaling)
		if err != nil {
			return err
		}

		if simOutDir != "" {
			binner := focalplane.NewBinner(cam)
			bins := focalplane.Pair(cfg.Binning.BinsX, cfg.Binning.BinsY)
			if err := writeFieldImages(simOutDir, binner, res, bins, stretch); err != nil {
				return err
			}
		}

		sum := res.Summary()
		printSummary(os.Stdout, run.ID, sum)
		return nil
	},
}

// fieldSimulator is the part of the ghost simulator a run needs.
type fieldSimulator interface {
	SimulateField(ctx context.Context, t *model.StarTable, scaling model.ScalingMode) (*ghost.FieldResult, error)
}

// executeRun drives one stored run: running, simulate, persist every star's
// ghosts, then complete. Any failure marks the run failed.
func executeRun(ctx context.Context, st store.Store, sim fieldSimulator, runID string, stars *model.StarTable, scaling model.ScalingMode) (*ghost.FieldResult, error) {
	log := zap.L().With(zap.String("run_id", runID))

	fail := func(err error) error {
		// The run context may be cancelled already.
		if ferr := st.FailRun(context.WithoutCancel(ctx), runID, err.Error()); ferr != nil {
			log.Error("simulate: mark run failed", zap.Error(ferr))
		}
		return err
	}

	if err := st.UpdateRunStatus(ctx, runID, model.RunStatusRunning); err != nil {
		return nil, fail(eris.Wrap(err, "simulate: mark run running"))
	}

	res, err := sim.SimulateField(ctx, stars, scaling)
	if err != nil {
		return nil, fail(err)
	}

	for _, s := range res.Stars {
		recs, err := st.SaveGhosts(ctx, runID, store.StarGhosts{StarIndex: s.Index, Scale: s.Scale, Bundle: s.Bundle})
		if err != nil {
			return nil, fail(eris.Wrapf(err, "simulate: save ghosts of star %d", s.Index))
		}
		log.Debug("simulate: saved ghosts", zap.Int("star", s.Index), zap.Int("ghosts", len(recs)))
	}

	sum := res.Summary()
	if err := st.CompleteRun(ctx, runID, &sum); err != nil {
		return nil, fail(eris.Wrap(err, "simulate: complete run"))
	}
	log.Info("simulate: run complete",
		zap.Int("stars", sum.Stars),
		zap.Int("ghosts", sum.Ghosts),
		zap.Int64("duration_ms", sum.DurationMs),
	)
	return res, nil
}

// writeFieldImages writes one unscaled TIFF per star plus the scaled field
// sum to dir.
func writeFieldImages(dir string, binner *focalplane.Binner, res *ghost.FieldResult, bins focalplane.Bins, stretch focalplane.Stretch) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "simulate: create output dir %s", dir)
	}

	field, err := binner.BinSamples(nil, nil, nil, bins)
	if err != nil {
		return err
	}
	for _, s := range res.Stars {
		img, err := binner.BinBundle(s.Bundle, bins, 1)
		if err != nil {
			return err
		}
		if err := field.AddScaled(s.Scale, img); err != nil {
			return err
		}
		if err := writeImageFile(filepath.Join(dir, fmt.Sprintf("star_%04d.tiff", s.Index)), formatTIFF, img, stretch, ""); err != nil {
			return err
		}
	}
	return writeImageFile(filepath.Join(dir, "field.tiff"), formatTIFF, field, stretch, "")
}

// summaryQuantities lists the headline numbers of a run.
func summaryQuantities(sum model.RunSummary) []model.Quantity {
	return []model.Quantity{
		{Name: "stars", Value: sum.Stars},
		{Name: "ghosts", Value: sum.Ghosts},
		{Name: "samples", Value: sum.Samples},
		{Name: "input flux", Value: sum.InputFlux},
		{Name: "forward flux", Value: sum.ForwardFlux},
		{Name: "reverse flux", Value: sum.ReverseFlux},
		{Name: "duration", Value: sum.DurationMs, Units: "ms"},
	}
}

func printSummary(w io.Writer, runID string, sum model.RunSummary) {
	p := message.NewPrinter(language.English)
	_, _ = p.Fprintf(w, "run %s\n", runID)
	for _, q := range summaryQuantities(sum) {
		var v string
		switch x := q.Value.(type) {
		case int:
			v = p.Sprintf("%d", x)
		case int64:
			v = p.Sprintf("%d", x)
		case float64:
			v = p.Sprintf("%.6g", x)
		default:
			v = p.Sprintf("%v", x)
		}
		if q.Units != "" {
			v += " " + q.Units
		}
		_, _ = p.Fprintf(w, "  %-13s %s\n", q.Name+":", v)
	}
}

func simulationOptions() ghost.Options {
	s := cfg.Simulation
	return ghost.Options{
		NRad:            s.NRad,
		NAz:             s.NAz,
		MinFlux:         s.MinFlux,
		Concurrency:     s.Concurrency,
		StarTimeout:     s.StarTimeout(),
		DefaultDetector: s.DefaultDetector,
		Conservation:    ghost.ConservationMode(s.Conservation.Mode),
		Tolerance:       s.Conservation.Tolerance,
		Verbose:         s.Verbose,
	}
}

func init() {
	simMount.register(simulateCmd)
	simulateCmd.Flags().StringVar(&simCatalog, "catalog", "", "star catalog (.csv, .txt or .xlsx)")
	simulateCmd.Flags().StringVar(&simReflectance, "reflectance", "", "reflectance table (.yaml, .csv or .xlsx)")
	simulateCmd.Flags().StringVar(&simScaling, "scaling", "", "per-star scaling: constant, flux or mag (default from config)")
	simulateCmd.Flags().StringVar(&simOutDir, "out", "", "write per-star and field TIFF images to this directory")
	simulateCmd.Flags().StringVar(&simStretch, "stretch", "linear", "image stretch: linear or log")
	simulateCmd.Flags().IntVar(&simConcurrency, "concurrency", 0, "stars traced in parallel (default from config)")
	_ = simulateCmd.MarkFlagRequired("catalog")
	_ = simulateCmd.MarkFlagRequired("reflectance")
	rootCmd.AddCommand(simulateCmd)
}
