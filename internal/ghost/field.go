package ghost

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rayven/internal/model"
)

// FieldResult holds one StarResult per catalog row, in row order.
type FieldResult struct {
	Stars    []*StarResult
	Duration time.Duration
}

// Summary aggregates the field for run bookkeeping.
func (f *FieldResult) Summary() model.RunSummary {
	sum := model.RunSummary{Stars: len(f.Stars), DurationMs: f.Duration.Milliseconds()}
	for _, s := range f.Stars {
		sum.Ghosts += s.Bundle.Len()
		sum.Samples += len(s.Flux)
		sum.InputFlux += s.InputFlux
		sum.ForwardFlux += s.ForwardFlux
		sum.ReverseFlux += s.ReverseFlux
	}
	return sum
}

// detectorTypes resolves each row's detector type, falling back to the
// default when the catalog has no detector_type column or the cell is empty.
func (s *Simulator) detectorTypes(t *model.StarTable) []string {
	out := make([]string, t.Len())
	hasCol := t.HasColumn(model.ColDetectorType)
	for i, r := range t.Rows {
		out[i] = s.opts.DefaultDetector
		if hasCol && r.DetectorType != "" {
			out[i] = r.DetectorType
		}
	}
	return out
}

// SimulateField simulates every star of t. Scale factors follow scaling.
// Configuration problems (table shape, scaling, unknown detector types) are
// reported before any star is traced. The first failing star aborts the run.
func (s *Simulator) SimulateField(ctx context.Context, t *model.StarTable, scaling model.ScalingMode) (*FieldResult, error) {
	start := time.Now()

	scales, err := model.ScaleFactors(t, scaling)
	if err != nil {
		return nil, err
	}
	dets := s.detectorTypes(t)
	seen := make(map[string]bool)
	for _, d := range dets {
		if seen[d] {
			continue
		}
		seen[d] = true
		if _, err := s.refl.Lookup(d); err != nil {
			return nil, eris.Wrapf(err, "ghost: detector type %q", d)
		}
	}

	log := zap.L().With(
		zap.String("band", string(s.band)),
		zap.Int("stars", t.Len()),
		zap.Int("concurrency", s.opts.Concurrency),
	)
	log.Info("ghost: simulating field")

	results := make([]*StarResult, t.Len())
	run := func(ctx context.Context, i int) error {
		row := t.Rows[i]
		res, err := s.SimulateStar(ctx, row.FaX, row.FaY, dets[i])
		if err != nil {
			log.Error("ghost: star failed", zap.Int("star", i), zap.Error(err))
			return err
		}
		res.Index = i
		res.Scale = scales[i]
		results[i] = res
		log.Debug("ghost: star done",
			zap.Int("star", i),
			zap.Int("ghosts", res.Bundle.Len()),
			zap.Duration("elapsed", res.Duration),
		)
		return nil
	}

	if s.opts.Concurrency <= 1 {
		for i := range t.Rows {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "ghost: field cancelled")
			}
			if err := run(ctx, i); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Concurrency)
		for i := range t.Rows {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return nil //nolint:nilerr // another star failed; the group reports that error
				}
				return run(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ghost: field cancelled")
		}
	}

	out := &FieldResult{Stars: results, Duration: time.Since(start)}
	log.Info("ghost: field complete", zap.Duration("elapsed", out.Duration))
	return out, nil
}
