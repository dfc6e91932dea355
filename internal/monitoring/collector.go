// Package monitoring summarises recent simulation runs and raises alerts when
// they go wrong.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/store"
)

// RunSnapshot is a point-in-time view of simulation health.
type RunSnapshot struct {
	Total    int     `json:"total"`
	Queued   int     `json:"queued"`
	Running  int     `json:"running"`
	Complete int     `json:"complete"`
	Failed   int     `json:"failed"`
	FailRate float64 `json:"fail_rate"`

	// Stale counts runs still running after the stale threshold.
	Stale int `json:"stale"`

	Stars  int   `json:"stars"`
	Ghosts int   `json:"ghosts"`
	AvgMs  int64 `json:"avg_duration_ms"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the store subset the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run metrics from the store.
type Collector struct {
	store      RunLister
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. Runs still running staleAfter after
// their last update count as stale; zero disables the check.
func NewCollector(st RunLister, staleAfter time.Duration) *Collector {
	return &Collector{store: st, staleAfter: staleAfter, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*RunSnapshot, error) {
	now := c.now().UTC()
	snap := &RunSnapshot{LookbackHours: lookbackHours, CollectedAt: now}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalMs int64
	for _, r := range runs {
		snap.Total++
		switch r.Status {
		case model.RunStatusQueued:
			snap.Queued++
		case model.RunStatusRunning:
			snap.Running++
			if c.staleAfter > 0 && now.Sub(r.UpdatedAt) > c.staleAfter {
				snap.Stale++
			}
		case model.RunStatusComplete:
			snap.Complete++
		case model.RunStatusFailed:
			snap.Failed++
		}
		if r.Summary != nil {
			snap.Stars += r.Summary.Stars
			snap.Ghosts += r.Summary.Ghosts
			totalMs += r.Summary.DurationMs
		}
	}

	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if snap.Complete > 0 {
		snap.AvgMs = totalMs / int64(snap.Complete)
	}
	return snap, nil
}
