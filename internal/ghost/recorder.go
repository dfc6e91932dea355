package ghost

import "time"

// Star outcomes reported to a Recorder.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Recorder receives per-star simulation measurements.
type Recorder interface {
	StarTraced(outcome string, d time.Duration, rays int, ghostFlux float64)
}

// NopRecorder discards measurements.
type NopRecorder struct{}

// StarTraced implements Recorder.
func (NopRecorder) StarTraced(string, time.Duration, int, float64) {}
