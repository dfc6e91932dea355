package model

import "time"

// RunStatus represents the current state of a simulation run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// MountKind identifies the instrument whose pose was simulated.
type MountKind string

const (
	MountTMA MountKind = "tma"
	MountCBP MountKind = "cbp"
)

// MountSpec records the mount angles of a run, in degrees.
type MountSpec struct {
	Kind   MountKind `json:"kind"`
	Az     float64   `json:"az"`
	Alt    float64   `json:"alt"`
	DomeAz float64   `json:"dome_az,omitempty"`
}

// RunSpec describes what a run simulates.
type RunSpec struct {
	Band     Band        `json:"band"`
	Mount    MountSpec   `json:"mount"`
	Scaling  ScalingMode `json:"scaling"`
	Catalog  string      `json:"catalog"`
	NumStars int         `json:"num_stars"`
	NRad     int         `json:"nrad"`
	NAz      int         `json:"naz"`
	MinFlux  float64     `json:"min_flux"`
	Detector string      `json:"default_detector"`
}

// Run is a persisted simulation run.
type Run struct {
	ID        string      `json:"id"`
	Spec      RunSpec     `json:"spec"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary holds the aggregate outcome of a completed run.
type RunSummary struct {
	Stars       int     `json:"stars"`
	Ghosts      int     `json:"ghosts"`
	Samples     int     `json:"samples"`
	InputFlux   float64 `json:"input_flux"`
	ForwardFlux float64 `json:"forward_flux"`
	ReverseFlux float64 `json:"reverse_flux"`
	DurationMs  int64   `json:"duration_ms"`
}

// GhostRecord is the stored metadata of one ghost. Footprint is the sample
// bounding box in focal-plane millimetres (min x, min y, max x, max y).
type GhostRecord struct {
	ID        string     `json:"id"`
	RunID     string     `json:"run_id"`
	StarIndex int        `json:"star_index"`
	Name      string     `json:"name"`
	Samples   int        `json:"samples"`
	TotalFlux float64    `json:"total_flux"`
	Scale     float64    `json:"scale"`
	Footprint [4]float64 `json:"footprint"`
	CreatedAt time.Time  `json:"created_at"`
}

// Quantity is a named value with units, used for run summaries.
type Quantity struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Units string `json:"units,omitempty"`
}
