package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/rayven/internal/model"
)

// mountFlags are the pose flags shared by simulate and pose.
type mountFlags struct {
	kind   string
	az     float64
	alt    float64
	domeAz float64
	band   string
}

func (m *mountFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&m.kind, "mount", "tma", "instrument to pose: tma or cbp")
	cmd.Flags().Float64Var(&m.az, "az", 0, "mount azimuth (deg)")
	cmd.Flags().Float64Var(&m.alt, "alt", 90, "mount altitude (deg)")
	cmd.Flags().Float64Var(&m.domeAz, "dome-az", 0, "dome azimuth (deg, cbp only)")
	cmd.Flags().StringVar(&m.band, "band", "", "filter band (default from config)")
}

func (m *mountFlags) spec() model.MountSpec {
	s := model.MountSpec{Kind: model.MountKind(m.kind), Az: m.az, Alt: m.alt}
	if s.Kind == model.MountCBP {
		s.DomeAz = m.domeAz
	}
	return s
}

// resolveBand returns the flag band, falling back to the configured one.
func (m *mountFlags) resolveBand() (model.Band, error) {
	b := m.band
	if b == "" {
		b = cfg.Simulation.Band
	}
	return model.ParseBand(b)
}
