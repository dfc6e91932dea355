//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID: "abc12345-6789-0000-0000-000000000000",
			Spec: model.RunSpec{
				Band:     model.BandR,
				Mount:    model.MountSpec{Kind: model.MountTMA, Az: 30, Alt: 60},
				NumStars: 12,
			},
			Status:    model.RunStatusComplete,
			Summary:   &model.RunSummary{Stars: 12, Ghosts: 480, DurationMs: 125000},
			CreatedAt: now,
			UpdatedAt: now.Add(3 * time.Minute),
		},
		{
			ID: "def12345-6789-0000-0000-000000000000",
			Spec: model.RunSpec{
				Band:     model.BandG,
				Mount:    model.MountSpec{Kind: model.MountCBP, Az: 10, Alt: 45, DomeAz: 12},
				NumStars: 1,
			},
			Status:    model.RunStatusRunning,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "MOUNT")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "tma 30/60")
	assert.Contains(t, output, "cbp 10/45 dome 12")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "480")
	assert.Contains(t, output, "2m5s")
	assert.Contains(t, output, "30m0s")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestFormatGhostList(t *testing.T) {
	ghosts := []model.GhostRecord{
		{
			ID:        "0123456789abcdef",
			StarIndex: 3,
			Name:      "L1_entrance->L2_exit",
			Samples:   1200,
			TotalFlux: 0.00125,
			Scale:     2,
			Footprint: [4]float64{-10, -20, 30, 40},
		},
	}

	var buf bytes.Buffer
	formatGhostList(&buf, ghosts)

	output := buf.String()
	assert.Contains(t, output, "FOOTPRINT")
	assert.Contains(t, output, "01234567")
	assert.Contains(t, output, "L1_entrance->L2_exit")
	assert.Contains(t, output, "1200")
	assert.Contains(t, output, "0.00125")
	assert.Contains(t, output, "[-10.0, 30.0] x [-20.0, 40.0]")
}

func TestFormatRunStats(t *testing.T) {
	snap := &monitoring.RunSnapshot{
		Total:         10,
		Complete:      6,
		Failed:        2,
		Running:       1,
		Stale:         1,
		Queued:        1,
		Stars:         60,
		Ghosts:        2400,
		FailRate:      0.25,
		AvgMs:         4500,
		LookbackHours: 24,
	}

	var buf bytes.Buffer
	formatRunStats(&buf, snap)

	output := buf.String()
	assert.Contains(t, output, "Window:")
	assert.Contains(t, output, "24h")
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "10")
	assert.Contains(t, output, "Stale:")
	assert.Contains(t, output, "2400")
	assert.Contains(t, output, "25.0%")
	assert.Contains(t, output, "4.5s")
}

func TestFormatRunStats_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.RunSnapshot{LookbackHours: 1})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.NotContains(t, output, "Failure rate:")
	assert.NotContains(t, output, "Avg duration:")
}

func TestTruncateID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"abc12345-6789-0000-0000-000000000000", "abc12345"},
		{"short", "short"},
		{"12345678", "12345678"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateID(tt.input))
	}
}
