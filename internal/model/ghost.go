package model

import (
	"strings"

	"gonum.org/v1/gonum/floats"
)

// RayFamily is the set of rays that left the optical model along one
// traversal path. Positions are in the engine's native length unit (metres).
type RayFamily struct {
	Path []string  `json:"path"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`
	Flux []float64 `json:"flux"`
}

// Len returns the number of rays in the family.
func (f *RayFamily) Len() int { return len(f.Flux) }

// TotalFlux sums the family flux.
func (f *RayFamily) TotalFlux() float64 { return floats.Sum(f.Flux) }

// Label names the family by the surfaces it interacted with.
func (f *RayFamily) Label() string {
	if len(f.Path) == 0 {
		return "direct"
	}
	return strings.Join(f.Path, "->")
}

// Ghost is a named spurious image: focal-plane sample positions (mm) and the
// flux carried by each sample. X, Y and Flux are co-indexed.
type Ghost struct {
	Name   string     `json:"name"`
	Family *RayFamily `json:"-"`
	X      []float64  `json:"x"`
	Y      []float64  `json:"y"`
	Flux   []float64  `json:"flux"`
}

// Len returns the number of samples.
func (g Ghost) Len() int { return len(g.Flux) }

// TotalFlux sums the ghost flux.
func (g Ghost) TotalFlux() float64 { return floats.Sum(g.Flux) }

// GhostBundle is an ordered collection of ghosts.
type GhostBundle struct {
	Ghosts []Ghost `json:"ghosts"`
}

// At returns the ghost at index i.
func (b GhostBundle) At(i int) Ghost { return b.Ghosts[i] }

// Len returns the number of ghosts.
func (b GhostBundle) Len() int { return len(b.Ghosts) }

// X concatenates the x samples of every ghost. Each ghost's samples stay contiguous.
func (b GhostBundle) X() []float64 {
	return b.concat(func(g Ghost) []float64 { return g.X })
}

// Y concatenates the y samples of every ghost.
func (b GhostBundle) Y() []float64 {
	return b.concat(func(g Ghost) []float64 { return g.Y })
}

// Flux concatenates the flux samples of every ghost.
func (b GhostBundle) Flux() []float64 {
	return b.concat(func(g Ghost) []float64 { return g.Flux })
}

// TotalFlux sums the flux of every ghost.
func (b GhostBundle) TotalFlux() float64 {
	return floats.Sum(b.Flux())
}

func (b GhostBundle) concat(field func(Ghost) []float64) []float64 {
	n := 0
	for _, g := range b.Ghosts {
		n += len(field(g))
	}
	out := make([]float64, 0, n)
	for _, g := range b.Ghosts {
		out = append(out, field(g)...)
	}
	return out
}
