package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"gonum.org/v1/gonum/floats"
)

// Footprint returns the bounding box of a set of focal-plane samples.
// Returns nil when there are no samples.
func Footprint(x, y []float64) *geom.Bounds {
	if len(x) == 0 || len(y) == 0 {
		return nil
	}
	return geom.NewBounds(geom.XY).Set(floats.Min(x), floats.Min(y), floats.Max(x), floats.Max(y))
}

// FootprintArray flattens a footprint to minX, minY, maxX, maxY.
func FootprintArray(b *geom.Bounds) [4]float64 {
	if b == nil || b.IsEmpty() {
		return [4]float64{}
	}
	return [4]float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}
}

// EncodeFootprint converts a footprint to an EWKB polygon.
// Returns nil, nil for an empty footprint.
func EncodeFootprint(b *geom.Bounds) ([]byte, error) {
	if b == nil || b.IsEmpty() {
		return nil, nil
	}

	data, err := ewkb.Marshal(b.Polygon(), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode footprint")
	}
	return data, nil
}

// DecodeFootprint parses an EWKB polygon back into its bounding box.
func DecodeFootprint(data []byte) (*geom.Bounds, error) {
	if len(data) == 0 {
		return nil, nil
	}

	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: decode footprint")
	}
	if _, ok := g.(*geom.Polygon); !ok {
		return nil, eris.Errorf("geometry: footprint must be a polygon, got %T", g)
	}
	return g.Bounds(), nil
}
