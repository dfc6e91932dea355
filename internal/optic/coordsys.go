package optic

import "gonum.org/v1/gonum/spatial/r3"

// CoordSys is a frame expressed in global coordinates: a point p in the frame
// sits at Origin + Rot·p globally.
type CoordSys struct {
	Origin r3.Vec
	Rot    Rotation
}

// GlobalCoordSys returns the global frame.
func GlobalCoordSys() CoordSys {
	return CoordSys{Rot: Identity()}
}

// ToGlobal maps a point from this frame to global coordinates.
func (c CoordSys) ToGlobal(p r3.Vec) r3.Vec {
	return r3.Add(c.Origin, c.Rot.Apply(p))
}

// FromGlobal maps a global point into this frame.
func (c CoordSys) FromGlobal(p r3.Vec) r3.Vec {
	return c.Rot.T().Apply(r3.Sub(p, c.Origin))
}

// DirToGlobal maps a direction from this frame to global coordinates.
func (c CoordSys) DirToGlobal(d r3.Vec) r3.Vec {
	return c.Rot.Apply(d)
}

// Compose returns the global frame of a child whose frame is local relative to c.
func (c CoordSys) Compose(local CoordSys) CoordSys {
	return CoordSys{
		Origin: c.ToGlobal(local.Origin),
		Rot:    c.Rot.Mul(local.Rot),
	}
}

// Shifted returns the frame translated by d in global coordinates.
func (c CoordSys) Shifted(d r3.Vec) CoordSys {
	return CoordSys{Origin: r3.Add(c.Origin, d), Rot: c.Rot}
}

// Rotated returns the frame rotated by rot about the global point center.
func (c CoordSys) Rotated(rot Rotation, center r3.Vec) CoordSys {
	return CoordSys{
		Origin: r3.Add(rot.Apply(r3.Sub(c.Origin, center)), center),
		Rot:    rot.Mul(c.Rot),
	}
}
