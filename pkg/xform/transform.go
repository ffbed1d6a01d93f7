// Package xform converts poses between the compositor's coordinate space and
// the scene's coordinate space.
//
// External space is right-handed, Y-up and measured in meters. Engine space
// swaps the second and third axes (Z-up) and is measured in scene units. The
// mapping is a fixed axis permutation plus a uniform unit scale, so every
// conversion here is an exact linear operation.
package xform

import "github.com/go-gl/mathgl/mgl64"

// Transform is a position/rotation/scale triple. The same shape is used in
// both spaces; which space a value belongs to depends on where it came from.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Scale    mgl64.Vec3
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
}

// Uniform returns a transform that only scales, by s on every axis.
func Uniform(s float64) Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{s, s, s},
	}
}

// Mul composes two transforms: the result applies t first, then other.
func (t Transform) Mul(other Transform) Transform {
	scaled := mulComponents(other.Scale, t.Position)
	return Transform{
		Position: other.Rotation.Rotate(scaled).Add(other.Position),
		Rotation: other.Rotation.Mul(t.Rotation),
		Scale:    mulComponents(t.Scale, other.Scale),
	}
}

// Inverse returns the transform that undoes t. Zero scale components have no
// reciprocal and stay zero.
func (t Transform) Inverse() Transform {
	invScale := mgl64.Vec3{safeRecip(t.Scale[0]), safeRecip(t.Scale[1]), safeRecip(t.Scale[2])}
	invRot := t.Rotation.Inverse()
	return Transform{
		Position: invRot.Rotate(mulComponents(invScale, t.Position)).Mul(-1),
		Rotation: invRot,
		Scale:    invScale,
	}
}

// TransformPosition applies scale, rotation and translation to a point.
func (t Transform) TransformPosition(v mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(mulComponents(t.Scale, v)).Add(t.Position)
}

// Matrix returns the column-vector matrix T·R·S.
func (t Transform) Matrix() mgl64.Mat4 {
	tr := mgl64.Translate3D(t.Position[0], t.Position[1], t.Position[2])
	sc := mgl64.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2])
	return tr.Mul4(t.Rotation.Mat4()).Mul4(sc)
}

// ApproxEqual reports whether two transforms match within eps. Rotations are
// compared as orientations, so q and -q are equal.
func (t Transform) ApproxEqual(other Transform, eps float64) bool {
	return t.Position.ApproxEqualThreshold(other.Position, eps) &&
		t.Scale.ApproxEqualThreshold(other.Scale, eps) &&
		t.Rotation.OrientationEqualThreshold(other.Rotation, eps)
}

func mulComponents(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func safeRecip(v float64) float64 {
	if v == 0 {
		return 0
	}
	return 1 / v
}
