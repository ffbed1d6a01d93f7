package xform

import "github.com/go-gl/mathgl/mgl64"

// axisSwap is the permutation matrix that exchanges the second and third axes.
// It is its own inverse.
var axisSwap = mgl64.Mat4{
	1, 0, 0, 0,
	0, 0, 1, 0,
	0, 1, 0, 0,
	0, 0, 0, 1,
}

// VectorToEngine maps an external-space direction into engine axis order.
func VectorToEngine(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v[0], v[2], v[1]}
}

// VectorToExternal is the inverse of VectorToEngine.
func VectorToExternal(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v[0], v[2], v[1]}
}

// QuatToEngine maps an external-space rotation into engine space.
//
// The axis swap is a reflection, so the rotation axis is permuted and its
// sense reversed. The input is not validated or renormalized.
func QuatToEngine(q mgl64.Quat) mgl64.Quat {
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{-q.V[0], -q.V[2], -q.V[1]}}
}

// QuatToExternal is the inverse of QuatToEngine.
func QuatToExternal(q mgl64.Quat) mgl64.Quat {
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{-q.V[0], -q.V[2], -q.V[1]}}
}

// ScaleToEngine swaps the second and third scale components. Scale factors
// are unitless, so no unit conversion applies.
func ScaleToEngine(s mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{s[0], s[2], s[1]}
}

// ScaleToExternal is the inverse of ScaleToEngine.
func ScaleToExternal(s mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{s[0], s[2], s[1]}
}

// PositionToEngine converts a point in meters to engine axes and scene units.
func PositionToEngine(p mgl64.Vec3, metersToSceneUnits float64) mgl64.Vec3 {
	return VectorToEngine(p).Mul(metersToSceneUnits)
}

// PositionToExternal converts a point in scene units back to external meters.
func PositionToExternal(p mgl64.Vec3, metersToSceneUnits float64) mgl64.Vec3 {
	return VectorToExternal(p).Mul(1 / metersToSceneUnits)
}

// ToEngineSpace converts an external-space transform into engine space.
func ToEngineSpace(t Transform, metersToSceneUnits float64) Transform {
	return Transform{
		Position: PositionToEngine(t.Position, metersToSceneUnits),
		Rotation: QuatToEngine(t.Rotation),
		Scale:    ScaleToEngine(t.Scale),
	}
}

// ToExternalSpace converts an engine-space transform back into external space.
func ToExternalSpace(t Transform, metersToSceneUnits float64) Transform {
	return Transform{
		Position: PositionToExternal(t.Position, metersToSceneUnits),
		Rotation: QuatToExternal(t.Rotation),
		Scale:    ScaleToExternal(t.Scale),
	}
}

// MatrixToEngine converts an external-space affine matrix (column-vector
// convention) into engine space. The permutation is applied on both sides, so
// products convert factor by factor.
func MatrixToEngine(m mgl64.Mat4, metersToSceneUnits float64) mgl64.Mat4 {
	return scaleTranslation(axisSwap.Mul4(m).Mul4(axisSwap), metersToSceneUnits)
}

// MatrixToExternal is the inverse of MatrixToEngine.
func MatrixToExternal(m mgl64.Mat4, metersToSceneUnits float64) mgl64.Mat4 {
	return axisSwap.Mul4(scaleTranslation(m, 1/metersToSceneUnits)).Mul4(axisSwap)
}

// scaleTranslation computes D·M·D⁻¹ with D = diag(k, k, k, 1).
func scaleTranslation(m mgl64.Mat4, k float64) mgl64.Mat4 {
	out := m
	for row := 0; row < 3; row++ {
		out.Set(row, 3, m.At(row, 3)*k)
		out.Set(3, row, m.At(3, row)/k)
	}
	return out
}

// degenerateLen is the length below which a basis vector is treated as zero.
const degenerateLen = 1e-9

// CameraRotation builds a rotation whose X axis points along forward and whose
// Z axis is as close to up as orthogonality allows. Both vectors must already
// be in engine space. A zero forward yields the identity; an up parallel to
// forward keeps only the forward direction.
func CameraRotation(forward, up mgl64.Vec3) mgl64.Quat {
	if forward.Len() < degenerateLen {
		return mgl64.QuatIdent()
	}
	x := forward.Normalize()
	y := up.Cross(x)
	if y.Len() < degenerateLen {
		return mgl64.QuatBetweenVectors(mgl64.Vec3{1, 0, 0}, x)
	}
	y = y.Normalize()
	z := x.Cross(y)
	basis := mgl64.Mat4FromCols(x.Vec4(0), y.Vec4(0), z.Vec4(0), mgl64.Vec4{0, 0, 0, 1})
	return mgl64.Mat4ToQuat(basis)
}
