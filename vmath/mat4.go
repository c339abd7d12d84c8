package vmath

import (
	"github.com/chewxy/math32"
)

// Mat4 is a column-major 4x4 float32 matrix
// Element (row r, col c) lives at index c*4 + r
type Mat4 [16]float32

func M4Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func M4Translate(v Vec3) Mat4 {
	m := M4Identity()
	m[12] = v.X
	m[13] = v.Y
	m[14] = v.Z
	return m
}

func M4Scale(v Vec3) Mat4 {
	m := M4Identity()
	m[0] = v.X
	m[5] = v.Y
	m[10] = v.Z
	return m
}

// M4Mul computes a * b (b applied first)
func M4Mul(a, b Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+r] * b[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// M4Translation extracts the translation column
func M4Translation(m Mat4) Vec3 {
	return Vec3{m[12], m[13], m[14]}
}

// M4MulPoint transforms a point (w=1) and returns the w-divided result
// with the raw clip-space w as second value
func M4MulPoint(m Mat4, p Vec3) (Vec3, float32) {
	x := m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12]
	y := m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13]
	z := m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14]
	w := m[3]*p.X + m[7]*p.Y + m[11]*p.Z + m[15]
	if w != 0 && w != 1 {
		inv := 1.0 / w
		return Vec3{x * inv, y * inv, z * inv}, w
	}
	return Vec3{x, y, z}, w
}

// M4RotateAxis builds a rotation of angle radians around a normalized axis
func M4RotateAxis(axis Vec3, angle float32) Mat4 {
	c := math32.Cos(angle)
	s := math32.Sin(angle)
	t := 1 - c
	x, y, z := axis.X, axis.Y, axis.Z

	return Mat4{
		t*x*x + c, t*x*y + s*z, t*x*z - s*y, 0,
		t*x*y - s*z, t*y*y + c, t*y*z + s*x, 0,
		t*x*z + s*y, t*y*z - s*x, t*z*z + c, 0,
		0, 0, 0, 1,
	}
}

const rotateToEpsilon = 1e-6

// M4RotateTo builds the rotation carrying the +Y axis onto the direction
// from -> to. Degenerate directions fall back to identity
func M4RotateTo(from, to Vec3) Mat4 {
	targetDir := V3Normalize(V3Sub(to, from))
	if targetDir == (Vec3{}) {
		return M4Identity()
	}
	origUp := Vec3{0, 1, 0}

	dot := V3Dot(origUp, targetDir)

	// Nearly aligned with up already
	if math32.Abs(dot-1) < rotateToEpsilon {
		return M4Identity()
	}

	// Opposite: 180 degrees around any perpendicular axis
	if math32.Abs(dot+1) < rotateToEpsilon {
		return M4RotateAxis(Vec3{1, 0, 0}, math32.Pi)
	}

	axis := V3Normalize(V3Cross(origUp, targetDir))
	angle := math32.Acos(dot)
	return M4RotateAxis(axis, angle)
}

// M4Perspective builds a right-handed perspective projection
// fov is the vertical field of view in degrees
func M4Perspective(width, height, fov, near, far float32) Mat4 {
	aspect := width / height
	f := 1.0 / math32.Tan(fov*math32.Pi/360)
	nf := 1.0 / (near - far)

	var m Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = (far + near) * nf
	m[11] = -1
	m[14] = 2 * far * near * nf
	return m
}

// M4LookAt builds a view matrix for a camera at eye looking at center
func M4LookAt(eye, center, up Vec3) Mat4 {
	fwd := V3Normalize(V3Sub(center, eye))
	side := V3Normalize(V3Cross(fwd, up))
	newUp := V3Cross(side, fwd)

	return Mat4{
		side.X, newUp.X, -fwd.X, 0,
		side.Y, newUp.Y, -fwd.Y, 0,
		side.Z, newUp.Z, -fwd.Z, 0,
		-V3Dot(side, eye), -V3Dot(newUp, eye), V3Dot(fwd, eye), 1,
	}
}
