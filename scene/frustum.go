package scene

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidFrustum = errors.New("invalid frustum")

// Plane represents a half-space: ax + by + cz + d = 0
// Normal (a, b, c) points into the "inside" of the volume.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// DistanceTo returns the signed distance from a point to the plane.
// Positive means on the "inside" (same side as Normal).
func (p Plane) DistanceTo(pt mgl32.Vec3) float32 {
	return p.Normal.Dot(pt) + p.D
}

// Planes holds the six clip planes of a projection volume:
// Left, Right, Bottom, Top, Near, Far.
type Planes [6]Plane

// PlanesFromMatrix extracts the clip planes of a projection-view matrix
// (Gribb/Hartmann). mgl32 stores matrices column-major with column vectors,
// so row i of the GLSL matrix is m.Row(i).
func PlanesFromMatrix(m mgl32.Mat4) Planes {
	r0, r1, r2, r3 := m.Row(0), m.Row(1), m.Row(2), m.Row(3)

	var p Planes
	p[0] = normalizePlane(r3.Add(r0))
	p[1] = normalizePlane(r3.Sub(r0))
	p[2] = normalizePlane(r3.Add(r1))
	p[3] = normalizePlane(r3.Sub(r1))
	p[4] = normalizePlane(r3.Add(r2))
	p[5] = normalizePlane(r3.Sub(r2))
	return p
}

func normalizePlane(v mgl32.Vec4) Plane {
	n := v.Vec3()
	l := n.Len()
	if l == 0 {
		return Plane{}
	}
	return Plane{Normal: n.Mul(1 / l), D: v.W() / l}
}

// ContainsSphere reports whether any part of the sphere lies inside the volume.
// Spheres touching a plane count as inside.
func (p *Planes) ContainsSphere(center mgl32.Vec3, radius float32) bool {
	for i := range p {
		if p[i].DistanceTo(center) < -radius {
			return false
		}
	}
	return true
}

func (p *Planes) ContainsPoint(pt mgl32.Vec3) bool {
	return p.ContainsSphere(pt, 0)
}

// Frustum is an immutable perspective view volume with its derived matrices.
// fovy is in radians.
type Frustum struct {
	fovy, aspect float32
	zNear, zFar  float32

	view                  mgl32.Mat4
	projection            mgl32.Mat4
	projectionView        mgl32.Mat4
	inverseProjectionView mgl32.Mat4
	planes                Planes
}

// NewFrustum builds a perspective frustum looking through view.
func NewFrustum(fovy, aspect, zNear, zFar float32, view mgl32.Mat4) (Frustum, error) {
	if zNear <= 0 || zNear >= zFar {
		return Frustum{}, fmt.Errorf("%w: near %v, far %v", ErrInvalidFrustum, zNear, zFar)
	}
	if fovy <= 0 || fovy >= math.Pi || aspect <= 0 {
		return Frustum{}, fmt.Errorf("%w: fovy %v, aspect %v", ErrInvalidFrustum, fovy, aspect)
	}

	projection := mgl32.Perspective(fovy, aspect, zNear, zFar)
	pv := projection.Mul4(view)
	return Frustum{
		fovy:                  fovy,
		aspect:                aspect,
		zNear:                 zNear,
		zFar:                  zFar,
		view:                  view,
		projection:            projection,
		projectionView:        pv,
		inverseProjectionView: pv.Inv(),
		planes:                PlanesFromMatrix(pv),
	}, nil
}

func (f Frustum) Fovy() float32   { return f.fovy }
func (f Frustum) Aspect() float32 { return f.aspect }
func (f Frustum) ZNear() float32  { return f.zNear }
func (f Frustum) ZFar() float32   { return f.zFar }

func (f Frustum) View() mgl32.Mat4                  { return f.view }
func (f Frustum) Projection() mgl32.Mat4            { return f.projection }
func (f Frustum) ProjectionView() mgl32.Mat4        { return f.projectionView }
func (f Frustum) InverseProjectionView() mgl32.Mat4 { return f.inverseProjectionView }
func (f Frustum) Planes() Planes                    { return f.planes }

// FarPlane is the view-space distance of the far plane.
func (f Frustum) FarPlane() float32 { return f.zFar }

// Eye is the world-space position the frustum looks from.
func (f Frustum) Eye() mgl32.Vec3 {
	return f.view.Inv().Col(3).Vec3()
}

func (f Frustum) ContainsSphere(center mgl32.Vec3, radius float32) bool {
	return f.planes.ContainsSphere(center, radius)
}

// WithDepthRange returns a frustum sharing fovy, aspect and view with f but
// spanning [zNear, zFar].
func (f Frustum) WithDepthRange(zNear, zFar float32) (Frustum, error) {
	return NewFrustum(f.fovy, f.aspect, zNear, zFar, f.view)
}

// Corners returns the eight world-space corners, near plane first,
// each plane ordered (-x,-y), (+x,-y), (-x,+y), (+x,+y).
func (f Frustum) Corners() [8]mgl32.Vec3 {
	return CornersOf(f.inverseProjectionView)
}

// CornersOf unprojects the NDC cube through an inverse projection-view matrix.
func CornersOf(inverseProjectionView mgl32.Mat4) [8]mgl32.Vec3 {
	var out [8]mgl32.Vec3
	i := 0
	for _, z := range [2]float32{-1, 1} {
		for _, y := range [2]float32{-1, 1} {
			for _, x := range [2]float32{-1, 1} {
				p := inverseProjectionView.Mul4x1(mgl32.Vec4{x, y, z, 1})
				out[i] = p.Vec3().Mul(1 / p.W())
				i++
			}
		}
	}
	return out
}

// Center is the average of the eight corners.
func (f Frustum) Center() mgl32.Vec3 {
	var sum mgl32.Vec3
	for _, c := range f.Corners() {
		sum = sum.Add(c)
	}
	return sum.Mul(1.0 / 8)
}

// FullLightProjection returns the depth range the frustum covers in the
// space of lightView. Values are light-space z, so minZ is the farthest.
func (f Frustum) FullLightProjection(lightView mgl32.Mat4) (minZ, maxZ float32) {
	minZ, maxZ = float32(math.Inf(1)), float32(math.Inf(-1))
	for _, c := range f.Corners() {
		z := lightView.Mul4x1(c.Vec4(1)).Z()
		minZ = min(minZ, z)
		maxZ = max(maxZ, z)
	}
	return minZ, maxZ
}

// ClipLightProjection returns an orthographic projection fitted in x and y
// to the frustum's corners as seen from lightView and spanning the
// light-space depth range [minZ, maxZ].
func (f Frustum) ClipLightProjection(lightView mgl32.Mat4, minZ, maxZ float32) mgl32.Mat4 {
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	for _, c := range f.Corners() {
		p := lightView.Mul4x1(c.Vec4(1))
		minX = min(minX, p.X())
		maxX = max(maxX, p.X())
		minY = min(minY, p.Y())
		maxY = max(maxY, p.Y())
	}
	return mgl32.Ortho(minX, maxX, minY, maxY, -maxZ, -minZ)
}
