package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/core"
	"deferred-renderer/resource"
)

// SpotShadowNear is the near plane of every spot light's shadow frustum.
const SpotShadowNear float32 = 0.1

type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix is translation * rotation * scale.
func (t Transform) Matrix() mgl32.Mat4 {
	translation := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotation := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translation.Mul4(rotation).Mul4(scale)
}

// MaxScale is the largest absolute scale factor; bounding radii grow by it.
func (t Transform) MaxScale() float32 {
	return max(abs(t.Scale.X()), abs(t.Scale.Y()), abs(t.Scale.Z()))
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

type StaticMeshInstance struct {
	Mesh resource.Identifier
}

// DirectionalLight shines uniformly along -Direction. Direction points from
// lit surfaces toward the light.
type DirectionalLight struct {
	Color       core.Color
	Intensity   float32
	Direction   mgl32.Vec3
	CastShadows bool
}

// PointLight's radius of influence is the owning transform's Scale.X().
type PointLight struct {
	Color     core.Color
	Intensity float32
}

// SpotLight emits a cone from the transform's position along -Direction.
// Cutoff is the cone half-angle in radians.
type SpotLight struct {
	Color       core.Color
	Intensity   float32
	Direction   mgl32.Vec3
	Cutoff      float32
	Range       float32
	CastShadows bool
}

// ShadowFrustum is the perspective volume the light's shadow map is rendered
// from. It fails for a zero direction, a range not beyond SpotShadowNear or a
// cutoff outside (0, π/2).
func (s SpotLight) ShadowFrustum(t Transform) (Frustum, error) {
	if s.Direction.Dot(s.Direction) == 0 {
		return Frustum{}, fmt.Errorf("%w: zero spot light direction", ErrInvalidFrustum)
	}
	forward := s.Direction.Normalize().Mul(-1)
	up := mgl32.Vec3{0, 1, 0}
	if abs(forward.Dot(up)) > 0.999 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(t.Position, t.Position.Add(forward), up)
	return NewFrustum(2*s.Cutoff, 1, SpotShadowNear, s.Range, view)
}
