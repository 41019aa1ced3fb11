package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a look-at camera that produces a view frustum per frame.
// FOV is the vertical field of view in radians.
type Camera struct {
	Position  mgl32.Vec3
	Target    mgl32.Vec3
	Up        mgl32.Vec3
	FOV       float32
	NearPlane float32
	FarPlane  float32
}

func NewCamera(fov, nearPlane, farPlane float32) *Camera {
	return &Camera{
		Position:  mgl32.Vec3{0, 0, 5},
		Up:        mgl32.Vec3{0, 1, 0},
		FOV:       fov,
		NearPlane: nearPlane,
		FarPlane:  farPlane,
	}
}

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

// Frustum builds the view frustum for the given aspect ratio.
func (c *Camera) Frustum(aspectRatio float32) (Frustum, error) {
	return NewFrustum(c.FOV, aspectRatio, c.NearPlane, c.FarPlane, c.ViewMatrix())
}

// OrbitCamera circles a target at a fixed distance.
type OrbitCamera struct {
	Camera
	Distance float32
	Yaw      float32
	Pitch    float32
}

func NewOrbitCamera(target mgl32.Vec3, distance, fov float32) *OrbitCamera {
	c := &OrbitCamera{
		Camera:   *NewCamera(fov, 0.1, 1000.0),
		Distance: distance,
		Pitch:    0.3,
	}
	c.Target = target
	c.UpdatePosition()
	return c
}

func (c *OrbitCamera) UpdatePosition() {
	c.Pitch = mgl32.Clamp(c.Pitch, -1.5, 1.5)

	cosPitch := float32(math.Cos(float64(c.Pitch)))
	sinPitch := float32(math.Sin(float64(c.Pitch)))
	cosYaw := float32(math.Cos(float64(c.Yaw)))
	sinYaw := float32(math.Sin(float64(c.Yaw)))

	offset := mgl32.Vec3{
		c.Distance * cosPitch * sinYaw,
		c.Distance * sinPitch,
		c.Distance * cosPitch * cosYaw,
	}
	c.Position = c.Target.Add(offset)
}

func (c *OrbitCamera) Orbit(deltaYaw, deltaPitch float32) {
	c.Yaw += deltaYaw
	c.Pitch += deltaPitch
	c.UpdatePosition()
}

func (c *OrbitCamera) Zoom(delta float32) {
	c.Distance = max(c.Distance+delta, 0.1)
	c.UpdatePosition()
}
