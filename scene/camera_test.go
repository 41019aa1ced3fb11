package scene

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestOrbitCameraKeepsDistance(t *testing.T) {
	target := mgl32.Vec3{1, 0, -2}
	c := NewOrbitCamera(target, 8, math.Pi/3)
	for i := 0; i < 10; i++ {
		c.Orbit(0.4, 0.1)
		if d := c.Position.Sub(target).Len(); !approx(d, 8) {
			t.Fatalf("orbit %d: expected distance 8, got %v", i, d)
		}
	}
}

func TestOrbitCameraClampsPitch(t *testing.T) {
	c := NewOrbitCamera(mgl32.Vec3{}, 5, math.Pi/3)
	c.Orbit(0, 10)
	if c.Pitch != 1.5 {
		t.Errorf("Pitch: expected clamp to 1.5, got %v", c.Pitch)
	}
	c.Orbit(0, -20)
	if c.Pitch != -1.5 {
		t.Errorf("Pitch: expected clamp to -1.5, got %v", c.Pitch)
	}
}

func TestOrbitCameraZoomFloor(t *testing.T) {
	c := NewOrbitCamera(mgl32.Vec3{}, 5, math.Pi/3)
	c.Zoom(-100)
	if c.Distance != 0.1 {
		t.Errorf("Distance: expected 0.1, got %v", c.Distance)
	}
}

func TestCameraFrustum(t *testing.T) {
	c := NewCamera(math.Pi/4, 0.1, 100)
	c.Position = mgl32.Vec3{0, 0, 5}

	f, err := c.Frustum(2)
	if err != nil {
		t.Fatalf("Frustum: %v", err)
	}
	if f.Aspect() != 2 || f.ZFar() != 100 {
		t.Errorf("Frustum: expected aspect 2 and far 100, got %v and %v", f.Aspect(), f.ZFar())
	}
	if !approxVec(f.Eye(), c.Position) {
		t.Errorf("Eye: expected %v, got %v", c.Position, f.Eye())
	}
	if !f.ContainsSphere(c.Target, 0.5) {
		t.Error("ContainsSphere: expected the target to be visible")
	}

	c.NearPlane = 0
	if _, err := c.Frustum(1); !errors.Is(err, ErrInvalidFrustum) {
		t.Errorf("Frustum: expected ErrInvalidFrustum for a zero near plane, got %v", err)
	}
}
