package renderer

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/core"
	"deferred-renderer/scene"
)

// DebugDrawer collects wireframe primitives and draws them on Flush.
type DebugDrawer interface {
	// Frustum draws the unit clip cube transformed by inverseProjectionView.
	Frustum(inverseProjectionView mgl32.Mat4, color core.Color)
	Sphere(center mgl32.Vec3, radius float32, color core.Color)
	// Cone draws a cone from apex along axis with the given base radius.
	Cone(apex, axis mgl32.Vec3, baseRadius float32, color core.Color)
	Flush(projectionView mgl32.Mat4, elapsed time.Duration) error
}

var (
	cascadeDebugColor = core.ColorRed
	lightDebugColor   = core.ColorYellow
	volumeDebugColor  = core.Color{R: 0, G: 1, B: 1, A: 1}
)

// spotDebugLength is how far spot light cones are drawn.
const spotDebugLength = 10

type debugFrustum struct {
	inverse mgl32.Mat4
	color   core.Color
}

// recordCascades keeps the cascade slices and fitted light volumes of the
// latest directional light for the overlay.
func (r *Deferred) recordCascades(s *DirectionalShadow) {
	if !r.settings.EnableDebugRendering || r.debug == nil {
		return
	}
	r.debugFrusta = r.debugFrusta[:0]
	for i := range s.Cascades {
		c := &s.Cascades[i]
		r.debugFrusta = append(r.debugFrusta,
			debugFrustum{inverse: c.Frustum.InverseProjectionView(), color: cascadeDebugColor},
			debugFrustum{inverse: c.LightProjectionView.Inv(), color: lightDebugColor})
	}
}

func (r *Deferred) debugPass(view scene.Frustum, world scene.Query) error {
	for _, f := range r.debugFrusta {
		r.debug.Frustum(f.inverse, f.color)
	}
	for _, l := range world.PointLights() {
		r.debug.Sphere(l.Transform.Position, l.Transform.Scale.X(), volumeDebugColor)
	}
	for _, l := range world.SpotLights() {
		if l.Component.Direction.Dot(l.Component.Direction) == 0 {
			continue
		}
		axis := l.Component.Direction.Normalize().Mul(-spotDebugLength)
		radius := spotDebugLength * float32(math.Tan(float64(l.Component.Cutoff)))
		r.debug.Cone(l.Transform.Position, axis, radius, volumeDebugColor)
	}
	return r.debug.Flush(view.ProjectionView(), r.clock().Sub(r.start))
}
