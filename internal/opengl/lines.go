package opengl

import (
	"math"
	"time"
	"unsafe"

	gl "github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/core"
	"deferred-renderer/renderer"
	"deferred-renderer/resource"
)

var lineTechniqueID = resource.NewIdentifier(resource.KindTechnique, "debug_lines")

var lineTechnique = resource.Technique{
	Vertex: `
#version 430 core
layout(location = 0) in vec3 in_position;
layout(location = 1) in vec4 in_color;
uniform mat4 projection_view;
out vec4 v_color;
void main() {
    v_color = in_color;
    gl_Position = projection_view * vec4(in_position, 1.0);
}
`,
	Fragment: `
#version 430 core
in vec4 v_color;
layout(location = 0) out vec4 out_color;
void main() {
    out_color = v_color;
}
`,
}

// circleSegments is the resolution of spheres and cone bases.
const circleSegments = 32

type lineVertex struct {
	Position mgl32.Vec3
	Color    core.Color
}

// LineDrawer batches wireframe primitives and draws them as GL_LINES.
type LineDrawer struct {
	dev      *Device
	vao, vbo uint32
	capacity int
	vertices []lineVertex
}

var _ renderer.DebugDrawer = (*LineDrawer)(nil)

func NewLineDrawer(dev *Device) *LineDrawer {
	l := &LineDrawer{dev: dev}
	gl.GenVertexArrays(1, &l.vao)
	gl.GenBuffers(1, &l.vbo)
	gl.BindVertexArray(l.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, l.vbo)

	stride := int32(unsafe.Sizeof(lineVertex{}))
	var v lineVertex
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, unsafe.Offsetof(v.Position))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(1, 4, gl.FLOAT, false, stride, unsafe.Offsetof(v.Color))

	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
	return l
}

func (l *LineDrawer) line(a, b mgl32.Vec3, c core.Color) {
	l.vertices = append(l.vertices, lineVertex{a, c}, lineVertex{b, c})
}

// Frustum draws the twelve edges of the clip cube mapped back to world space.
func (l *LineDrawer) Frustum(inverseProjectionView mgl32.Mat4, c core.Color) {
	corners := [8]mgl32.Vec3{}
	for i := range corners {
		ndc := mgl32.Vec4{float32(i&1)*2 - 1, float32(i>>1&1)*2 - 1, float32(i>>2&1)*2 - 1, 1}
		p := inverseProjectionView.Mul4x1(ndc)
		corners[i] = p.Vec3().Mul(1 / p.W())
	}
	for i := range corners {
		for _, bit := range [...]int{1, 2, 4} {
			if i&bit == 0 {
				l.line(corners[i], corners[i|bit], c)
			}
		}
	}
}

func (l *LineDrawer) circle(center, u, v mgl32.Vec3, radius float32, c core.Color) {
	point := func(i int) mgl32.Vec3 {
		a := 2 * math.Pi * float64(i) / circleSegments
		return center.Add(u.Mul(radius * float32(math.Cos(a)))).Add(v.Mul(radius * float32(math.Sin(a))))
	}
	for i := 0; i < circleSegments; i++ {
		l.line(point(i), point(i+1), c)
	}
}

// Sphere draws three great circles.
func (l *LineDrawer) Sphere(center mgl32.Vec3, radius float32, c core.Color) {
	x, y, z := mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}
	l.circle(center, x, y, radius, c)
	l.circle(center, y, z, radius, c)
	l.circle(center, z, x, radius, c)
}

// Cone draws the base circle and four edges from the apex to it.
func (l *LineDrawer) Cone(apex, axis mgl32.Vec3, baseRadius float32, c core.Color) {
	if axis.Len() == 0 {
		return
	}
	dir := axis.Normalize()
	ref := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(dir.Dot(ref))) > 0.999 {
		ref = mgl32.Vec3{0, 0, 1}
	}
	u := dir.Cross(ref).Normalize()
	v := dir.Cross(u)

	base := apex.Add(axis)
	l.circle(base, u, v, baseRadius, c)
	for _, edge := range [...]mgl32.Vec3{u, v, u.Mul(-1), v.Mul(-1)} {
		l.line(apex, base.Add(edge.Mul(baseRadius)), c)
	}
}

// Flush draws everything collected since the last flush into the bound
// framebuffer.
func (l *LineDrawer) Flush(projectionView mgl32.Mat4, _ time.Duration) error {
	if len(l.vertices) == 0 {
		return nil
	}
	defer func() { l.vertices = l.vertices[:0] }()

	if err := l.dev.UseTechnique(lineTechniqueID, &lineTechnique); err != nil {
		return err
	}
	l.dev.setMat4("projection_view", projectionView)

	stride := int(unsafe.Sizeof(lineVertex{}))
	gl.BindBuffer(gl.ARRAY_BUFFER, l.vbo)
	if len(l.vertices) > l.capacity {
		l.capacity = 2 * len(l.vertices)
		gl.BufferData(gl.ARRAY_BUFFER, l.capacity*stride, nil, gl.STREAM_DRAW)
	}
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(l.vertices)*stride, gl.Ptr(l.vertices))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	gl.BindVertexArray(l.vao)
	gl.DrawArrays(gl.LINES, 0, int32(len(l.vertices)))
	gl.BindVertexArray(0)
	return glError("debug lines")
}

func (l *LineDrawer) Destroy() {
	gl.DeleteVertexArrays(1, &l.vao)
	gl.DeleteBuffers(1, &l.vbo)
	l.vertices = nil
}
