package resource

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// NewSphereMesh builds a UV sphere with a single material slot.
func NewSphereMesh(radius float32, segments, rings int, material Identifier) *StaticMesh {
	if segments < 3 {
		segments = 3
	}
	if rings < 2 {
		rings = 2
	}

	m := &StaticMesh{}
	for ring := 0; ring <= rings; ring++ {
		phi := float64(ring) * math.Pi / float64(rings)
		sinPhi := float32(math.Sin(phi))
		cosPhi := float32(math.Cos(phi))

		for seg := 0; seg <= segments; seg++ {
			theta := float64(seg) * 2.0 * math.Pi / float64(segments)
			sinTheta := float32(math.Sin(theta))
			cosTheta := float32(math.Cos(theta))

			normal := mgl32.Vec3{sinPhi * cosTheta, cosPhi, sinPhi * sinTheta}
			m.Vertices = append(m.Vertices, Vertex{
				Position: normal.Mul(radius),
				Normal:   normal,
				Tangent:  mgl32.Vec3{-sinTheta, 0, cosTheta},
				TexCoord: mgl32.Vec2{float32(seg) / float32(segments), float32(ring) / float32(rings)},
			})
		}
	}

	for ring := 0; ring < rings; ring++ {
		for seg := 0; seg < segments; seg++ {
			current := uint32(ring*(segments+1) + seg)
			next := current + uint32(segments+1)
			m.Triangles = append(m.Triangles,
				[3]uint32{current, current + 1, next},
				[3]uint32{current + 1, next + 1, next})
		}
	}

	m.Slots = []MaterialSlot{{First: 0, Count: len(m.Triangles)}}
	m.Materials = []Identifier{material}
	m.ComputeRadius()
	return m
}

// NewBoxMesh builds an axis-aligned box. The top and bottom faces use caps,
// the four side faces use sides, giving two material slots.
func NewBoxMesh(halfExtents mgl32.Vec3, caps, sides Identifier) *StaticMesh {
	type face struct {
		normal, u, v mgl32.Vec3
	}
	hx, hy, hz := halfExtents.X(), halfExtents.Y(), halfExtents.Z()
	capFaces := []face{
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{hx, 0, 0}, mgl32.Vec3{0, 0, -hz}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{hx, 0, 0}, mgl32.Vec3{0, 0, hz}},
	}
	sideFaces := []face{
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{hx, 0, 0}, mgl32.Vec3{0, hy, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-hx, 0, 0}, mgl32.Vec3{0, hy, 0}},
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -hz}, mgl32.Vec3{0, hy, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, hz}, mgl32.Vec3{0, hy, 0}},
	}
	extent := map[mgl32.Vec3]float32{
		{0, 1, 0}: hy, {0, -1, 0}: hy,
		{0, 0, 1}: hz, {0, 0, -1}: hz,
		{1, 0, 0}: hx, {-1, 0, 0}: hx,
	}

	m := &StaticMesh{}
	addFaces := func(faces []face) {
		first := len(m.Triangles)
		for _, f := range faces {
			center := f.normal.Mul(extent[f.normal])
			base := uint32(len(m.Vertices))
			corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
			for _, c := range corners {
				m.Vertices = append(m.Vertices, Vertex{
					Position: center.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])),
					Normal:   f.normal,
					Tangent:  f.u.Normalize(),
					TexCoord: mgl32.Vec2{(c[0] + 1) / 2, (c[1] + 1) / 2},
				})
			}
			m.Triangles = append(m.Triangles,
				[3]uint32{base, base + 1, base + 2},
				[3]uint32{base, base + 2, base + 3})
		}
		m.Slots = append(m.Slots, MaterialSlot{First: first, Count: len(m.Triangles) - first})
	}
	addFaces(capFaces)
	addFaces(sideFaces)
	m.Materials = []Identifier{caps, sides}
	m.ComputeRadius()
	return m
}

// NewPlaneMesh builds a subdivided XZ plane facing +Y.
func NewPlaneMesh(width, depth float32, subdivisions int, material Identifier) *StaticMesh {
	if subdivisions < 1 {
		subdivisions = 1
	}

	m := &StaticMesh{}
	step := 1 / float32(subdivisions)
	for z := 0; z <= subdivisions; z++ {
		for x := 0; x <= subdivisions; x++ {
			u := float32(x) * step
			v := float32(z) * step
			m.Vertices = append(m.Vertices, Vertex{
				Position: mgl32.Vec3{(u - 0.5) * width, 0, (v - 0.5) * depth},
				Normal:   mgl32.Vec3{0, 1, 0},
				Tangent:  mgl32.Vec3{1, 0, 0},
				TexCoord: mgl32.Vec2{u, v},
			})
		}
	}

	row := uint32(subdivisions + 1)
	for z := uint32(0); z < uint32(subdivisions); z++ {
		for x := uint32(0); x < uint32(subdivisions); x++ {
			i := z*row + x
			m.Triangles = append(m.Triangles,
				[3]uint32{i, i + row, i + 1},
				[3]uint32{i + 1, i + row, i + row + 1})
		}
	}

	m.Slots = []MaterialSlot{{First: 0, Count: len(m.Triangles)}}
	m.Materials = []Identifier{material}
	m.ComputeRadius()
	return m
}

// NewFullscreenTriangle covers clip space with one oversized triangle.
// Effects with no volume are drawn with it.
func NewFullscreenTriangle() *StaticMesh {
	m := &StaticMesh{
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-1, -1, 0}, TexCoord: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{3, -1, 0}, TexCoord: mgl32.Vec2{2, 0}},
			{Position: mgl32.Vec3{-1, 3, 0}, TexCoord: mgl32.Vec2{0, 2}},
		},
		Triangles: [][3]uint32{{0, 1, 2}},
		Slots:     []MaterialSlot{{First: 0, Count: 1}},
		Materials: []Identifier{{}},
	}
	m.ComputeRadius()
	return m
}
