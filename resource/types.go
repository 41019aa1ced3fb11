package resource

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the interleaved layout every static mesh is uploaded with.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Tangent  mgl32.Vec3
	TexCoord mgl32.Vec2
}

// Texture holds CPU-side RGBA8 pixels, row-major, top-to-bottom.
type Texture struct {
	Width  int
	Height int
	Pixels []byte
}

// LoadTexture reads a PNG or JPEG file from disk.
func LoadTexture(path string) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open texture %q: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode texture %q: %w", path, err)
	}
	return textureFromImage(img), nil
}

func textureFromImage(img image.Image) *Texture {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return &Texture{Width: bounds.Dx(), Height: bounds.Dy(), Pixels: rgba.Pix}
}

// NewSolidTexture creates a 1x1 texture of one color.
func NewSolidTexture(r, g, b, a uint8) *Texture {
	return &Texture{Width: 1, Height: 1, Pixels: []byte{r, g, b, a}}
}

// Technique is a GPU program: a vertex and a fragment stage in GLSL.
type Technique struct {
	Vertex   string
	Fragment string
}

// UniformData is a named set of shader parameters.
type UniformData struct {
	Floats   map[string]float32
	Vec3s    map[string]mgl32.Vec3
	Vec4s    map[string]mgl32.Vec4
	Textures map[string]Identifier
}

func (u *UniformData) SetFloat(name string, v float32) {
	if u.Floats == nil {
		u.Floats = make(map[string]float32)
	}
	u.Floats[name] = v
}

func (u *UniformData) SetVec3(name string, v mgl32.Vec3) {
	if u.Vec3s == nil {
		u.Vec3s = make(map[string]mgl32.Vec3)
	}
	u.Vec3s[name] = v
}

func (u *UniformData) SetVec4(name string, v mgl32.Vec4) {
	if u.Vec4s == nil {
		u.Vec4s = make(map[string]mgl32.Vec4)
	}
	u.Vec4s[name] = v
}

func (u *UniformData) SetTexture(name string, id Identifier) {
	if u.Textures == nil {
		u.Textures = make(map[string]Identifier)
	}
	u.Textures[name] = id
}

// Material is a surface description drawn with one technique.
type Material struct {
	UniformData
	Technique   Identifier
	Transparent bool
}

// Effect is a full-screen or volume pass: parameters, a technique and the
// mesh it is drawn with.
type Effect struct {
	UniformData
	Technique Identifier
	Mesh      Identifier
}

// MaterialSlot is a run of triangles sharing one material.
type MaterialSlot struct {
	First int
	Count int
}

type StaticMesh struct {
	Vertices  []Vertex
	Triangles [][3]uint32
	Slots     []MaterialSlot
	Materials []Identifier
	// Radius bounds every vertex around the local origin.
	Radius float32
}

func (m *StaticMesh) IndexCount() int { return 3 * len(m.Triangles) }

// Indices flattens the triangle list.
func (m *StaticMesh) Indices() []uint32 {
	out := make([]uint32, 0, m.IndexCount())
	for _, t := range m.Triangles {
		out = append(out, t[0], t[1], t[2])
	}
	return out
}

func (m *StaticMesh) ComputeRadius() {
	var r float32
	for _, v := range m.Vertices {
		r = max(r, v.Position.Len())
	}
	m.Radius = r
}

// Validate checks that slots and triangles stay in range.
func (m *StaticMesh) Validate() error {
	if len(m.Slots) != len(m.Materials) {
		return fmt.Errorf("mesh has %d slots but %d materials", len(m.Slots), len(m.Materials))
	}
	for i, s := range m.Slots {
		if s.First < 0 || s.Count < 0 || s.First+s.Count > len(m.Triangles) {
			return fmt.Errorf("slot %d [%d,+%d) exceeds %d triangles", i, s.First, s.Count, len(m.Triangles))
		}
	}
	for i, t := range m.Triangles {
		for _, idx := range t {
			if int(idx) >= len(m.Vertices) {
				return fmt.Errorf("triangle %d references vertex %d of %d", i, idx, len(m.Vertices))
			}
		}
	}
	return nil
}
