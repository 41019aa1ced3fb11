package io

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/resource"
)

const quadOBJ = `# two materials, one quad each
mtllib quads.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0 0 -1
v 1 0 -1
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl red
f 1/1/1 2/2/1 3/3/1 4/4/1
usemtl glass
f 1/1 5/2 6/3 2/4
`

const quadMTL = `newmtl red
Kd 1 0 0
Ns 500
newmtl glass
Kd 0.5 0.5 1
d 0.25
map_Kd glass.png
`

func writeOBJ(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "quads.obj"), []byte(quadOBJ), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "quads.mtl"), []byte(quadMTL), 0644); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(dir, "quads.obj")
}

func TestLoadOBJ(t *testing.T) {
	path := writeOBJ(t)
	data, err := LoadOBJ(path)
	if err != nil {
		t.Fatalf("LoadOBJ: %v", err)
	}

	mesh := data.Mesh
	if len(mesh.Triangles) != 4 {
		t.Errorf("Triangles: expected 4, got %d", len(mesh.Triangles))
	}
	if len(mesh.Vertices) != 8 {
		t.Errorf("Vertices: expected 8, got %d", len(mesh.Vertices))
	}
	if len(mesh.Slots) != 2 {
		t.Fatalf("Slots: expected 2, got %d", len(mesh.Slots))
	}
	if mesh.Slots[1] != (resource.MaterialSlot{First: 2, Count: 2}) {
		t.Errorf("Slot 1: expected {2 2}, got %v", mesh.Slots[1])
	}
	if data.SlotNames[0] != "red" || data.SlotNames[1] != "glass" {
		t.Errorf("SlotNames: expected [red glass], got %v", data.SlotNames)
	}

	// The second face has no normals, so all normals are recomputed.
	n := mesh.Vertices[0].Normal
	if !n.ApproxEqual(mgl32.Vec3{0, 0, 1}) {
		t.Errorf("Normal: expected (0,0,1), got %v", n)
	}
	tan := mesh.Vertices[0].Tangent
	if !mgl32.FloatEqual(tan.Dot(n), 0) || !mgl32.FloatEqual(tan.Len(), 1) {
		t.Errorf("Tangent: expected unit and perpendicular to normal, got %v", tan)
	}
	// V is flipped to the top-left origin.
	if mesh.Vertices[0].TexCoord != (mgl32.Vec2{0, 1}) {
		t.Errorf("TexCoord: expected (0,1), got %v", mesh.Vertices[0].TexCoord)
	}

	red := data.Materials["red"]
	if red == nil {
		t.Fatal("red material missing")
	}
	if red.DiffuseColor != [4]float32{1, 0, 0, 1} {
		t.Errorf("Kd: expected red, got %v", red.DiffuseColor)
	}
	if !mgl32.FloatEqual(red.Roughness, 0.5) {
		t.Errorf("Roughness: expected 0.5, got %v", red.Roughness)
	}
	glass := data.Materials["glass"]
	if !glass.Transparent || glass.DiffuseColor[3] != 0.25 {
		t.Errorf("glass: expected transparent with alpha 0.25, got %v", glass)
	}
	if glass.TexturePath != filepath.Join(filepath.Dir(path), "glass.png") {
		t.Errorf("TexturePath: got %v", glass.TexturePath)
	}
}

func TestOBJInsertFallback(t *testing.T) {
	data, err := LoadOBJ(writeOBJ(t))
	if err != nil {
		t.Fatalf("LoadOBJ: %v", err)
	}
	// glass references a texture that does not exist; drop it.
	delete(data.Materials, "glass")

	caches := resource.NewCaches()
	fallback := resource.NewIdentifier(resource.KindMaterial, "default")
	id, err := data.Insert(caches, "test", testTechnique, fallback)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	mesh, err := caches.Meshes.Get(id)
	if err != nil {
		t.Fatalf("mesh: %v", err)
	}
	if mesh.Materials[0] != resource.NewIdentifier(resource.KindMaterial, "test/red") {
		t.Errorf("slot 0: expected test/red, got %v", mesh.Materials[0])
	}
	if mesh.Materials[1] != fallback {
		t.Errorf("slot 1: expected fallback, got %v", mesh.Materials[1])
	}
	if mesh.Radius <= 0 {
		t.Errorf("Radius: expected positive, got %v", mesh.Radius)
	}
}

func TestLoadOBJEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.obj")
	if err := os.WriteFile(path, []byte("# nothing\nv 0 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOBJ(path); err == nil {
		t.Error("LoadOBJ: expected error for a file without faces")
	}
}
