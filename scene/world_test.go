package scene

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/resource"
)

func TestWorldCreateGivesIdentityTransform(t *testing.T) {
	w := NewWorld()
	a, b := w.Create(), w.Create()
	if a == b {
		t.Fatalf("Create: expected distinct entities, got %v twice", a)
	}
	tr, ok := w.Transform(a)
	if !ok {
		t.Fatal("Transform: expected a transform for a new entity")
	}
	if tr != NewTransform() {
		t.Errorf("Transform: expected identity, got %v", tr)
	}
}

func TestWorldQueriesJoinTransforms(t *testing.T) {
	w := NewWorld()
	mesh := resource.NewIdentifier(resource.KindMesh, "box")

	withMesh := w.Create()
	w.AddMeshInstance(withMesh, StaticMeshInstance{Mesh: mesh})
	tr := NewTransform()
	tr.Position = mgl32.Vec3{1, 2, 3}
	w.SetTransform(withMesh, tr)

	light := w.Create()
	w.AddPointLight(light, PointLight{Intensity: 2})

	got := 0
	for e, p := range w.MeshInstances() {
		got++
		if e != withMesh {
			t.Errorf("MeshInstances: unexpected entity %v", e)
		}
		if p.Transform.Position != tr.Position {
			t.Errorf("MeshInstances: expected position %v, got %v", tr.Position, p.Transform.Position)
		}
		if p.Component.Mesh != mesh {
			t.Errorf("MeshInstances: expected mesh %v, got %v", mesh, p.Component.Mesh)
		}
	}
	if got != 1 {
		t.Errorf("MeshInstances: expected 1, got %d", got)
	}

	points := 0
	for range w.PointLights() {
		points++
	}
	if points != 1 {
		t.Errorf("PointLights: expected 1, got %d", points)
	}
	for range w.SpotLights() {
		t.Error("SpotLights: expected none")
	}
}

func TestWorldQueriesAreRestartable(t *testing.T) {
	w := NewWorld()
	for i := 0; i < 3; i++ {
		w.AddDirectionalLight(w.Create(), DirectionalLight{})
	}
	seq := w.DirectionalLights()
	for pass := 0; pass < 2; pass++ {
		n := 0
		for range seq {
			n++
		}
		if n != 3 {
			t.Errorf("pass %d: expected 3, got %d", pass, n)
		}
	}

	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("early break: expected 1 visit, got %d", n)
	}
}

func TestWorldDestroyRemovesComponents(t *testing.T) {
	w := NewWorld()
	a, b, c := w.Create(), w.Create(), w.Create()
	for _, e := range []Entity{a, b, c} {
		w.AddSpotLight(e, SpotLight{Intensity: float32(e)})
	}
	w.Destroy(a)

	if _, ok := w.Transform(a); ok {
		t.Error("Destroy: expected transform to be removed")
	}
	seen := map[Entity]float32{}
	for e, p := range w.SpotLights() {
		seen[e] = p.Component.Intensity
	}
	if len(seen) != 2 || seen[b] != float32(b) || seen[c] != float32(c) {
		t.Errorf("SpotLights after Destroy: expected b and c with their own values, got %v", seen)
	}
}

func TestWorldSkipsComponentsWithoutTransform(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	w.AddPointLight(e, PointLight{})
	w.transforms.Remove(e)
	for range w.PointLights() {
		t.Error("PointLights: expected entities without a transform to be skipped")
	}
}

func TestStoreRemoveKeepsIndex(t *testing.T) {
	s := NewStore[int]()
	for e := Entity(1); e <= 4; e++ {
		s.Set(e, int(e)*10)
	}
	s.Remove(1)
	s.Remove(7) // absent
	if s.Len() != 3 {
		t.Fatalf("Len: expected 3, got %d", s.Len())
	}
	for e := Entity(2); e <= 4; e++ {
		if v, ok := s.Get(e); !ok || v != int(e)*10 {
			t.Errorf("Get(%d): expected %d, got %d (%v)", e, int(e)*10, v, ok)
		}
	}
	s.Set(3, 99)
	if v, _ := s.Get(3); v != 99 {
		t.Errorf("Set: expected overwrite to 99, got %d", v)
	}
	if s.Len() != 3 {
		t.Errorf("Len after overwrite: expected 3, got %d", s.Len())
	}
}

func TestTransformMatrix(t *testing.T) {
	tr := Transform{
		Position: mgl32.Vec3{1, 2, 3},
		Rotation: mgl32.QuatRotate(math.Pi/2, mgl32.Vec3{0, 1, 0}),
		Scale:    mgl32.Vec3{2, 2, 2},
	}
	// Scale, then rotate +x onto -z, then translate.
	got := tr.Matrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1}).Vec3()
	want := mgl32.Vec3{1, 2, 1}
	if !approxVec(got, want) {
		t.Errorf("Matrix: expected %v, got %v", want, got)
	}
}

func TestTransformMaxScale(t *testing.T) {
	tr := NewTransform()
	tr.Scale = mgl32.Vec3{1, -4, 2}
	if tr.MaxScale() != 4 {
		t.Errorf("MaxScale: expected 4, got %v", tr.MaxScale())
	}
}

func TestSpotLightShadowFrustum(t *testing.T) {
	spot := SpotLight{Direction: mgl32.Vec3{0, 1, 0}, Cutoff: math.Pi / 6, Range: 20}
	tr := NewTransform()
	tr.Position = mgl32.Vec3{0, 5, 0}

	f, err := spot.ShadowFrustum(tr)
	if err != nil {
		t.Fatalf("ShadowFrustum: %v", err)
	}
	if !approx(f.Fovy(), math.Pi/3) {
		t.Errorf("Fovy: expected twice the cutoff, got %v", f.Fovy())
	}
	if f.ZNear() != SpotShadowNear || f.ZFar() != 20 {
		t.Errorf("depth range: expected [%v,20], got [%v,%v]", SpotShadowNear, f.ZNear(), f.ZFar())
	}
	if !approxVec(f.Eye(), tr.Position) {
		t.Errorf("Eye: expected %v, got %v", tr.Position, f.Eye())
	}
	// The light shines along -Direction.
	if !f.ContainsSphere(mgl32.Vec3{0, -5, 0}, 0.1) {
		t.Error("ContainsSphere: expected a point below the light to be lit")
	}
	if f.ContainsSphere(mgl32.Vec3{0, 10, 0}, 0.1) {
		t.Error("ContainsSphere: expected a point above the light to be outside")
	}
}

func TestSpotLightShadowFrustumRejectsUnusableLights(t *testing.T) {
	up := mgl32.Vec3{0, 1, 0}
	tests := []struct {
		name string
		spot SpotLight
	}{
		{"zero range", SpotLight{Direction: up, Cutoff: 0.5}},
		{"range at near plane", SpotLight{Direction: up, Cutoff: 0.5, Range: SpotShadowNear}},
		{"right angle cutoff", SpotLight{Direction: up, Cutoff: math.Pi / 2, Range: 10}},
		{"zero direction", SpotLight{Cutoff: 0.5, Range: 10}},
	}
	for _, tt := range tests {
		if _, err := tt.spot.ShadowFrustum(NewTransform()); !errors.Is(err, ErrInvalidFrustum) {
			t.Errorf("%s: expected ErrInvalidFrustum, got %v", tt.name, err)
		}
	}
}
