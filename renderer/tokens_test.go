package renderer

import (
	"errors"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/resource"
	"deferred-renderer/scene"
)

func collect(t *testing.T, world *scene.World, caches *resource.Caches, meshes MeshBuffers, global resource.Identifier) *TokenStream {
	t.Helper()
	view := testView()
	var stream TokenStream
	if err := CollectTokens(view, view.View(), world, caches, meshes, &stream, global); err != nil {
		t.Fatalf("CollectTokens: %v", err)
	}
	return &stream
}

func TestCollectTokensCullsOutsideFrustum(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	placeMesh(world, testSphere, mgl32.Vec3{0, 0, 50})
	placeMesh(world, testSphere, mgl32.Vec3{500, 0, 0})

	if n := collect(t, world, caches, newFakeMeshes(), resource.Identifier{}).Len(); n != 0 {
		t.Errorf("expected 0 tokens, got %d", n)
	}
}

func TestCollectTokensKeepsVisibleInstances(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	placeMesh(world, testSphere, mgl32.Vec3{0, 0, 0})
	placeMesh(world, testSphere, mgl32.Vec3{2, 1, -5})
	placeMesh(world, testSphere, mgl32.Vec3{-2, -1, 3})

	if n := collect(t, world, caches, newFakeMeshes(), resource.Identifier{}).Len(); n != 3 {
		t.Errorf("expected 3 tokens, got %d", n)
	}
}

func TestCollectTokensCullingUsesScaledRadius(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	e := placeMesh(world, testSphere, mgl32.Vec3{0, 0, 12})
	tr, _ := world.Transform(e)

	// Behind the eye at z=10: unit sphere is culled, a radius-5 sphere reaches past the near plane.
	if n := collect(t, world, caches, newFakeMeshes(), resource.Identifier{}).Len(); n != 0 {
		t.Fatalf("unscaled: expected 0 tokens, got %d", n)
	}
	tr.Scale = mgl32.Vec3{5, 5, 5}
	world.SetTransform(e, tr)
	if n := collect(t, world, caches, newFakeMeshes(), resource.Identifier{}).Len(); n != 1 {
		t.Errorf("scaled: expected 1 token, got %d", n)
	}
}

func TestCollectTokensOnePerMaterialSlot(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	placeMesh(world, testBox, mgl32.Vec3{})

	meshes := newFakeMeshes()
	stream := collect(t, world, caches, meshes, resource.Identifier{})
	if stream.Len() != 2 {
		t.Fatalf("expected 2 tokens, got %d", stream.Len())
	}

	box, _ := caches.Meshes.Acquire(testBox)
	for i, tok := range stream.Tokens {
		slot := box.Slots[i]
		if tok.Offset != 3*slot.First || tok.Count != 3*slot.Count {
			t.Errorf("token %d: expected [%d,+%d), got [%d,+%d)", i, 3*slot.First, 3*slot.Count, tok.Offset, tok.Count)
		}
		if tok.MaterialID != box.Materials[i] {
			t.Errorf("token %d: expected material %v, got %v", i, box.Materials[i], tok.MaterialID)
		}
		if tok.Material == nil || tok.TechniqueID != tok.Material.Technique {
			t.Errorf("token %d: technique does not follow the material", i)
		}
	}
	if stream.Tokens[0].Matrices != stream.Tokens[1].Matrices {
		t.Error("tokens of one instance should share matrices")
	}
	if len(stream.Matrices) != 1 {
		t.Errorf("expected 1 matrix set, got %d", len(stream.Matrices))
	}
}

func TestCollectTokensGlobalTechniqueCoversWholeMesh(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	placeMesh(world, testBox, mgl32.Vec3{})

	stream := collect(t, world, caches, newFakeMeshes(), ShadowTechniqueID)
	if stream.Len() != 1 {
		t.Fatalf("expected 1 token, got %d", stream.Len())
	}
	box, _ := caches.Meshes.Acquire(testBox)
	tok := stream.Tokens[0]
	if tok.Offset != 0 || tok.Count != box.IndexCount() {
		t.Errorf("expected [0,+%d), got [%d,+%d)", box.IndexCount(), tok.Offset, tok.Count)
	}
	if tok.Material != nil || tok.TechniqueID != ShadowTechniqueID {
		t.Errorf("expected global technique without material, got %v / %v", tok.TechniqueID, tok.Material)
	}
}

func TestCollectTokensSkipsTransparentSlots(t *testing.T) {
	caches := newTestCaches()
	glassBox := resource.NewIdentifier(resource.KindMesh, "glass_box")
	must(caches.Meshes.Insert(glassBox, resource.NewBoxMesh(mgl32.Vec3{1, 1, 1}, testRed, testGlass)))
	world := scene.NewWorld()
	placeMesh(world, glassBox, mgl32.Vec3{})

	stream := collect(t, world, caches, newFakeMeshes(), resource.Identifier{})
	if stream.Len() != 1 || stream.Tokens[0].MaterialID != testRed {
		t.Errorf("expected only the opaque slot, got %d tokens", stream.Len())
	}
}

func TestCollectTokensMissingResources(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	placeMesh(world, resource.NewIdentifier(resource.KindMesh, "nowhere"), mgl32.Vec3{})

	view := testView()
	var stream TokenStream
	err := CollectTokens(view, view.View(), world, caches, newFakeMeshes(), &stream, resource.Identifier{})
	if !errors.Is(err, ErrMissingResource) {
		t.Errorf("missing mesh: expected ErrMissingResource, got %v", err)
	}

	world = scene.NewWorld()
	placeMesh(world, testSphere, mgl32.Vec3{})
	err = CollectTokens(view, view.View(), world, caches, newFakeMeshes(), &stream,
		resource.NewIdentifier(resource.KindTechnique, "nowhere"))
	if !errors.Is(err, ErrMissingResource) {
		t.Errorf("missing technique: expected ErrMissingResource, got %v", err)
	}
}

func TestTokenStreamResetKeepsCapacity(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	for i := 0; i < 10; i++ {
		placeMesh(world, testBox, mgl32.Vec3{float32(i%3) - 1, 0, 0})
	}
	stream := collect(t, world, caches, newFakeMeshes(), resource.Identifier{})
	capTokens, capMatrices := cap(stream.Tokens), cap(stream.Matrices)

	stream.Reset()
	if stream.Len() != 0 || len(stream.Matrices) != 0 {
		t.Fatalf("reset left %d tokens, %d matrices", stream.Len(), len(stream.Matrices))
	}
	if cap(stream.Tokens) != capTokens || cap(stream.Matrices) != capMatrices {
		t.Error("reset released capacity")
	}
}

func TestSortTokensOrdersByTechniqueBatchMaterial(t *testing.T) {
	techA := resource.NewIdentifier(resource.KindTechnique, "a")
	techB := resource.NewIdentifier(resource.KindTechnique, "b")
	matA := resource.NewIdentifier(resource.KindMaterial, "a")
	matB := resource.NewIdentifier(resource.KindMaterial, "b")

	stream := &TokenStream{Tokens: []RenderToken{
		{TechniqueID: techB, Buffer: BufferRange{Batch: 0}, MaterialID: matA},
		{TechniqueID: techA, Buffer: BufferRange{Batch: 1}, MaterialID: matA},
		{TechniqueID: techA, Buffer: BufferRange{Batch: 0}, MaterialID: matB},
		{TechniqueID: techB, Buffer: BufferRange{Batch: 0}, MaterialID: matB},
		{TechniqueID: techA, Buffer: BufferRange{Batch: 0}, MaterialID: matA},
	}}
	SortTokens(stream)

	for i := 1; i < stream.Len(); i++ {
		if CompareTokens(stream.Tokens[i-1], stream.Tokens[i]) > 0 {
			t.Fatalf("tokens %d and %d out of order", i-1, i)
		}
	}
	// Technique changes at most once for two techniques.
	changes := 0
	for i := 1; i < stream.Len(); i++ {
		if stream.Tokens[i].TechniqueID != stream.Tokens[i-1].TechniqueID {
			changes++
		}
	}
	if changes != 1 {
		t.Errorf("expected 1 technique change, got %d", changes)
	}
	// Within a technique, batches ascend.
	for i := 1; i < stream.Len(); i++ {
		a, b := stream.Tokens[i-1], stream.Tokens[i]
		if a.TechniqueID == b.TechniqueID && a.Buffer.Batch > b.Buffer.Batch {
			t.Errorf("tokens %d and %d: batch %d before %d", i-1, i, a.Buffer.Batch, b.Buffer.Batch)
		}
	}
}

func TestSortTokensKeepsMaterialPairing(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	for i := 0; i < 4; i++ {
		placeMesh(world, testBox, mgl32.Vec3{float32(i) - 2, 0, 0})
		placeMesh(world, testSphere, mgl32.Vec3{float32(i) - 2, 2, 0})
	}
	stream := collect(t, world, caches, newFakeMeshes(), resource.Identifier{})

	type draw struct {
		matrices, offset, count int
		material                resource.Identifier
	}
	before := make(map[draw]int)
	for _, tok := range stream.Tokens {
		before[draw{tok.Matrices, tok.Offset, tok.Count, tok.MaterialID}]++
	}

	SortTokens(stream)

	if stream.Len() != 12 {
		t.Fatalf("expected 12 tokens, got %d", stream.Len())
	}
	for i, tok := range stream.Tokens {
		material, ok := caches.Materials.Acquire(tok.MaterialID)
		if !ok || material != tok.Material {
			t.Errorf("token %d: material %v does not match its identifier", i, tok.MaterialID)
			continue
		}
		if tok.TechniqueID != material.Technique {
			t.Errorf("token %d: expected technique %v, got %v", i, material.Technique, tok.TechniqueID)
		}
		technique, ok := caches.Techniques.Acquire(tok.TechniqueID)
		if !ok || technique != tok.Technique {
			t.Errorf("token %d: technique %v does not match its identifier", i, tok.TechniqueID)
		}
		key := draw{tok.Matrices, tok.Offset, tok.Count, tok.MaterialID}
		if before[key] == 0 {
			t.Errorf("token %d: draw %+v was not collected", i, key)
		}
		before[key]--
	}
}

func TestDrawTokensSkipsRedundantState(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	placeMesh(world, testBox, mgl32.Vec3{-1, 0, 0})
	placeMesh(world, testBox, mgl32.Vec3{1, 0, 0})
	placeMesh(world, testSphere, mgl32.Vec3{0, 1, 0})

	meshes := newFakeMeshes()
	meshes.batchSize = 1
	stream := collect(t, world, caches, meshes, resource.Identifier{})
	SortTokens(stream)

	dev := newFakeDevice()
	if err := DrawTokens(dev, meshes, caches.Textures, stream); err != nil {
		t.Fatalf("DrawTokens: %v", err)
	}
	if len(dev.draws) != stream.Len() {
		t.Fatalf("expected %d draws, got %d", stream.Len(), len(dev.draws))
	}

	// Two techniques: red slots and the sphere share one, blue slots use the other.
	if len(dev.techniqueBinds) != 2 {
		t.Errorf("technique binds: expected 2, got %d", len(dev.techniqueBinds))
	}
	if len(dev.modelMatrices) != stream.Len() {
		t.Errorf("matrix uploads: expected %d, got %d", stream.Len(), len(dev.modelMatrices))
	}
	for i := 1; i < len(meshes.binds); i++ {
		if meshes.binds[i] == meshes.binds[i-1] {
			t.Errorf("batch %d bound twice in a row", meshes.binds[i])
		}
	}
	if len(meshes.binds) > stream.Len() {
		t.Errorf("more batch binds (%d) than tokens (%d)", len(meshes.binds), stream.Len())
	}
}

func TestDrawTokensByteOffsets(t *testing.T) {
	caches := newTestCaches()
	world := scene.NewWorld()
	placeMesh(world, testSphere, mgl32.Vec3{})
	placeMesh(world, testBox, mgl32.Vec3{})

	meshes := newFakeMeshes()
	stream := collect(t, world, caches, meshes, resource.Identifier{})
	dev := newFakeDevice()
	if err := DrawTokens(dev, meshes, caches.Textures, stream); err != nil {
		t.Fatalf("DrawTokens: %v", err)
	}

	var want []int
	for _, tok := range stream.Tokens {
		want = append(want, 4*(tok.Buffer.BaseIndex+tok.Offset))
	}
	var got []int
	for _, d := range dev.draws {
		got = append(got, d.byteOffset)
	}
	if !slices.Equal(got, want) {
		t.Errorf("byte offsets: expected %v, got %v", want, got)
	}
}
