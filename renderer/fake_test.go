package renderer

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/core"
	"deferred-renderer/resource"
	"deferred-renderer/scene"
)

var errFakeCreate = errors.New("fake create failure")

type clearRecord struct {
	fb      Framebuffer
	targets []uint32
	mask    ClearMask
	color   core.Color
}

type drawRecord struct {
	technique  resource.Identifier
	count      int
	byteOffset int
	baseVertex int
	fb         Framebuffer
	vec4s      map[string]mgl32.Vec4
}

// fakeDevice records what the renderer asks of the GPU.
type fakeDevice struct {
	next uint32
	live map[uint32]string

	created int
	deleted int
	// failAt makes the n-th creation (1-based) fail.
	failAt     int
	incomplete bool

	fb          Framebuffer
	attachments map[Framebuffer]map[Attachment]uint32
	drawBuffers []Attachment
	units       map[int]Texture
	mipmaps     []Texture

	blend     BlendMode
	depthTest bool
	depthFunc CompareFunc
	depthMask bool
	cull      CullMode
	clearCol  core.Color
	clears    []clearRecord

	buffers  map[Buffer][]float32
	bindings map[int]Buffer

	technique      resource.Identifier
	techniqueBinds []resource.Identifier
	uniformApplies int
	floats         map[string]float32
	vec3s          map[string]mgl32.Vec3
	vec4s          map[string]mgl32.Vec4
	modelMatrices  []ModelMatrices
	draws          []drawRecord
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		live:        make(map[uint32]string),
		attachments: make(map[Framebuffer]map[Attachment]uint32),
		units:       make(map[int]Texture),
		buffers:     make(map[Buffer][]float32),
		bindings:    make(map[int]Buffer),
		floats:      make(map[string]float32),
		vec3s:       make(map[string]mgl32.Vec3),
		vec4s:       make(map[string]mgl32.Vec4),
	}
}

func (d *fakeDevice) create(kind string) (uint32, error) {
	d.created++
	if d.failAt != 0 && d.created == d.failAt {
		d.created--
		return 0, errFakeCreate
	}
	d.next++
	d.live[d.next] = kind
	return d.next, nil
}

func (d *fakeDevice) destroy(h uint32) {
	if _, ok := d.live[h]; !ok {
		panic(fmt.Sprintf("double delete of %d", h))
	}
	delete(d.live, h)
	d.deleted++
}

func (d *fakeDevice) liveOf(kind string) int {
	n := 0
	for _, k := range d.live {
		if k == kind {
			n++
		}
	}
	return n
}

func (d *fakeDevice) CreateTexture(TextureDesc) (Texture, error) {
	h, err := d.create("texture")
	return Texture(h), err
}

func (d *fakeDevice) DeleteTexture(t Texture) { d.destroy(uint32(t)) }

func (d *fakeDevice) CreateRenderbuffer(core.Size, TextureFormat) (Renderbuffer, error) {
	h, err := d.create("renderbuffer")
	return Renderbuffer(h), err
}

func (d *fakeDevice) DeleteRenderbuffer(rb Renderbuffer) { d.destroy(uint32(rb)) }

func (d *fakeDevice) CreateFramebuffer() (Framebuffer, error) {
	h, err := d.create("framebuffer")
	if err == nil {
		d.attachments[Framebuffer(h)] = make(map[Attachment]uint32)
	}
	return Framebuffer(h), err
}

func (d *fakeDevice) DeleteFramebuffer(fb Framebuffer) {
	delete(d.attachments, fb)
	d.destroy(uint32(fb))
}

func (d *fakeDevice) AttachTexture(fb Framebuffer, at Attachment, tex Texture) {
	d.attachments[fb][at] = uint32(tex)
}

func (d *fakeDevice) AttachRenderbuffer(fb Framebuffer, at Attachment, rb Renderbuffer) {
	d.attachments[fb][at] = uint32(rb)
}

func (d *fakeDevice) CheckFramebuffer(Framebuffer) error {
	if d.incomplete {
		return fmt.Errorf("%w: status 0x8CD6", ErrIncompleteFramebuffer)
	}
	return nil
}

func (d *fakeDevice) BindFramebuffer(fb Framebuffer) {
	d.fb = fb
	d.drawBuffers = nil
}

func (d *fakeDevice) DrawBuffers(ats ...Attachment) {
	d.drawBuffers = append([]Attachment(nil), ats...)
}

func (d *fakeDevice) Viewport(core.Size) {}

func (d *fakeDevice) BindTexture(unit int, tex Texture) { d.units[unit] = tex }

func (d *fakeDevice) GenerateMipmap(tex Texture) { d.mipmaps = append(d.mipmaps, tex) }

func (d *fakeDevice) SetBlend(mode BlendMode) { d.blend = mode }

func (d *fakeDevice) SetDepthTest(enabled bool, fn CompareFunc) {
	d.depthTest = enabled
	d.depthFunc = fn
}

func (d *fakeDevice) SetDepthMask(write bool) { d.depthMask = write }
func (d *fakeDevice) SetCull(mode CullMode)   { d.cull = mode }
func (d *fakeDevice) ClearColor(c core.Color) { d.clearCol = c }

// currentTargets resolves the bound draw buffers to attached handles.
func (d *fakeDevice) currentTargets() []uint32 {
	var out []uint32
	for _, at := range d.drawBuffers {
		out = append(out, d.attachments[d.fb][at])
	}
	return out
}

func (d *fakeDevice) Clear(mask ClearMask) {
	d.clears = append(d.clears, clearRecord{fb: d.fb, targets: d.currentTargets(), mask: mask, color: d.clearCol})
}

func (d *fakeDevice) CreateUniformBuffer(floats int) (Buffer, error) {
	h, err := d.create("buffer")
	if err == nil {
		d.buffers[Buffer(h)] = make([]float32, floats)
	}
	return Buffer(h), err
}

func (d *fakeDevice) UpdateUniformBuffer(buf Buffer, data []float32) {
	d.buffers[buf] = append(d.buffers[buf][:0], data...)
}

func (d *fakeDevice) BindUniformBuffer(binding int, buf Buffer) { d.bindings[binding] = buf }

func (d *fakeDevice) DeleteBuffer(buf Buffer) {
	delete(d.buffers, buf)
	d.destroy(uint32(buf))
}

func (d *fakeDevice) UseTechnique(id resource.Identifier, tech *resource.Technique) error {
	if tech == nil {
		return errors.New("nil technique")
	}
	d.technique = id
	d.techniqueBinds = append(d.techniqueBinds, id)
	return nil
}

func (d *fakeDevice) ApplyUniforms(data *resource.UniformData, textures *resource.Cache[resource.Texture], firstUnit int) error {
	for _, id := range data.Textures {
		if !textures.Contains(id) {
			return fmt.Errorf("%w: texture %q", ErrMissingResource, id)
		}
	}
	d.uniformApplies++
	return nil
}

func (d *fakeDevice) SetFloat(name string, v float32)   { d.floats[name] = v }
func (d *fakeDevice) SetVec3(name string, v mgl32.Vec3) { d.vec3s[name] = v }
func (d *fakeDevice) SetVec4(name string, v mgl32.Vec4) { d.vec4s[name] = v }
func (d *fakeDevice) SetModelMatrices(m ModelMatrices)  { d.modelMatrices = append(d.modelMatrices, m) }

func (d *fakeDevice) DrawIndexed(count, byteOffset, baseVertex int) {
	vec4s := make(map[string]mgl32.Vec4, len(d.vec4s))
	for k, v := range d.vec4s {
		vec4s[k] = v
	}
	d.draws = append(d.draws, drawRecord{
		technique:  d.technique,
		count:      count,
		byteOffset: byteOffset,
		baseVertex: baseVertex,
		fb:         d.fb,
		vec4s:      vec4s,
	})
}

func (d *fakeDevice) drawsWith(id resource.Identifier) []drawRecord {
	var out []drawRecord
	for _, dr := range d.draws {
		if dr.technique == id {
			out = append(out, dr)
		}
	}
	return out
}

// fakeMeshes packs meshes back to back, batchSize meshes per batch.
type fakeMeshes struct {
	batchSize int
	ranges    map[resource.Identifier]BufferRange
	indices   int
	vertices  int
	count     int
	binds     []int
}

func newFakeMeshes() *fakeMeshes {
	return &fakeMeshes{batchSize: 1 << 30, ranges: make(map[resource.Identifier]BufferRange)}
}

func (m *fakeMeshes) Acquire(id resource.Identifier, mesh *resource.StaticMesh) (BufferRange, error) {
	if r, ok := m.ranges[id]; ok {
		return r, nil
	}
	r := BufferRange{Batch: m.count / m.batchSize, BaseIndex: m.indices, BaseVertex: m.vertices}
	m.count++
	m.indices += mesh.IndexCount()
	m.vertices += len(mesh.Vertices)
	m.ranges[id] = r
	return r, nil
}

func (m *fakeMeshes) BindBatch(batch int) error {
	m.binds = append(m.binds, batch)
	return nil
}

var (
	testGeometryTech = resource.NewIdentifier(resource.KindTechnique, "gbuffer")
	testOtherTech    = resource.NewIdentifier(resource.KindTechnique, "gbuffer_textured")
	testRed          = resource.NewIdentifier(resource.KindMaterial, "red")
	testBlue         = resource.NewIdentifier(resource.KindMaterial, "blue")
	testGlass        = resource.NewIdentifier(resource.KindMaterial, "glass")
	testSphere       = resource.NewIdentifier(resource.KindMesh, "sphere")
	testBox          = resource.NewIdentifier(resource.KindMesh, "box")
	testQuad         = resource.NewIdentifier(resource.KindMesh, "fullscreen")
	testVolume       = resource.NewIdentifier(resource.KindMesh, "point_volume")
)

// newTestCaches registers everything DefaultSettings refers to plus a few
// meshes and materials.
func newTestCaches() *resource.Caches {
	c := resource.NewCaches()
	tech := &resource.Technique{Vertex: "v", Fragment: "f"}

	for _, id := range []resource.Identifier{testGeometryTech, testOtherTech, ShadowTechniqueID} {
		must(c.Techniques.Insert(id, tech))
	}
	for _, id := range []resource.Identifier{
		ImageBasedLightEffectID, DirectionalLightEffectID, SpotLightEffectID, GammaConversionEffectID,
	} {
		techID := resource.NewIdentifier(resource.KindTechnique, id.String())
		must(c.Techniques.Insert(techID, tech))
		must(c.Effects.Insert(id, &resource.Effect{Technique: techID, Mesh: testQuad}))
	}
	pointTech := resource.NewIdentifier(resource.KindTechnique, "point_light")
	must(c.Techniques.Insert(pointTech, tech))
	must(c.Effects.Insert(PointLightEffectID, &resource.Effect{Technique: pointTech, Mesh: testVolume}))

	must(c.Materials.Insert(testRed, &resource.Material{Technique: testGeometryTech}))
	must(c.Materials.Insert(testBlue, &resource.Material{Technique: testOtherTech}))
	must(c.Materials.Insert(testGlass, &resource.Material{Technique: testGeometryTech, Transparent: true}))

	must(c.Meshes.Insert(testSphere, resource.NewSphereMesh(1, 8, 4, testRed)))
	must(c.Meshes.Insert(testBox, resource.NewBoxMesh(mgl32.Vec3{1, 1, 1}, testRed, testBlue)))
	must(c.Meshes.Insert(testQuad, resource.NewFullscreenTriangle()))
	must(c.Meshes.Insert(testVolume, resource.NewSphereMesh(1, 8, 4, resource.Identifier{})))
	return c
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// testView looks down -Z from (0,0,10).
func testView() scene.Frustum {
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	f, err := scene.NewFrustum(mgl32.DegToRad(60), 4.0/3.0, 0.1, 100, view)
	must(err)
	return f
}

func placeMesh(w *scene.World, mesh resource.Identifier, pos mgl32.Vec3) scene.Entity {
	e := w.Create()
	t := scene.NewTransform()
	t.Position = pos
	w.SetTransform(e, t)
	w.AddMeshInstance(e, scene.StaticMeshInstance{Mesh: mesh})
	return e
}
