package opengl

import (
	"fmt"
	"maps"
	"slices"
	"unsafe"

	gl "github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"deferred-renderer/core"
	"deferred-renderer/renderer"
	"deferred-renderer/resource"
)

// Device drives an OpenGL 4.3 core context. Create it after the context is
// made current and use it only from that thread.
type Device struct {
	log *zap.Logger

	programs map[resource.Identifier]*program
	current  *program
	textures map[resource.Identifier]uint32

	deleteProgram func(uint32)
	deleteTexture func(uint32)
}

var _ renderer.Device = (*Device)(nil)

type DeviceOption func(*deviceConfig)

type deviceConfig struct {
	log   *zap.Logger
	debug bool
}

func WithDeviceLogger(l *zap.Logger) DeviceOption {
	return func(c *deviceConfig) { c.log = l }
}

// WithDebugOutput forwards driver messages to the logger. The context must
// have been created with debugging enabled.
func WithDebugOutput(enabled bool) DeviceOption {
	return func(c *deviceConfig) { c.debug = enabled }
}

// NewDevice loads the GL entry points and sets the default state.
func NewDevice(opts ...DeviceOption) (*Device, error) {
	cfg := deviceConfig{log: core.Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	cfg.log.Info("opengl initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
		zap.String("glsl", gl.GoStr(gl.GetString(gl.SHADING_LANGUAGE_VERSION))))

	if cfg.debug {
		enableDebugOutput(cfg.log)
	}

	d := &Device{
		log:           cfg.log,
		programs:      make(map[resource.Identifier]*program),
		textures:      make(map[resource.Identifier]uint32),
		deleteProgram: gl.DeleteProgram,
		deleteTexture: func(tex uint32) { gl.DeleteTextures(1, &tex) },
	}
	d.SetDepthTest(true, renderer.CompareLess)
	d.SetCull(renderer.CullBack)
	return d, nil
}

// ── Objects ───────────────────────────────────────────────────────────────────

var internalFormats = map[renderer.TextureFormat]uint32{
	renderer.FormatRGBA8:            gl.RGBA8,
	renderer.FormatRGBA16F:          gl.RGBA16F,
	renderer.FormatRGB16F:           gl.RGB16F,
	renderer.FormatRG32F:            gl.RG32F,
	renderer.FormatDepth32FStencil8: gl.DEPTH32F_STENCIL8,
	renderer.FormatDepth16:          gl.DEPTH_COMPONENT16,
}

func (d *Device) CreateTexture(desc renderer.TextureDesc) (renderer.Texture, error) {
	format, ok := internalFormats[desc.Format]
	if !ok {
		return 0, fmt.Errorf("unsupported texture format %d", desc.Format)
	}
	levels := max(desc.Levels, 1)

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexStorage2D(gl.TEXTURE_2D, int32(levels), format, int32(desc.Size.Width), int32(desc.Size.Height))

	minFilter, magFilter := int32(gl.NEAREST), int32(gl.NEAREST)
	switch desc.Filter {
	case renderer.FilterLinear:
		minFilter, magFilter = gl.LINEAR, gl.LINEAR
	case renderer.FilterTrilinear:
		minFilter, magFilter = gl.LINEAR_MIPMAP_LINEAR, gl.LINEAR
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, minFilter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, magFilter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAX_LEVEL, int32(levels-1))
	if desc.Clamp {
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if err := glError("create texture"); err != nil {
		gl.DeleteTextures(1, &id)
		return 0, err
	}
	return renderer.Texture(id), nil
}

func (d *Device) DeleteTexture(tex renderer.Texture) {
	id := uint32(tex)
	gl.DeleteTextures(1, &id)
}

func (d *Device) CreateRenderbuffer(size core.Size, format renderer.TextureFormat) (renderer.Renderbuffer, error) {
	f, ok := internalFormats[format]
	if !ok {
		return 0, fmt.Errorf("unsupported renderbuffer format %d", format)
	}
	var id uint32
	gl.GenRenderbuffers(1, &id)
	gl.BindRenderbuffer(gl.RENDERBUFFER, id)
	gl.RenderbufferStorage(gl.RENDERBUFFER, f, int32(size.Width), int32(size.Height))
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)

	if err := glError("create renderbuffer"); err != nil {
		gl.DeleteRenderbuffers(1, &id)
		return 0, err
	}
	return renderer.Renderbuffer(id), nil
}

func (d *Device) DeleteRenderbuffer(rb renderer.Renderbuffer) {
	id := uint32(rb)
	gl.DeleteRenderbuffers(1, &id)
}

func (d *Device) CreateFramebuffer() (renderer.Framebuffer, error) {
	var id uint32
	gl.GenFramebuffers(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("glGenFramebuffers returned no name")
	}
	return renderer.Framebuffer(id), nil
}

func (d *Device) DeleteFramebuffer(fb renderer.Framebuffer) {
	id := uint32(fb)
	gl.DeleteFramebuffers(1, &id)
}

func attachmentPoint(at renderer.Attachment) uint32 {
	switch at {
	case renderer.AttachmentDepth:
		return gl.DEPTH_ATTACHMENT
	case renderer.AttachmentDepthStencil:
		return gl.DEPTH_STENCIL_ATTACHMENT
	}
	return gl.COLOR_ATTACHMENT0 + uint32(at)
}

func (d *Device) AttachTexture(fb renderer.Framebuffer, at renderer.Attachment, tex renderer.Texture) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, attachmentPoint(at), gl.TEXTURE_2D, uint32(tex), 0)
}

func (d *Device) AttachRenderbuffer(fb renderer.Framebuffer, at renderer.Attachment, rb renderer.Renderbuffer) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, attachmentPoint(at), gl.RENDERBUFFER, uint32(rb))
}

func (d *Device) CheckFramebuffer(fb renderer.Framebuffer) error {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("%w: status=0x%X", renderer.ErrIncompleteFramebuffer, status)
	}
	return nil
}

// ── Binding ───────────────────────────────────────────────────────────────────

func (d *Device) BindFramebuffer(fb renderer.Framebuffer) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
}

func (d *Device) DrawBuffers(ats ...renderer.Attachment) {
	if len(ats) == 0 {
		gl.DrawBuffer(gl.NONE)
		return
	}
	bufs := make([]uint32, len(ats))
	for i, at := range ats {
		bufs[i] = attachmentPoint(at)
	}
	gl.DrawBuffers(int32(len(bufs)), &bufs[0])
}

func (d *Device) Viewport(size core.Size) {
	gl.Viewport(0, 0, int32(size.Width), int32(size.Height))
}

func (d *Device) BindTexture(unit int, tex renderer.Texture) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
}

func (d *Device) GenerateMipmap(tex renderer.Texture) {
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
	gl.GenerateMipmap(gl.TEXTURE_2D)
}

// ── State ─────────────────────────────────────────────────────────────────────

func (d *Device) SetBlend(mode renderer.BlendMode) {
	switch mode {
	case renderer.BlendAdditive:
		gl.Enable(gl.BLEND)
		gl.BlendEquation(gl.FUNC_ADD)
		gl.BlendFunc(gl.ONE, gl.ONE)
	default:
		gl.Disable(gl.BLEND)
	}
}

var compareFuncs = map[renderer.CompareFunc]uint32{
	renderer.CompareLess:      gl.LESS,
	renderer.CompareLessEqual: gl.LEQUAL,
	renderer.CompareGreater:   gl.GREATER,
	renderer.CompareAlways:    gl.ALWAYS,
}

func (d *Device) SetDepthTest(enabled bool, fn renderer.CompareFunc) {
	if !enabled {
		gl.Disable(gl.DEPTH_TEST)
		return
	}
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(compareFuncs[fn])
}

func (d *Device) SetDepthMask(write bool) {
	gl.DepthMask(write)
}

func (d *Device) SetCull(mode renderer.CullMode) {
	switch mode {
	case renderer.CullBack:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	case renderer.CullFront:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	default:
		gl.Disable(gl.CULL_FACE)
	}
}

func (d *Device) ClearColor(c core.Color) {
	gl.ClearColor(c.R, c.G, c.B, c.A)
}

func (d *Device) Clear(mask renderer.ClearMask) {
	var bits uint32
	if mask&renderer.ClearColorBit != 0 {
		bits |= gl.COLOR_BUFFER_BIT
	}
	if mask&renderer.ClearDepthBit != 0 {
		bits |= gl.DEPTH_BUFFER_BIT
	}
	if mask&renderer.ClearStencilBit != 0 {
		bits |= gl.STENCIL_BUFFER_BIT
	}
	gl.Clear(bits)
}

// ── Uniform buffers ───────────────────────────────────────────────────────────

func (d *Device) CreateUniformBuffer(floats int) (renderer.Buffer, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.UNIFORM_BUFFER, id)
	gl.BufferData(gl.UNIFORM_BUFFER, 4*floats, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)

	if err := glError("create uniform buffer"); err != nil {
		gl.DeleteBuffers(1, &id)
		return 0, err
	}
	return renderer.Buffer(id), nil
}

func (d *Device) UpdateUniformBuffer(buf renderer.Buffer, data []float32) {
	if len(data) == 0 {
		return
	}
	gl.BindBuffer(gl.UNIFORM_BUFFER, uint32(buf))
	gl.BufferSubData(gl.UNIFORM_BUFFER, 0, 4*len(data), gl.Ptr(data))
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
}

func (d *Device) BindUniformBuffer(binding int, buf renderer.Buffer) {
	gl.BindBufferBase(gl.UNIFORM_BUFFER, uint32(binding), uint32(buf))
}

func (d *Device) DeleteBuffer(buf renderer.Buffer) {
	id := uint32(buf)
	gl.DeleteBuffers(1, &id)
}

// ── Techniques ────────────────────────────────────────────────────────────────

func (d *Device) UseTechnique(id resource.Identifier, tech *resource.Technique) error {
	p, ok := d.programs[id]
	if !ok {
		var err error
		if p, err = linkTechnique(tech.Vertex, tech.Fragment); err != nil {
			return fmt.Errorf("technique %q: %w", id, err)
		}
		d.programs[id] = p
		d.log.Debug("technique linked", zap.Stringer("technique", id), zap.Uint32("program", p.id))
	}
	if d.current != p {
		gl.UseProgram(p.id)
		d.current = p
	}
	return nil
}

// ApplyUniforms sets every parameter in data on the current technique.
// Each texture sets has_<name> to 1; samplers the technique used for an
// earlier material but data lacks get has_<name> = 0.
func (d *Device) ApplyUniforms(data *resource.UniformData, textures *resource.Cache[resource.Texture], firstUnit int) error {
	p := d.current
	if p == nil {
		return fmt.Errorf("no technique bound")
	}
	for name, v := range data.Floats {
		gl.Uniform1f(p.location(name), v)
	}
	for name, v := range data.Vec3s {
		gl.Uniform3f(p.location(name), v[0], v[1], v[2])
	}
	for name, v := range data.Vec4s {
		gl.Uniform4f(p.location(name), v[0], v[1], v[2], v[3])
	}

	unit := firstUnit
	for _, name := range slices.Sorted(maps.Keys(data.Textures)) {
		id := data.Textures[name]
		tex, err := d.uploadTexture(id, textures)
		if err != nil {
			return err
		}
		gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
		gl.BindTexture(gl.TEXTURE_2D, tex)
		gl.Uniform1i(p.location(name), int32(unit))
		gl.Uniform1f(p.location("has_"+name), 1)
		p.textures[name] = true
		unit++
	}
	for name := range p.textures {
		if _, ok := data.Textures[name]; !ok {
			gl.Uniform1f(p.location("has_"+name), 0)
		}
	}
	return nil
}

func (d *Device) SetFloat(name string, v float32) {
	if d.current != nil {
		gl.Uniform1f(d.current.location(name), v)
	}
}

func (d *Device) SetVec3(name string, v mgl32.Vec3) {
	if d.current != nil {
		gl.Uniform3f(d.current.location(name), v[0], v[1], v[2])
	}
}

func (d *Device) SetVec4(name string, v mgl32.Vec4) {
	if d.current != nil {
		gl.Uniform4f(d.current.location(name), v[0], v[1], v[2], v[3])
	}
}

func (d *Device) setMat4(name string, m mgl32.Mat4) {
	if d.current != nil {
		gl.UniformMatrix4fv(d.current.location(name), 1, false, &m[0])
	}
}

func (d *Device) SetModelMatrices(m renderer.ModelMatrices) {
	p := d.current
	if p == nil {
		return
	}
	gl.UniformMatrix4fv(p.location("model_matrix"), 1, false, &m.Model[0])
	gl.UniformMatrix4fv(p.location("model_view_matrix"), 1, false, &m.ModelView[0])
	gl.UniformMatrix3fv(p.location("normal_matrix"), 1, false, &m.Normal[0])
}

func (d *Device) DrawIndexed(count, byteOffset, baseVertex int) {
	gl.DrawElementsBaseVertexWithOffset(gl.TRIANGLES, int32(count), gl.UNSIGNED_INT, uintptr(byteOffset), int32(baseVertex))
}

// ── Resource textures ─────────────────────────────────────────────────────────

// uploadTexture returns the GL name of a cached texture, uploading it with
// mipmaps on first use.
func (d *Device) uploadTexture(id resource.Identifier, textures *resource.Cache[resource.Texture]) (uint32, error) {
	if tex, ok := d.textures[id]; ok {
		return tex, nil
	}
	src, err := textures.Get(id)
	if err != nil {
		return 0, fmt.Errorf("%w: texture %q", renderer.ErrMissingResource, id)
	}
	if len(src.Pixels) == 0 {
		return 0, fmt.Errorf("texture %q has no pixel data", id)
	}

	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8,
		int32(src.Width), int32(src.Height), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&src.Pixels[0]))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	d.textures[id] = tex
	return tex, nil
}

// ReleaseTextures frees uploaded copies when textures leave or are replaced
// in the cache, so a reloaded texture is uploaded again on next use.
func (d *Device) ReleaseTextures(textures *resource.Cache[resource.Texture]) {
	textures.OnEvict(func(id resource.Identifier, _ *resource.Texture) {
		if tex, ok := d.textures[id]; ok {
			d.deleteTexture(tex)
			delete(d.textures, id)
		}
	})
}

// ReleaseTechniques deletes linked programs when techniques leave or are
// replaced in the cache, so a reloaded technique is relinked on next use.
func (d *Device) ReleaseTechniques(techniques *resource.Cache[resource.Technique]) {
	techniques.OnEvict(func(id resource.Identifier, _ *resource.Technique) {
		p, ok := d.programs[id]
		if !ok {
			return
		}
		if d.current == p {
			d.current = nil
		}
		d.deleteProgram(p.id)
		delete(d.programs, id)
		d.log.Debug("technique released", zap.Stringer("technique", id))
	})
}

// Destroy deletes every program and uploaded texture.
func (d *Device) Destroy() {
	for id, p := range d.programs {
		d.deleteProgram(p.id)
		delete(d.programs, id)
	}
	for id, tex := range d.textures {
		d.deleteTexture(tex)
		delete(d.textures, id)
	}
	d.current = nil
}

func glError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%s: gl error 0x%X", op, code)
	}
	return nil
}
