package renderer

import (
	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/core"
	"deferred-renderer/resource"
)

// Handles name backend objects. Zero is never a live object; a zero
// Framebuffer is the window's default framebuffer.
type (
	Texture      uint32
	Renderbuffer uint32
	Framebuffer  uint32
	Buffer       uint32
)

type TextureFormat int

const (
	FormatRGBA8 TextureFormat = iota
	FormatRGBA16F
	FormatRGB16F
	FormatRG32F
	FormatDepth32FStencil8
	FormatDepth16
)

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
	// FilterTrilinear samples between mip levels.
	FilterTrilinear
)

type TextureDesc struct {
	Size   core.Size
	Format TextureFormat
	Levels int
	Filter Filter
	Clamp  bool
}

// Attachment is a framebuffer attachment point.
type Attachment int

const (
	AttachmentDepth Attachment = -1 - iota
	AttachmentDepthStencil
)

// ColorAttachment returns color attachment point i.
func ColorAttachment(i int) Attachment { return Attachment(i) }

func (a Attachment) IsColor() bool { return a >= 0 }

type CompareFunc int

const (
	CompareLess CompareFunc = iota
	CompareLessEqual
	CompareGreater
	CompareAlways
)

type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

type BlendMode int

const (
	BlendNone BlendMode = iota
	// BlendAdditive is src*1 + dst*1.
	BlendAdditive
)

type ClearMask int

const (
	ClearColorBit ClearMask = 1 << iota
	ClearDepthBit
	ClearStencilBit
)

// ModelMatrices are the per-instance transforms handed to a technique.
type ModelMatrices struct {
	Model     mgl32.Mat4
	ModelView mgl32.Mat4
	Normal    mgl32.Mat3
}

// Device is the graphics backend the renderer drives. All calls happen on
// the thread that owns the context.
type Device interface {
	CreateTexture(desc TextureDesc) (Texture, error)
	DeleteTexture(tex Texture)
	CreateRenderbuffer(size core.Size, format TextureFormat) (Renderbuffer, error)
	DeleteRenderbuffer(rb Renderbuffer)
	CreateFramebuffer() (Framebuffer, error)
	DeleteFramebuffer(fb Framebuffer)
	AttachTexture(fb Framebuffer, at Attachment, tex Texture)
	AttachRenderbuffer(fb Framebuffer, at Attachment, rb Renderbuffer)
	// CheckFramebuffer returns an error wrapping ErrIncompleteFramebuffer.
	CheckFramebuffer(fb Framebuffer) error

	BindFramebuffer(fb Framebuffer)
	DrawBuffers(ats ...Attachment)
	Viewport(size core.Size)
	BindTexture(unit int, tex Texture)
	GenerateMipmap(tex Texture)

	SetBlend(mode BlendMode)
	SetDepthTest(enabled bool, fn CompareFunc)
	SetDepthMask(write bool)
	SetCull(mode CullMode)
	ClearColor(c core.Color)
	Clear(mask ClearMask)

	CreateUniformBuffer(floats int) (Buffer, error)
	UpdateUniformBuffer(buf Buffer, data []float32)
	BindUniformBuffer(binding int, buf Buffer)
	DeleteBuffer(buf Buffer)

	// UseTechnique makes tech current, compiling it on first use.
	UseTechnique(id resource.Identifier, tech *resource.Technique) error
	// ApplyUniforms uploads data to the current technique. Textures are
	// bound to consecutive units starting at firstUnit.
	ApplyUniforms(data *resource.UniformData, textures *resource.Cache[resource.Texture], firstUnit int) error
	SetFloat(name string, v float32)
	SetVec3(name string, v mgl32.Vec3)
	SetVec4(name string, v mgl32.Vec4)
	SetModelMatrices(m ModelMatrices)

	// DrawIndexed draws count indices as triangles starting byteOffset bytes
	// into the bound index buffer, adding baseVertex to every index.
	DrawIndexed(count, byteOffset, baseVertex int)
}

// BufferRange locates a mesh inside a shared vertex/index batch.
type BufferRange struct {
	Batch      int
	BaseIndex  int
	BaseVertex int
}

// MeshBuffers packs static meshes into GPU batches.
type MeshBuffers interface {
	// Acquire returns where mesh lives, uploading it on first use.
	Acquire(id resource.Identifier, mesh *resource.StaticMesh) (BufferRange, error)
	BindBatch(batch int) error
}

// Texture units shared by every technique.
const (
	DiffuseRoughnessTextureUnit = iota
	NormalMetalnessTextureUnit
	DepthStencilTextureUnit
	InputImageTextureUnit
	ShadowMapTextureUnit0
	NextFreeTextureUnit = ShadowMapTextureUnit0 + CascadeCount
)

// Uniform block binding points.
const (
	StandardUniformBinding = 0
	ShadowUniformBinding   = 1
)
