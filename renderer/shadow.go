package renderer

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/core"
	"deferred-renderer/scene"
)

const (
	CascadeCount         = 3
	CascadeLambda        = 0.7
	DefaultShadowMapSize = 1024
)

// ShadowClearColor is the moment pair of an unoccluded texel.
var ShadowClearColor = core.Color{R: 1, G: 1, B: 0, A: 0}

// CascadeSplits partitions [near, far] into n ranges, blending a logarithmic
// and a uniform distribution by lambda. The result has n+1 entries, the
// first is near and the last is exactly far.
func CascadeSplits(near, far float32, n int, lambda float32) []float32 {
	splits := make([]float32, n+1)
	for i := 0; i < n; i++ {
		p := float64(i) / float64(n)
		log := float64(near) * math.Pow(float64(far/near), p)
		uniform := float64(near) + float64(far-near)*p
		splits[i] = float32(float64(lambda)*log + (1-float64(lambda))*uniform)
	}
	splits[n] = far
	return splits
}

// CascadeFrustums cuts view into n consecutive sub-frusta.
func CascadeFrustums(view scene.Frustum, n int) ([]scene.Frustum, error) {
	splits := CascadeSplits(view.ZNear(), view.ZFar(), n, CascadeLambda)
	out := make([]scene.Frustum, n)
	for i := range out {
		f, err := view.WithDepthRange(splits[i], splits[i+1])
		if err != nil {
			return nil, fmt.Errorf("cascade %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// Cascade is one shadow map's slice of the view frustum and the light
// projection fitted to it.
type Cascade struct {
	Frustum             scene.Frustum
	LightProjection     mgl32.Mat4
	LightProjectionView mgl32.Mat4
	// Planes bound the light's orthographic volume; shadow casters are
	// culled against it.
	Planes   scene.Planes
	FarPlane float32
}

// DirectionalShadow is the per-frame shadow setup of one directional light.
type DirectionalShadow struct {
	LightView mgl32.Mat4
	MinZ      float32
	MaxZ      float32
	Cascades  [CascadeCount]Cascade
}

// LightView looks from center+direction toward center.
func LightView(center, direction mgl32.Vec3) mgl32.Mat4 {
	up := mgl32.Vec3{0, 1, 0}
	if d := direction.Normalize(); d.Dot(up) > 0.999 || d.Dot(up) < -0.999 {
		up = mgl32.Vec3{0, 0, 1}
	}
	return mgl32.LookAtV(center.Add(direction), center, up)
}

// ComputeCascades fits CascadeCount orthographic light projections to the
// slices of view. Every cascade spans the light-space depth range of the
// whole view frustum so casters outside a slice still land in its map.
func ComputeCascades(view scene.Frustum, direction mgl32.Vec3) (DirectionalShadow, error) {
	if direction.Dot(direction) == 0 {
		return DirectionalShadow{}, fmt.Errorf("%w: zero direction", ErrInvalidLight)
	}
	direction = direction.Normalize()
	frusta, err := CascadeFrustums(view, CascadeCount)
	if err != nil {
		return DirectionalShadow{}, err
	}

	var s DirectionalShadow
	s.LightView = LightView(view.Center(), direction)
	s.MinZ, s.MaxZ = view.FullLightProjection(s.LightView)
	for i, f := range frusta {
		projection := f.ClipLightProjection(s.LightView, s.MinZ, s.MaxZ)
		pv := projection.Mul4(s.LightView)
		s.Cascades[i] = Cascade{
			Frustum:             f,
			LightProjection:     projection,
			LightProjectionView: pv,
			Planes:              scene.PlanesFromMatrix(pv),
			FarPlane:            f.FarPlane(),
		}
	}
	return s, nil
}

// ShadowMaps are CascadeCount two-moment shadow textures sharing one depth
// renderbuffer and framebuffer.
type ShadowMaps struct {
	dev  Device
	size core.Size

	fbo      Framebuffer
	depth    Renderbuffer
	textures [CascadeCount]Texture
}

// MipLevels is the length of a full mip chain for size.
func MipLevels(size core.Size) int {
	return bits.Len(uint(max(size.Width, size.Height)))
}

func NewShadowMaps(dev Device, size int) (sm *ShadowMaps, err error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: shadow map %d", ErrInvalidSize, size)
	}

	sm = &ShadowMaps{dev: dev, size: core.Size{Width: size, Height: size}}
	defer func() {
		if err != nil {
			sm.Destroy()
			sm = nil
		}
	}()

	for i := range sm.textures {
		sm.textures[i], err = dev.CreateTexture(TextureDesc{
			Size:   sm.size,
			Format: FormatRG32F,
			Levels: MipLevels(sm.size),
			Filter: FilterTrilinear,
			Clamp:  true,
		})
		if err != nil {
			return sm, fmt.Errorf("shadow map %d: %w", i, err)
		}
	}
	if sm.depth, err = dev.CreateRenderbuffer(sm.size, FormatDepth16); err != nil {
		return sm, fmt.Errorf("shadow depth: %w", err)
	}
	if sm.fbo, err = dev.CreateFramebuffer(); err != nil {
		return sm, fmt.Errorf("shadow framebuffer: %w", err)
	}
	dev.AttachTexture(sm.fbo, ColorAttachment(0), sm.textures[0])
	dev.AttachRenderbuffer(sm.fbo, AttachmentDepth, sm.depth)
	if err = dev.CheckFramebuffer(sm.fbo); err != nil {
		return sm, fmt.Errorf("shadow framebuffer: %w", err)
	}
	dev.BindFramebuffer(0)

	return sm, nil
}

func (sm *ShadowMaps) Size() core.Size { return sm.size }

func (sm *ShadowMaps) Texture(i int) Texture { return sm.textures[i] }

// BindForWrite makes shadow map i the sole color output.
func (sm *ShadowMaps) BindForWrite(i int) {
	sm.dev.BindFramebuffer(sm.fbo)
	sm.dev.AttachTexture(sm.fbo, ColorAttachment(0), sm.textures[i])
	sm.dev.AttachRenderbuffer(sm.fbo, AttachmentDepth, sm.depth)
	sm.dev.DrawBuffers(ColorAttachment(0))
	sm.dev.Viewport(sm.size)
}

// BindForRead binds every map to its unit and rebuilds its mip chain.
func (sm *ShadowMaps) BindForRead() {
	for i, tex := range sm.textures {
		sm.dev.BindTexture(ShadowMapTextureUnit0+i, tex)
		sm.dev.GenerateMipmap(tex)
	}
}

// Destroy releases every GPU object. Safe to call more than once.
func (sm *ShadowMaps) Destroy() {
	if sm.fbo != 0 {
		sm.dev.DeleteFramebuffer(sm.fbo)
		sm.fbo = 0
	}
	if sm.depth != 0 {
		sm.dev.DeleteRenderbuffer(sm.depth)
		sm.depth = 0
	}
	for i, tex := range sm.textures {
		if tex != 0 {
			sm.dev.DeleteTexture(tex)
			sm.textures[i] = 0
		}
	}
}
