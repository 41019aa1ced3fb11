package renderer

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"deferred-renderer/core"
	"deferred-renderer/resource"
	"deferred-renderer/scene"
)

// Viewport is what a frame is rendered from and into.
type Viewport struct {
	Frustum scene.Frustum
	// Target receives the final composite; zero is the window.
	Target Framebuffer
}

// Renderer turns a world into draw submissions once per frame.
type Renderer interface {
	Render(viewport Viewport, world scene.Query) error
	Resize(size core.Size) error
	Resources() *resource.Caches
	Settings() Settings
	Destroy()
}

type Option func(*Deferred)

func WithSettings(s Settings) Option {
	return func(r *Deferred) { r.settings = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Deferred) { r.log = l }
}

// WithDebugDrawer attaches the sink used when debug rendering is enabled.
func WithDebugDrawer(d DebugDrawer) Option {
	return func(r *Deferred) { r.debug = d }
}

// WithClock replaces time.Now as the source of the elapsed-time uniform.
func WithClock(now func() time.Time) Option {
	return func(r *Deferred) { r.clock = now }
}

// Deferred is a deferred shading renderer: a geometry pass fills the
// geometry buffer, light passes accumulate into a ping-ponged image, and a
// final effect composites it into the viewport's target.
type Deferred struct {
	dev      Device
	meshes   MeshBuffers
	caches   *resource.Caches
	settings Settings
	log      *zap.Logger
	debug    DebugDrawer
	clock    func() time.Time
	start    time.Time

	size    core.Size
	gbuffer *GeometryBuffer
	shadows *ShadowMaps

	standardBuffer Buffer
	shadowBuffer   Buffer
	standard       StandardUniforms
	shadow         ShadowUniforms

	standardScratch []float32
	shadowScratch   []float32
	geometryStream  TokenStream
	shadowStream    TokenStream
	debugFrusta     []debugFrustum
}

var _ Renderer = (*Deferred)(nil)

// New creates every render target and uniform buffer at size. Resources
// are looked up in caches by identifier and never owned.
func New(dev Device, meshes MeshBuffers, caches *resource.Caches, size core.Size, opts ...Option) (r *Deferred, err error) {
	r = &Deferred{
		dev:      dev,
		meshes:   meshes,
		caches:   caches,
		settings: DefaultSettings(),
		log:      core.Logger(),
		clock:    time.Now,
		size:     size,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.settings.ShadowMapSize <= 0 {
		r.settings.ShadowMapSize = DefaultShadowMapSize
	}
	r.start = r.clock()

	defer func() {
		if err != nil {
			r.Destroy()
			r = nil
		}
	}()

	if r.gbuffer, err = NewGeometryBuffer(dev, size); err != nil {
		return r, fmt.Errorf("geometry buffer: %w", err)
	}
	if r.shadows, err = NewShadowMaps(dev, r.settings.ShadowMapSize); err != nil {
		return r, fmt.Errorf("shadow maps: %w", err)
	}
	if r.standardBuffer, err = dev.CreateUniformBuffer(StandardUniformsFloats); err != nil {
		return r, fmt.Errorf("standard uniforms: %w", err)
	}
	if r.shadowBuffer, err = dev.CreateUniformBuffer(ShadowUniformsFloats); err != nil {
		return r, fmt.Errorf("shadow uniforms: %w", err)
	}
	for i := range r.shadow.LightProjectionView {
		r.shadow.LightProjectionView[i] = mgl32.Ident4()
	}
	r.uploadShadowUniforms()

	r.log.Info("renderer created",
		zap.Int("width", size.Width),
		zap.Int("height", size.Height),
		zap.Int("shadow_map_size", r.settings.ShadowMapSize),
		zap.Int("cascades", CascadeCount))
	return r, nil
}

func (r *Deferred) Resources() *resource.Caches { return r.caches }
func (r *Deferred) Settings() Settings          { return r.settings }

// GeometryBuffer exposes the render targets, mainly for inspection.
func (r *Deferred) GeometryBuffer() *GeometryBuffer { return r.gbuffer }

// Render draws one frame of world as seen through viewport.
// It fails with ErrNotReady while the render targets are missing, which is
// the case after a failed Resize.
func (r *Deferred) Render(viewport Viewport, world scene.Query) error {
	if !r.ready() {
		return ErrNotReady
	}
	view := viewport.Frustum
	r.setupFrustum(view)

	if err := r.geometryPass(view, world); err != nil {
		return fmt.Errorf("geometry pass: %w", err)
	}

	r.gbuffer.SwapInputOutput()
	r.gbuffer.ClearOutput(core.ColorBlack)

	if err := r.lightPass(view, world); err != nil {
		return err
	}

	r.dev.SetBlend(BlendNone)
	r.dev.SetDepthMask(true)
	r.dev.SetDepthTest(true, CompareLess)
	r.dev.SetCull(CullBack)

	if r.settings.EnableDebugRendering && r.debug != nil {
		if err := r.debugPass(view, world); err != nil {
			r.log.Warn("debug overlay failed", zap.Error(err))
		}
	}

	r.dev.SetBlend(BlendNone)
	r.dev.SetDepthTest(false, CompareLess)
	r.dev.SetCull(CullNone)

	r.gbuffer.SwapInputOutput()
	r.gbuffer.BindForRead()

	r.dev.BindFramebuffer(viewport.Target)
	r.dev.ClearColor(r.settings.ClearColor)
	r.dev.Clear(ClearColorBit)

	effect, err := r.bindEffect(r.settings.GammaConversionEffect)
	if err != nil {
		return fmt.Errorf("composite: %w", err)
	}
	return r.drawEffectMesh(effect)
}

func (r *Deferred) ready() bool {
	return r.gbuffer != nil && r.gbuffer.Framebuffer() != 0 && r.shadows != nil
}

func (r *Deferred) geometryPass(view scene.Frustum, world scene.Query) error {
	r.gbuffer.BindForWrite()
	r.dev.SetDepthMask(true)
	defer r.dev.SetDepthMask(false)
	r.dev.ClearColor(core.Color{})
	r.dev.Clear(ClearColorBit | ClearDepthBit)

	r.dev.SetBlend(BlendNone)
	r.dev.SetDepthTest(true, CompareLess)
	r.dev.SetCull(CullBack)

	defer r.geometryStream.Reset()
	err := CollectTokens(view, view.View(), world, r.caches, r.meshes, &r.geometryStream, resource.Identifier{})
	if err != nil {
		return err
	}
	SortTokens(&r.geometryStream)
	return DrawTokens(r.dev, r.meshes, r.caches.Textures, &r.geometryStream)
}

func (r *Deferred) setupFrustum(f scene.Frustum) {
	r.setupViewProjection(f.Fovy(), f.ZNear(), f.ZFar(), f.View(), f.Projection())
}

// setupViewProjection refreshes and uploads the standard uniform block.
func (r *Deferred) setupViewProjection(fovy, zNear, zFar float32, view, projection mgl32.Mat4) {
	u := &r.standard
	u.Projection = projection
	u.InverseProjection = projection.Inv()
	u.View = view
	u.InverseView = view.Inv()
	u.ProjectionView = projection.Mul4(view)
	u.InverseProjectionView = u.ProjectionView.Inv()
	u.ViewportSize = mgl32.Vec2{float32(r.size.Width), float32(r.size.Height)}
	u.EyePosition = u.InverseView.Col(3).Vec3()
	u.Time = float32(r.clock().Sub(r.start).Seconds())
	u.Fovy = fovy
	u.ZNear = zNear
	u.ZFar = zFar

	r.standardScratch = u.Pack(r.standardScratch)
	r.dev.UpdateUniformBuffer(r.standardBuffer, r.standardScratch)
	r.dev.BindUniformBuffer(StandardUniformBinding, r.standardBuffer)
}

// StandardUniforms returns the block as last uploaded.
func (r *Deferred) StandardUniforms() StandardUniforms { return r.standard }

// ShadowUniforms returns the block as last uploaded.
func (r *Deferred) ShadowUniforms() ShadowUniforms { return r.shadow }

// Resize recreates the geometry buffer. Shadow maps do not depend on the
// viewport size and are kept. After a failure the renderer refuses to
// render until a later Resize succeeds.
func (r *Deferred) Resize(size core.Size) error {
	if size == r.size && r.ready() {
		return nil
	}
	if err := r.gbuffer.Resize(size); err != nil {
		return fmt.Errorf("resize to %dx%d: %w", size.Width, size.Height, err)
	}
	r.size = size
	r.log.Info("renderer resized", zap.Int("width", size.Width), zap.Int("height", size.Height))
	return nil
}

// Destroy releases every GPU object the renderer created.
func (r *Deferred) Destroy() {
	if r.gbuffer != nil {
		r.gbuffer.Destroy()
	}
	if r.shadows != nil {
		r.shadows.Destroy()
	}
	if r.standardBuffer != 0 {
		r.dev.DeleteBuffer(r.standardBuffer)
		r.standardBuffer = 0
	}
	if r.shadowBuffer != 0 {
		r.dev.DeleteBuffer(r.shadowBuffer)
		r.shadowBuffer = 0
	}
}
