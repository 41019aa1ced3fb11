package renderer

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"deferred-renderer/resource"
	"deferred-renderer/scene"
)

// lightPass accumulates every light into the output image in a fixed order.
func (r *Deferred) lightPass(view scene.Frustum, world scene.Query) error {
	if r.settings.EnableImageBasedLighting {
		if err := r.imageBasedLightPass(view); err != nil {
			return fmt.Errorf("image based light pass: %w", err)
		}
	}
	if err := r.directionalLightPass(view, world); err != nil {
		return fmt.Errorf("directional light pass: %w", err)
	}
	if err := r.pointLightPass(view, world); err != nil {
		return fmt.Errorf("point light pass: %w", err)
	}
	if err := r.spotLightPass(view, world); err != nil {
		return fmt.Errorf("spot light pass: %w", err)
	}
	return nil
}

func (r *Deferred) analyticalLightSetup() {
	r.dev.SetBlend(BlendAdditive)
}

func (r *Deferred) imageBasedLightPass(view scene.Frustum) error {
	r.setupFrustum(view)
	r.gbuffer.BindForRead()

	r.dev.SetBlend(BlendNone)
	r.dev.SetDepthTest(false, CompareLess)
	r.dev.SetCull(CullNone)

	effect, err := r.bindEffect(r.settings.ImageBasedLightEffect)
	if err != nil {
		return err
	}
	return r.drawEffectMesh(effect)
}

func (r *Deferred) directionalLightPass(view scene.Frustum, world scene.Query) error {
	r.setupFrustum(view)

	for e, l := range world.DirectionalLights() {
		light := l.Component

		shadow, err := ComputeCascades(view, light.Direction)
		if errors.Is(err, ErrInvalidLight) {
			r.log.Warn("skipping directional light", zap.Uint32("entity", uint32(e)), zap.Error(err))
			continue
		}
		if err != nil {
			return err
		}
		for i := range shadow.Cascades {
			c := &shadow.Cascades[i]
			r.shadow.LightProjectionView[i] = c.LightProjectionView
			r.shadow.FarPlane[i] = c.FarPlane

			r.setupViewProjection(math.Pi/2, 0, 0, shadow.LightView, c.LightProjection)
			if err := r.renderToShadowMap(&c.Planes, shadow.LightView, i, world, light.CastShadows); err != nil {
				return fmt.Errorf("cascade %d: %w", i, err)
			}
		}
		r.recordCascades(&shadow)

		r.setupFrustum(view)
		r.uploadShadowUniforms()

		r.gbuffer.BindForRead()
		r.shadows.BindForRead()

		r.analyticalLightSetup()
		r.dev.SetDepthTest(false, CompareLess)
		r.dev.SetCull(CullNone)

		effect, err := r.bindEffect(r.settings.DirectionalLightEffect)
		if err != nil {
			return err
		}
		r.dev.SetVec4("color_intensity", light.Color.WithIntensity(light.Intensity))
		r.dev.SetVec3("direction", light.Direction.Normalize())
		if err := r.drawEffectMesh(effect); err != nil {
			return err
		}
	}
	return nil
}

// pointLightPass draws a light volume per light. Front faces are culled and
// only fragments behind stored geometry pass the depth test, so the camera
// may sit inside a volume.
func (r *Deferred) pointLightPass(view scene.Frustum, world scene.Query) error {
	var effect *resource.Effect
	for _, l := range world.PointLights() {
		if effect == nil {
			r.setupFrustum(view)
			r.gbuffer.BindForRead()

			r.analyticalLightSetup()
			r.dev.SetDepthTest(true, CompareGreater)
			r.dev.SetCull(CullFront)

			var err error
			if effect, err = r.bindEffect(r.settings.PointLightEffect); err != nil {
				return err
			}
		}

		light := l.Component
		position := l.Transform.Position
		r.dev.SetVec4("color_intensity", light.Color.WithIntensity(light.Intensity))
		r.dev.SetVec4("position_radius", position.Vec4(l.Transform.Scale.X()))
		if err := r.drawEffectMesh(effect); err != nil {
			return err
		}
	}
	return nil
}

func (r *Deferred) spotLightPass(view scene.Frustum, world scene.Query) error {
	for e, l := range world.SpotLights() {
		light := l.Component

		// An unusable light is dropped for the frame; the rest still render.
		frustum, err := light.ShadowFrustum(l.Transform)
		if err != nil {
			r.log.Warn("skipping spot light", zap.Uint32("entity", uint32(e)), zap.Error(err))
			continue
		}
		r.setupFrustum(frustum)
		if err := r.renderToShadowMap(frustum, frustum.View(), 0, world, light.CastShadows); err != nil {
			return err
		}
		r.setupFrustum(view)

		r.shadow.LightProjectionView[0] = frustum.ProjectionView()
		r.shadow.FarPlane[0] = frustum.FarPlane()
		r.uploadShadowUniforms()

		r.gbuffer.BindForRead()
		r.shadows.BindForRead()

		r.analyticalLightSetup()
		r.dev.SetDepthTest(false, CompareLess)
		r.dev.SetCull(CullNone)

		effect, err := r.bindEffect(r.settings.SpotLightEffect)
		if err != nil {
			return err
		}
		r.dev.SetVec4("color_intensity", light.Color.WithIntensity(light.Intensity))
		r.dev.SetVec3("position", l.Transform.Position)
		r.dev.SetVec3("direction", light.Direction.Normalize())
		r.dev.SetFloat("cutoff", float32(math.Cos(float64(light.Cutoff))))
		if err := r.drawEffectMesh(effect); err != nil {
			return err
		}
	}
	return nil
}

// renderToShadowMap clears shadow map index to the unoccluded value and, when
// castShadows is set, draws every caster inside culler into it.
func (r *Deferred) renderToShadowMap(culler Culler, view mgl32.Mat4, index int, world scene.Query, castShadows bool) error {
	r.shadows.BindForWrite(index)

	r.dev.SetBlend(BlendNone)
	r.dev.SetDepthMask(true)
	r.dev.SetDepthTest(true, CompareLess)
	r.dev.SetCull(CullBack)

	r.dev.ClearColor(ShadowClearColor)
	r.dev.Clear(ClearColorBit | ClearDepthBit)

	if castShadows {
		defer r.shadowStream.Reset()
		err := CollectTokens(culler, view, world, r.caches, r.meshes, &r.shadowStream, r.settings.ShadowTechnique)
		if err != nil {
			return err
		}
		SortTokens(&r.shadowStream)
		if err := DrawTokens(r.dev, r.meshes, r.caches.Textures, &r.shadowStream); err != nil {
			return err
		}
	}

	r.dev.SetDepthMask(false)
	return nil
}

func (r *Deferred) uploadShadowUniforms() {
	r.shadowScratch = r.shadow.Pack(r.shadowScratch)
	r.dev.UpdateUniformBuffer(r.shadowBuffer, r.shadowScratch)
	r.dev.BindUniformBuffer(ShadowUniformBinding, r.shadowBuffer)
}

// bindEffect makes the effect's technique current and applies its uniforms.
func (r *Deferred) bindEffect(id resource.Identifier) (*resource.Effect, error) {
	effect, ok := r.caches.Effects.Acquire(id)
	if !ok {
		return nil, fmt.Errorf("%w: effect %q", ErrMissingResource, id)
	}
	tech, ok := r.caches.Techniques.Acquire(effect.Technique)
	if !ok {
		return nil, fmt.Errorf("%w: technique %q of effect %q", ErrMissingResource, effect.Technique, id)
	}
	if err := r.dev.UseTechnique(effect.Technique, tech); err != nil {
		return nil, fmt.Errorf("effect %q: %w", id, err)
	}
	if err := r.dev.ApplyUniforms(&effect.UniformData, r.caches.Textures, NextFreeTextureUnit); err != nil {
		return nil, fmt.Errorf("effect %q: %w", id, err)
	}
	return effect, nil
}

func (r *Deferred) drawEffectMesh(effect *resource.Effect) error {
	mesh, ok := r.caches.Meshes.Acquire(effect.Mesh)
	if !ok {
		return fmt.Errorf("%w: effect mesh %q", ErrMissingResource, effect.Mesh)
	}
	buffer, err := r.meshes.Acquire(effect.Mesh, mesh)
	if err != nil {
		return err
	}
	if err := r.meshes.BindBatch(buffer.Batch); err != nil {
		return err
	}
	r.dev.DrawIndexed(mesh.IndexCount(), indexSize*buffer.BaseIndex, buffer.BaseVertex)
	return nil
}
