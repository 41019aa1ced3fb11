package opengl

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/renderer"
	"deferred-renderer/resource"
)

// Identifiers of the built-in resources RegisterBuiltins inserts.
var (
	GeometryTechniqueID = resource.NewIdentifier(resource.KindTechnique, "gbuffer")
	DefaultMaterialID   = resource.NewIdentifier(resource.KindMaterial, "default")
	FullscreenMeshID    = resource.NewIdentifier(resource.KindMesh, "fullscreen")
	LightVolumeMeshID   = resource.NewIdentifier(resource.KindMesh, "light_volume")
)

// RegisterBuiltins inserts the geometry and shadow techniques, the effects
// named by renderer.DefaultSettings and the meshes they draw with.
func RegisterBuiltins(caches *resource.Caches) error {
	techniques := map[resource.Identifier]*resource.Technique{
		GeometryTechniqueID:        {Vertex: geometryVert, Fragment: geometryFrag},
		renderer.ShadowTechniqueID: {Vertex: shadowVert, Fragment: shadowFrag},
	}

	ibl := &resource.Effect{Mesh: FullscreenMeshID}
	ibl.SetVec3("sky_zenith", mgl32.Vec3{0.25, 0.45, 0.85})
	ibl.SetVec3("sky_horizon", mgl32.Vec3{0.7, 0.75, 0.8})
	ibl.SetVec3("sky_ground", mgl32.Vec3{0.2, 0.18, 0.15})
	ibl.SetFloat("ambient_intensity", 0.3)

	gamma := &resource.Effect{Mesh: FullscreenMeshID}
	gamma.SetFloat("exposure", 1)

	effects := []struct {
		id       resource.Identifier
		name     string
		effect   *resource.Effect
		vertex   string
		fragment string
	}{
		{renderer.ImageBasedLightEffectID, "image_based_light", ibl, fullscreenVert, imageBasedLightFrag},
		{renderer.DirectionalLightEffectID, "directional_light", &resource.Effect{Mesh: FullscreenMeshID}, fullscreenVert, directionalLightFrag},
		{renderer.PointLightEffectID, "point_light", &resource.Effect{Mesh: LightVolumeMeshID}, lightVolumeVert, pointLightFrag},
		{renderer.SpotLightEffectID, "spot_light", &resource.Effect{Mesh: FullscreenMeshID}, fullscreenVert, spotLightFrag},
		{renderer.GammaConversionEffectID, "gamma_conversion", gamma, fullscreenVert, gammaFrag},
	}
	for _, e := range effects {
		techID := resource.NewIdentifier(resource.KindTechnique, "effect/"+e.name)
		techniques[techID] = &resource.Technique{Vertex: e.vertex, Fragment: e.fragment}
		e.effect.Technique = techID
		if err := caches.Effects.Insert(e.id, e.effect); err != nil {
			return fmt.Errorf("effect %q: %w", e.id, err)
		}
	}
	for id, tech := range techniques {
		if err := caches.Techniques.Insert(id, tech); err != nil {
			return fmt.Errorf("technique %q: %w", id, err)
		}
	}

	material := &resource.Material{Technique: GeometryTechniqueID}
	material.SetVec4("base_color", mgl32.Vec4{0.8, 0.8, 0.8, 1})
	material.SetFloat("roughness", 0.6)
	material.SetFloat("metalness", 0)
	if err := caches.Materials.Insert(DefaultMaterialID, material); err != nil {
		return fmt.Errorf("material %q: %w", DefaultMaterialID, err)
	}

	// The tessellated sphere is inscribed in its radius; scale it out so the
	// volume covers the whole light range.
	if err := caches.Meshes.Insert(LightVolumeMeshID, resource.NewSphereMesh(1.1, 16, 8, resource.Identifier{})); err != nil {
		return fmt.Errorf("mesh %q: %w", LightVolumeMeshID, err)
	}
	if err := caches.Meshes.Insert(FullscreenMeshID, resource.NewFullscreenTriangle()); err != nil {
		return fmt.Errorf("mesh %q: %w", FullscreenMeshID, err)
	}
	return nil
}

// ── Shared GLSL ───────────────────────────────────────────────────────────────

const glslHeader = `#version 430 core
layout(std140) uniform standard_uniforms {
    mat4 projection;
    mat4 inverse_projection;
    mat4 view;
    mat4 inverse_view;
    mat4 projection_view;
    mat4 inverse_projection_view;
    vec2 viewport_size;
    vec3 eye_position;
    float time;
    float fovy;
    float z_near;
    float z_far;
};
`

const glslShadowBlock = `
layout(std140) uniform shadow_uniforms {
    mat4 light_projection_view[3];
    float light_frustum_far_plane[3];
};
uniform sampler2D shadow_map_0;
uniform sampler2D shadow_map_1;
uniform sampler2D shadow_map_2;

// Chebyshev upper bound on the lit fraction, with light bleeding clipped.
float shadow_visibility(vec2 moments, float depth) {
    if (depth <= moments.x) return 1.0;
    float variance = max(moments.y - moments.x * moments.x, 0.00002);
    float d = depth - moments.x;
    float p = variance / (variance + d * d);
    return clamp((p - 0.2) / 0.8, 0.0, 1.0);
}
`

const glslGBuffer = `
uniform sampler2D g_diffuse_roughness;
uniform sampler2D g_normal_metalness;
uniform sampler2D g_depth_stencil;
uniform sampler2D input_image;

layout(location = 0) out vec4 out_color;

struct Surface {
    vec3 position;
    vec3 normal;
    vec3 albedo;
    float roughness;
    float metalness;
};

vec2 screen_uv() {
    return gl_FragCoord.xy / viewport_size;
}

vec3 world_position(vec2 uv, float depth) {
    vec4 p = inverse_projection_view * vec4(vec3(uv, depth) * 2.0 - 1.0, 1.0);
    return p.xyz / p.w;
}

// read_surface returns false for background pixels.
bool read_surface(vec2 uv, out Surface s) {
    float depth = texture(g_depth_stencil, uv).r;
    if (depth >= 1.0) return false;
    vec4 dr = texture(g_diffuse_roughness, uv);
    vec4 nm = texture(g_normal_metalness, uv);
    s.position = world_position(uv, depth);
    s.normal = normalize(nm.xyz);
    s.albedo = dr.rgb;
    s.roughness = max(dr.a, 0.04);
    s.metalness = nm.a;
    return true;
}

const float PI = 3.14159265359;

float distribution_ggx(vec3 N, vec3 H, float roughness) {
    float a = roughness * roughness;
    float a2 = a * a;
    float NdH = max(dot(N, H), 0.0);
    float d = NdH * NdH * (a2 - 1.0) + 1.0;
    return a2 / (PI * d * d);
}

float geometry_schlick_ggx(float cos_theta, float roughness) {
    float r = roughness + 1.0;
    float k = (r * r) / 8.0;
    return cos_theta / (cos_theta * (1.0 - k) + k);
}

vec3 fresnel_schlick(float cos_theta, vec3 F0) {
    return F0 + (1.0 - F0) * pow(clamp(1.0 - cos_theta, 0.0, 1.0), 5.0);
}

vec3 fresnel_schlick_roughness(float cos_theta, vec3 F0, float roughness) {
    return F0 + (max(vec3(1.0 - roughness), F0) - F0) * pow(clamp(1.0 - cos_theta, 0.0, 1.0), 5.0);
}

// Cook-Torrance lobe. L points toward the light.
vec3 shade(Surface s, vec3 L, vec3 radiance) {
    vec3 N = s.normal;
    vec3 V = normalize(eye_position - s.position);
    float NdL = max(dot(N, L), 0.0);
    if (NdL <= 0.0) return vec3(0.0);

    vec3 H = normalize(V + L);
    float NdV = max(dot(N, V), 0.0);
    vec3 F0 = mix(vec3(0.04), s.albedo, s.metalness);

    float D = distribution_ggx(N, H, s.roughness);
    float G = geometry_schlick_ggx(NdV, s.roughness) * geometry_schlick_ggx(NdL, s.roughness);
    vec3 F = fresnel_schlick(max(dot(H, V), 0.0), F0);

    vec3 kD = (vec3(1.0) - F) * (1.0 - s.metalness);
    vec3 specular = D * G * F / max(4.0 * NdV * NdL, 0.001);
    return (kD * s.albedo / PI + specular) * radiance * NdL;
}
`

// ── Geometry ──────────────────────────────────────────────────────────────────

const geometryVert = glslHeader + `
layout(location = 0) in vec3 in_position;
layout(location = 1) in vec3 in_normal;
layout(location = 2) in vec3 in_tangent;
layout(location = 3) in vec2 in_texcoord;

uniform mat4 model_matrix;
uniform mat4 model_view_matrix;
uniform mat3 normal_matrix;

out vec3 v_normal;
out vec3 v_tangent;
out vec2 v_texcoord;

void main() {
    v_normal = normalize(normal_matrix * in_normal);
    v_tangent = normalize(mat3(model_matrix) * in_tangent);
    v_texcoord = in_texcoord;
    gl_Position = projection * model_view_matrix * vec4(in_position, 1.0);
}
`

const geometryFrag = glslHeader + `
in vec3 v_normal;
in vec3 v_tangent;
in vec2 v_texcoord;

uniform vec4 base_color;
uniform float roughness;
uniform float metalness;
uniform sampler2D diffuse_map;
uniform float has_diffuse_map;
uniform sampler2D normal_map;
uniform float has_normal_map;

layout(location = 0) out vec4 out_diffuse_roughness;
layout(location = 1) out vec4 out_normal_metalness;
layout(location = 2) out vec4 out_image;

void main() {
    vec4 albedo = base_color;
    if (has_diffuse_map > 0.5) {
        albedo *= texture(diffuse_map, v_texcoord);
    }

    vec3 N = normalize(v_normal);
    if (has_normal_map > 0.5 && dot(v_tangent, v_tangent) > 0.0) {
        vec3 T = normalize(v_tangent - dot(v_tangent, N) * N);
        vec3 B = cross(N, T);
        vec3 tn = texture(normal_map, v_texcoord).xyz * 2.0 - 1.0;
        N = normalize(mat3(T, B, N) * tn);
    }

    out_diffuse_roughness = vec4(albedo.rgb, roughness);
    out_normal_metalness = vec4(N, metalness);
    out_image = vec4(0.0, 0.0, 0.0, 1.0);
}
`

// ── Shadow ────────────────────────────────────────────────────────────────────

// Perspective shadow maps store linear depth over the far plane, orthographic
// ones window depth; z_far is zero while rendering orthographic cascades.
const shadowVert = glslHeader + `
layout(location = 0) in vec3 in_position;

uniform mat4 model_view_matrix;

out float v_depth;

void main() {
    vec4 view_position = model_view_matrix * vec4(in_position, 1.0);
    gl_Position = projection * view_position;
    v_depth = z_far > 0.0 ? -view_position.z / z_far : gl_Position.z * 0.5 + 0.5;
}
`

const shadowFrag = glslHeader + `
in float v_depth;

layout(location = 0) out vec2 out_moments;

void main() {
    float dx = dFdx(v_depth);
    float dy = dFdy(v_depth);
    out_moments = vec2(v_depth, v_depth * v_depth + 0.25 * (dx * dx + dy * dy));
}
`

// ── Effects ───────────────────────────────────────────────────────────────────

const fullscreenVert = glslHeader + `
layout(location = 0) in vec3 in_position;

void main() {
    gl_Position = vec4(in_position.xy, 0.0, 1.0);
}
`

const lightVolumeVert = glslHeader + `
layout(location = 0) in vec3 in_position;

uniform vec4 position_radius;

void main() {
    vec3 world = position_radius.xyz + in_position * position_radius.w;
    gl_Position = projection_view * vec4(world, 1.0);
}
`

const imageBasedLightFrag = glslHeader + glslGBuffer + `
uniform vec3 sky_zenith;
uniform vec3 sky_horizon;
uniform vec3 sky_ground;
uniform float ambient_intensity;

vec3 sky(vec3 dir) {
    float y = clamp(dir.y, -1.0, 1.0);
    if (y >= 0.0) return mix(sky_horizon, sky_zenith, y);
    return mix(sky_horizon, sky_ground, -y);
}

void main() {
    vec2 uv = screen_uv();
    vec3 carried = texture(input_image, uv).rgb;

    Surface s;
    if (!read_surface(uv, s)) {
        vec3 ray = normalize(world_position(uv, 1.0) - eye_position);
        out_color = vec4(sky(ray), 1.0);
        return;
    }

    vec3 V = normalize(eye_position - s.position);
    vec3 F0 = mix(vec3(0.04), s.albedo, s.metalness);
    vec3 F = fresnel_schlick_roughness(max(dot(s.normal, V), 0.0), F0, s.roughness);
    vec3 kD = (1.0 - F) * (1.0 - s.metalness);

    vec3 diffuse = kD * s.albedo * sky(s.normal);
    vec3 specular = F * sky(reflect(-V, s.normal)) * (1.0 - s.roughness);
    out_color = vec4(carried + (diffuse + specular) * ambient_intensity, 1.0);
}
`

const directionalLightFrag = glslHeader + glslGBuffer + glslShadowBlock + `
uniform vec4 color_intensity;
uniform vec3 direction;

float cascade_visibility(vec3 p) {
    float view_depth = -(view * vec4(p, 1.0)).z;
    int i = view_depth < light_frustum_far_plane[0] ? 0 : (view_depth < light_frustum_far_plane[1] ? 1 : 2);
    vec4 clip = light_projection_view[i] * vec4(p, 1.0);
    vec3 ndc = clip.xyz / clip.w * 0.5 + 0.5;
    vec2 moments;
    if (i == 0) moments = texture(shadow_map_0, ndc.xy).rg;
    else if (i == 1) moments = texture(shadow_map_1, ndc.xy).rg;
    else moments = texture(shadow_map_2, ndc.xy).rg;
    return shadow_visibility(moments, ndc.z);
}

void main() {
    Surface s;
    if (!read_surface(screen_uv(), s)) discard;
    vec3 radiance = color_intensity.rgb * color_intensity.a * cascade_visibility(s.position);
    out_color = vec4(shade(s, normalize(direction), radiance), 1.0);
}
`

const pointLightFrag = glslHeader + glslGBuffer + `
uniform vec4 color_intensity;
uniform vec4 position_radius;

void main() {
    Surface s;
    if (!read_surface(screen_uv(), s)) discard;
    vec3 to_light = position_radius.xyz - s.position;
    float distance = length(to_light);
    if (distance >= position_radius.w) discard;
    float falloff = 1.0 - distance / position_radius.w;
    vec3 radiance = color_intensity.rgb * color_intensity.a * falloff * falloff;
    out_color = vec4(shade(s, to_light / distance, radiance), 1.0);
}
`

const spotLightFrag = glslHeader + glslGBuffer + glslShadowBlock + `
uniform vec4 color_intensity;
uniform vec3 position;
uniform vec3 direction;
uniform float cutoff;

void main() {
    Surface s;
    if (!read_surface(screen_uv(), s)) discard;
    vec3 to_light = position - s.position;
    float distance = length(to_light);
    vec3 L = to_light / distance;
    float theta = dot(L, normalize(direction));
    if (theta <= cutoff) discard;

    float range = light_frustum_far_plane[0];
    float falloff = clamp(1.0 - distance / range, 0.0, 1.0);
    float edge = smoothstep(cutoff, mix(cutoff, 1.0, 0.1), theta);

    vec4 clip = light_projection_view[0] * vec4(s.position, 1.0);
    vec2 uv = clip.xy / clip.w * 0.5 + 0.5;
    float visibility = shadow_visibility(texture(shadow_map_0, uv).rg, clip.w / range);

    vec3 radiance = color_intensity.rgb * color_intensity.a * falloff * falloff * edge * visibility;
    out_color = vec4(shade(s, L, radiance), 1.0);
}
`

const gammaFrag = glslHeader + glslGBuffer + `
uniform float exposure;

void main() {
    vec3 hdr = texture(input_image, screen_uv()).rgb;
    vec3 mapped = vec3(1.0) - exp(-hdr * exposure);
    out_color = vec4(pow(mapped, vec3(1.0 / 2.2)), 1.0);
}
`
