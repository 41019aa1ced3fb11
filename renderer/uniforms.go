package renderer

import "github.com/go-gl/mathgl/mgl32"

// StandardUniforms mirrors the std140 block
//
//	layout(std140) uniform standard_uniforms {
//	    mat4 projection;
//	    mat4 inverse_projection;
//	    mat4 view;
//	    mat4 inverse_view;
//	    mat4 projection_view;
//	    mat4 inverse_projection_view;
//	    vec2 viewport_size;
//	    vec3 eye_position;
//	    float time;
//	    float fovy;
//	    float z_near;
//	    float z_far;
//	};
type StandardUniforms struct {
	Projection            mgl32.Mat4
	InverseProjection     mgl32.Mat4
	View                  mgl32.Mat4
	InverseView           mgl32.Mat4
	ProjectionView        mgl32.Mat4
	InverseProjectionView mgl32.Mat4
	ViewportSize          mgl32.Vec2
	EyePosition           mgl32.Vec3
	Time                  float32
	Fovy                  float32
	ZNear                 float32
	ZFar                  float32
}

// StandardUniformsFloats is the packed block size in floats.
const StandardUniformsFloats = 108

// Pack writes the block into dst using std140 offsets.
func (u *StandardUniforms) Pack(dst []float32) []float32 {
	dst = grow(dst, StandardUniformsFloats)
	for i, m := range [...]*mgl32.Mat4{
		&u.Projection, &u.InverseProjection,
		&u.View, &u.InverseView,
		&u.ProjectionView, &u.InverseProjectionView,
	} {
		copy(dst[16*i:], m[:])
	}
	copy(dst[96:], u.ViewportSize[:])
	copy(dst[100:], u.EyePosition[:])
	dst[103] = u.Time
	dst[104] = u.Fovy
	dst[105] = u.ZNear
	dst[106] = u.ZFar
	return dst
}

// ShadowUniforms mirrors the std140 block
//
//	layout(std140) uniform shadow_uniforms {
//	    mat4 light_projection_view[3];
//	    float light_frustum_far_plane[3];
//	};
type ShadowUniforms struct {
	LightProjectionView [CascadeCount]mgl32.Mat4
	FarPlane            [CascadeCount]float32
}

// ShadowUniformsFloats is the packed block size in floats. Scalar array
// elements are padded to 16 bytes.
const ShadowUniformsFloats = 16*CascadeCount + 4*CascadeCount

func (u *ShadowUniforms) Pack(dst []float32) []float32 {
	dst = grow(dst, ShadowUniformsFloats)
	for i := range CascadeCount {
		copy(dst[16*i:], u.LightProjectionView[i][:])
		dst[16*CascadeCount+4*i] = u.FarPlane[i]
	}
	return dst
}

func grow(dst []float32, n int) []float32 {
	if cap(dst) < n {
		return make([]float32, n)
	}
	dst = dst[:n]
	clear(dst)
	return dst
}
