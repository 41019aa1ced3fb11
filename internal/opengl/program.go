package opengl

import (
	"errors"
	"fmt"
	"strings"

	gl "github.com/go-gl/gl/v4.3-core/gl"

	"deferred-renderer/renderer"
)

var (
	ErrShaderCompile = errors.New("shader compile failed")
	ErrShaderLink    = errors.New("program link failed")
)

// Sampler names every technique may declare, and the units they read from.
var fixedSamplers = map[string]int{
	"g_diffuse_roughness": renderer.DiffuseRoughnessTextureUnit,
	"g_normal_metalness":  renderer.NormalMetalnessTextureUnit,
	"g_depth_stencil":     renderer.DepthStencilTextureUnit,
	"input_image":         renderer.InputImageTextureUnit,
	"shadow_map_0":        renderer.ShadowMapTextureUnit0,
	"shadow_map_1":        renderer.ShadowMapTextureUnit0 + 1,
	"shadow_map_2":        renderer.ShadowMapTextureUnit0 + 2,
}

// program is a linked technique plus its uniform location cache.
type program struct {
	id        uint32
	locations map[string]int32
	// textures are the material sampler names seen so far; samplers a
	// material does not set get their has_ flag cleared.
	textures map[string]bool
}

func (p *program) location(name string) int32 {
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(p.id, gl.Str(name+"\x00"))
	p.locations[name] = loc
	return loc
}

// linkTechnique compiles both stages, binds the shared uniform blocks and
// points the fixed samplers at their units.
func linkTechnique(vertSrc, fragSrc string) (*program, error) {
	id, err := newProgram(vertSrc, fragSrc)
	if err != nil {
		return nil, err
	}
	p := &program{id: id, locations: make(map[string]int32), textures: make(map[string]bool)}

	for name, binding := range map[string]uint32{
		"standard_uniforms": renderer.StandardUniformBinding,
		"shadow_uniforms":   renderer.ShadowUniformBinding,
	} {
		if idx := gl.GetUniformBlockIndex(id, gl.Str(name+"\x00")); idx != gl.INVALID_INDEX {
			gl.UniformBlockBinding(id, idx, binding)
		}
	}

	gl.UseProgram(id)
	for name, unit := range fixedSamplers {
		if loc := p.location(name); loc >= 0 {
			gl.Uniform1i(loc, int32(unit))
		}
	}
	return p, nil
}

func newProgram(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex: %w", err)
	}
	frag, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vert)
		return 0, fmt.Errorf("fragment: %w", err)
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)
	gl.DeleteShader(vert)
	gl.DeleteShader(frag)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("%w: %s", ErrShaderLink, strings.TrimRight(log, "\x00"))
	}
	return prog, nil
}

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("%w: %s", ErrShaderCompile, strings.TrimRight(log, "\x00"))
	}
	return shader, nil
}
