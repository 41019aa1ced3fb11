package renderer

import (
	"fmt"

	"deferred-renderer/core"
)

// Color attachment points of the geometry framebuffer.
const (
	diffuseRoughnessAttachment = iota
	normalMetalnessAttachment
	imageAttachment0
)

// GeometryBuffer holds the per-pixel surface attributes written by the
// geometry pass and the two light-accumulation images that alternate
// between being read (input) and written (output).
type GeometryBuffer struct {
	dev  Device
	size core.Size

	fbo              Framebuffer
	diffuseRoughness Texture
	normalMetalness  Texture
	depthStencil     Texture
	images           [2]Texture

	input  int
	output int
}

// NewGeometryBuffer allocates every target at size. Nothing is leaked when
// allocation fails part way.
func NewGeometryBuffer(dev Device, size core.Size) (gb *GeometryBuffer, err error) {
	if size.Empty() {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, size.Width, size.Height)
	}

	gb = &GeometryBuffer{dev: dev, size: size, input: 0, output: 1}
	defer func() {
		if err != nil {
			gb.Destroy()
			gb = nil
		}
	}()

	single := func(format TextureFormat) (Texture, error) {
		return dev.CreateTexture(TextureDesc{Size: size, Format: format, Levels: 1, Filter: FilterNearest, Clamp: true})
	}
	if gb.diffuseRoughness, err = single(FormatRGBA8); err != nil {
		return gb, fmt.Errorf("diffuse/roughness target: %w", err)
	}
	if gb.normalMetalness, err = single(FormatRGBA16F); err != nil {
		return gb, fmt.Errorf("normal/metalness target: %w", err)
	}
	if gb.depthStencil, err = single(FormatDepth32FStencil8); err != nil {
		return gb, fmt.Errorf("depth/stencil target: %w", err)
	}
	for i := range gb.images {
		if gb.images[i], err = single(FormatRGB16F); err != nil {
			return gb, fmt.Errorf("accumulation image %d: %w", i, err)
		}
	}

	if gb.fbo, err = dev.CreateFramebuffer(); err != nil {
		return gb, fmt.Errorf("geometry framebuffer: %w", err)
	}
	dev.AttachTexture(gb.fbo, ColorAttachment(diffuseRoughnessAttachment), gb.diffuseRoughness)
	dev.AttachTexture(gb.fbo, ColorAttachment(normalMetalnessAttachment), gb.normalMetalness)
	for i, img := range gb.images {
		dev.AttachTexture(gb.fbo, ColorAttachment(imageAttachment0+i), img)
	}
	dev.AttachTexture(gb.fbo, AttachmentDepthStencil, gb.depthStencil)
	if err = dev.CheckFramebuffer(gb.fbo); err != nil {
		return gb, fmt.Errorf("geometry framebuffer: %w", err)
	}
	dev.BindFramebuffer(0)

	return gb, nil
}

func (gb *GeometryBuffer) Size() core.Size { return gb.size }

// Input is the index of the accumulation image currently read from.
func (gb *GeometryBuffer) Input() int { return gb.input }

// Output is the index of the accumulation image currently written to.
func (gb *GeometryBuffer) Output() int { return gb.output }

// Image returns accumulation image i.
func (gb *GeometryBuffer) Image(i int) Texture { return gb.images[i] }

func (gb *GeometryBuffer) Framebuffer() Framebuffer { return gb.fbo }

// BindForWrite routes the geometry pass into diffuse, normal and the output
// image while exposing the input image for sampling.
func (gb *GeometryBuffer) BindForWrite() {
	gb.dev.BindFramebuffer(gb.fbo)
	gb.dev.DrawBuffers(
		ColorAttachment(diffuseRoughnessAttachment),
		ColorAttachment(normalMetalnessAttachment),
		ColorAttachment(imageAttachment0+gb.output))
	gb.dev.Viewport(gb.size)
	gb.dev.BindTexture(InputImageTextureUnit, gb.images[gb.input])
}

// BindForRead exposes every surface attribute and the input image for
// sampling and leaves the output image as the only draw target.
func (gb *GeometryBuffer) BindForRead() {
	gb.dev.BindTexture(DiffuseRoughnessTextureUnit, gb.diffuseRoughness)
	gb.dev.BindTexture(NormalMetalnessTextureUnit, gb.normalMetalness)
	gb.dev.BindTexture(DepthStencilTextureUnit, gb.depthStencil)
	gb.dev.BindTexture(InputImageTextureUnit, gb.images[gb.input])

	gb.dev.BindFramebuffer(gb.fbo)
	gb.dev.DrawBuffers(ColorAttachment(imageAttachment0 + gb.output))
	gb.dev.Viewport(gb.size)
}

// ClearOutput clears the output image and nothing else.
func (gb *GeometryBuffer) ClearOutput(c core.Color) {
	gb.dev.BindFramebuffer(gb.fbo)
	gb.dev.DrawBuffers(ColorAttachment(imageAttachment0 + gb.output))
	gb.dev.ClearColor(c)
	gb.dev.Clear(ClearColorBit)
}

func (gb *GeometryBuffer) SwapInputOutput() {
	gb.input = (gb.input + 1) % len(gb.images)
	gb.output = (gb.output + 1) % len(gb.images)
}

// Resize rebuilds every target at the new size. On failure the buffer is
// left empty and must not be bound.
func (gb *GeometryBuffer) Resize(size core.Size) error {
	gb.Destroy()
	fresh, err := NewGeometryBuffer(gb.dev, size)
	if err != nil {
		return err
	}
	*gb = *fresh
	return nil
}

// Destroy releases every GPU object. Safe to call more than once.
func (gb *GeometryBuffer) Destroy() {
	if gb.fbo != 0 {
		gb.dev.DeleteFramebuffer(gb.fbo)
		gb.fbo = 0
	}
	for _, tex := range []*Texture{&gb.diffuseRoughness, &gb.normalMetalness, &gb.depthStencil, &gb.images[0], &gb.images[1]} {
		if *tex != 0 {
			gb.dev.DeleteTexture(*tex)
			*tex = 0
		}
	}
}
