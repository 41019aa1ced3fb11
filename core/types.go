package core

import "github.com/go-gl/mathgl/mgl32"

type Color struct {
	R, G, B, A float32
}

var (
	ColorWhite  = Color{1, 1, 1, 1}
	ColorBlack  = Color{0, 0, 0, 1}
	ColorRed    = Color{1, 0, 0, 1}
	ColorGreen  = Color{0, 1, 0, 1}
	ColorBlue   = Color{0, 0, 1, 1}
	ColorYellow = Color{1, 1, 0, 1}
)

// Vec3 drops alpha.
func (c Color) Vec3() mgl32.Vec3 {
	return mgl32.Vec3{c.R, c.G, c.B}
}

func (c Color) Vec4() mgl32.Vec4 {
	return mgl32.Vec4{c.R, c.G, c.B, c.A}
}

// WithIntensity packs the RGB channels with a scalar intensity in the fourth
// component, the layout light effects expect for color_intensity.
func (c Color) WithIntensity(intensity float32) mgl32.Vec4 {
	return mgl32.Vec4{c.R, c.G, c.B, intensity}
}

// Size is a pixel extent.
type Size struct {
	Width, Height int
}

func (s Size) Aspect() float32 {
	if s.Height == 0 {
		return 1
	}
	return float32(s.Width) / float32(s.Height)
}

func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}
