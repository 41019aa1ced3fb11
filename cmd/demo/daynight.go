package main

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/core"
	"deferred-renderer/resource"
	"deferred-renderer/scene"
)

// dayPalette holds all the sky/light values for one key time of day.
type dayPalette struct {
	t            float32    // normalised time 0..1
	zenith       core.Color // sky overhead
	horizon      core.Color // sky at eye level
	ground       core.Color // sky/ground below horizon
	sunColor     core.Color
	sunIntensity float32
	ambient      float32
}

// palettes defines the key sky/light states throughout the day.
// t is ordered 0→1 and wraps (0 == 1).
var palettes = []dayPalette{
	{ // noon
		t:            0.00,
		zenith:       core.Color{R: 0.20, G: 0.42, B: 0.90, A: 1},
		horizon:      core.Color{R: 0.58, G: 0.75, B: 0.95, A: 1},
		ground:       core.Color{R: 0.12, G: 0.10, B: 0.08, A: 1},
		sunColor:     core.Color{R: 1.00, G: 0.98, B: 0.92, A: 1},
		sunIntensity: 3.0,
		ambient:      0.35,
	},
	{ // golden hour
		t:            0.22,
		zenith:       core.Color{R: 0.14, G: 0.20, B: 0.60, A: 1},
		horizon:      core.Color{R: 0.90, G: 0.52, B: 0.18, A: 1},
		ground:       core.Color{R: 0.08, G: 0.07, B: 0.06, A: 1},
		sunColor:     core.Color{R: 1.00, G: 0.65, B: 0.25, A: 1},
		sunIntensity: 2.2,
		ambient:      0.25,
	},
	{ // dusk
		t:            0.30,
		zenith:       core.Color{R: 0.08, G: 0.10, B: 0.28, A: 1},
		horizon:      core.Color{R: 0.50, G: 0.22, B: 0.28, A: 1},
		ground:       core.Color{R: 0.04, G: 0.03, B: 0.04, A: 1},
		sunColor:     core.Color{R: 0.70, G: 0.40, B: 0.55, A: 1},
		sunIntensity: 0.6,
		ambient:      0.15,
	},
	{ // midnight, moonlit
		t:            0.50,
		zenith:       core.Color{R: 0.02, G: 0.03, B: 0.10, A: 1},
		horizon:      core.Color{R: 0.04, G: 0.04, B: 0.08, A: 1},
		ground:       core.Color{R: 0.01, G: 0.01, B: 0.02, A: 1},
		sunColor:     core.Color{R: 0.40, G: 0.45, B: 0.65, A: 1},
		sunIntensity: 0.3,
		ambient:      0.08,
	},
	{ // pre-dawn
		t:            0.70,
		zenith:       core.Color{R: 0.06, G: 0.08, B: 0.25, A: 1},
		horizon:      core.Color{R: 0.40, G: 0.18, B: 0.24, A: 1},
		ground:       core.Color{R: 0.03, G: 0.03, B: 0.04, A: 1},
		sunColor:     core.Color{R: 0.75, G: 0.42, B: 0.60, A: 1},
		sunIntensity: 0.5,
		ambient:      0.12,
	},
	{ // sunrise
		t:            0.78,
		zenith:       core.Color{R: 0.12, G: 0.18, B: 0.55, A: 1},
		horizon:      core.Color{R: 0.88, G: 0.45, B: 0.22, A: 1},
		ground:       core.Color{R: 0.08, G: 0.06, B: 0.05, A: 1},
		sunColor:     core.Color{R: 1.00, G: 0.60, B: 0.28, A: 1},
		sunIntensity: 1.8,
		ambient:      0.2,
	},
}

// DayNight drives the animated day/night cycle: the first directional light
// of the world and the sky of the image based light effect.
type DayNight struct {
	Time   float32 // 0..1: 0=noon, 0.25=sunset, 0.5=midnight, 0.75=sunrise
	Speed  float32 // full-cycle duration in seconds
	Active bool    // auto-advance when true

	world  *scene.World
	sun    scene.Entity
	hasSun bool
	sky    *resource.Effect
}

// NewDayNight binds the cycle to world's first directional light and to
// sky, either of which may be absent.
func NewDayNight(world *scene.World, sky *resource.Effect, speed float32) *DayNight {
	dn := &DayNight{
		Speed:  speed,
		Active: speed > 0,
		world:  world,
		sky:    sky,
	}
	for e := range world.DirectionalLights() {
		dn.sun, dn.hasSun = e, true
		break
	}
	return dn
}

func (dn *DayNight) Update(dt float32) {
	if !dn.Active {
		return
	}
	dn.Time += dt / dn.Speed
	if dn.Time >= 1.0 {
		dn.Time -= 1.0
	}
}

// lerpColor linearly interpolates between two colours.
func lerpColor(a, b core.Color, t float32) core.Color {
	return core.Color{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
		A: 1,
	}
}

// samplePalette returns a linearly interpolated palette for the given time t (0..1).
func samplePalette(t float32) dayPalette {
	n := len(palettes)
	a, b := palettes[n-1], palettes[0]
	span := 1 - a.t + b.t
	local := t - a.t
	if local < 0 {
		local += 1
	}
	for i := 0; i+1 < n; i++ {
		if t >= palettes[i].t && t < palettes[i+1].t {
			a, b = palettes[i], palettes[i+1]
			span = b.t - a.t
			local = t - a.t
			break
		}
	}
	f := local / span

	return dayPalette{
		t:            t,
		zenith:       lerpColor(a.zenith, b.zenith, f),
		horizon:      lerpColor(a.horizon, b.horizon, f),
		ground:       lerpColor(a.ground, b.ground, f),
		sunColor:     lerpColor(a.sunColor, b.sunColor, f),
		sunIntensity: a.sunIntensity + (b.sunIntensity-a.sunIntensity)*f,
		ambient:      a.ambient + (b.ambient-a.ambient)*f,
	}
}

// sunDirection points toward the sun, or toward the moon once the sun has
// set.
func sunDirection(t float32) mgl32.Vec3 {
	angle := float64(t * 2 * math.Pi)
	dir := mgl32.Vec3{
		float32(math.Sin(angle)),
		float32(math.Cos(angle)), // 1 = noon (overhead)
		0.35,
	}.Normalize()
	if dir.Y() < 0 {
		dir = dir.Mul(-1)
	}
	return dir
}

// Apply pushes the current time's sky/light state into the world and the
// sky effect.
func (dn *DayNight) Apply() {
	p := samplePalette(dn.Time)

	if dn.hasSun {
		var sun scene.DirectionalLight
		found := false
		for e, pair := range dn.world.DirectionalLights() {
			if e == dn.sun {
				sun, found = pair.Component, true
				break
			}
		}
		if found {
			sun.Direction = sunDirection(dn.Time)
			sun.Color = p.sunColor
			sun.Intensity = p.sunIntensity
			dn.world.AddDirectionalLight(dn.sun, sun)
		}
	}

	if dn.sky != nil {
		dn.sky.SetVec3("sky_zenith", p.zenith.Vec3())
		dn.sky.SetVec3("sky_horizon", p.horizon.Vec3())
		dn.sky.SetVec3("sky_ground", p.ground.Vec3())
		dn.sky.SetFloat("ambient_intensity", p.ambient)
	}
}

// TimeOfDayStr returns a human-readable time label.
func (dn *DayNight) TimeOfDayStr() string {
	// Time 0 is noon.
	minutes := int(dn.Time*24*60+12*60) % (24 * 60)
	h, m := minutes/60, minutes%60
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	displayH := h % 12
	if displayH == 0 {
		displayH = 12
	}
	return fmt.Sprintf("%02d:%02d %s", displayH, m, period)
}
