package renderer

import (
	"deferred-renderer/core"
	"deferred-renderer/resource"
)

// Settings selects the effects and techniques each pass draws with.
type Settings struct {
	ImageBasedLightEffect  resource.Identifier
	DirectionalLightEffect resource.Identifier
	PointLightEffect       resource.Identifier
	SpotLightEffect        resource.Identifier
	GammaConversionEffect  resource.Identifier
	ShadowTechnique        resource.Identifier

	EnableImageBasedLighting bool
	EnableDebugRendering     bool

	ShadowMapSize int
	ClearColor    core.Color
}

// Names of the built-in effects and techniques.
var (
	ImageBasedLightEffectID  = resource.NewIdentifier(resource.KindEffect, "image_based_light")
	DirectionalLightEffectID = resource.NewIdentifier(resource.KindEffect, "directional_light")
	PointLightEffectID       = resource.NewIdentifier(resource.KindEffect, "point_light")
	SpotLightEffectID        = resource.NewIdentifier(resource.KindEffect, "spot_light")
	GammaConversionEffectID  = resource.NewIdentifier(resource.KindEffect, "gamma_conversion")
	ShadowTechniqueID        = resource.NewIdentifier(resource.KindTechnique, "shadow")
)

func DefaultSettings() Settings {
	return Settings{
		ImageBasedLightEffect:    ImageBasedLightEffectID,
		DirectionalLightEffect:   DirectionalLightEffectID,
		PointLightEffect:         PointLightEffectID,
		SpotLightEffect:          SpotLightEffectID,
		GammaConversionEffect:    GammaConversionEffectID,
		ShadowTechnique:          ShadowTechniqueID,
		EnableImageBasedLighting: true,
		EnableDebugRendering:     false,
		ShadowMapSize:            DefaultShadowMapSize,
		ClearColor:               core.ColorBlack,
	}
}
