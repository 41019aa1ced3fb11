package renderer

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"deferred-renderer/resource"
	"deferred-renderer/scene"
)

// Culler decides whether a bounding sphere may be visible.
// scene.Frustum and *scene.Planes both satisfy it.
type Culler interface {
	ContainsSphere(center mgl32.Vec3, radius float32) bool
}

// RenderToken is one draw: a range of a mesh's indices, the instance
// matrices and the material and technique to draw it with.
type RenderToken struct {
	Buffer BufferRange
	// Offset and Count are in indices, relative to Buffer.BaseIndex.
	Offset int
	Count  int
	// Matrices indexes TokenStream.Matrices.
	Matrices int

	// Material is nil when the stream was filled with a global technique.
	Material    *resource.Material
	MaterialID  resource.Identifier
	Technique   *resource.Technique
	TechniqueID resource.Identifier
}

// TokenStream is reused across passes and frames; Reset keeps capacity.
type TokenStream struct {
	Tokens   []RenderToken
	Matrices []ModelMatrices
}

func (s *TokenStream) Reset() {
	s.Tokens = s.Tokens[:0]
	s.Matrices = s.Matrices[:0]
}

func (s *TokenStream) Len() int { return len(s.Tokens) }

// CollectTokens appends a token for every visible mesh instance in world.
// With a valid global technique every instance yields one token covering all
// of its indices; otherwise it yields one token per opaque material slot.
func CollectTokens(
	culler Culler,
	view mgl32.Mat4,
	world scene.Query,
	caches *resource.Caches,
	meshes MeshBuffers,
	stream *TokenStream,
	global resource.Identifier,
) error {
	var globalTech *resource.Technique
	if global.Valid() {
		var ok bool
		if globalTech, ok = caches.Techniques.Acquire(global); !ok {
			return fmt.Errorf("%w: technique %q", ErrMissingResource, global)
		}
	}

	for _, inst := range world.MeshInstances() {
		id := inst.Component.Mesh
		mesh, ok := caches.Meshes.Acquire(id)
		if !ok {
			return fmt.Errorf("%w: mesh %q", ErrMissingResource, id)
		}

		txform := inst.Transform
		if !culler.ContainsSphere(txform.Position, mesh.Radius*txform.MaxScale()) {
			continue
		}

		buffer, err := meshes.Acquire(id, mesh)
		if err != nil {
			return fmt.Errorf("mesh %q: %w", id, err)
		}

		model := txform.Matrix()
		stream.Matrices = append(stream.Matrices, ModelMatrices{
			Model:     model,
			ModelView: view.Mul4(model),
			Normal:    model.Mat3().Inv().Transpose(),
		})
		matrices := len(stream.Matrices) - 1

		if globalTech != nil {
			stream.Tokens = append(stream.Tokens, RenderToken{
				Buffer:      buffer,
				Offset:      0,
				Count:       mesh.IndexCount(),
				Matrices:    matrices,
				Technique:   globalTech,
				TechniqueID: global,
			})
			continue
		}

		for i, slot := range mesh.Slots {
			materialID := mesh.Materials[i]
			material, ok := caches.Materials.Acquire(materialID)
			if !ok {
				return fmt.Errorf("%w: material %q of mesh %q", ErrMissingResource, materialID, id)
			}
			if material.Transparent {
				continue
			}
			tech, ok := caches.Techniques.Acquire(material.Technique)
			if !ok {
				return fmt.Errorf("%w: technique %q of material %q", ErrMissingResource, material.Technique, materialID)
			}
			stream.Tokens = append(stream.Tokens, RenderToken{
				Buffer:      buffer,
				Offset:      3 * slot.First,
				Count:       3 * slot.Count,
				Matrices:    matrices,
				Material:    material,
				MaterialID:  materialID,
				Technique:   tech,
				TechniqueID: material.Technique,
			})
		}
	}
	return nil
}

// CompareTokens orders by technique, then batch, then material, so state
// changes cluster.
func CompareTokens(a, b RenderToken) int {
	if c := a.TechniqueID.Compare(b.TechniqueID); c != 0 {
		return c
	}
	if a.Buffer.Batch != b.Buffer.Batch {
		if a.Buffer.Batch < b.Buffer.Batch {
			return -1
		}
		return 1
	}
	return a.MaterialID.Compare(b.MaterialID)
}

// SortTokens orders the stream with CompareTokens. Equal keys keep their
// collection order.
func SortTokens(stream *TokenStream) {
	slices.SortStableFunc(stream.Tokens, CompareTokens)
}

// DrawTokens submits every token, changing technique, material and batch
// only when they differ from the previous token.
func DrawTokens(dev Device, meshes MeshBuffers, textures *resource.Cache[resource.Texture], stream *TokenStream) error {
	var (
		haveTechnique bool
		technique     resource.Identifier
		material      resource.Identifier
		batch         = -1
	)
	for i := range stream.Tokens {
		tok := &stream.Tokens[i]

		if !haveTechnique || tok.TechniqueID != technique {
			if err := dev.UseTechnique(tok.TechniqueID, tok.Technique); err != nil {
				return fmt.Errorf("technique %q: %w", tok.TechniqueID, err)
			}
			haveTechnique = true
			technique = tok.TechniqueID
			material = resource.Identifier{}
		}

		if tok.Material != nil && tok.MaterialID != material {
			if err := dev.ApplyUniforms(&tok.Material.UniformData, textures, NextFreeTextureUnit); err != nil {
				return fmt.Errorf("material %q: %w", tok.MaterialID, err)
			}
			material = tok.MaterialID
		}

		if tok.Buffer.Batch != batch {
			if err := meshes.BindBatch(tok.Buffer.Batch); err != nil {
				return err
			}
			batch = tok.Buffer.Batch
		}

		dev.SetModelMatrices(stream.Matrices[tok.Matrices])
		dev.DrawIndexed(tok.Count, indexSize*(tok.Buffer.BaseIndex+tok.Offset), tok.Buffer.BaseVertex)
	}
	return nil
}

// indexSize is the byte width of one uint32 index.
const indexSize = 4
