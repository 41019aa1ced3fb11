package resource

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"deferred-renderer/core"
)

// GLTFOptions controls how an imported document maps onto resources.
type GLTFOptions struct {
	// Technique is assigned to every imported material.
	Technique Identifier
	// Prefix namespaces the identifiers of imported resources.
	// Defaults to the file name without extension.
	Prefix string
	// Fallback is the material of primitives that reference none.
	Fallback Identifier
}

// Placement is one node of the imported scene that references a mesh,
// flattened to world space.
type Placement struct {
	Mesh     Identifier
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

type GLTFResult struct {
	Meshes     []Identifier
	Placements []Placement
}

// LoadGLTF opens a .glb or .gltf file and inserts its textures, materials and
// meshes into caches. Each glTF mesh becomes one StaticMesh with one material
// slot per primitive.
func LoadGLTF(path string, caches *Caches, opts GLTFOptions) (*GLTFResult, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gltf open %q: %w", path, err)
	}
	dir := filepath.Dir(path)
	prefix := opts.Prefix
	if prefix == "" {
		prefix = filepath.Base(path)
		prefix = prefix[:len(prefix)-len(filepath.Ext(prefix))]
	}
	log := core.Logger().With(zap.String("gltf", path))

	textures := make([]Identifier, len(doc.Textures))
	for i, gt := range doc.Textures {
		if gt.Source == nil {
			continue
		}
		tex, err := loadGLTFImage(doc, dir, *gt.Source)
		if err != nil {
			log.Warn("skipping image", zap.Int("image", *gt.Source), zap.Error(err))
			continue
		}
		id := NewIdentifier(KindTexture, fmt.Sprintf("%s/texture_%d", prefix, i))
		if err := caches.Textures.Insert(id, tex); err != nil {
			return nil, err
		}
		textures[i] = id
	}

	materials := make([]Identifier, len(doc.Materials))
	for i, gm := range doc.Materials {
		mat := &Material{Technique: opts.Technique}
		mat.SetVec4("base_color", mgl32.Vec4{1, 1, 1, 1})
		mat.SetFloat("roughness", 1)
		mat.SetFloat("metalness", 0)
		if pbr := gm.PBRMetallicRoughness; pbr != nil {
			cf := pbr.BaseColorFactorOrDefault()
			mat.SetVec4("base_color", mgl32.Vec4{float32(cf[0]), float32(cf[1]), float32(cf[2]), float32(cf[3])})
			mat.SetFloat("roughness", float32(pbr.RoughnessFactorOrDefault()))
			mat.SetFloat("metalness", float32(pbr.MetallicFactorOrDefault()))
			if pbr.BaseColorTexture != nil {
				if idx := pbr.BaseColorTexture.Index; idx < len(textures) && textures[idx].Valid() {
					mat.SetTexture("diffuse_map", textures[idx])
				}
			}
		}
		if gm.NormalTexture != nil && gm.NormalTexture.Index != nil {
			if idx := *gm.NormalTexture.Index; idx < len(textures) && textures[idx].Valid() {
				mat.SetTexture("normal_map", textures[idx])
			}
		}
		mat.Transparent = gm.AlphaMode == gltf.AlphaBlend

		name := gm.Name
		if name == "" {
			name = fmt.Sprintf("material_%d", i)
		}
		id := NewIdentifier(KindMaterial, prefix+"/"+name)
		if err := caches.Materials.Insert(id, mat); err != nil {
			return nil, err
		}
		materials[i] = id
	}

	result := &GLTFResult{}
	meshes := make([]Identifier, len(doc.Meshes))
	for mi, gm := range doc.Meshes {
		mesh := &StaticMesh{}
		for pi, prim := range gm.Primitives {
			if err := appendGLTFPrimitive(doc, mesh, prim); err != nil {
				log.Warn("skipping primitive", zap.Int("mesh", mi), zap.Int("primitive", pi), zap.Error(err))
				continue
			}
			material := opts.Fallback
			if prim.Material != nil && *prim.Material < len(materials) {
				material = materials[*prim.Material]
			}
			mesh.Materials = append(mesh.Materials, material)
		}
		if len(mesh.Triangles) == 0 {
			continue
		}
		mesh.ComputeTangents()
		mesh.ComputeRadius()
		if err := mesh.Validate(); err != nil {
			return nil, fmt.Errorf("gltf mesh %d: %w", mi, err)
		}

		name := gm.Name
		if name == "" {
			name = fmt.Sprintf("mesh_%d", mi)
		}
		id := NewIdentifier(KindMesh, prefix+"/"+name)
		if err := caches.Meshes.Insert(id, mesh); err != nil {
			return nil, err
		}
		meshes[mi] = id
		result.Meshes = append(result.Meshes, id)
	}

	var visit func(node int, parent mgl32.Mat4)
	visit = func(node int, parent mgl32.Mat4) {
		gn := doc.Nodes[node]
		world := parent.Mul4(nodeMatrix(gn))
		if gn.Mesh != nil && *gn.Mesh < len(meshes) && meshes[*gn.Mesh].Valid() {
			result.Placements = append(result.Placements, decompose(meshes[*gn.Mesh], world))
		}
		for _, child := range gn.Children {
			if child < len(doc.Nodes) {
				visit(child, world)
			}
		}
	}
	for _, root := range rootNodes(doc) {
		visit(root, mgl32.Ident4())
	}

	log.Info("gltf loaded",
		zap.Int("meshes", len(result.Meshes)),
		zap.Int("materials", len(materials)),
		zap.Int("placements", len(result.Placements)))
	return result, nil
}

func appendGLTFPrimitive(doc *gltf.Document, mesh *StaticMesh, prim *gltf.Primitive) error {
	if prim.Mode != gltf.PrimitiveTriangles {
		return fmt.Errorf("unsupported primitive mode %v", prim.Mode)
	}
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return fmt.Errorf("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	var normals [][3]float32
	var uvs [][2]float32
	if idx, ok := prim.Attributes["NORMAL"]; ok {
		normals, _ = modeler.ReadNormal(doc, doc.Accessors[idx], nil)
	}
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		uvs, _ = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil)
	}

	base := uint32(len(mesh.Vertices))
	for i, p := range positions {
		v := Vertex{
			Position: mgl32.Vec3{p[0], p[1], p[2]},
			Normal:   mgl32.Vec3{0, 1, 0},
			Tangent:  mgl32.Vec3{1, 0, 0},
		}
		if i < len(normals) {
			v.Normal = mgl32.Vec3{normals[i][0], normals[i][1], normals[i][2]}
		}
		if i < len(uvs) {
			v.TexCoord = mgl32.Vec2{uvs[i][0], uvs[i][1]}
		}
		mesh.Vertices = append(mesh.Vertices, v)
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return fmt.Errorf("indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	first := len(mesh.Triangles)
	for i := 0; i+2 < len(indices); i += 3 {
		mesh.Triangles = append(mesh.Triangles,
			[3]uint32{base + indices[i], base + indices[i+1], base + indices[i+2]})
	}
	mesh.Slots = append(mesh.Slots, MaterialSlot{First: first, Count: len(mesh.Triangles) - first})
	return nil
}

func loadGLTFImage(doc *gltf.Document, dir string, source int) (*Texture, error) {
	img := doc.Images[source]
	switch {
	case img.BufferView != nil:
		raw, err := modeler.ReadBufferView(doc, doc.BufferViews[*img.BufferView])
		if err != nil {
			return nil, fmt.Errorf("bufferview: %w", err)
		}
		decoded, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		return textureFromImage(decoded), nil
	case img.IsEmbeddedResource():
		return nil, fmt.Errorf("image %d: embedded data URIs are not supported", source)
	case img.URI != "":
		return LoadTexture(filepath.Join(dir, img.URI))
	}
	return nil, fmt.Errorf("image %d has no data", source)
}

var identityMatrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

func nodeMatrix(n *gltf.Node) mgl32.Mat4 {
	if n.Matrix != identityMatrix && n.Matrix != [16]float64{} {
		var m mgl32.Mat4
		for i, v := range n.Matrix {
			m[i] = float32(v)
		}
		return m
	}
	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	rotation := mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
	return mgl32.Translate3D(float32(t[0]), float32(t[1]), float32(t[2])).
		Mul4(rotation.Mat4()).
		Mul4(mgl32.Scale3D(float32(s[0]), float32(s[1]), float32(s[2])))
}

// decompose splits an affine matrix without shear into translation,
// rotation and scale.
func decompose(mesh Identifier, m mgl32.Mat4) Placement {
	scale := mgl32.Vec3{m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len()}
	var rot mgl32.Mat3
	for c := 0; c < 3; c++ {
		col := m.Col(c).Vec3()
		if scale[c] != 0 {
			col = col.Mul(1 / scale[c])
		}
		rot.SetCol(c, col)
	}
	return Placement{
		Mesh:     mesh,
		Position: m.Col(3).Vec3(),
		Rotation: mgl32.Mat4ToQuat(rot.Mat4()).Normalize(),
		Scale:    scale,
	}
}

func rootNodes(doc *gltf.Document) []int {
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene].Nodes
	}
	hasParent := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !hasParent[i] {
			roots = append(roots, i)
		}
	}
	return roots
}
