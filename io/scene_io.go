package io

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"deferred-renderer/core"
	"deferred-renderer/renderer"
	"deferred-renderer/resource"
	"deferred-renderer/scene"
)

var (
	ErrUnknownMesh     = errors.New("unknown mesh type")
	ErrUnknownLight    = errors.New("unknown light type")
	ErrUnknownMaterial = errors.New("unknown material")
	ErrInvalidLight    = errors.New("invalid light")
)

// SceneFile is the top-level structure for the .scene.json format
type SceneFile struct {
	Version   string         `json:"version"`
	Name      string         `json:"name"`
	Camera    CameraData     `json:"camera"`
	Lights    []LightData    `json:"lights"`
	Materials []MaterialData `json:"materials"`
	Objects   []ObjectData   `json:"objects"`
	Models    []ModelData    `json:"models,omitempty"`
	Settings  RenderSettings `json:"render"`
}

// CameraData stores an orbit camera. FOV is in degrees.
type CameraData struct {
	Target   [3]float32 `json:"target"`
	FOV      float32    `json:"fov"`
	Near     float32    `json:"near"`
	Far      float32    `json:"far"`
	Distance float32    `json:"distance"`
	Yaw      float32    `json:"yaw,omitempty"`
	Pitch    float32    `json:"pitch,omitempty"`
}

// LightData stores light state. Direction is the way the light travels.
type LightData struct {
	Type        string     `json:"type"` // "directional", "point", "spot"
	Position    [3]float32 `json:"position"`
	Direction   [3]float32 `json:"direction"`
	Color       [4]float32 `json:"color"`
	Intensity   float32    `json:"intensity"`
	Range       float32    `json:"range,omitempty"`
	SpotAngle   float32    `json:"spot_angle,omitempty"` // half-angle, degrees
	CastShadows bool       `json:"cast_shadows"`
}

// ObjectData places a procedural mesh.
type ObjectData struct {
	Name     string     `json:"name"`
	Position [3]float32 `json:"position"`
	Rotation [4]float32 `json:"rotation"` // Quaternion (x,y,z,w)
	Scale    [3]float32 `json:"scale"`
	Visible  bool       `json:"visible"`
	MeshType string     `json:"mesh_type"` // "box", "sphere", "plane"
	// Materials name entries of SceneFile.Materials; a box takes caps then
	// sides, other meshes take one.
	Materials []string     `json:"materials"`
	Children  []ObjectData `json:"children,omitempty"`
}

// MaterialData stores material properties
type MaterialData struct {
	Name         string     `json:"name"`
	DiffuseColor [4]float32 `json:"diffuse_color"`
	Roughness    float32    `json:"roughness"`
	Metallic     float32    `json:"metallic"`
	TexturePath  string     `json:"texture_path,omitempty"`
	NormalPath   string     `json:"normal_path,omitempty"`
	Transparent  bool       `json:"transparent,omitempty"`
}

// ModelData imports a glTF or OBJ file and places all of its nodes under
// one transform.
type ModelData struct {
	Path     string     `json:"path"`
	Position [3]float32 `json:"position"`
	Scale    float32    `json:"scale"`
}

// RenderSettings mirrors renderer.Settings toggles.
type RenderSettings struct {
	ImageBasedLighting bool       `json:"image_based_lighting"`
	DebugRendering     bool       `json:"debug_rendering"`
	ShadowMapSize      int        `json:"shadow_map_size"`
	ClearColor         [4]float32 `json:"clear_color"`
}

// SaveScene serializes scene data to a JSON file
func SaveScene(path string, scene *SceneFile) error {
	data, err := json.MarshalIndent(scene, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadScene deserializes a JSON scene file
func LoadScene(path string) (*SceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}

	scene := &SceneFile{}
	if err := json.Unmarshal(data, scene); err != nil {
		return nil, fmt.Errorf("failed to parse scene file: %w", err)
	}
	return scene, nil
}

// NewDefaultSceneFile creates a lit floor with a few shapes on it.
func NewDefaultSceneFile(name string) *SceneFile {
	identity := [4]float32{0, 0, 0, 1}
	one := [3]float32{1, 1, 1}
	return &SceneFile{
		Version: "1.0",
		Name:    name,
		Camera: CameraData{
			FOV:      60.0,
			Near:     0.1,
			Far:      100.0,
			Distance: 12.0,
			Pitch:    0.4,
		},
		Lights: []LightData{
			{
				Type:        "directional",
				Direction:   [3]float32{0.5, -1, -0.5},
				Color:       [4]float32{1, 0.95, 0.9, 1},
				Intensity:   2.5,
				CastShadows: true,
			},
			{
				Type:      "point",
				Position:  [3]float32{-3, 1.5, 2},
				Color:     [4]float32{1, 0.4, 0.2, 1},
				Intensity: 4,
				Range:     6,
			},
			{
				Type:        "spot",
				Position:    [3]float32{3, 6, 3},
				Direction:   [3]float32{-0.4, -1, -0.4},
				Color:       [4]float32{0.4, 0.6, 1, 1},
				Intensity:   6,
				Range:       20,
				SpotAngle:   25,
				CastShadows: true,
			},
		},
		Materials: []MaterialData{
			{Name: "floor", DiffuseColor: [4]float32{0.6, 0.6, 0.6, 1}, Roughness: 0.9},
			{Name: "red", DiffuseColor: [4]float32{0.8, 0.1, 0.1, 1}, Roughness: 0.4},
			{Name: "gold", DiffuseColor: [4]float32{1, 0.77, 0.34, 1}, Roughness: 0.3, Metallic: 1},
			{Name: "blue", DiffuseColor: [4]float32{0.1, 0.2, 0.8, 1}, Roughness: 0.5},
		},
		Objects: []ObjectData{
			{Name: "floor", MeshType: "plane", Scale: [3]float32{20, 1, 20}, Rotation: identity, Visible: true, Materials: []string{"floor"}},
			{Name: "crate", MeshType: "box", Position: [3]float32{0, 1, 0}, Scale: one, Rotation: identity, Visible: true, Materials: []string{"gold", "red"}},
			{Name: "ball", MeshType: "sphere", Position: [3]float32{2.5, 1, -1}, Scale: one, Rotation: identity, Visible: true, Materials: []string{"blue"}},
		},
		Settings: RenderSettings{
			ImageBasedLighting: true,
			ShadowMapSize:      renderer.DefaultShadowMapSize,
			ClearColor:         [4]float32{0, 0, 0, 1},
		},
	}
}

// Scene is a built scene file, ready to render.
type Scene struct {
	World    *scene.World
	Camera   *scene.OrbitCamera
	Settings renderer.Settings
}

// BuildOptions controls how resources of a scene file are created.
type BuildOptions struct {
	// Technique is assigned to every material.
	Technique resource.Identifier
	// BaseDir resolves relative texture and model paths.
	BaseDir string
}

// Build inserts the file's materials and meshes into caches and creates a
// world holding its objects and lights.
func (f *SceneFile) Build(caches *resource.Caches, opts BuildOptions) (*Scene, error) {
	log := core.Logger().With(zap.String("scene", f.Name))
	b := &builder{
		file:      f,
		caches:    caches,
		opts:      opts,
		world:     scene.NewWorld(),
		materials: make(map[string]resource.Identifier),
	}

	for i := range f.Materials {
		if err := b.material(&f.Materials[i]); err != nil {
			return nil, err
		}
	}
	for i := range f.Objects {
		if err := b.object(&f.Objects[i], mgl32.Ident4()); err != nil {
			return nil, err
		}
	}
	for i := range f.Models {
		if err := b.model(&f.Models[i]); err != nil {
			return nil, err
		}
	}
	for i, l := range f.Lights {
		if err := b.light(l); err != nil {
			return nil, fmt.Errorf("light %d: %w", i, err)
		}
	}

	c := f.Camera
	cam := scene.NewOrbitCamera(ArrayToVec3(c.Target), c.Distance, mgl32.DegToRad(c.FOV))
	cam.NearPlane, cam.FarPlane = c.Near, c.Far
	cam.Yaw, cam.Pitch = c.Yaw, c.Pitch
	cam.UpdatePosition()

	settings := renderer.DefaultSettings()
	settings.EnableImageBasedLighting = f.Settings.ImageBasedLighting
	settings.EnableDebugRendering = f.Settings.DebugRendering
	if f.Settings.ShadowMapSize > 0 {
		settings.ShadowMapSize = f.Settings.ShadowMapSize
	}
	settings.ClearColor = ArrayToColor(f.Settings.ClearColor)

	log.Info("scene built",
		zap.Int("materials", len(f.Materials)),
		zap.Int("objects", len(f.Objects)),
		zap.Int("models", len(f.Models)),
		zap.Int("lights", len(f.Lights)))
	return &Scene{World: b.world, Camera: cam, Settings: settings}, nil
}

type builder struct {
	file      *SceneFile
	caches    *resource.Caches
	opts      BuildOptions
	world     *scene.World
	materials map[string]resource.Identifier
	meshes    int
}

func (b *builder) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.opts.BaseDir, p)
}

func (b *builder) texture(p string) (resource.Identifier, error) {
	id := resource.NewIdentifier(resource.KindTexture, p)
	if b.caches.Textures.Contains(id) {
		return id, nil
	}
	tex, err := resource.LoadTexture(b.path(p))
	if err != nil {
		return resource.Identifier{}, err
	}
	return id, b.caches.Textures.Insert(id, tex)
}

func (b *builder) material(m *MaterialData) error {
	mat := &resource.Material{Technique: b.opts.Technique, Transparent: m.Transparent}
	mat.SetVec4("base_color", mgl32.Vec4(m.DiffuseColor))
	mat.SetFloat("roughness", m.Roughness)
	mat.SetFloat("metalness", m.Metallic)
	if m.TexturePath != "" {
		id, err := b.texture(m.TexturePath)
		if err != nil {
			return fmt.Errorf("material %q: %w", m.Name, err)
		}
		mat.SetTexture("diffuse_map", id)
	}
	if m.NormalPath != "" {
		id, err := b.texture(m.NormalPath)
		if err != nil {
			return fmt.Errorf("material %q: %w", m.Name, err)
		}
		mat.SetTexture("normal_map", id)
	}

	id := resource.NewIdentifier(resource.KindMaterial, b.file.Name+"/"+m.Name)
	if err := b.caches.Materials.Insert(id, mat); err != nil {
		return fmt.Errorf("material %q: %w", m.Name, err)
	}
	b.materials[m.Name] = id
	return nil
}

func (b *builder) lookupMaterials(names []string, want int) ([]resource.Identifier, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: none given", ErrUnknownMaterial)
	}
	out := make([]resource.Identifier, want)
	for i := range out {
		name := names[min(i, len(names)-1)]
		id, ok := b.materials[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMaterial, name)
		}
		out[i] = id
	}
	return out, nil
}

func (b *builder) object(o *ObjectData, parent mgl32.Mat4) error {
	local := mgl32.Translate3D(o.Position[0], o.Position[1], o.Position[2]).
		Mul4(ArrayToQuat(o.Rotation).Mat4()).
		Mul4(mgl32.Scale3D(o.Scale[0], o.Scale[1], o.Scale[2]))
	world := parent.Mul4(local)

	if o.Visible {
		var mesh *resource.StaticMesh
		switch o.MeshType {
		case "box":
			mats, err := b.lookupMaterials(o.Materials, 2)
			if err != nil {
				return fmt.Errorf("object %q: %w", o.Name, err)
			}
			mesh = resource.NewBoxMesh(mgl32.Vec3{1, 1, 1}, mats[0], mats[1])
		case "sphere":
			mats, err := b.lookupMaterials(o.Materials, 1)
			if err != nil {
				return fmt.Errorf("object %q: %w", o.Name, err)
			}
			mesh = resource.NewSphereMesh(1, 32, 16, mats[0])
		case "plane":
			mats, err := b.lookupMaterials(o.Materials, 1)
			if err != nil {
				return fmt.Errorf("object %q: %w", o.Name, err)
			}
			mesh = resource.NewPlaneMesh(1, 1, 1, mats[0])
		default:
			return fmt.Errorf("object %q: %w: %q", o.Name, ErrUnknownMesh, o.MeshType)
		}

		b.meshes++
		id := resource.NewIdentifier(resource.KindMesh, fmt.Sprintf("%s/%s_%d", b.file.Name, o.Name, b.meshes))
		if err := b.caches.Meshes.Insert(id, mesh); err != nil {
			return fmt.Errorf("object %q: %w", o.Name, err)
		}
		b.place(id, world)
	}

	for i := range o.Children {
		if err := b.object(&o.Children[i], world); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) model(m *ModelData) error {
	var fallback resource.Identifier
	if ids, err := b.lookupMaterials(b.firstMaterial(), 1); err == nil {
		fallback = ids[0]
	}
	scale := m.Scale
	if scale == 0 {
		scale = 1
	}
	root := mgl32.Translate3D(m.Position[0], m.Position[1], m.Position[2]).Mul4(mgl32.Scale3D(scale, scale, scale))

	path := b.path(m.Path)
	if ext := filepath.Ext(path); strings.EqualFold(ext, ".obj") {
		data, err := LoadOBJ(path)
		if err != nil {
			return err
		}
		prefix := b.file.Name + "/" + strings.TrimSuffix(filepath.Base(path), ext)
		id, err := data.Insert(b.caches, prefix, b.opts.Technique, fallback)
		if err != nil {
			return err
		}
		b.place(id, root)
		return nil
	}

	result, err := resource.LoadGLTF(path, b.caches, resource.GLTFOptions{
		Technique: b.opts.Technique,
		Fallback:  fallback,
	})
	if err != nil {
		return err
	}
	for _, p := range result.Placements {
		local := mgl32.Translate3D(p.Position[0], p.Position[1], p.Position[2]).
			Mul4(p.Rotation.Mat4()).
			Mul4(mgl32.Scale3D(p.Scale[0], p.Scale[1], p.Scale[2]))
		b.place(p.Mesh, root.Mul4(local))
	}
	return nil
}

func (b *builder) firstMaterial() []string {
	if len(b.file.Materials) == 0 {
		return nil
	}
	return []string{b.file.Materials[0].Name}
}

// place creates an entity for mesh at a world matrix without shear.
func (b *builder) place(mesh resource.Identifier, m mgl32.Mat4) {
	t := scene.NewTransform()
	t.Position = m.Col(3).Vec3()
	basis := [3]mgl32.Vec3{m.Col(0).Vec3(), m.Col(1).Vec3(), m.Col(2).Vec3()}
	t.Scale = mgl32.Vec3{basis[0].Len(), basis[1].Len(), basis[2].Len()}
	var rot mgl32.Mat3
	for i, axis := range basis {
		if t.Scale[i] != 0 {
			axis = axis.Mul(1 / t.Scale[i])
		}
		rot.SetCol(i, axis)
	}
	t.Rotation = mgl32.Mat4ToQuat(rot.Mat4()).Normalize()

	e := b.world.Create()
	b.world.SetTransform(e, t)
	b.world.AddMeshInstance(e, scene.StaticMeshInstance{Mesh: mesh})
}

// validateLight rejects lights that cannot be rendered: directional and spot
// lights need a direction, point and spot lights a range, and spot lights a
// half-angle strictly between 0 and 90 degrees.
func validateLight(l LightData) error {
	hasDirection := ArrayToVec3(l.Direction).Len() > 0
	switch l.Type {
	case "directional":
		if !hasDirection {
			return fmt.Errorf("%w: directional light without a direction", ErrInvalidLight)
		}
	case "point":
		if l.Range <= 0 {
			return fmt.Errorf("%w: point light range %v", ErrInvalidLight, l.Range)
		}
	case "spot":
		if !hasDirection {
			return fmt.Errorf("%w: spot light without a direction", ErrInvalidLight)
		}
		if l.Range <= scene.SpotShadowNear {
			return fmt.Errorf("%w: spot light range %v must exceed %v", ErrInvalidLight, l.Range, scene.SpotShadowNear)
		}
		if l.SpotAngle <= 0 || l.SpotAngle >= 90 {
			return fmt.Errorf("%w: spot angle %v outside (0, 90)", ErrInvalidLight, l.SpotAngle)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLight, l.Type)
	}
	return nil
}

func (b *builder) light(l LightData) error {
	if err := validateLight(l); err != nil {
		return err
	}
	e := b.world.Create()
	t := scene.NewTransform()
	t.Position = ArrayToVec3(l.Position)
	color := ArrayToColor(l.Color)
	// Components store the direction toward the light.
	toLight := ArrayToVec3(l.Direction).Mul(-1)
	if l.Type != "point" {
		toLight = toLight.Normalize()
	}

	switch l.Type {
	case "directional":
		b.world.SetTransform(e, t)
		b.world.AddDirectionalLight(e, scene.DirectionalLight{
			Color: color, Intensity: l.Intensity, Direction: toLight, CastShadows: l.CastShadows,
		})
	case "point":
		t.Scale = mgl32.Vec3{l.Range, l.Range, l.Range}
		b.world.SetTransform(e, t)
		b.world.AddPointLight(e, scene.PointLight{Color: color, Intensity: l.Intensity})
	case "spot":
		b.world.SetTransform(e, t)
		b.world.AddSpotLight(e, scene.SpotLight{
			Color:       color,
			Intensity:   l.Intensity,
			Direction:   toLight,
			Cutoff:      mgl32.DegToRad(l.SpotAngle),
			Range:       l.Range,
			CastShadows: l.CastShadows,
		})
	}
	return nil
}

// --- Helper conversions ---

// Vec3ToArray converts a Vec3 to a [3]float32
func Vec3ToArray(v mgl32.Vec3) [3]float32 {
	return [3]float32(v)
}

// ArrayToVec3 converts a [3]float32 to Vec3
func ArrayToVec3(a [3]float32) mgl32.Vec3 {
	return mgl32.Vec3(a)
}

// ColorToArray converts a Color to [4]float32
func ColorToArray(c core.Color) [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}

// ArrayToColor converts [4]float32 to Color
func ArrayToColor(a [4]float32) core.Color {
	return core.Color{R: a[0], G: a[1], B: a[2], A: a[3]}
}

// QuatToArray converts a Quat to [4]float32 (x,y,z,w)
func QuatToArray(q mgl32.Quat) [4]float32 {
	return [4]float32{q.V[0], q.V[1], q.V[2], q.W}
}

// ArrayToQuat converts [4]float32 (x,y,z,w) to Quat. A zero array is the
// identity rotation.
func ArrayToQuat(a [4]float32) mgl32.Quat {
	if a == ([4]float32{}) {
		return mgl32.QuatIdent()
	}
	return mgl32.Quat{W: a[3], V: mgl32.Vec3{a[0], a[1], a[2]}}.Normalize()
}
