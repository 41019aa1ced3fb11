package io

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"deferred-renderer/core"
	"deferred-renderer/resource"
)

// OBJData holds a parsed OBJ file before it is inserted into caches.
// Every usemtl run becomes one material slot of Mesh.
type OBJData struct {
	Name      string
	Mesh      *resource.StaticMesh
	SlotNames []string // material name of each slot
	Materials map[string]*MaterialData
}

// LoadOBJ parses a Wavefront .obj file and its mtllib references.
func LoadOBJ(path string) (*OBJData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open OBJ file: %w", err)
	}
	defer f.Close()

	data := &OBJData{
		Name:      filepath.Base(path),
		Mesh:      &resource.StaticMesh{},
		Materials: make(map[string]*MaterialData),
	}

	var positions, normals []mgl32.Vec3
	var uvs []mgl32.Vec2
	vertexMap := make(map[string]uint32) // "v/vt/vn" -> vertex index
	hasNormals := true

	// slot closes the current run and opens one for material.
	slot := func(material string) {
		mesh := data.Mesh
		if n := len(mesh.Slots); n > 0 {
			last := &mesh.Slots[n-1]
			last.Count = len(mesh.Triangles) - last.First
			if last.Count == 0 {
				mesh.Slots = mesh.Slots[:n-1]
				data.SlotNames = data.SlotNames[:n-1]
			}
		}
		mesh.Slots = append(mesh.Slots, resource.MaterialSlot{First: len(mesh.Triangles)})
		data.SlotNames = append(data.SlotNames, material)
	}
	slot("")

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "v":
			if len(parts) >= 4 {
				positions = append(positions, parseVec3(parts[1:4]))
			}
		case "vn":
			if len(parts) >= 4 {
				normals = append(normals, parseVec3(parts[1:4]))
			}
		case "vt":
			if len(parts) >= 3 {
				u, _ := strconv.ParseFloat(parts[1], 32)
				v, _ := strconv.ParseFloat(parts[2], 32)
				uvs = append(uvs, mgl32.Vec2{float32(u), float32(v)})
			}
		case "f":
			faceVerts := make([]uint32, 0, len(parts)-1)
			for _, key := range parts[1:] {
				if idx, ok := vertexMap[key]; ok {
					faceVerts = append(faceVerts, idx)
					continue
				}
				vertex, normal := parseFaceVertex(key, positions, normals, uvs)
				hasNormals = hasNormals && normal
				idx := uint32(len(data.Mesh.Vertices))
				data.Mesh.Vertices = append(data.Mesh.Vertices, vertex)
				vertexMap[key] = idx
				faceVerts = append(faceVerts, idx)
			}

			// Fan triangulation
			for i := 2; i < len(faceVerts); i++ {
				data.Mesh.Triangles = append(data.Mesh.Triangles,
					[3]uint32{faceVerts[0], faceVerts[i-1], faceVerts[i]})
			}

		case "usemtl":
			if len(parts) > 1 {
				slot(parts[1])
			}

		case "mtllib":
			if len(parts) > 1 {
				mtlPath := filepath.Join(filepath.Dir(path), parts[1])
				mtls, err := LoadMTL(mtlPath)
				if err != nil {
					core.Logger().Warn("failed to load MTL file",
						zap.String("path", mtlPath), zap.Error(err))
				} else {
					for k, v := range mtls {
						data.Materials[k] = v
					}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	slot("")
	data.Mesh.Slots = data.Mesh.Slots[:len(data.Mesh.Slots)-1]
	data.SlotNames = data.SlotNames[:len(data.SlotNames)-1]

	if len(data.Mesh.Triangles) == 0 {
		return nil, fmt.Errorf("no mesh data found in OBJ file")
	}
	if !hasNormals {
		data.Mesh.ComputeNormals()
	}
	data.Mesh.ComputeTangents()
	data.Mesh.ComputeRadius()
	return data, nil
}

// LoadMTL parses a Wavefront .mtl material file. Texture paths are relative
// to the .mtl file.
func LoadMTL(path string) (map[string]*MaterialData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := make(map[string]*MaterialData)
	var current *MaterialData
	dir := filepath.Dir(path)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if parts[0] != "newmtl" && current == nil {
			continue
		}

		switch parts[0] {
		case "newmtl":
			if len(parts) > 1 {
				current = &MaterialData{
					Name:         parts[1],
					DiffuseColor: [4]float32{0.8, 0.8, 0.8, 1},
					Roughness:    0.5,
				}
				result[parts[1]] = current
			}
		case "Kd":
			if len(parts) >= 4 {
				c := parseVec3(parts[1:4])
				current.DiffuseColor = [4]float32{c[0], c[1], c[2], current.DiffuseColor[3]}
			}
		case "Ns":
			if len(parts) >= 2 {
				ns, _ := strconv.ParseFloat(parts[1], 32)
				// Convert OBJ shininess (0-1000) to roughness (0-1)
				current.Roughness = max(1.0-float32(ns)/1000.0, 0)
			}
		case "Pm":
			if len(parts) >= 2 {
				pm, _ := strconv.ParseFloat(parts[1], 32)
				current.Metallic = float32(pm)
			}
		case "d", "Tr":
			if len(parts) >= 2 {
				d, _ := strconv.ParseFloat(parts[1], 32)
				if parts[0] == "Tr" {
					d = 1.0 - d // Tr is inverse of d
				}
				current.DiffuseColor[3] = float32(d)
				current.Transparent = d < 1
			}
		case "map_Kd":
			if len(parts) >= 2 {
				current.TexturePath = filepath.Join(dir, parts[len(parts)-1])
			}
		case "map_Bump", "map_bump", "bump", "norm":
			if len(parts) >= 2 {
				current.NormalPath = filepath.Join(dir, parts[len(parts)-1])
			}
		}
	}

	return result, scanner.Err()
}

func parseVec3(parts []string) mgl32.Vec3 {
	var v mgl32.Vec3
	for i := range v {
		f, _ := strconv.ParseFloat(parts[i], 32)
		v[i] = float32(f)
	}
	return v
}

// resolve turns a 1-based, possibly negative OBJ index into a slice index.
func resolve(s string, n int) (int, bool) {
	if s == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	if idx < 0 {
		idx = n + idx + 1
	}
	return idx - 1, idx > 0 && idx <= n
}

// parseFaceVertex parses an OBJ face vertex like "v/vt/vn" and reports
// whether it carried a normal.
func parseFaceVertex(field string, positions, normals []mgl32.Vec3, uvs []mgl32.Vec2) (resource.Vertex, bool) {
	v := resource.Vertex{Normal: mgl32.Vec3{0, 1, 0}}
	parts := strings.Split(field, "/")

	if i, ok := resolve(parts[0], len(positions)); ok {
		v.Position = positions[i]
	}
	if len(parts) >= 2 {
		if i, ok := resolve(parts[1], len(uvs)); ok {
			v.TexCoord = mgl32.Vec2{uvs[i].X(), 1 - uvs[i].Y()}
		}
	}
	hasNormal := false
	if len(parts) >= 3 {
		if i, ok := resolve(parts[2], len(normals)); ok {
			v.Normal = normals[i]
			hasNormal = true
		}
	}
	return v, hasNormal
}

// Insert stores the OBJ's materials and its mesh in caches under prefix.
// Slots whose material is unknown use fallback.
func (d *OBJData) Insert(caches *resource.Caches, prefix string, technique, fallback resource.Identifier) (resource.Identifier, error) {
	b := &builder{
		file:      &SceneFile{Name: prefix},
		caches:    caches,
		opts:      BuildOptions{Technique: technique},
		materials: make(map[string]resource.Identifier),
	}
	for _, m := range d.Materials {
		if err := b.material(m); err != nil {
			return resource.Identifier{}, err
		}
	}

	d.Mesh.Materials = make([]resource.Identifier, len(d.SlotNames))
	for i, name := range d.SlotNames {
		id, ok := b.materials[name]
		if !ok {
			id = fallback
		}
		d.Mesh.Materials[i] = id
	}
	if err := d.Mesh.Validate(); err != nil {
		return resource.Identifier{}, fmt.Errorf("obj %q: %w", d.Name, err)
	}

	id := resource.NewIdentifier(resource.KindMesh, prefix+"/"+d.Name)
	return id, caches.Meshes.Insert(id, d.Mesh)
}
