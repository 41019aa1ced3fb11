package resource

import "github.com/go-gl/mathgl/mgl32"

// ComputeTangents generates per-vertex tangents for tangent-space normal
// mapping from the mesh's UV layout. Triangles with a degenerate UV area are
// skipped; vertices left without a tangent get one perpendicular to their
// normal.
func (m *StaticMesh) ComputeTangents() {
	for i := range m.Vertices {
		m.Vertices[i].Tangent = mgl32.Vec3{}
	}

	for _, tri := range m.Triangles {
		v0, v1, v2 := m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]]

		e1 := v1.Position.Sub(v0.Position)
		e2 := v2.Position.Sub(v0.Position)

		du1 := v1.TexCoord.X() - v0.TexCoord.X()
		dv1 := v1.TexCoord.Y() - v0.TexCoord.Y()
		du2 := v2.TexCoord.X() - v0.TexCoord.X()
		dv2 := v2.TexCoord.Y() - v0.TexCoord.Y()

		denom := du1*dv2 - du2*dv1
		if denom == 0 {
			continue
		}
		t := e1.Mul(dv2 / denom).Sub(e2.Mul(dv1 / denom))
		for _, idx := range tri {
			m.Vertices[idx].Tangent = m.Vertices[idx].Tangent.Add(t)
		}
	}

	// Gram-Schmidt against the normal.
	for i := range m.Vertices {
		n := m.Vertices[i].Normal
		t := m.Vertices[i].Tangent
		t = t.Sub(n.Mul(n.Dot(t)))
		if t.Dot(t) < 1e-8 {
			if abs(n.X()) < 0.9 {
				t = mgl32.Vec3{1, 0, 0}.Sub(n.Mul(n.X()))
			} else {
				t = mgl32.Vec3{0, 1, 0}.Sub(n.Mul(n.Y()))
			}
		}
		m.Vertices[i].Tangent = t.Normalize()
	}
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// ComputeNormals replaces vertex normals with the area-weighted average of
// the faces sharing each vertex.
func (m *StaticMesh) ComputeNormals() {
	for i := range m.Vertices {
		m.Vertices[i].Normal = mgl32.Vec3{}
	}
	for _, tri := range m.Triangles {
		p0, p1, p2 := m.Vertices[tri[0]].Position, m.Vertices[tri[1]].Position, m.Vertices[tri[2]].Position
		n := p1.Sub(p0).Cross(p2.Sub(p0))
		for _, idx := range tri {
			m.Vertices[idx].Normal = m.Vertices[idx].Normal.Add(n)
		}
	}
	for i := range m.Vertices {
		n := m.Vertices[i].Normal
		if n.Dot(n) == 0 {
			m.Vertices[i].Normal = mgl32.Vec3{0, 1, 0}
			continue
		}
		m.Vertices[i].Normal = n.Normalize()
	}
}
