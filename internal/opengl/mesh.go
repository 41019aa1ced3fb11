package opengl

import (
	"fmt"
	"unsafe"

	gl "github.com/go-gl/gl/v4.3-core/gl"
	"go.uber.org/zap"

	"deferred-renderer/core"
	"deferred-renderer/renderer"
	"deferred-renderer/resource"
)

// Default batch capacity. A mesh larger than this gets a batch of its own.
const (
	DefaultBatchVertices = 1 << 18
	DefaultBatchIndices  = 3 << 18
)

// batch is one VAO with a vertex and an index buffer that meshes are packed
// into back to back.
type batch struct {
	vao, vbo, ebo uint32

	vertexCap, indexCap   int
	vertexUsed, indexUsed int
}

// MeshBatches uploads static meshes into shared batches, once per identifier.
type MeshBatches struct {
	log     *zap.Logger
	batches []*batch
	ranges  map[resource.Identifier]renderer.BufferRange
}

var _ renderer.MeshBuffers = (*MeshBatches)(nil)

func NewMeshBatches() *MeshBatches {
	return &MeshBatches{
		log:    core.Logger(),
		ranges: make(map[resource.Identifier]renderer.BufferRange),
	}
}

func (m *MeshBatches) Acquire(id resource.Identifier, mesh *resource.StaticMesh) (renderer.BufferRange, error) {
	if r, ok := m.ranges[id]; ok {
		return r, nil
	}
	if len(mesh.Vertices) == 0 || len(mesh.Triangles) == 0 {
		return renderer.BufferRange{}, fmt.Errorf("mesh %q is empty", id)
	}

	vertices, indices := len(mesh.Vertices), mesh.IndexCount()
	index := len(m.batches) - 1
	if index < 0 || !m.batches[index].fits(vertices, indices) {
		b := newBatch(max(DefaultBatchVertices, vertices), max(DefaultBatchIndices, indices))
		m.batches = append(m.batches, b)
		index = len(m.batches) - 1
		m.log.Debug("mesh batch created",
			zap.Int("batch", index),
			zap.Int("vertices", b.vertexCap),
			zap.Int("indices", b.indexCap))
	}
	b := m.batches[index]

	stride := int(unsafe.Sizeof(resource.Vertex{}))
	gl.BindBuffer(gl.ARRAY_BUFFER, b.vbo)
	gl.BufferSubData(gl.ARRAY_BUFFER, b.vertexUsed*stride, vertices*stride, gl.Ptr(mesh.Vertices))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	idx := mesh.Indices()
	gl.BindVertexArray(b.vao)
	gl.BufferSubData(gl.ELEMENT_ARRAY_BUFFER, 4*b.indexUsed, 4*indices, gl.Ptr(idx))

	r := renderer.BufferRange{Batch: index, BaseIndex: b.indexUsed, BaseVertex: b.vertexUsed}
	b.vertexUsed += vertices
	b.indexUsed += indices
	m.ranges[id] = r
	return r, nil
}

func (m *MeshBatches) BindBatch(index int) error {
	if index < 0 || index >= len(m.batches) {
		return fmt.Errorf("mesh batch %d out of range [0,%d)", index, len(m.batches))
	}
	gl.BindVertexArray(m.batches[index].vao)
	return nil
}

// Release forgets a mesh so its next Acquire uploads it again. Its space is
// not reclaimed until Destroy.
func (m *MeshBatches) Release(id resource.Identifier) {
	delete(m.ranges, id)
}

// ReleaseMeshes calls Release whenever a mesh leaves or is replaced in the
// cache, so a reloaded mesh never draws from its old range.
func (m *MeshBatches) ReleaseMeshes(meshes *resource.Cache[resource.StaticMesh]) {
	meshes.OnEvict(func(id resource.Identifier, _ *resource.StaticMesh) {
		m.Release(id)
	})
}

func (m *MeshBatches) Destroy() {
	gl.BindVertexArray(0)
	for _, b := range m.batches {
		gl.DeleteVertexArrays(1, &b.vao)
		gl.DeleteBuffers(1, &b.vbo)
		gl.DeleteBuffers(1, &b.ebo)
	}
	m.batches = nil
	clear(m.ranges)
}

func (b *batch) fits(vertices, indices int) bool {
	return b.vertexUsed+vertices <= b.vertexCap && b.indexUsed+indices <= b.indexCap
}

func newBatch(vertexCap, indexCap int) *batch {
	b := &batch{vertexCap: vertexCap, indexCap: indexCap}
	stride := int32(unsafe.Sizeof(resource.Vertex{}))

	gl.GenVertexArrays(1, &b.vao)
	gl.GenBuffers(1, &b.vbo)
	gl.GenBuffers(1, &b.ebo)
	gl.BindVertexArray(b.vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, b.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, vertexCap*int(stride), nil, gl.STATIC_DRAW)

	var v resource.Vertex
	attribs := []struct {
		size   int32
		offset uintptr
	}{
		{3, unsafe.Offsetof(v.Position)},
		{3, unsafe.Offsetof(v.Normal)},
		{3, unsafe.Offsetof(v.Tangent)},
		{2, unsafe.Offsetof(v.TexCoord)},
	}
	for i, a := range attribs {
		gl.EnableVertexAttribArray(uint32(i))
		gl.VertexAttribPointerWithOffset(uint32(i), a.size, gl.FLOAT, false, stride, a.offset)
	}

	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, b.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, 4*indexCap, nil, gl.STATIC_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return b
}
