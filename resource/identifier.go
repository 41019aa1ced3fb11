package resource

import (
	"hash/fnv"
	"strings"
)

const (
	KindTexture   = "texture"
	KindTechnique = "technique"
	KindMaterial  = "material"
	KindEffect    = "effect"
	KindMesh      = "static_mesh"
)

// Identifier names a resource as "kind://path" and carries the 64-bit hash
// of that name. The zero value identifies nothing.
type Identifier struct {
	value uint64
	name  string
}

func NewIdentifier(kind, path string) Identifier {
	path = strings.ReplaceAll(path, "\\", "/")
	return ParseIdentifier(kind + "://" + path)
}

// ParseIdentifier hashes an already formed "kind://path" name.
func ParseIdentifier(name string) Identifier {
	if name == "" {
		return Identifier{}
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	return Identifier{value: h.Sum64(), name: name}
}

func (id Identifier) Valid() bool    { return id.name != "" }
func (id Identifier) Value() uint64  { return id.value }
func (id Identifier) String() string { return id.name }

// Compare orders identifiers by hash, then by name.
func (id Identifier) Compare(other Identifier) int {
	switch {
	case id.value < other.value:
		return -1
	case id.value > other.value:
		return 1
	}
	return strings.Compare(id.name, other.name)
}
