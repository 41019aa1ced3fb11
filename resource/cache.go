package resource

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidIdentifier = errors.New("invalid resource identifier")
	ErrNotFound          = errors.New("resource not found")
)

type entry[T any] struct {
	value *T
	refs  int
}

// Cache is a reference-counted resource arena keyed by Identifier.
// Inserted resources start with one reference and are evicted when their
// count drops to zero.
type Cache[T any] struct {
	entries map[Identifier]*entry[T]
	onEvict func(Identifier, *T)
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[Identifier]*entry[T])}
}

// OnEvict registers fn to run when a resource leaves the cache.
func (c *Cache[T]) OnEvict(fn func(Identifier, *T)) {
	c.onEvict = fn
}

// Insert stores v under id, replacing any previous value but keeping its
// reference count.
func (c *Cache[T]) Insert(id Identifier, v *T) error {
	if !id.Valid() {
		return ErrInvalidIdentifier
	}
	if e, ok := c.entries[id]; ok {
		if c.onEvict != nil && e.value != v {
			c.onEvict(id, e.value)
		}
		e.value = v
		return nil
	}
	c.entries[id] = &entry[T]{value: v, refs: 1}
	return nil
}

// Acquire looks a resource up without touching its reference count.
func (c *Cache[T]) Acquire(id Identifier) (*T, bool) {
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Get is Acquire with an error naming the missing identifier.
func (c *Cache[T]) Get(id Identifier) (*T, error) {
	v, ok := c.Acquire(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id.String())
	}
	return v, nil
}

func (c *Cache[T]) Contains(id Identifier) bool {
	_, ok := c.entries[id]
	return ok
}

func (c *Cache[T]) IncrementReference(id Identifier) bool {
	e, ok := c.entries[id]
	if !ok {
		return false
	}
	e.refs++
	return true
}

// DecrementReference drops one reference and reports whether the resource
// was evicted.
func (c *Cache[T]) DecrementReference(id Identifier) bool {
	e, ok := c.entries[id]
	if !ok {
		return false
	}
	e.refs--
	if e.refs > 0 {
		return false
	}
	delete(c.entries, id)
	if c.onEvict != nil {
		c.onEvict(id, e.value)
	}
	return true
}

func (c *Cache[T]) References(id Identifier) int {
	if e, ok := c.entries[id]; ok {
		return e.refs
	}
	return 0
}

func (c *Cache[T]) Len() int { return len(c.entries) }

// Caches bundles one cache per resource kind.
type Caches struct {
	Textures   *Cache[Texture]
	Techniques *Cache[Technique]
	Materials  *Cache[Material]
	Effects    *Cache[Effect]
	Meshes     *Cache[StaticMesh]
}

func NewCaches() *Caches {
	return &Caches{
		Textures:   NewCache[Texture](),
		Techniques: NewCache[Technique](),
		Materials:  NewCache[Material](),
		Effects:    NewCache[Effect](),
		Meshes:     NewCache[StaticMesh](),
	}
}
