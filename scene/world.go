package scene

import "iter"

type Entity uint32

// Pair joins an entity's transform with one of its other components.
type Pair[C any] struct {
	Transform Transform
	Component C
}

// Query is the read-only view of a world the renderer consumes. Each method
// returns a lazy sequence that may be ranged over any number of times.
// Iteration order is unspecified.
type Query interface {
	MeshInstances() iter.Seq2[Entity, Pair[StaticMeshInstance]]
	DirectionalLights() iter.Seq2[Entity, Pair[DirectionalLight]]
	PointLights() iter.Seq2[Entity, Pair[PointLight]]
	SpotLights() iter.Seq2[Entity, Pair[SpotLight]]
}

// Store is a dense component array indexed by entity.
type Store[T any] struct {
	entities []Entity
	values   []T
	index    map[Entity]int
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{index: make(map[Entity]int)}
}

func (s *Store[T]) Set(e Entity, v T) {
	if i, ok := s.index[e]; ok {
		s.values[i] = v
		return
	}
	s.index[e] = len(s.values)
	s.entities = append(s.entities, e)
	s.values = append(s.values, v)
}

func (s *Store[T]) Get(e Entity) (T, bool) {
	i, ok := s.index[e]
	if !ok {
		var zero T
		return zero, false
	}
	return s.values[i], true
}

// Remove swaps the last element into the removed slot.
func (s *Store[T]) Remove(e Entity) {
	i, ok := s.index[e]
	if !ok {
		return
	}
	last := len(s.values) - 1
	s.entities[i] = s.entities[last]
	s.values[i] = s.values[last]
	s.index[s.entities[i]] = i
	s.entities = s.entities[:last]
	s.values = s.values[:last]
	delete(s.index, e)
}

func (s *Store[T]) Len() int { return len(s.values) }

func (s *Store[T]) All() iter.Seq2[Entity, T] {
	return func(yield func(Entity, T) bool) {
		for i, e := range s.entities {
			if !yield(e, s.values[i]) {
				return
			}
		}
	}
}

// World owns entities and their components.
type World struct {
	next Entity

	transforms  *Store[Transform]
	meshes      *Store[StaticMeshInstance]
	directional *Store[DirectionalLight]
	points      *Store[PointLight]
	spots       *Store[SpotLight]
}

func NewWorld() *World {
	return &World{
		transforms:  NewStore[Transform](),
		meshes:      NewStore[StaticMeshInstance](),
		directional: NewStore[DirectionalLight](),
		points:      NewStore[PointLight](),
		spots:       NewStore[SpotLight](),
	}
}

// Create returns a new entity with an identity transform.
func (w *World) Create() Entity {
	w.next++
	e := w.next
	w.transforms.Set(e, NewTransform())
	return e
}

func (w *World) Destroy(e Entity) {
	w.transforms.Remove(e)
	w.meshes.Remove(e)
	w.directional.Remove(e)
	w.points.Remove(e)
	w.spots.Remove(e)
}

func (w *World) SetTransform(e Entity, t Transform) { w.transforms.Set(e, t) }

func (w *World) Transform(e Entity) (Transform, bool) { return w.transforms.Get(e) }

func (w *World) AddMeshInstance(e Entity, m StaticMeshInstance) { w.meshes.Set(e, m) }

func (w *World) AddDirectionalLight(e Entity, l DirectionalLight) { w.directional.Set(e, l) }

func (w *World) AddPointLight(e Entity, l PointLight) { w.points.Set(e, l) }

func (w *World) AddSpotLight(e Entity, l SpotLight) { w.spots.Set(e, l) }

func (w *World) MeshInstances() iter.Seq2[Entity, Pair[StaticMeshInstance]] {
	return join(w.transforms, w.meshes)
}

func (w *World) DirectionalLights() iter.Seq2[Entity, Pair[DirectionalLight]] {
	return join(w.transforms, w.directional)
}

func (w *World) PointLights() iter.Seq2[Entity, Pair[PointLight]] {
	return join(w.transforms, w.points)
}

func (w *World) SpotLights() iter.Seq2[Entity, Pair[SpotLight]] {
	return join(w.transforms, w.spots)
}

// join visits entities that have both a transform and a C component.
func join[C any](transforms *Store[Transform], components *Store[C]) iter.Seq2[Entity, Pair[C]] {
	return func(yield func(Entity, Pair[C]) bool) {
		for e, c := range components.All() {
			t, ok := transforms.Get(e)
			if !ok {
				continue
			}
			if !yield(e, Pair[C]{Transform: t, Component: c}) {
				return
			}
		}
	}
}
