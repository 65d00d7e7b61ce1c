package world

import (
	"errors"
	"fmt"
)

// ErrDeadEntity is returned when writing a component for an entity that
// was despawned or never spawned.
var ErrDeadEntity = errors.New("world: entity is not alive")

// Entity is a generational entity id. Index slots are recycled after a
// despawn; Generation tells the old and the new occupant apart.
type Entity struct {
	Index      uint32
	Generation uint32
}

// ShardOf maps the entity to a shard by index only, so every generation of
// a slot lands on the same shard.
func (e Entity) ShardOf(shards int) int {
	return int(uint64(e.Index) % uint64(shards))
}

func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.Index, e.Generation)
}

// World allocates entities.
//
// World is not safe for concurrent mutation. Reads (Alive, Column.Get) are
// safe from any number of goroutines while nothing mutates, which is how
// drains use it.
type World struct {
	generations []uint32
	alive       []bool
	free        []uint32
	count       int
}

// New creates an empty world.
func New() *World {
	return &World{}
}

// Spawn allocates an entity, reusing a freed slot when one is available.
func (w *World) Spawn() Entity {
	w.count++
	if n := len(w.free); n > 0 {
		idx := w.free[n-1]
		w.free = w.free[:n-1]
		w.alive[idx] = true
		return Entity{Index: idx, Generation: w.generations[idx]}
	}

	idx := uint32(len(w.generations))
	w.generations = append(w.generations, 0)
	w.alive = append(w.alive, true)
	return Entity{Index: idx}
}

// Despawn frees e's slot. Returns false if e was not alive.
func (w *World) Despawn(e Entity) bool {
	if !w.Alive(e) {
		return false
	}
	w.alive[e.Index] = false
	w.generations[e.Index]++
	w.free = append(w.free, e.Index)
	w.count--
	return true
}

// Alive reports whether e refers to a live entity.
func (w *World) Alive(e Entity) bool {
	if int(e.Index) >= len(w.generations) {
		return false
	}
	return w.alive[e.Index] && w.generations[e.Index] == e.Generation
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.count
}

type slot[T any] struct {
	generation uint32
	set        bool
	value      T
}

// Column stores one component type, at most one value per entity.
// It satisfies targeted.Lookup[Entity, T].
type Column[T any] struct {
	world *World
	slots []slot[T]
}

// NewColumn creates an empty column bound to w.
func NewColumn[T any](w *World) *Column[T] {
	return &Column[T]{world: w}
}

// Insert sets e's value, replacing any previous one.
func (c *Column[T]) Insert(e Entity, value T) error {
	if !c.world.Alive(e) {
		return fmt.Errorf("insert %s: %w", e, ErrDeadEntity)
	}
	for int(e.Index) >= len(c.slots) {
		c.slots = append(c.slots, slot[T]{})
	}
	c.slots[e.Index] = slot[T]{generation: e.Generation, set: true, value: value}
	return nil
}

// Remove clears e's value. Returns false if there was none.
func (c *Column[T]) Remove(e Entity) bool {
	if _, ok := c.Get(e); !ok {
		return false
	}
	c.slots[e.Index] = slot[T]{}
	return true
}

// Get returns e's value. Values of despawned entities are never returned,
// even if the slot has been reused.
func (c *Column[T]) Get(e Entity) (T, bool) {
	var zero T
	if !c.world.Alive(e) || int(e.Index) >= len(c.slots) {
		return zero, false
	}
	s := c.slots[e.Index]
	if !s.set || s.generation != e.Generation {
		return zero, false
	}
	return s.value, true
}
