package ecs

// componentPool is the type-erased interface a Registry uses to clean up
// components on entity destruction, without knowing each storage's
// concrete component type.
type componentPool interface {
	Remove(e Entity)
	Has(e Entity) bool
	Clear()
	Size() int
	EntityAt(index int) uint32
	Version() uint32
}

// Registry owns entity lifecycle: creation, versioned recycling, and
// immediate or deferred destruction. Component storages register
// themselves so destruction automatically drops their data too.
type Registry struct {
	versions       []uint8
	alive          []bool
	freeList       []uint32
	pendingDestroy []Entity
	storages       []componentPool
	count          int
}

// NewRegistry returns an empty entity registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterStorage registers a component pool for automatic cleanup on
// entity destruction. The registry does not own the pool.
func (r *Registry) RegisterStorage(pool componentPool) {
	r.storages = append(r.storages, pool)
}

// Create allocates a new entity, recycling the oldest freed index if one
// is available.
func (r *Registry) Create() Entity {
	if len(r.freeList) > 0 {
		id := r.freeList[0]
		r.freeList = r.freeList[1:]
		r.alive[id] = true
		r.count++
		return NewEntity(id, r.versions[id])
	}

	id := uint32(len(r.versions))
	r.versions = append(r.versions, 0)
	r.alive = append(r.alive, true)
	r.count++
	return NewEntity(id, 0)
}

// Destroy immediately destroys e and removes all of its components. A
// call on a dead entity is a no-op.
func (r *Registry) Destroy(e Entity) {
	if !r.IsAlive(e) {
		return
	}
	r.destroyInternal(e)
}

// DestroyDeferred queues e for destruction at the next FlushDeferred. A
// call on a dead entity is a no-op.
func (r *Registry) DestroyDeferred(e Entity) {
	if !r.IsAlive(e) {
		return
	}
	r.pendingDestroy = append(r.pendingDestroy, e)
}

// FlushDeferred destroys every entity queued via DestroyDeferred. Entities
// that died between queueing and flushing are silently skipped.
func (r *Registry) FlushDeferred() {
	pending := r.pendingDestroy
	r.pendingDestroy = nil
	for _, e := range pending {
		if r.IsAlive(e) {
			r.destroyInternal(e)
		}
	}
}

func (r *Registry) destroyInternal(e Entity) {
	id := e.ID()
	r.alive[id] = false
	r.versions[id]++
	r.count--
	for _, s := range r.storages {
		s.Remove(e)
	}
	r.freeList = append(r.freeList, id)
}

// IsAlive reports whether e refers to a currently live entity: its index
// is in range, the slot is marked alive, and the version matches.
func (r *Registry) IsAlive(e Entity) bool {
	id := e.ID()
	if int(id) >= len(r.versions) {
		return false
	}
	return r.alive[id] && r.versions[id] == e.Version()
}

// Count returns the number of currently alive entities.
func (r *Registry) Count() int {
	return r.count
}

// Capacity returns the number of indices ever allocated, including those
// sitting on the free list.
func (r *Registry) Capacity() int {
	return len(r.versions)
}
