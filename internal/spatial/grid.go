// Package spatial implements the grid-based spatial index used for
// interest management and radius queries. Only X and Z are indexed; Y
// is "up" and does not affect cell membership.
//
// The index tracks cell membership only, not exact positions: QueryRadius
// returns every entity in a cell range overlapping the query circle, not
// a precisely-filtered circle. Callers that hold the authoritative
// Transform component (internal/systems.WorldSystem) perform the final
// exact-distance check themselves.
package spatial

import (
	"math"

	"github.com/kcenon/common-game-server-sub000/internal/ecs"
	"github.com/kcenon/common-game-server-sub000/internal/mathutil"
)

// CellCoord is a grid cell's integer coordinate.
type CellCoord struct {
	X, Y int32
}

// Index partitions entities into uniform grid cells for efficient
// insert/update/remove and cell-range queries. Not safe for concurrent
// use; callers must synchronize externally.
type Index struct {
	cellSize    float64
	cells       map[CellCoord][]ecs.Entity
	entityCells map[ecs.Entity]CellCoord
}

// NewIndex returns an index with the given cell size, in world units.
func NewIndex(cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = 32.0
	}
	return &Index{
		cellSize:    cellSize,
		cells:       make(map[CellCoord][]ecs.Entity),
		entityCells: make(map[ecs.Entity]CellCoord),
	}
}

// WorldToCell returns the cell coordinate containing pos.
func (idx *Index) WorldToCell(pos mathutil.Vector3) CellCoord {
	return CellCoord{
		X: int32(math.Floor(pos.X / idx.cellSize)),
		Y: int32(math.Floor(pos.Z / idx.cellSize)),
	}
}

// Insert places entity at position. Equivalent to Update if already
// tracked.
func (idx *Index) Insert(entity ecs.Entity, position mathutil.Vector3) {
	if idx.Contains(entity) {
		idx.Update(entity, position)
		return
	}
	cell := idx.WorldToCell(position)
	idx.addToCell(entity, cell)
}

// Update moves entity to the cell containing newPosition, reassigning
// only if the cell changed. Equivalent to Insert if not yet tracked.
func (idx *Index) Update(entity ecs.Entity, newPosition mathutil.Vector3) {
	oldCell, ok := idx.entityCells[entity]
	if !ok {
		idx.Insert(entity, newPosition)
		return
	}
	newCell := idx.WorldToCell(newPosition)
	if oldCell == newCell {
		return
	}
	idx.removeFromCell(entity, oldCell)
	idx.addToCell(entity, newCell)
}

// Remove drops entity from the index. No-op if untracked.
func (idx *Index) Remove(entity ecs.Entity) {
	cell, ok := idx.entityCells[entity]
	if !ok {
		return
	}
	idx.removeFromCell(entity, cell)
	delete(idx.entityCells, entity)
}

// Clear removes every tracked entity.
func (idx *Index) Clear() {
	idx.cells = make(map[CellCoord][]ecs.Entity)
	idx.entityCells = make(map[ecs.Entity]CellCoord)
}

// QueryRadius returns every entity in a cell range overlapping the
// circle of the given radius around center. This is a broad-phase
// result only: cells at the corners of the bounding range may lie
// partly outside the circle, so entities they contain can be farther
// from center than radius. Callers that need an exact circle should
// filter the result by each entity's real position.
func (idx *Index) QueryRadius(center mathutil.Vector3, radius float64) []ecs.Entity {
	var result []ecs.Entity
	if radius <= 0 {
		return result
	}

	minCell := idx.WorldToCell(mathutil.Vector3{X: center.X - radius, Y: center.Y, Z: center.Z - radius})
	maxCell := idx.WorldToCell(mathutil.Vector3{X: center.X + radius, Y: center.Y, Z: center.Z + radius})

	for cx := minCell.X; cx <= maxCell.X; cx++ {
		for cy := minCell.Y; cy <= maxCell.Y; cy++ {
			result = append(result, idx.cells[CellCoord{X: cx, Y: cy}]...)
		}
	}
	return result
}

// QueryPosition returns every entity in the cell containing pos.
func (idx *Index) QueryPosition(pos mathutil.Vector3) []ecs.Entity {
	return idx.QueryCell(idx.WorldToCell(pos))
}

// QueryCell returns every entity in the given cell coordinate.
func (idx *Index) QueryCell(cell CellCoord) []ecs.Entity {
	entities := idx.cells[cell]
	out := make([]ecs.Entity, len(entities))
	copy(out, entities)
	return out
}

// Size returns the number of tracked entities.
func (idx *Index) Size() int {
	return len(idx.entityCells)
}

// CellSize returns the configured cell edge length.
func (idx *Index) CellSize() float64 {
	return idx.cellSize
}

// Contains reports whether entity is currently tracked.
func (idx *Index) Contains(entity ecs.Entity) bool {
	_, ok := idx.entityCells[entity]
	return ok
}

func (idx *Index) removeFromCell(entity ecs.Entity, cell CellCoord) {
	entities := idx.cells[cell]
	for i, e := range entities {
		if e == entity {
			entities[i] = entities[len(entities)-1]
			entities = entities[:len(entities)-1]
			break
		}
	}
	if len(entities) == 0 {
		delete(idx.cells, cell)
	} else {
		idx.cells[cell] = entities
	}
}

func (idx *Index) addToCell(entity ecs.Entity, cell CellCoord) {
	idx.cells[cell] = append(idx.cells[cell], entity)
	idx.entityCells[entity] = cell
}
