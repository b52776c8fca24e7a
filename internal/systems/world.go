// Package systems implements the game-logic systems that run on top of
// the ECS scheduler: world/spatial management, combat, inventory,
// quests, AI, and per-tick object movement.
package systems

import (
	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
	"github.com/kcenon/common-game-server-sub000/internal/mathutil"
	"github.com/kcenon/common-game-server-sub000/internal/spatial"
)

// WorldSystem maintains a spatial index per map instance, synchronizes
// entity positions into it every PreUpdate, and answers interest-management
// and map-transition queries.
type WorldSystem struct {
	transforms       *ecs.ComponentStorage[components.Transform]
	memberships      *ecs.ComponentStorage[components.MapMembership]
	mapInstances     *ecs.ComponentStorage[components.MapInstance]
	visibilityRanges *ecs.ComponentStorage[components.VisibilityRange]
	zones            *ecs.ComponentStorage[components.Zone]

	spatialIndices map[ecs.Entity]*spatial.Index
	cellSize       float64
}

// NewWorldSystem wires a WorldSystem to the component storages it reads
// and writes. cellSize <= 0 falls back to components.DefaultCellSize.
func NewWorldSystem(
	transforms *ecs.ComponentStorage[components.Transform],
	memberships *ecs.ComponentStorage[components.MapMembership],
	mapInstances *ecs.ComponentStorage[components.MapInstance],
	visibilityRanges *ecs.ComponentStorage[components.VisibilityRange],
	zones *ecs.ComponentStorage[components.Zone],
	cellSize float64,
) *WorldSystem {
	if cellSize <= 0 {
		cellSize = components.DefaultCellSize
	}
	return &WorldSystem{
		transforms:       transforms,
		memberships:      memberships,
		mapInstances:     mapInstances,
		visibilityRanges: visibilityRanges,
		zones:            zones,
		spatialIndices:   make(map[ecs.Entity]*spatial.Index),
		cellSize:         cellSize,
	}
}

// Stage reports PreUpdate: spatial state must be fresh before any
// system that queries it runs later in the same tick.
func (s *WorldSystem) Stage() ecs.Stage { return ecs.PreUpdate }

// Name identifies this system for scheduler diagnostics.
func (s *WorldSystem) Name() string { return "WorldSystem" }

// Execute synchronizes every map-member entity's position into its
// map's spatial index. deltaTime is unused; synchronization is purely
// positional.
func (s *WorldSystem) Execute(_ float64) {
	s.synchronizePositions()
}

func (s *WorldSystem) synchronizePositions() {
	for i := 0; i < s.memberships.Size(); i++ {
		id := s.memberships.EntityAt(i)
		entity := ecs.NewEntity(id, 0)
		membership := s.memberships.Get(entity)
		if membership == nil || !s.transforms.Has(entity) {
			continue
		}
		transform := s.transforms.Get(entity)
		s.indexFor(membership.MapEntity).Update(entity, transform.Position)
	}
}

func (s *WorldSystem) indexFor(mapEntity ecs.Entity) *spatial.Index {
	idx, ok := s.spatialIndices[mapEntity]
	if !ok {
		idx = spatial.NewIndex(s.cellSize)
		s.spatialIndices[mapEntity] = idx
	}
	return idx
}

// GetVisibleEntities returns every entity within viewer's visibility
// range in viewer's current map instance. Returns nil if viewer has no
// Transform or MapMembership.
func (s *WorldSystem) GetVisibleEntities(viewer ecs.Entity) []ecs.Entity {
	if !s.memberships.Has(viewer) || !s.transforms.Has(viewer) {
		return nil
	}
	membership := s.memberships.Get(viewer)
	transform := s.transforms.Get(viewer)

	radius := components.DefaultVisibilityRange
	if s.visibilityRanges.Has(viewer) {
		radius = s.visibilityRanges.Get(viewer).Range
	}
	return s.QueryRadius(membership.MapEntity, transform.Position, radius)
}

// QueryRadius returns every entity within radius of center, within the
// map instance identified by mapEntity. The spatial grid narrows
// candidates to overlapping cells; this method then applies an exact
// XZ-distance filter using each candidate's Transform.
func (s *WorldSystem) QueryRadius(mapEntity ecs.Entity, center mathutil.Vector3, radius float64) []ecs.Entity {
	idx, ok := s.spatialIndices[mapEntity]
	if !ok {
		return nil
	}

	candidates := idx.QueryRadius(center, radius)
	radiusSq := radius * radius
	var result []ecs.Entity
	for _, e := range candidates {
		if !s.transforms.Has(e) {
			continue
		}
		pos := s.transforms.Get(e).Position
		dx, dz := pos.X-center.X, pos.Z-center.Z
		if dx*dx+dz*dz <= radiusSq {
			result = append(result, e)
		}
	}
	return result
}

// TransferEntity moves entity to targetMapEntity at destination,
// updating its Transform, MapMembership, and spatial index placement.
// The entity's zone is reset to zero; zone assignment is the caller's
// responsibility following the transition.
func (s *WorldSystem) TransferEntity(entity, targetMapEntity ecs.Entity, destination mathutil.Vector3) components.TransitionResult {
	if !s.mapInstances.Has(targetMapEntity) {
		return components.TransitionInvalidMap
	}
	if !s.memberships.Has(entity) || !s.transforms.Has(entity) {
		return components.TransitionEntityNotFound
	}

	membership := s.memberships.Get(entity)
	transform := s.transforms.Get(entity)

	if idx, ok := s.spatialIndices[membership.MapEntity]; ok {
		idx.Remove(entity)
	}

	transform.Position = destination
	membership.MapEntity = targetMapEntity
	membership.ZoneID = 0

	s.indexFor(targetMapEntity).Insert(entity, destination)
	return components.TransitionSuccess
}

// GetEntityZoneFlags returns the zone flags of entity's current zone,
// or ZoneFlagNone if it has no membership or no matching Zone exists.
func (s *WorldSystem) GetEntityZoneFlags(entity ecs.Entity) components.ZoneFlags {
	if !s.memberships.Has(entity) {
		return components.ZoneFlagNone
	}
	membership := s.memberships.Get(entity)

	for i := 0; i < s.zones.Size(); i++ {
		id := s.zones.EntityAt(i)
		zoneEntity := ecs.NewEntity(id, 0)
		zone := s.zones.Get(zoneEntity)
		if zone.ZoneID == membership.ZoneID && zone.MapEntity == membership.MapEntity {
			return zone.Flags
		}
	}
	return components.ZoneFlagNone
}

// GetSpatialIndex returns the spatial index tracking mapEntity, or nil
// if no entity has ever been synchronized into it.
func (s *WorldSystem) GetSpatialIndex(mapEntity ecs.Entity) *spatial.Index {
	return s.spatialIndices[mapEntity]
}

// MapCount returns the number of map instances with a tracked spatial
// index.
func (s *WorldSystem) MapCount() int {
	return len(s.spatialIndices)
}
