package systems

import (
	"testing"

	"github.com/kcenon/common-game-server-sub000/internal/components"
	"github.com/kcenon/common-game-server-sub000/internal/ecs"
	"github.com/kcenon/common-game-server-sub000/internal/mathutil"
)

type worldFixture struct {
	registry         *ecs.Registry
	transforms       *ecs.ComponentStorage[components.Transform]
	memberships      *ecs.ComponentStorage[components.MapMembership]
	mapInstances     *ecs.ComponentStorage[components.MapInstance]
	visibilityRanges *ecs.ComponentStorage[components.VisibilityRange]
	zones            *ecs.ComponentStorage[components.Zone]
	system           *WorldSystem
}

func newWorldFixture() *worldFixture {
	f := &worldFixture{
		registry:         ecs.NewRegistry(),
		transforms:       ecs.NewComponentStorage[components.Transform](),
		memberships:      ecs.NewComponentStorage[components.MapMembership](),
		mapInstances:     ecs.NewComponentStorage[components.MapInstance](),
		visibilityRanges: ecs.NewComponentStorage[components.VisibilityRange](),
		zones:            ecs.NewComponentStorage[components.Zone](),
	}
	f.registry.RegisterStorage(f.transforms)
	f.registry.RegisterStorage(f.memberships)
	f.registry.RegisterStorage(f.mapInstances)
	f.registry.RegisterStorage(f.visibilityRanges)
	f.registry.RegisterStorage(f.zones)
	f.system = NewWorldSystem(f.transforms, f.memberships, f.mapInstances, f.visibilityRanges, f.zones, 10)
	return f
}

func (f *worldFixture) spawnAt(mapEntity ecs.Entity, pos mathutil.Vector3) ecs.Entity {
	e := f.registry.Create()
	f.transforms.Add(e, components.NewTransform(pos))
	f.memberships.Add(e, components.MapMembership{MapEntity: mapEntity})
	return e
}

func TestExecuteSynchronizesPositionsIntoSpatialIndex(t *testing.T) {
	f := newWorldFixture()
	mapEntity := f.registry.Create()
	f.mapInstances.Add(mapEntity, components.MapInstance{MapID: 1})
	viewer := f.spawnAt(mapEntity, mathutil.Vector3{X: 1, Z: 1})

	f.system.Execute(0.016)

	idx := f.system.GetSpatialIndex(mapEntity)
	if idx == nil {
		t.Fatal("expected a spatial index for the map")
	}
	if !idx.Contains(viewer) {
		t.Fatal("expected viewer tracked in the map's index")
	}
}

func TestGetVisibleEntitiesUsesDefaultRangeWhenAbsent(t *testing.T) {
	f := newWorldFixture()
	mapEntity := f.registry.Create()
	f.mapInstances.Add(mapEntity, components.MapInstance{MapID: 1})
	viewer := f.spawnAt(mapEntity, mathutil.Vector3{X: 0, Z: 0})
	near := f.spawnAt(mapEntity, mathutil.Vector3{X: 5, Z: 0})
	far := f.spawnAt(mapEntity, mathutil.Vector3{X: 1000, Z: 1000})

	f.system.Execute(0.016)

	visible := f.system.GetVisibleEntities(viewer)
	has := func(e ecs.Entity) bool {
		for _, v := range visible {
			if v == e {
				return true
			}
		}
		return false
	}
	if !has(near) {
		t.Fatal("expected near entity to be visible")
	}
	if has(far) {
		t.Fatal("expected far entity to be excluded")
	}
}

func TestGetVisibleEntitiesReturnsNilWithoutMembership(t *testing.T) {
	f := newWorldFixture()
	lonely := f.registry.Create()
	if got := f.system.GetVisibleEntities(lonely); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestQueryRadiusAppliesExactDistanceFilterAfterGridBounding(t *testing.T) {
	f := newWorldFixture()
	mapEntity := f.registry.Create()
	f.mapInstances.Add(mapEntity, components.MapInstance{MapID: 1})
	// Cell size 10: both entities land in the grid's candidate cell
	// range for a radius-5 query from the origin, but only one is
	// within the exact circle.
	inside := f.spawnAt(mapEntity, mathutil.Vector3{X: 3, Z: 0})
	outsideCircle := f.spawnAt(mapEntity, mathutil.Vector3{X: 0, Z: 9})

	f.system.Execute(0.016)

	got := f.system.QueryRadius(mapEntity, mathutil.Vector3{X: 0, Z: 0}, 5)
	found := map[ecs.Entity]bool{}
	for _, e := range got {
		found[e] = true
	}
	if !found[inside] {
		t.Fatal("expected entity within the exact radius to be included")
	}
	if found[outsideCircle] {
		t.Fatal("expected entity outside the exact radius to be excluded despite sharing a candidate cell")
	}
}

func TestTransferEntityMovesAcrossMapsAndResetsZone(t *testing.T) {
	f := newWorldFixture()
	origin := f.registry.Create()
	f.mapInstances.Add(origin, components.MapInstance{MapID: 1})
	destinationMap := f.registry.Create()
	f.mapInstances.Add(destinationMap, components.MapInstance{MapID: 2})

	entity := f.spawnAt(origin, mathutil.Vector3{X: 0, Z: 0})
	f.memberships.Get(entity).ZoneID = 7
	f.system.Execute(0.016)

	result := f.system.TransferEntity(entity, destinationMap, mathutil.Vector3{X: 50, Z: 50})
	if result != components.TransitionSuccess {
		t.Fatalf("TransferEntity = %v, want Success", result)
	}

	membership := f.memberships.Get(entity)
	if membership.MapEntity != destinationMap || membership.ZoneID != 0 {
		t.Fatalf("membership = %+v, want map=%v zone=0", membership, destinationMap)
	}
	if f.transforms.Get(entity).Position != (mathutil.Vector3{X: 50, Z: 50}) {
		t.Fatalf("Transform not updated to destination")
	}

	oldIdx := f.system.GetSpatialIndex(origin)
	if oldIdx.Contains(entity) {
		t.Fatal("expected entity removed from origin map's index")
	}
	newIdx := f.system.GetSpatialIndex(destinationMap)
	if !newIdx.Contains(entity) {
		t.Fatal("expected entity tracked in destination map's index")
	}
}

func TestTransferEntityRejectsInvalidMap(t *testing.T) {
	f := newWorldFixture()
	origin := f.registry.Create()
	f.mapInstances.Add(origin, components.MapInstance{MapID: 1})
	entity := f.spawnAt(origin, mathutil.Vector3{})
	invalidMap := f.registry.Create() // no MapInstance component

	if got := f.system.TransferEntity(entity, invalidMap, mathutil.Vector3{}); got != components.TransitionInvalidMap {
		t.Fatalf("TransferEntity = %v, want InvalidMap", got)
	}
}

func TestTransferEntityRejectsMissingEntity(t *testing.T) {
	f := newWorldFixture()
	destinationMap := f.registry.Create()
	f.mapInstances.Add(destinationMap, components.MapInstance{MapID: 1})
	bare := f.registry.Create() // no Transform/MapMembership

	if got := f.system.TransferEntity(bare, destinationMap, mathutil.Vector3{}); got != components.TransitionEntityNotFound {
		t.Fatalf("TransferEntity = %v, want EntityNotFound", got)
	}
}

func TestGetEntityZoneFlagsMatchesZoneInSameMap(t *testing.T) {
	f := newWorldFixture()
	mapEntity := f.registry.Create()
	f.mapInstances.Add(mapEntity, components.MapInstance{MapID: 1})
	zoneEntity := f.registry.Create()
	f.zones.Add(zoneEntity, components.Zone{ZoneID: 3, MapEntity: mapEntity, Flags: components.ZoneFlagNoCombat})

	entity := f.spawnAt(mapEntity, mathutil.Vector3{})
	f.memberships.Get(entity).ZoneID = 3

	if got := f.system.GetEntityZoneFlags(entity); got != components.ZoneFlagNoCombat {
		t.Fatalf("GetEntityZoneFlags = %v, want NoCombat", got)
	}
}

func TestGetEntityZoneFlagsReturnsNoneWithoutMatch(t *testing.T) {
	f := newWorldFixture()
	mapEntity := f.registry.Create()
	entity := f.spawnAt(mapEntity, mathutil.Vector3{})

	if got := f.system.GetEntityZoneFlags(entity); got != components.ZoneFlagNone {
		t.Fatalf("GetEntityZoneFlags = %v, want None", got)
	}
}

func TestStageAndNameIdentifySystem(t *testing.T) {
	f := newWorldFixture()
	if f.system.Stage() != ecs.PreUpdate {
		t.Fatalf("Stage = %v, want PreUpdate", f.system.Stage())
	}
	if f.system.Name() != "WorldSystem" {
		t.Fatalf("Name = %q, want WorldSystem", f.system.Name())
	}
}
